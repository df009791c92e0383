// Package remote declares the Remote Store contract consumed by the
// Sync Engine, and the callback contract the Remote Store uses to push
// events back into the engine. As with internal/store, the Remote
// Store's own transport (gRPC/HTTP framing, resumption, backoff) is
// out of scope; this package only fixes the interface shape.
package remote

import (
	"context"

	"github.com/docsync/syncengine/internal/model"
	"github.com/docsync/syncengine/internal/status"
)

// Store is the streaming watch + write channel to the backend,
// consumed by the Sync Engine.
type Store interface {
	// Listen begins (or updates) a server-side subscription described
	// by data.
	Listen(ctx context.Context, data model.QueryData) error

	// StopListening ends the subscription for targetId.
	StopListening(ctx context.Context, targetId model.TargetId) error

	// FillWritePipeline is a hint that there may be newly-queued
	// mutations ready to send.
	FillWritePipeline(ctx context.Context)

	// CreateTransaction begins a new, single-use optimistic
	// transaction. Transactions are not reusable after a failed
	// commit; the transaction retry loop must request a
	// fresh one for every attempt.
	CreateTransaction(ctx context.Context) (Transaction, error)

	// CanUseNetwork reports whether the Remote Store currently
	// believes it can reach the backend.
	CanUseNetwork() bool

	// HandleCredentialChange tells the Remote Store to restart its
	// streams under the new credentials.
	HandleCredentialChange(ctx context.Context)
}

// Transaction is a single optimistic read/write transaction against
// the backend.
type Transaction interface {
	// Commit attempts to commit the transaction's accumulated reads and
	// writes.
	Commit(ctx context.Context) error
}

// PermanentClassifier is re-exported so callers that only import
// internal/remote (e.g. a Transport implementation) can produce one
// without also importing internal/status directly.
type PermanentClassifier = status.PermanentClassifier

// Callback is implemented by the Sync Engine and invoked by the Remote
// Store.
type Callback interface {
	HandleRemoteEvent(ctx context.Context, event *model.RemoteEvent)
	HandleRejectedListen(ctx context.Context, targetId model.TargetId, err error)
	HandleSuccessfulWrite(ctx context.Context, result model.BatchResult)
	HandleRejectedWrite(ctx context.Context, batchId model.BatchId, err error)
	HandleOnlineStateChange(ctx context.Context, state model.OnlineState)
	GetRemoteKeysForTarget(targetId model.TargetId) map[model.DocumentKey]struct{}
}
