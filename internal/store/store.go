// Package store declares the Local Store contract the Sync Engine
// consumes. The Local Store itself — persistence format, index
// maintenance, mutation queue durability — is out of scope here; this
// package only fixes the interface shape so the engine can be built
// and tested against any implementation, including the in-memory
// fake in internal/engine's tests and the sqlite-backed
// internal/teststore.
package store

import (
	"context"

	"github.com/docsync/syncengine/internal/model"
)

// Local is the persistent cache of documents and the pending mutation
// queue, consumed by the Sync Engine.
type Local interface {
	// AllocateQuery assigns a TargetId (from the Local Store's own
	// range, disjoint from the Sync Engine's limbo range) and a
	// sequence number to q, or returns the existing allocation if q was
	// already registered by a prior listen that has not yet been
	// released.
	AllocateQuery(ctx context.Context, q model.Query) (model.QueryData, error)

	// ReleaseQuery drops q's allocation. It is a no-op if q is not
	// currently allocated.
	ReleaseQuery(ctx context.Context, q model.Query) error

	// ExecuteQuery runs q against the local document cache and returns
	// the ordered result.
	ExecuteQuery(ctx context.Context, q model.Query) ([]model.MaybeDocument, error)

	// GetRemoteDocumentKeys returns the set of keys the Local Store has
	// recorded as remotely synced for targetId as of the last
	// applied RemoteEvent.
	GetRemoteDocumentKeys(ctx context.Context, targetId model.TargetId) (map[model.DocumentKey]struct{}, error)

	// WriteLocally durably queues mutations as a new batch and applies
	// them to the local view of affected documents, returning the
	// batch id assigned and the resulting document changes.
	WriteLocally(ctx context.Context, mutations []model.Mutation) (model.LocalWriteResult, error)

	// ApplyRemoteEvent folds event into the local document cache,
	// returning the resulting MaybeDocument for every key it touched.
	ApplyRemoteEvent(ctx context.Context, event *model.RemoteEvent) (map[model.DocumentKey]model.MaybeDocument, error)

	// AcknowledgeBatch marks batchResult.BatchId as committed by the
	// backend, returning the resulting document changes. Earlier
	// batches are not acknowledged by this call.
	AcknowledgeBatch(ctx context.Context, batchResult model.BatchResult) (map[model.DocumentKey]model.MaybeDocument, error)

	// RejectBatch marks batchId as rejected by the backend, returning
	// the resulting document changes (typically reverting the batch's
	// speculative local effects).
	RejectBatch(ctx context.Context, batchId model.BatchId) (map[model.DocumentKey]model.MaybeDocument, error)

	// NotifyLocalViewChanges informs the Local Store which documents
	// each active View newly added to or removed from its result, so
	// the cache can pin/unpin documents accordingly.
	NotifyLocalViewChanges(ctx context.Context, changes []LocalViewChanges) error

	// GetHighestUnacknowledgedBatchId returns the largest BatchId still
	// awaiting acknowledgment, or UnknownBatchId if none is
	// outstanding.
	GetHighestUnacknowledgedBatchId(ctx context.Context) (model.BatchId, error)

	// HandleUserChange swaps the mutation queue to belong to user,
	// returning the resulting document changes (e.g. reverting mutations
	// that belonged only to the previous user's session).
	HandleUserChange(ctx context.Context, user string) (map[model.DocumentKey]model.MaybeDocument, error)
}

// LocalViewChanges records, from one View's perspective, which keys
// entered or left its result set during a single recomputation.
type LocalViewChanges struct {
	TargetId model.TargetId
	Added    []model.DocumentKey
	Removed  []model.DocumentKey

	// FromCache indicates the view's result is not backed by a CURRENT
	// server acknowledgment yet (SyncState Local rather than Synced).
	FromCache bool
}
