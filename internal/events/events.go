// Package events declares the Event Manager callback contract the
// Sync Engine invokes to deliver view snapshots and errors to
// application listeners.
package events

import (
	"github.com/docsync/syncengine/internal/model"
)

// ViewSnapshot is an immutable view of a single query's result,
// delivered to the Event Manager. It carries no timestamp.
type ViewSnapshot struct {
	Query            model.Query
	Documents        []model.MaybeDocument
	SyncState        model.SyncState
	FromCache        bool
	HasPendingWrites bool
}

// Manager is implemented elsewhere (the application-facing SDK
// surface) and invoked by the Sync Engine.
type Manager interface {
	// OnViewSnapshots delivers a batch of snapshots produced by a
	// single signal, in the order the Sync Engine computed them.
	OnViewSnapshots(snapshots []ViewSnapshot)

	// OnError reports that a user's listen was rejected or otherwise
	// failed permanently.
	OnError(query model.Query, err error)

	// HandleOnlineStateChange forwards the Remote Store's connectivity
	// state for listeners that care about it directly.
	HandleOnlineStateChange(state model.OnlineState)
}
