// Package view implements the per-query View: it materializes a
// query's result from local documents plus
// remote sync state, and detects limbo documents — keys the server
// confirms belong in the result but that are locally absent.
package view

import (
	"github.com/docsync/syncengine/internal/model"
)

// ChangeType classifies how a single key's presence in a View's
// document set changed.
type ChangeType int

// Supported change types.
const (
	ChangeAdded ChangeType = iota
	ChangeModified
	ChangeRemoved
)

// DocChange pairs a changed document's new content with how it
// changed relative to the View's prior document set.
type DocChange struct {
	Doc  model.MaybeDocument
	Type ChangeType
}

// DocumentChanges is the pure output of View.ComputeDocChanges: which
// keys changed and how, plus whether a limit query needs its window
// refilled from the Local Store.
type DocumentChanges struct {
	// Changes is keyed by every document whose presence or content
	// changed as a result of the input changes map.
	Changes map[model.DocumentKey]DocChange

	// NeedsRefill is set when the delta removed a document that was
	// inside a limit query's window — the View cannot know, from the
	// delta alone, what document should now occupy the vacated slot,
	// so the Sync Controller must re-execute the query.
	NeedsRefill bool
}

// LimboChangeType classifies a change to a View's limbo set.
type LimboChangeType int

// Supported limbo change types.
const (
	LimboAdded LimboChangeType = iota
	LimboRemoved
)

// LimboChange records that key entered or left this View's limbo set.
type LimboChange struct {
	Key  model.DocumentKey
	Type LimboChangeType
}

// ViewChange is the output of View.ApplyChanges /
// View.ApplyOnlineStateChange: an optional snapshot (nil if no
// observable state changed) plus any limbo transitions.
type ViewChange struct {
	Snapshot     *Snapshot
	LimboChanges []LimboChange
}

// Snapshot is the View's half of an events.ViewSnapshot — it omits the
// Query field, which the caller (Sync Controller) already knows.
type Snapshot struct {
	Documents        []model.MaybeDocument
	SyncState        model.SyncState
	FromCache        bool
	HasPendingWrites bool
}
