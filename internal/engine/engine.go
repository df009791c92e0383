// Package engine implements the Sync Controller:
// the single entry point for every signal that reaches the Sync
// Engine, from the application (listen, write, transaction,
// awaitPendingWrites, credential change) or from the Remote Store
// (remote events, rejected listens, write acks, online state).
//
// Every exported method is expected to run on the caller's single
// serial worker; Engine performs no internal locking of
// its own state and is not safe for concurrent calls.
package engine

import (
	"context"

	"github.com/docsync/syncengine/internal/callback"
	"github.com/docsync/syncengine/internal/events"
	"github.com/docsync/syncengine/internal/limbo"
	"github.com/docsync/syncengine/internal/model"
	"github.com/docsync/syncengine/internal/remote"
	"github.com/docsync/syncengine/internal/status"
	"github.com/docsync/syncengine/internal/store"
)

// Engine is the Sync Controller. It owns the Query View Registry and
// coordinates the Local Store, the Remote Store, the Limbo Tracker and
// the Mutation Callback Registry.
type Engine struct {
	local    store.Local
	remote   remote.Store
	manager  events.Manager
	callback *callback.Registry
	limbo    *limbo.Tracker
	views    *registry

	isPermanent status.PermanentClassifier

	// registered records that the Remote Store has installed this
	// Engine as its callback (construction is two-phase: New, then the
	// Remote Store's SetCallback, then SetCallbackRegistered). Every
	// operation except RegisterPendingWritesTask and Transaction fails
	// hard until then.
	registered bool

	currentUser string
}

// New wires an Engine from its collaborators. isPermanent may be nil,
// in which case no error is ever treated as permanent by the
// transaction retry loop (status.NeverPermanent).
func New(
	local store.Local,
	remoteStore remote.Store,
	manager events.Manager,
	targetIDs limbo.TargetAllocator,
	isPermanent status.PermanentClassifier,
	initialUser string,
) *Engine {
	if isPermanent == nil {
		isPermanent = status.NeverPermanent
	}
	e := &Engine{
		local:       local,
		remote:      remoteStore,
		manager:     manager,
		callback:    callback.NewRegistry(),
		views:       newRegistry(),
		isPermanent: isPermanent,
		currentUser: initialUser,
	}
	e.limbo = limbo.NewTracker(targetIDs, remoteListenerAdapter{ctx: context.Background(), store: remoteStore})
	return e
}

// SetCallbackRegistered records that the Remote Store now holds this
// Engine as its callback sink. Call it once, immediately after the
// Remote Store's SetCallback (or equivalent) wiring.
func (e *Engine) SetCallbackRegistered() { e.registered = true }

// assertCallbackRegistered is the precondition shared by every
// operation other than RegisterPendingWritesTask and Transaction. A
// call before the callback wiring is complete is a bug in the
// surrounding client, not a runtime condition.
func (e *Engine) assertCallbackRegistered(op string) {
	status.Assert(e.registered, "%s: callback not yet registered", op)
}

// remoteListenerAdapter narrows remote.Store to limbo.RemoteListener,
// supplying the context the limbo Tracker itself has no way to thread
// through.
type remoteListenerAdapter struct {
	ctx   context.Context
	store remote.Store
}

func (a remoteListenerAdapter) Listen(target model.QueryData) error {
	return a.store.Listen(a.ctx, target)
}

func (a remoteListenerAdapter) StopListening(targetId model.TargetId) error {
	return a.store.StopListening(a.ctx, targetId)
}

var _ remote.Callback = (*Engine)(nil)
