// Package fakeremote is an in-memory reference implementation of
// remote.Store, with a decorator for fault injection, used by
// cmd/syncdemo as a stand-in backend. It has no network code of its
// own: "deliver" methods let a test or demo driver play the part of
// the server, synchronously invoking the installed remote.Callback the
// same way the Sync Engine's real single worker would receive it.
package fakeremote

import (
	"context"
	"sync"

	"github.com/docsync/syncengine/internal/model"
	"github.com/docsync/syncengine/internal/remote"
	"github.com/docsync/syncengine/internal/status"
)

// Store is an in-memory remote.Store. Construction is two-phase to
// break the cyclic reference between the Sync Engine and its Remote
// Store callback: New returns a Store with no callback installed, and
// SetCallback wires it to the Engine once the Engine itself exists.
type Store struct {
	mu sync.Mutex

	callback remote.Callback

	listening map[model.TargetId]model.QueryData
	online    bool

	pendingWrites []model.BatchResult
	fillCalls     int
}

// New returns a Store with no callback installed yet.
func New() *Store {
	return &Store{
		listening: make(map[model.TargetId]model.QueryData),
		online:    true,
	}
}

// SetCallback installs the Sync Engine as this Store's callback
// sink. It must be called exactly once, before any Listen/write call.
func (s *Store) SetCallback(cb remote.Callback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status.Assert(s.callback == nil, "fakeremote: SetCallback called twice")
	s.callback = cb
}

var _ remote.Store = (*Store)(nil)

// Listen implements remote.Store.
func (s *Store) Listen(_ context.Context, data model.QueryData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listening[data.TargetId] = data
	return nil
}

// StopListening implements remote.Store.
func (s *Store) StopListening(_ context.Context, targetId model.TargetId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listening, targetId)
	return nil
}

// FillWritePipeline implements remote.Store. The fake has no real
// pipeline to pump; it just counts calls so tests can assert the Sync
// Controller pokes it after every WriteMutations.
func (s *Store) FillWritePipeline(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fillCalls++
}

// CanUseNetwork implements remote.Store.
func (s *Store) CanUseNetwork() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// HandleCredentialChange implements remote.Store.
func (s *Store) HandleCredentialChange(context.Context) {}

// CreateTransaction implements remote.Store, returning a fresh
// *Transaction every call.
func (s *Store) CreateTransaction(context.Context) (remote.Transaction, error) {
	return &Transaction{}, nil
}

// IsListening reports whether targetId currently has an active
// listen, for test assertions.
func (s *Store) IsListening(targetId model.TargetId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.listening[targetId]
	return ok
}

// FillCalls reports how many times FillWritePipeline has been invoked.
func (s *Store) FillCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fillCalls
}

// DeliverRemoteEvent plays the server's part of a watch stream update,
// feeding event to the installed callback.
func (s *Store) DeliverRemoteEvent(ctx context.Context, event *model.RemoteEvent) {
	s.callback.HandleRemoteEvent(ctx, event)
}

// RejectListen plays the server rejecting targetId's listen.
func (s *Store) RejectListen(ctx context.Context, targetId model.TargetId, err error) {
	s.mu.Lock()
	delete(s.listening, targetId)
	s.mu.Unlock()
	s.callback.HandleRejectedListen(ctx, targetId, err)
}

// AckWrite plays the server acknowledging a write batch.
func (s *Store) AckWrite(ctx context.Context, result model.BatchResult) {
	s.callback.HandleSuccessfulWrite(ctx, result)
}

// RejectWrite plays the server rejecting a write batch.
func (s *Store) RejectWrite(ctx context.Context, batchId model.BatchId, err error) {
	s.callback.HandleRejectedWrite(ctx, batchId, err)
}

// SetOnlineState plays a connectivity transition.
func (s *Store) SetOnlineState(ctx context.Context, online bool, state model.OnlineState) {
	s.mu.Lock()
	s.online = online
	s.mu.Unlock()
	s.callback.HandleOnlineStateChange(ctx, state)
}

// Transaction is a fake remote.Transaction whose Commit always
// succeeds. Compose it with WithChaos to exercise the retry loop's
// error paths instead.
type Transaction struct{}

var _ remote.Transaction = (*Transaction)(nil)

// Commit implements remote.Transaction.
func (t *Transaction) Commit(context.Context) error { return nil }
