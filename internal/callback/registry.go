package callback

import (
	"sort"
	"sync"

	"github.com/docsync/syncengine/internal/model"
	"github.com/docsync/syncengine/internal/status"
)

// Registry owns the two completion tables:
// mutationUserCallbacks (partitioned by user, since a credential
// change abandons the previous user's partition) and
// pendingWritesCallbacks (global, since awaitPendingWrites is not
// user-scoped).
//
// All methods are expected to be called from the Sync Engine's single
// worker. Each method holds an internal mutex while it reads or
// changes the tables, and resolves completions only after releasing
// it; OneShotCompletion.Wait takes no lock of the Registry.
type Registry struct {
	mu sync.Mutex

	userCallbacks map[string]map[model.BatchId]*OneShotCompletion
	pending       map[model.BatchId][]*OneShotCompletion
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		userCallbacks: make(map[string]map[model.BatchId]*OneShotCompletion),
		pending:       make(map[model.BatchId][]*OneShotCompletion),
	}
}

// RegisterUserCallback records completion as owed to user for batchId.
func (r *Registry) RegisterUserCallback(user string, batchId model.BatchId, completion *OneShotCompletion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byBatch, ok := r.userCallbacks[user]
	if !ok {
		byBatch = make(map[model.BatchId]*OneShotCompletion)
		r.userCallbacks[user] = byBatch
	}
	byBatch[batchId] = completion
}

// ResolveUserCallback fires and removes the completion owed to user
// for batchId. It is a programmer error to resolve a callback that was
// never registered.
func (r *Registry) ResolveUserCallback(user string, batchId model.BatchId, err error) {
	r.mu.Lock()
	byBatch, ok := r.userCallbacks[user]
	var completion *OneShotCompletion
	if ok {
		completion, ok = byBatch[batchId]
		if ok {
			delete(byBatch, batchId)
		}
	}
	r.mu.Unlock()

	status.Assert(ok, "no user callback registered for user=%s batch=%d", user, batchId)
	completion.Resolve(err)
}

// RegisterPendingWritesCompletion appends completion to the list of
// waiters for batchId.
func (r *Registry) RegisterPendingWritesCompletion(batchId model.BatchId, completion *OneShotCompletion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[batchId] = append(r.pending[batchId], completion)
}

// ResolveUpTo fires (with err, typically nil) every pending-writes
// completion registered for a batchId <= upTo:
// "When that batch (or any later one by monotonicity) is acknowledged,
// all prior completions fire." Resolved entries are removed.
func (r *Registry) ResolveUpTo(upTo model.BatchId, err error) {
	r.mu.Lock()
	var ids []model.BatchId
	for id := range r.pending {
		if id <= upTo {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var toResolve []*OneShotCompletion
	for _, id := range ids {
		toResolve = append(toResolve, r.pending[id]...)
		delete(r.pending, id)
	}
	r.mu.Unlock()

	for _, c := range toResolve {
		c.Resolve(err)
	}
}

// CancelAllPending fails every outstanding pending-writes completion
// with a CANCELLED error: they belonged to the previous user.
func (r *Registry) CancelAllPending() {
	r.ResolveUpTo(1<<62, status.New(status.Cancelled, "user changed"))
}

// AbandonUser drops user's callback partition without resolving its
// entries. Completions already handed out are held by their awaiting
// callers and complete naturally only for the new user's batches —
// there is no cross-user completion.
func (r *Registry) AbandonUser(user string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.userCallbacks, user)
}
