package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsync/syncengine/internal/callback"
	"github.com/docsync/syncengine/internal/events"
	"github.com/docsync/syncengine/internal/model"
	"github.com/docsync/syncengine/internal/remote"
	"github.com/docsync/syncengine/internal/status"
	"github.com/docsync/syncengine/internal/store"
	"github.com/docsync/syncengine/internal/targetid"
)

// fakeLocal is a minimal, in-memory store.Local used only to exercise
// the Sync Controller's logic in isolation from any real persistence
// layer.
type fakeLocal struct {
	nextTarget   model.TargetId
	nextBatch    model.BatchId
	allocations  map[string]model.QueryData
	docs         map[model.DocumentKey]model.MaybeDocument
	syncedByTgt  map[model.TargetId]map[model.DocumentKey]struct{}
	pendingBatch map[model.BatchId][]model.Mutation
	highest      model.BatchId

	// failApplyRemoteEvent, when set, makes the next ApplyRemoteEvent
	// call return it.
	failApplyRemoteEvent error
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{
		nextTarget:   2, // Local Store's range is even, per internal/targetid.
		nextBatch:    1,
		allocations:  make(map[string]model.QueryData),
		docs:         make(map[model.DocumentKey]model.MaybeDocument),
		syncedByTgt:  make(map[model.TargetId]map[model.DocumentKey]struct{}),
		pendingBatch: make(map[model.BatchId][]model.Mutation),
		highest:      model.UnknownBatchId,
	}
}

func (f *fakeLocal) AllocateQuery(_ context.Context, q model.Query) (model.QueryData, error) {
	if data, ok := f.allocations[q.CacheKey()]; ok {
		return data, nil
	}
	data := model.QueryData{Query: q, TargetId: f.nextTarget, SequenceNumber: model.SequenceNumber(f.nextTarget), Purpose: model.PurposeListen}
	f.nextTarget += 2
	f.allocations[q.CacheKey()] = data
	f.syncedByTgt[data.TargetId] = make(map[model.DocumentKey]struct{})
	return data, nil
}

func (f *fakeLocal) ReleaseQuery(_ context.Context, q model.Query) error {
	if data, ok := f.allocations[q.CacheKey()]; ok {
		delete(f.syncedByTgt, data.TargetId)
		delete(f.allocations, q.CacheKey())
	}
	return nil
}

func (f *fakeLocal) ExecuteQuery(_ context.Context, q model.Query) ([]model.MaybeDocument, error) {
	var out []model.MaybeDocument
	prefix := q.CollectionPath + "/"
	for k, d := range f.docs {
		if !d.Exists() {
			continue
		}
		if len(k.Path()) > len(prefix) && k.Path()[:len(prefix)] == prefix {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeLocal) GetRemoteDocumentKeys(_ context.Context, targetId model.TargetId) (map[model.DocumentKey]struct{}, error) {
	out := make(map[model.DocumentKey]struct{})
	for k := range f.syncedByTgt[targetId] {
		out[k] = struct{}{}
	}
	return out, nil
}

func (f *fakeLocal) WriteLocally(_ context.Context, mutations []model.Mutation) (model.LocalWriteResult, error) {
	batchId := f.nextBatch
	f.nextBatch++
	f.pendingBatch[batchId] = mutations
	if f.highest == model.UnknownBatchId || batchId > f.highest {
		f.highest = batchId
	}

	changes := make(map[model.DocumentKey]model.MaybeDocument)
	for _, m := range mutations {
		var doc model.MaybeDocument
		if m.IsDelete() {
			doc = model.NewNoDocument(m.Key, model.None, false)
		} else {
			doc = model.NewDocument(m.Key, model.None, m.Fields)
		}
		f.docs[m.Key] = doc
		changes[m.Key] = doc
	}
	return model.LocalWriteResult{BatchId: batchId, Changes: changes}, nil
}

func (f *fakeLocal) ApplyRemoteEvent(_ context.Context, event *model.RemoteEvent) (map[model.DocumentKey]model.MaybeDocument, error) {
	if err := f.failApplyRemoteEvent; err != nil {
		f.failApplyRemoteEvent = nil
		return nil, err
	}
	for targetId, tc := range event.TargetChanges {
		synced := f.syncedByTgt[targetId]
		if synced == nil {
			synced = make(map[model.DocumentKey]struct{})
			f.syncedByTgt[targetId] = synced
		}
		for _, k := range tc.Added {
			synced[k] = struct{}{}
		}
		for _, k := range tc.Removed {
			delete(synced, k)
		}
	}
	for k, d := range event.DocumentUpdates {
		f.docs[k] = d
	}
	return event.DocumentUpdates, nil
}

func (f *fakeLocal) AcknowledgeBatch(_ context.Context, result model.BatchResult) (map[model.DocumentKey]model.MaybeDocument, error) {
	muts := f.pendingBatch[result.BatchId]
	delete(f.pendingBatch, result.BatchId)
	changes := make(map[model.DocumentKey]model.MaybeDocument)
	for _, m := range muts {
		// Stamp the server-confirmed version so the View sees a real
		// change on acknowledgment, the way a live Local Store would
		// after replacing the mutation's speculative version.
		var d model.MaybeDocument
		if m.IsDelete() {
			d = model.NewNoDocument(m.Key, result.Version, true)
		} else {
			d = model.NewDocument(m.Key, result.Version, m.Fields)
		}
		f.docs[m.Key] = d
		changes[m.Key] = d
	}
	f.recomputeHighest()
	return changes, nil
}

func (f *fakeLocal) RejectBatch(_ context.Context, batchId model.BatchId) (map[model.DocumentKey]model.MaybeDocument, error) {
	muts := f.pendingBatch[batchId]
	delete(f.pendingBatch, batchId)
	changes := make(map[model.DocumentKey]model.MaybeDocument)
	for _, m := range muts {
		changes[m.Key] = model.NewNoDocument(m.Key, model.None, false)
	}
	f.recomputeHighest()
	return changes, nil
}

func (f *fakeLocal) recomputeHighest() {
	f.highest = model.UnknownBatchId
	for id := range f.pendingBatch {
		if f.highest == model.UnknownBatchId || id > f.highest {
			f.highest = id
		}
	}
}

func (f *fakeLocal) NotifyLocalViewChanges(_ context.Context, _ []store.LocalViewChanges) error {
	return nil
}

func (f *fakeLocal) GetHighestUnacknowledgedBatchId(_ context.Context) (model.BatchId, error) {
	return f.highest, nil
}

func (f *fakeLocal) HandleUserChange(_ context.Context, _ string) (map[model.DocumentKey]model.MaybeDocument, error) {
	return nil, nil
}

// fakeRemoteStore records every control signal the Sync Controller
// sends so tests can assert on them directly.
type fakeRemoteStore struct {
	listened    []model.QueryData
	stopped     []model.TargetId
	txnResults  []error // queued Commit() results for CreateTransaction
	commitCalls int
	credChanges int
}

func (f *fakeRemoteStore) Listen(_ context.Context, data model.QueryData) error {
	f.listened = append(f.listened, data)
	return nil
}

func (f *fakeRemoteStore) StopListening(_ context.Context, targetId model.TargetId) error {
	f.stopped = append(f.stopped, targetId)
	return nil
}

func (f *fakeRemoteStore) FillWritePipeline(_ context.Context) {}

func (f *fakeRemoteStore) CreateTransaction(_ context.Context) (remote.Transaction, error) {
	return &fakeTransaction{store: f}, nil
}

func (f *fakeRemoteStore) CanUseNetwork() bool { return true }

func (f *fakeRemoteStore) HandleCredentialChange(_ context.Context) { f.credChanges++ }

type fakeTransaction struct {
	store *fakeRemoteStore
}

func (t *fakeTransaction) Commit(_ context.Context) error {
	idx := t.store.commitCalls
	t.store.commitCalls++
	if idx < len(t.store.txnResults) {
		return t.store.txnResults[idx]
	}
	return nil
}

// fakeEventManager records every snapshot batch and error delivered to
// the application.
type fakeEventManager struct {
	batches       [][]events.ViewSnapshot
	errs          []error
	onlineChanges []model.OnlineState

	// onSnapshots, when set, runs at the start of every OnViewSnapshots
	// call.
	onSnapshots func()
}

func (f *fakeEventManager) OnViewSnapshots(snapshots []events.ViewSnapshot) {
	if f.onSnapshots != nil {
		f.onSnapshots()
	}
	f.batches = append(f.batches, snapshots)
}

func (f *fakeEventManager) OnError(_ model.Query, err error) {
	f.errs = append(f.errs, err)
}

func (f *fakeEventManager) HandleOnlineStateChange(state model.OnlineState) {
	f.onlineChanges = append(f.onlineChanges, state)
}

func newTestEngine() (*Engine, *fakeLocal, *fakeRemoteStore, *fakeEventManager) {
	local := newFakeLocal()
	remoteStore := &fakeRemoteStore{}
	manager := &fakeEventManager{}
	e := New(local, remoteStore, manager, targetid.NewGenerator(), status.NeverPermanent, "user1")
	e.SetCallbackRegistered()
	return e, local, remoteStore, manager
}

func q(collectionPath string) model.Query { return model.Query{CollectionPath: collectionPath} }

// S1 — Listen + remote snapshot.
func TestListenThenRemoteSnapshot(t *testing.T) {
	ctx := context.Background()
	e, local, remoteStore, manager := newTestEngine()

	a, b := model.NewDocumentKey("users/a"), model.NewDocumentKey("users/b")
	local.docs[a] = model.NewDocument(a, model.NewVersion(1, 0), map[string]any{"n": 1})
	local.docs[b] = model.NewDocument(b, model.NewVersion(1, 0), map[string]any{"n": 2})

	targetId, err := e.Listen(ctx, q("users"))
	require.NoError(t, err)
	require.Len(t, manager.batches, 1, "initial snapshot")
	require.Len(t, remoteStore.listened, 1)

	event := model.NewRemoteEvent()
	event.TargetChanges[targetId] = model.TargetChange{TargetId: targetId, Added: []model.DocumentKey{a, b}, Current: true}

	e.HandleRemoteEvent(ctx, event)

	require.Len(t, manager.batches, 2, "synced snapshot")
	synced := manager.batches[1][0]
	assert.Equal(t, model.SyncStateSynced, synced.SyncState)
	assert.Len(t, synced.Documents, 2)
}

// S2 — Limbo discovery and resolution.
func TestLimboDiscoveryAndResolution(t *testing.T) {
	ctx := context.Background()
	e, _, remoteStore, manager := newTestEngine()

	targetId, err := e.Listen(ctx, q("users"))
	require.NoError(t, err)

	x := model.NewDocumentKey("users/x")
	event := model.NewRemoteEvent()
	event.TargetChanges[targetId] = model.TargetChange{TargetId: targetId, Added: []model.DocumentKey{x}, Current: true}
	e.HandleRemoteEvent(ctx, event)

	assert.Equal(t, 1, e.limbo.Len(), "x should be discovered as a limbo document")
	require.Len(t, remoteStore.listened, 2, "a limbo resolution listen was started")
	limboTargetId := remoteStore.listened[1].TargetId
	assert.Equal(t, model.PurposeLimboResolution, remoteStore.listened[1].Purpose)

	resolveEvent := model.NewRemoteEvent()
	resolveEvent.TargetChanges[limboTargetId] = model.TargetChange{TargetId: limboTargetId, Added: []model.DocumentKey{x}, Current: true}
	resolveEvent.DocumentUpdates[x] = model.NewDocument(x, model.NewVersion(2, 0), map[string]any{"n": 3})
	e.HandleRemoteEvent(ctx, resolveEvent)

	assert.Equal(t, 0, e.limbo.Len(), "limbo resolved")
	require.Len(t, remoteStore.stopped, 1)
	assert.Equal(t, limboTargetId, remoteStore.stopped[0])

	last := manager.batches[len(manager.batches)-1][0]
	assert.Len(t, last.Documents, 1)
	assert.True(t, last.Documents[0].Exists())
}

// S3 — Limbo rejected.
func TestLimboRejectedPurgesSilently(t *testing.T) {
	ctx := context.Background()
	e, _, remoteStore, manager := newTestEngine()

	targetId, err := e.Listen(ctx, q("users"))
	require.NoError(t, err)

	x := model.NewDocumentKey("users/x")
	event := model.NewRemoteEvent()
	event.TargetChanges[targetId] = model.TargetChange{TargetId: targetId, Added: []model.DocumentKey{x}, Current: true}
	e.HandleRemoteEvent(ctx, event)
	require.Equal(t, 1, e.limbo.Len())
	limboTargetId := remoteStore.listened[1].TargetId

	errsBefore := len(manager.errs)
	e.HandleRejectedListen(ctx, limboTargetId, status.New(status.PermissionDenied, "no access"))

	assert.Equal(t, 0, e.limbo.Len(), "limbo indices cleared")
	assert.Equal(t, errsBefore, len(manager.errs), "no onError for a healthy user listen")

	qv, ok := e.views.getByTarget(targetId)
	require.True(t, ok)
	_, stillSynced := qv.view.SyncedDocuments()[x]
	assert.False(t, stillSynced, "x removed from syncedDocuments")
}

// S4 — Write ack ordering.
func TestWriteAckOrdering(t *testing.T) {
	ctx := context.Background()
	e, _, _, manager := newTestEngine()

	a := model.NewDocumentKey("users/a")
	_, err := e.Listen(ctx, q("users"))
	require.NoError(t, err)

	completion := callback.NewOneShotCompletion()
	require.NoError(t, e.WriteMutations(ctx, []model.Mutation{{Key: a, Fields: map[string]any{"n": 2}}}, completion))

	batchesBeforeAck := len(manager.batches)

	var order []string
	done := make(chan struct{})
	go func() {
		err := completion.Wait()
		assert.NoError(t, err)
		close(done)
	}()

	// The hook runs inside HandleSuccessfulWrite, on this goroutine, as
	// the acknowledgment's snapshot is delivered: "callback" is recorded
	// only if the completion has already fired by then.
	manager.onSnapshots = func() {
		select {
		case <-done:
			order = append(order, "callback")
		case <-time.After(time.Second):
		}
		order = append(order, "snapshot")
	}

	e.HandleSuccessfulWrite(ctx, model.BatchResult{BatchId: 1, Version: model.NewVersion(2, 0)})
	<-done

	require.Len(t, manager.batches, batchesBeforeAck+1)
	assert.Equal(t, []string{"callback", "snapshot"}, order)
}

// S5 — Transaction retry.
func TestTransactionRetry(t *testing.T) {
	ctx := context.Background()
	e, _, remoteStore, _ := newTestEngine()
	remoteStore.txnResults = []error{
		status.New(status.Aborted, "conflict"),
		status.New(status.Aborted, "conflict"),
		nil,
	}

	calls := 0
	result, err := Transaction(ctx, e, 2, func(_ context.Context, _ remote.Transaction) (int, error) {
		calls++
		return calls, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "fn invoked three times")
	assert.Equal(t, 3, result, "result comes from the third invocation")
}

// S6 — Credential change.
func TestCredentialChangeCancelsPendingWrites(t *testing.T) {
	ctx := context.Background()
	e, local, remoteStore, _ := newTestEngine()

	local.highest = 5
	pending := callback.NewOneShotCompletion()
	require.NoError(t, e.RegisterPendingWritesTask(ctx, pending))

	e.HandleCredentialChange(ctx, "user2")

	err := pending.Wait()
	assert.Error(t, err)
	assert.Equal(t, status.Cancelled, status.Of(err))
	assert.Equal(t, 1, remoteStore.credChanges)
	assert.Equal(t, "user2", e.currentUser)
}

func TestPendingWritesResolveMonotonically(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := newTestEngine()

	a := model.NewDocumentKey("users/a")
	c1, c2 := callback.NewOneShotCompletion(), callback.NewOneShotCompletion()
	require.NoError(t, e.WriteMutations(ctx, []model.Mutation{{Key: a, Fields: map[string]any{"n": 1}}}, c1))

	p1 := callback.NewOneShotCompletion()
	require.NoError(t, e.RegisterPendingWritesTask(ctx, p1))

	require.NoError(t, e.WriteMutations(ctx, []model.Mutation{{Key: a, Fields: map[string]any{"n": 2}}}, c2))
	p2 := callback.NewOneShotCompletion()
	require.NoError(t, e.RegisterPendingWritesTask(ctx, p2))

	p2done := make(chan struct{})
	go func() {
		_ = p2.Wait()
		close(p2done)
	}()

	e.HandleSuccessfulWrite(ctx, model.BatchResult{BatchId: 1, Version: model.NewVersion(2, 0)})
	require.NoError(t, p1.Wait(), "waiter registered at batch 1 resolves with batch 1's ack")
	select {
	case <-p2done:
		t.Fatal("waiter registered at batch 2 resolved before batch 2 was acknowledged")
	case <-time.After(20 * time.Millisecond):
	}

	e.HandleSuccessfulWrite(ctx, model.BatchResult{BatchId: 2, Version: model.NewVersion(3, 0)})
	<-p2done
	require.NoError(t, c1.Wait())
	require.NoError(t, c2.Wait())
}

func TestRegisterPendingWritesCompletesImmediatelyWhenIdle(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := newTestEngine()

	p := callback.NewOneShotCompletion()
	require.NoError(t, e.RegisterPendingWritesTask(ctx, p))
	assert.NoError(t, p.Wait())
}

func TestOnlineStateChangeDowngradesSyncedViews(t *testing.T) {
	ctx := context.Background()
	e, _, _, manager := newTestEngine()

	targetId, err := e.Listen(ctx, q("users"))
	require.NoError(t, err)

	event := model.NewRemoteEvent()
	event.TargetChanges[targetId] = model.TargetChange{TargetId: targetId, Current: true}
	e.HandleRemoteEvent(ctx, event)

	e.HandleOnlineStateChange(ctx, model.OnlineStateOffline)

	require.Equal(t, []model.OnlineState{model.OnlineStateOffline}, manager.onlineChanges)
	last := manager.batches[len(manager.batches)-1][0]
	assert.Equal(t, model.SyncStateLocal, last.SyncState)
	assert.True(t, last.FromCache)
}

func TestOpsFailHardBeforeCallbackRegistration(t *testing.T) {
	ctx := context.Background()
	e := New(newFakeLocal(), &fakeRemoteStore{}, &fakeEventManager{}, targetid.NewGenerator(), status.NeverPermanent, "user1")

	assert.Panics(t, func() { _, _ = e.Listen(ctx, q("users")) })
	assert.Panics(t, func() { e.HandleRemoteEvent(ctx, model.NewRemoteEvent()) })
	assert.Panics(t, func() { e.HandleOnlineStateChange(ctx, model.OnlineStateOnline) })
	assert.Panics(t, func() { _ = e.GetRemoteKeysForTarget(2) })

	// awaitPendingWrites and transactions carry no registration
	// precondition.
	p := callback.NewOneShotCompletion()
	require.NoError(t, e.RegisterPendingWritesTask(ctx, p))
	assert.NoError(t, p.Wait())

	_, err := Transaction(ctx, e, 0, func(context.Context, remote.Transaction) (int, error) {
		return 1, nil
	})
	assert.NoError(t, err)
}

func TestLocalStoreFailureSurfacesAsOnError(t *testing.T) {
	ctx := context.Background()
	e, local, _, manager := newTestEngine()

	_, err := e.Listen(ctx, q("users"))
	require.NoError(t, err)

	local.failApplyRemoteEvent = assert.AnError
	e.HandleRemoteEvent(ctx, model.NewRemoteEvent())

	require.Len(t, manager.errs, 1, "every active listener learns its view may be stale")
	assert.ErrorIs(t, manager.errs[0], assert.AnError)
}

func TestDuplicateListenFailsHard(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := newTestEngine()

	_, err := e.Listen(ctx, q("users"))
	require.NoError(t, err)

	assert.Panics(t, func() {
		_, _ = e.Listen(ctx, q("users"))
	})
}

func TestTargetIdRangesStayDisjoint(t *testing.T) {
	ctx := context.Background()
	e, _, remoteStore, _ := newTestEngine()

	targetId, err := e.Listen(ctx, q("users"))
	require.NoError(t, err)
	assert.True(t, targetId%2 == 0, "Local Store allocations are even in this fake")

	x := model.NewDocumentKey("users/x")
	event := model.NewRemoteEvent()
	event.TargetChanges[targetId] = model.TargetChange{TargetId: targetId, Added: []model.DocumentKey{x}, Current: true}
	e.HandleRemoteEvent(ctx, event)

	require.Len(t, remoteStore.listened, 2)
	limboTargetId := remoteStore.listened[1].TargetId
	assert.True(t, limboTargetId%2 == 1, "Sync Engine allocations are odd")
	assert.NotEqual(t, targetId, limboTargetId)
}
