package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsync/syncengine/internal/model"
)

func key(path string) model.DocumentKey { return model.NewDocumentKey(path) }

func doc(path string, n float64) model.MaybeDocument {
	return model.NewDocument(key(path), model.NewVersion(1, 0), map[string]any{"n": n})
}

func TestNewSeedsFromLocalDocuments(t *testing.T) {
	q := model.Query{CollectionPath: "users"}
	v := New(q, map[model.DocumentKey]struct{}{}, []model.MaybeDocument{doc("users/a", 1), doc("users/b", 2)})

	assert.Len(t, v.DocumentSet(), 2)
	assert.Empty(t, v.LimboDocuments())
	assert.Equal(t, model.SyncStateLocal, v.SyncState())
}

func TestApplyChangesDetectsLimboDocuments(t *testing.T) {
	q := model.Query{CollectionPath: "users"}
	v := New(q, nil, nil)

	x := key("users/x")
	tc := model.TargetChange{Added: []model.DocumentKey{x}, Current: true}
	vc := v.ApplyChanges(DocumentChanges{}, &tc)

	require.Len(t, vc.LimboChanges, 1)
	assert.Equal(t, LimboAdded, vc.LimboChanges[0].Type)
	assert.Contains(t, v.LimboDocuments(), x)
	require.NotNil(t, vc.Snapshot)
	assert.Equal(t, model.SyncStateSynced, vc.Snapshot.SyncState)
}

func TestApplyChangesResolvesLimboOnDocumentArrival(t *testing.T) {
	q := model.Query{CollectionPath: "users"}
	v := New(q, nil, nil)

	x := key("users/x")
	tc := model.TargetChange{Added: []model.DocumentKey{x}, Current: true}
	v.ApplyChanges(DocumentChanges{}, &tc)
	require.Contains(t, v.LimboDocuments(), x)

	changes := v.ComputeDocChanges(map[model.DocumentKey]model.MaybeDocument{x: doc("users/x", 9)})
	vc := v.ApplyChanges(changes, nil)

	require.Len(t, vc.LimboChanges, 1)
	assert.Equal(t, LimboRemoved, vc.LimboChanges[0].Type)
	assert.NotContains(t, v.LimboDocuments(), x)
	require.NotNil(t, vc.Snapshot)
	assert.Len(t, vc.Snapshot.Documents, 1)
}

func TestNoLimboBeforeServerCurrent(t *testing.T) {
	q := model.Query{CollectionPath: "users"}
	// A synced key with no local document would look like limbo, but
	// the server hasn't marked the target CURRENT yet.
	v := New(q, map[model.DocumentKey]struct{}{key("users/x"): {}}, nil)

	vc := v.ApplyChanges(DocumentChanges{}, nil)

	assert.Empty(t, vc.LimboChanges)
	assert.Empty(t, v.LimboDocuments())
	require.NotNil(t, vc.Snapshot, "the first ApplyChanges always yields the initial snapshot")
	assert.Equal(t, model.SyncStateLocal, vc.Snapshot.SyncState)
}

func TestInitialSnapshotEmittedForEmptyResult(t *testing.T) {
	q := model.Query{CollectionPath: "users"}
	v := New(q, nil, nil)

	vc := v.ApplyChanges(DocumentChanges{}, nil)
	require.NotNil(t, vc.Snapshot)
	assert.Empty(t, vc.Snapshot.Documents)

	// Only the first empty application is special.
	vc = v.ApplyChanges(DocumentChanges{}, nil)
	assert.Nil(t, vc.Snapshot)
}

func TestLimitWindowIsEnforced(t *testing.T) {
	q := model.Query{CollectionPath: "users", Limit: 2}
	v := New(q, nil, []model.MaybeDocument{doc("users/b", 1), doc("users/c", 2)})

	changes := v.ComputeDocChanges(map[model.DocumentKey]model.MaybeDocument{
		key("users/a"): doc("users/a", 0),
	})
	vc := v.ApplyChanges(changes, nil)

	require.NotNil(t, vc.Snapshot)
	require.Len(t, vc.Snapshot.Documents, 2)
	assert.Equal(t, "users/a", vc.Snapshot.Documents[0].Key.String())
	assert.Equal(t, "users/b", vc.Snapshot.Documents[1].Key.String())
}

func TestApplyChangesIgnoresOtherCollections(t *testing.T) {
	q := model.Query{CollectionPath: "users"}
	v := New(q, nil, nil)

	other := key("rooms/1")
	changes := v.ComputeDocChanges(map[model.DocumentKey]model.MaybeDocument{other: doc("rooms/1", 1)})
	assert.Empty(t, changes.Changes)
}

func TestApplyOnlineStateChangeNeverProducesLimboChanges(t *testing.T) {
	q := model.Query{CollectionPath: "users"}
	v := New(q, nil, []model.MaybeDocument{doc("users/a", 1)})

	vc := v.ApplyOnlineStateChange(model.OnlineStateOffline)
	assert.Empty(t, vc.LimboChanges)

	// Already Local (default); going Offline is a no-op and produces no
	// snapshot.
	assert.Nil(t, vc.Snapshot)
}

func TestRemovalInsideLimitWindowNeedsRefill(t *testing.T) {
	q := model.Query{CollectionPath: "users", Limit: 1}
	v := New(q, nil, []model.MaybeDocument{doc("users/a", 1)})

	a := key("users/a")
	changes := v.ComputeDocChanges(map[model.DocumentKey]model.MaybeDocument{
		a: model.NewNoDocument(a, model.NewVersion(2, 0), false),
	})
	assert.True(t, changes.NeedsRefill)
}

func TestComputeDocChangesWithPriorMergesUnaffectedEntries(t *testing.T) {
	q := model.Query{CollectionPath: "users", Limit: 1}
	v := New(q, nil, []model.MaybeDocument{doc("users/a", 1)})

	a := key("users/a")
	prior := v.ComputeDocChanges(map[model.DocumentKey]model.MaybeDocument{
		a: model.NewNoDocument(a, model.NewVersion(2, 0), false),
	})
	require.True(t, prior.NeedsRefill)

	// Refill brings in a replacement document.
	merged := v.ComputeDocChangesWithPrior([]model.MaybeDocument{doc("users/b", 2)}, prior)

	assert.Contains(t, merged.Changes, a)
	assert.Equal(t, ChangeRemoved, merged.Changes[a].Type)
	assert.Contains(t, merged.Changes, key("users/b"))
	assert.Equal(t, ChangeAdded, merged.Changes[key("users/b")].Type)
}

func TestOrderingFallsBackToKeyAscending(t *testing.T) {
	q := model.Query{CollectionPath: "users"}
	v := New(q, nil, []model.MaybeDocument{doc("users/b", 1), doc("users/a", 1)})

	set := v.DocumentSet()
	require.Len(t, set, 2)
	assert.Equal(t, "users/a", set[0].Key.String())
	assert.Equal(t, "users/b", set[1].Key.String())
}

func TestDefensiveCopiesDoNotAliasInternalState(t *testing.T) {
	q := model.Query{CollectionPath: "users"}
	v := New(q, nil, []model.MaybeDocument{doc("users/a", 1)})

	synced := v.SyncedDocuments()
	synced[key("users/tampered")] = struct{}{}
	assert.NotContains(t, v.SyncedDocuments(), key("users/tampered"))
}
