package limbo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsync/syncengine/internal/model"
	"github.com/docsync/syncengine/internal/view"
)

type fakeAllocator struct{ next model.TargetId }

func (f *fakeAllocator) Next() model.TargetId {
	f.next += 2
	return f.next
}

type fakeRemote struct {
	listened []model.TargetId
	stopped  []model.TargetId
	failNext bool
}

func (f *fakeRemote) Listen(target model.QueryData) error {
	if f.failNext {
		f.failNext = false
		return assert.AnError
	}
	f.listened = append(f.listened, target.TargetId)
	return nil
}

func (f *fakeRemote) StopListening(targetId model.TargetId) error {
	f.stopped = append(f.stopped, targetId)
	return nil
}

func key(path string) model.DocumentKey { return model.NewDocumentKey(path) }

func TestAddReferenceAllocatesOneTargetPerKey(t *testing.T) {
	remote := &fakeRemote{}
	tr := NewTracker(&fakeAllocator{}, remote)

	k := key("rooms/42")
	require.NoError(t, tr.UpdateTrackedLimboDocuments([]view.LimboChange{
		{Key: k, Type: view.LimboAdded},
	}, model.TargetId(2)))
	require.NoError(t, tr.UpdateTrackedLimboDocuments([]view.LimboChange{
		{Key: k, Type: view.LimboAdded},
	}, model.TargetId(4)))

	assert.Equal(t, 1, tr.Len())
	assert.Len(t, remote.listened, 1, "second ADDED for the same key must not start a second listen")

	id, ok := tr.TargetForKey(k)
	require.True(t, ok)
	_, ok = tr.ResolutionForTarget(id)
	assert.True(t, ok)
}

func TestRemoveReferenceKeepsTargetWhileOtherViewsHoldIt(t *testing.T) {
	remote := &fakeRemote{}
	tr := NewTracker(&fakeAllocator{}, remote)
	k := key("rooms/42")

	require.NoError(t, tr.UpdateTrackedLimboDocuments([]view.LimboChange{{Key: k, Type: view.LimboAdded}}, 2))
	require.NoError(t, tr.UpdateTrackedLimboDocuments([]view.LimboChange{{Key: k, Type: view.LimboAdded}}, 4))

	require.NoError(t, tr.UpdateTrackedLimboDocuments([]view.LimboChange{{Key: k, Type: view.LimboRemoved}}, 2))
	assert.Equal(t, 1, tr.Len(), "key still referenced by targetId 4")
	assert.Empty(t, remote.stopped)

	require.NoError(t, tr.UpdateTrackedLimboDocuments([]view.LimboChange{{Key: k, Type: view.LimboRemoved}}, 4))
	assert.Equal(t, 0, tr.Len(), "last reference dropped: target torn down")
	assert.Len(t, remote.stopped, 1)
}

func TestRemoveViewTargetDropsAllItsReferences(t *testing.T) {
	remote := &fakeRemote{}
	tr := NewTracker(&fakeAllocator{}, remote)
	a, b := key("rooms/1"), key("rooms/2")

	require.NoError(t, tr.UpdateTrackedLimboDocuments([]view.LimboChange{
		{Key: a, Type: view.LimboAdded},
		{Key: b, Type: view.LimboAdded},
	}, 2))
	require.Equal(t, 2, tr.Len())

	tr.RemoveViewTarget(2)
	assert.Equal(t, 0, tr.Len())
	assert.Len(t, remote.stopped, 2)
}

func TestRemoveLimboTargetIsIdempotent(t *testing.T) {
	tr := NewTracker(&fakeAllocator{}, &fakeRemote{})
	tr.RemoveLimboTarget(key("rooms/1"))
}

func TestAddReferenceFailsCleanlyWhenListenRejected(t *testing.T) {
	remote := &fakeRemote{failNext: true}
	tr := NewTracker(&fakeAllocator{}, remote)
	k := key("rooms/1")

	err := tr.UpdateTrackedLimboDocuments([]view.LimboChange{{Key: k, Type: view.LimboAdded}}, 2)
	assert.Error(t, err)
	assert.Equal(t, 0, tr.Len(), "a failed listen must not leave a tracked resolution target")
	assert.Empty(t, tr.ViewTargetsReferencing(k), "a failed listen must not leave a dangling reference")
}

func TestMarkReceivedDocument(t *testing.T) {
	remote := &fakeRemote{}
	tr := NewTracker(&fakeAllocator{}, remote)
	k := key("rooms/1")
	require.NoError(t, tr.UpdateTrackedLimboDocuments([]view.LimboChange{{Key: k, Type: view.LimboAdded}}, 2))

	id, _ := tr.TargetForKey(k)
	tr.MarkReceivedDocument(id)

	r, ok := tr.ResolutionForTarget(id)
	require.True(t, ok)
	assert.True(t, r.ReceivedDocument)
}
