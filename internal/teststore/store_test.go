package teststore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsync/syncengine/internal/model"
)

func TestAllocateQueryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := Open(":memory:", "alice")
	require.NoError(t, err)
	defer s.Close()

	q := model.Query{CollectionPath: "users"}
	first, err := s.AllocateQuery(ctx, q)
	require.NoError(t, err)

	second, err := s.AllocateQuery(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, first.TargetId, second.TargetId)
}

func TestWriteLocallyThenAcknowledge(t *testing.T) {
	ctx := context.Background()
	s, err := Open(":memory:", "alice")
	require.NoError(t, err)
	defer s.Close()

	key := model.NewDocumentKey("users/a")
	result, err := s.WriteLocally(ctx, []model.Mutation{{Key: key, Fields: map[string]any{"n": 1}}})
	require.NoError(t, err)
	assert.True(t, result.Changes[key].Exists())

	docs, err := s.ExecuteQuery(ctx, model.Query{CollectionPath: "users"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, key, docs[0].Key)

	highest, err := s.GetHighestUnacknowledgedBatchId(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.BatchId, highest)

	changes, err := s.AcknowledgeBatch(ctx, model.BatchResult{BatchId: result.BatchId, Version: model.NewVersion(1, 0)})
	require.NoError(t, err)
	assert.True(t, changes[key].Exists())

	highest, err = s.GetHighestUnacknowledgedBatchId(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.UnknownBatchId, highest)
}

func TestHandleUserChangeRevertsPreviousUsersOverlay(t *testing.T) {
	ctx := context.Background()
	s, err := Open(":memory:", "alice")
	require.NoError(t, err)
	defer s.Close()

	key := model.NewDocumentKey("users/a")
	_, err = s.WriteLocally(ctx, []model.Mutation{{Key: key, Fields: map[string]any{"n": 1}}})
	require.NoError(t, err)

	docs, err := s.ExecuteQuery(ctx, model.Query{CollectionPath: "users"})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	changes, err := s.HandleUserChange(ctx, "bob")
	require.NoError(t, err)
	require.Contains(t, changes, key)
	assert.False(t, changes[key].Exists())

	docs, err = s.ExecuteQuery(ctx, model.Query{CollectionPath: "users"})
	require.NoError(t, err)
	assert.Len(t, docs, 0)
}
