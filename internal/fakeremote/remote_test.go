package fakeremote

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docsync/syncengine/internal/model"
)

type recordingCallback struct {
	events   []*model.RemoteEvent
	rejected []model.TargetId
	acked    []model.BatchResult
}

func (c *recordingCallback) HandleRemoteEvent(_ context.Context, event *model.RemoteEvent) {
	c.events = append(c.events, event)
}
func (c *recordingCallback) HandleRejectedListen(_ context.Context, targetId model.TargetId, _ error) {
	c.rejected = append(c.rejected, targetId)
}
func (c *recordingCallback) HandleSuccessfulWrite(_ context.Context, result model.BatchResult) {
	c.acked = append(c.acked, result)
}
func (c *recordingCallback) HandleRejectedWrite(context.Context, model.BatchId, error) {}
func (c *recordingCallback) HandleOnlineStateChange(context.Context, model.OnlineState) {}
func (c *recordingCallback) GetRemoteKeysForTarget(model.TargetId) map[model.DocumentKey]struct{} {
	return nil
}

func TestStoreTracksListens(t *testing.T) {
	ctx := context.Background()
	s := New()
	cb := &recordingCallback{}
	s.SetCallback(cb)

	data := model.QueryData{Query: model.Query{CollectionPath: "users"}, TargetId: 2}
	require.NoError(t, s.Listen(ctx, data))
	assert.True(t, s.IsListening(2))

	require.NoError(t, s.StopListening(ctx, 2))
	assert.False(t, s.IsListening(2))
}

func TestDeliverRemoteEventReachesCallback(t *testing.T) {
	ctx := context.Background()
	s := New()
	cb := &recordingCallback{}
	s.SetCallback(cb)

	ev := model.NewRemoteEvent()
	s.DeliverRemoteEvent(ctx, ev)
	require.Len(t, cb.events, 1)
	assert.Same(t, ev, cb.events[0])
}

func TestAckWriteReachesCallback(t *testing.T) {
	ctx := context.Background()
	s := New()
	cb := &recordingCallback{}
	s.SetCallback(cb)

	s.AckWrite(ctx, model.BatchResult{BatchId: 1, Version: model.NewVersion(1, 0)})
	require.Len(t, cb.acked, 1)
	assert.Equal(t, model.BatchId(1), cb.acked[0].BatchId)
}
