package engine

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/docsync/syncengine/internal/events"
	"github.com/docsync/syncengine/internal/metrics"
	"github.com/docsync/syncengine/internal/model"
	"github.com/docsync/syncengine/internal/status"
)

// HandleRemoteEvent implements remote.Callback.
func (e *Engine) HandleRemoteEvent(ctx context.Context, event *model.RemoteEvent) {
	e.assertCallbackRegistered("handleRemoteEvent")
	for targetId, tc := range event.TargetChanges {
		res, ok := e.limbo.ResolutionForTarget(targetId)
		if !ok {
			continue
		}

		total := len(tc.Added) + len(tc.Modified) + len(tc.Removed)
		status.Assert(total <= 1, "handleRemoteEvent: limbo target %d saw %d key changes in one event, want <= 1", targetId, total)

		switch {
		case len(tc.Added) == 1:
			e.limbo.MarkReceivedDocument(targetId)
		case len(tc.Modified) == 1:
			status.Assert(res.ReceivedDocument, "handleRemoteEvent: MODIFIED for limbo target %d before any ADDED", targetId)
		case len(tc.Removed) == 1:
			status.Assert(res.ReceivedDocument, "handleRemoteEvent: REMOVED for limbo target %d before any ADDED", targetId)
			e.limbo.ClearReceivedDocument(targetId)
		}
	}

	changes, err := e.local.ApplyRemoteEvent(ctx, event)
	if err != nil {
		e.surfaceLocalFailure(err, log.Fields{"op": "applyRemoteEvent"})
		return
	}

	if err := e.emitNewSnapsAndNotifyLocalStore(ctx, changes, event); err != nil {
		e.surfaceLocalFailure(err, log.Fields{"op": "emitNewSnaps", "after": "remoteEvent"})
	}
}

// HandleRejectedListen implements remote.Callback.
func (e *Engine) HandleRejectedListen(ctx context.Context, targetId model.TargetId, listenErr error) {
	e.assertCallbackRegistered("handleRejectedListen")
	if res, ok := e.limbo.ResolutionForTarget(targetId); ok {
		e.purgeRejectedLimboTarget(ctx, targetId, res.Key)
		return
	}

	qv, ok := e.views.getByTarget(targetId)
	status.Assert(ok, "handleRejectedListen: unknown targetId %d", targetId)

	if err := e.local.ReleaseQuery(ctx, qv.query); err != nil {
		logInteresting(err, log.Fields{"op": "releaseQuery", "targetId": targetId})
		e.manager.OnError(qv.query, err)
	}
	e.views.remove(qv)
	e.limbo.RemoveViewTarget(qv.targetId)
	metrics.ListensRejected.WithLabelValues(qv.query.CollectionPath).Inc()

	logInteresting(listenErr, log.Fields{"query": qv.query.CacheKey(), "targetId": targetId})
	e.manager.OnError(qv.query, listenErr)
}

// purgeRejectedLimboTarget handles a rejected limbo resolution listen
// by synthesizing a deletion: rather than adding a purgeDocument API
// to the Local Store, a synthetic RemoteEvent removes key from every
// View that currently references it in limbo and records a NoDocument
// for it, flowing through the same path a real deletion would.
func (e *Engine) purgeRejectedLimboTarget(ctx context.Context, limboTargetId model.TargetId, key model.DocumentKey) {
	holders := e.limbo.ViewTargetsReferencing(key)

	synthetic := model.NewRemoteEvent().WithSyntheticLimboDeletion(key)
	synthetic.DocumentUpdates[key] = model.NewNoDocument(key, model.None, false)
	for _, viewTargetId := range holders {
		synthetic.TargetChanges[viewTargetId] = model.TargetChange{
			TargetId: viewTargetId,
			Removed:  []model.DocumentKey{key},
		}
	}

	e.limbo.RemoveLimboTarget(key)

	e.HandleRemoteEvent(ctx, synthetic)
}

// HandleSuccessfulWrite implements remote.Callback. Order matters:
// user callbacks resolve before any derived ViewSnapshot is emitted.
func (e *Engine) HandleSuccessfulWrite(ctx context.Context, result model.BatchResult) {
	e.assertCallbackRegistered("handleSuccessfulWrite")
	e.callback.ResolveUserCallback(e.currentUser, result.BatchId, nil)
	e.callback.ResolveUpTo(result.BatchId, nil)
	metrics.WriteBatchesAcknowledged.Inc()

	changes, err := e.local.AcknowledgeBatch(ctx, result)
	if err != nil {
		e.surfaceLocalFailure(err, log.Fields{"op": "acknowledgeBatch", "batchId": result.BatchId})
		return
	}

	if err := e.emitNewSnapsAndNotifyLocalStore(ctx, changes, nil); err != nil {
		e.surfaceLocalFailure(err, log.Fields{"op": "emitNewSnaps", "batchId": result.BatchId})
	}
}

// HandleRejectedWrite implements remote.Callback.
func (e *Engine) HandleRejectedWrite(ctx context.Context, batchId model.BatchId, writeErr error) {
	e.assertCallbackRegistered("handleRejectedWrite")
	metrics.WriteBatchesRejected.Inc()

	changes, err := e.local.RejectBatch(ctx, batchId)
	if err != nil {
		e.surfaceLocalFailure(err, log.Fields{"op": "rejectBatch", "batchId": batchId})
		return
	}

	logInteresting(writeErr, log.Fields{"batchId": batchId, "firstKey": firstKey(changes)})

	e.callback.ResolveUserCallback(e.currentUser, batchId, writeErr)
	e.callback.ResolveUpTo(batchId, writeErr)

	if err := e.emitNewSnapsAndNotifyLocalStore(ctx, changes, nil); err != nil {
		e.surfaceLocalFailure(err, log.Fields{"op": "emitNewSnaps", "batchId": batchId})
	}
}

func firstKey(changes map[model.DocumentKey]model.MaybeDocument) string {
	for k := range changes {
		return k.String()
	}
	return ""
}

// HandleOnlineStateChange implements remote.Callback.
func (e *Engine) HandleOnlineStateChange(ctx context.Context, state model.OnlineState) {
	e.assertCallbackRegistered("handleOnlineStateChange")
	var snapshots []events.ViewSnapshot
	for _, qv := range e.views.all() {
		vc := qv.view.ApplyOnlineStateChange(state)
		status.Assert(len(vc.LimboChanges) == 0, "handleOnlineStateChange: View produced limbo changes")
		if vc.Snapshot != nil {
			snapshots = append(snapshots, toEventSnapshot(qv.query, vc.Snapshot))
		}
	}

	e.manager.HandleOnlineStateChange(state)
	if len(snapshots) > 0 {
		e.manager.OnViewSnapshots(snapshots)
	}
}

// GetRemoteKeysForTarget implements remote.Callback.
func (e *Engine) GetRemoteKeysForTarget(targetId model.TargetId) map[model.DocumentKey]struct{} {
	e.assertCallbackRegistered("getRemoteKeysForTarget")
	if res, ok := e.limbo.ResolutionForTarget(targetId); ok {
		if res.ReceivedDocument {
			return map[model.DocumentKey]struct{}{res.Key: {}}
		}
		return map[model.DocumentKey]struct{}{}
	}

	if qv, ok := e.views.getByTarget(targetId); ok {
		return qv.view.SyncedDocuments()
	}

	return map[model.DocumentKey]struct{}{}
}
