package engine

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/docsync/syncengine/internal/events"
	"github.com/docsync/syncengine/internal/metrics"
	"github.com/docsync/syncengine/internal/model"
	"github.com/docsync/syncengine/internal/status"
	"github.com/docsync/syncengine/internal/store"
	"github.com/docsync/syncengine/internal/view"
)

// deliverSnapshot emits a single-snapshot batch to the Event Manager,
// or does nothing if snapshot is nil (no observable state changed).
func (e *Engine) deliverSnapshot(q model.Query, snapshot *view.Snapshot) {
	if snapshot == nil {
		return
	}
	e.manager.OnViewSnapshots([]events.ViewSnapshot{toEventSnapshot(q, snapshot)})
}

func toEventSnapshot(q model.Query, snapshot *view.Snapshot) events.ViewSnapshot {
	return events.ViewSnapshot{
		Query:            q,
		Documents:        snapshot.Documents,
		SyncState:        snapshot.SyncState,
		FromCache:        snapshot.FromCache,
		HasPendingWrites: snapshot.HasPendingWrites,
	}
}

// emitNewSnapsAndNotifyLocalStore is the View Reconciliation routine.
// It folds changes (and, when present, the TargetChanges carried by
// remoteEvent) into every active QueryView, delivers the accumulated
// snapshots to the Event Manager as a single batch, and tells the
// Local Store which documents each View newly pinned or unpinned.
func (e *Engine) emitNewSnapsAndNotifyLocalStore(
	ctx context.Context,
	changes map[model.DocumentKey]model.MaybeDocument,
	remoteEvent *model.RemoteEvent,
) error {
	var snapshots []events.ViewSnapshot
	var localViewChanges []store.LocalViewChanges

	highest, err := e.local.GetHighestUnacknowledgedBatchId(ctx)
	if err != nil {
		return err
	}
	hasPendingWrites := highest != model.UnknownBatchId

	for _, qv := range e.views.all() {
		recomputeStart := time.Now()

		qv.view.SetHasPendingWrites(hasPendingWrites)
		docChanges := qv.view.ComputeDocChanges(changes)

		if qv.query.HasLimit() && docChanges.NeedsRefill {
			docs, err := e.local.ExecuteQuery(ctx, qv.query)
			if err != nil {
				return err
			}
			docChanges = qv.view.ComputeDocChangesWithPrior(docs, docChanges)
		}

		var targetChange *model.TargetChange
		if remoteEvent != nil {
			if tc, ok := remoteEvent.TargetChanges[qv.targetId]; ok {
				targetChange = &tc
			}
		}

		vc := qv.view.ApplyChanges(docChanges, targetChange)
		metrics.ViewRecomputeDurations.WithLabelValues(qv.query.CollectionPath).Observe(time.Since(recomputeStart).Seconds())

		if err := e.limbo.UpdateTrackedLimboDocuments(vc.LimboChanges, qv.targetId); err != nil {
			return err
		}

		if vc.Snapshot != nil {
			snapshots = append(snapshots, toEventSnapshot(qv.query, vc.Snapshot))
			localViewChanges = append(localViewChanges, docChangesToLocalViewChanges(qv, docChanges, vc.Snapshot))
		}
	}

	if len(snapshots) > 0 {
		e.manager.OnViewSnapshots(snapshots)
	}
	if len(localViewChanges) > 0 {
		if err := e.local.NotifyLocalViewChanges(ctx, localViewChanges); err != nil {
			return err
		}
	}
	return nil
}

func docChangesToLocalViewChanges(qv *queryView, docChanges view.DocumentChanges, snapshot *view.Snapshot) store.LocalViewChanges {
	lvc := store.LocalViewChanges{TargetId: qv.targetId, FromCache: snapshot.FromCache}
	for key, change := range docChanges.Changes {
		switch change.Type {
		case view.ChangeRemoved:
			lvc.Removed = append(lvc.Removed, key)
		case view.ChangeAdded:
			lvc.Added = append(lvc.Added, key)
		}
	}
	return lvc
}

// surfaceLocalFailure reports a failed Local Store call to the
// application. The engine recovers nothing here: the error is logged
// per the warn/debug taxonomy and delivered via OnError to every
// active QueryView's listener, whose view may now be stale.
func (e *Engine) surfaceLocalFailure(err error, fields log.Fields) {
	logInteresting(err, fields)
	for _, qv := range e.views.all() {
		e.manager.OnError(qv.query, err)
	}
}

func logInteresting(err error, fields log.Fields) {
	if err == nil {
		return
	}
	entry := log.WithFields(fields)
	if status.IsInteresting(err) {
		entry.Warn(err.Error())
	} else {
		entry.Debug(err.Error())
	}
}
