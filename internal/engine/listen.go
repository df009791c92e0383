package engine

import (
	"context"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/docsync/syncengine/internal/metrics"
	"github.com/docsync/syncengine/internal/model"
	"github.com/docsync/syncengine/internal/status"
	"github.com/docsync/syncengine/internal/view"
)

// Listen registers a new query with the Sync Engine and returns the
// TargetId the Remote Store should listen against.
func (e *Engine) Listen(ctx context.Context, q model.Query) (model.TargetId, error) {
	e.assertCallbackRegistered("listen")
	if _, dup := e.views.get(q); dup {
		status.Fail("listen: query already registered: %s", q.CacheKey())
	}

	data, err := e.local.AllocateQuery(ctx, q)
	if err != nil {
		return 0, err
	}

	localDocs, err := e.local.ExecuteQuery(ctx, q)
	if err != nil {
		return 0, err
	}

	syncedKeys, err := e.local.GetRemoteDocumentKeys(ctx, data.TargetId)
	if err != nil {
		return 0, err
	}

	// View.New seeds syncedDocuments/documentSet directly from
	// syncedKeys/localDocs; applying an empty delta builds the first
	// snapshot without re-inserting anything. The server hasn't marked
	// the target CURRENT yet, so nothing can be in limbo.
	v := view.New(q, syncedKeys, localDocs)

	highest, err := e.local.GetHighestUnacknowledgedBatchId(ctx)
	if err != nil {
		return 0, err
	}
	v.SetHasPendingWrites(highest != model.UnknownBatchId)

	vc := v.ApplyChanges(view.DocumentChanges{}, nil)
	status.Assert(len(vc.LimboChanges) == 0, "listen: initial ApplyChanges produced limbo changes for %s", q.CacheKey())

	qv := &queryView{query: q, targetId: data.TargetId, view: v}
	e.views.add(qv)

	e.deliverSnapshot(q, vc.Snapshot)

	// correlationId has no meaning to the Sync Engine itself. It is
	// attached to this log line only; it is not passed to the Remote
	// Store.
	correlationId := uuid.NewString()
	log.WithFields(log.Fields{
		"correlationId": correlationId,
		"targetId":      data.TargetId,
		"query":         q.CacheKey(),
	}).Debug("listen")

	if err := e.remote.Listen(ctx, data); err != nil {
		return 0, err
	}

	metrics.ListensStarted.WithLabelValues(q.CollectionPath).Inc()
	return data.TargetId, nil
}

// StopListening releases q's allocation and tears down its QueryView.
func (e *Engine) StopListening(ctx context.Context, q model.Query) error {
	e.assertCallbackRegistered("stopListening")
	qv, ok := e.views.get(q)
	status.Assert(ok, "stopListening: unknown query: %s", q.CacheKey())

	if err := e.local.ReleaseQuery(ctx, q); err != nil {
		return err
	}
	if err := e.remote.StopListening(ctx, qv.targetId); err != nil {
		return err
	}
	e.views.remove(qv)
	e.limbo.RemoveViewTarget(qv.targetId)
	return nil
}
