package engine

import (
	"context"

	"github.com/docsync/syncengine/internal/callback"
	"github.com/docsync/syncengine/internal/model"
)

// WriteMutations queues mutations locally and registers userCompletion
// to be resolved when the resulting batch is acknowledged or rejected.
func (e *Engine) WriteMutations(ctx context.Context, mutations []model.Mutation, userCompletion *callback.OneShotCompletion) error {
	e.assertCallbackRegistered("writeMutations")
	result, err := e.local.WriteLocally(ctx, mutations)
	if err != nil {
		return err
	}

	e.callback.RegisterUserCallback(e.currentUser, result.BatchId, userCompletion)

	if err := e.emitNewSnapsAndNotifyLocalStore(ctx, result.Changes, nil); err != nil {
		return err
	}

	e.remote.FillWritePipeline(ctx)
	return nil
}

// RegisterPendingWritesTask registers completion to fire once every
// batch outstanding as of this call has been acknowledged.
func (e *Engine) RegisterPendingWritesTask(ctx context.Context, completion *callback.OneShotCompletion) error {
	highest, err := e.local.GetHighestUnacknowledgedBatchId(ctx)
	if err != nil {
		return err
	}
	if highest == model.UnknownBatchId {
		completion.Resolve(nil)
		return nil
	}
	e.callback.RegisterPendingWritesCompletion(highest, completion)
	return nil
}
