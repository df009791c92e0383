package engine

import (
	"context"

	"github.com/docsync/syncengine/internal/metrics"
	"github.com/docsync/syncengine/internal/remote"
	"github.com/docsync/syncengine/internal/status"
)

// Transaction runs updateFn against a fresh remote.Transaction, retrying
// up to retries times on a retryable commit or update error.
//
// Go methods cannot themselves be generic, so this is a free function
// taking the Engine as its first argument rather than a method. The
// retry loop is written as a plain loop rather than tail recursion.
func Transaction[T any](ctx context.Context, e *Engine, retries int, updateFn func(context.Context, remote.Transaction) (T, error)) (T, error) {
	status.Assert(retries >= 0, "transaction: retries must be >= 0, got %d", retries)

	var zero T
	attempts := retries + 1

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.TransactionRetries.WithLabelValues("retried").Inc()
		}

		// Always create a fresh Transaction per attempt — Transactions
		// are not reusable after a failed commit.
		txn, err := e.remote.CreateTransaction(ctx)
		if err != nil {
			lastErr = err
			if remaining := attempts - attempt - 1; remaining > 0 && status.IsRetryable(err, e.isPermanent) {
				continue
			}
			metrics.TransactionRetries.WithLabelValues("exhausted").Inc()
			return zero, err
		}

		result, err := updateFn(ctx, txn)
		if err != nil {
			lastErr = err
			if remaining := attempts - attempt - 1; remaining > 0 && status.IsRetryable(err, e.isPermanent) {
				continue
			}
			metrics.TransactionRetries.WithLabelValues("exhausted").Inc()
			return zero, err
		}

		if err := txn.Commit(ctx); err != nil {
			lastErr = err
			if remaining := attempts - attempt - 1; remaining > 0 && status.IsRetryable(err, e.isPermanent) {
				continue
			}
			metrics.TransactionRetries.WithLabelValues("exhausted").Inc()
			return zero, err
		}

		return result, nil
	}

	return zero, lastErr
}
