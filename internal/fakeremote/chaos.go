package fakeremote

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"

	"github.com/docsync/syncengine/internal/model"
	"github.com/docsync/syncengine/internal/remote"
	"github.com/docsync/syncengine/internal/status"
)

// ErrChaos is returned by a chaosStore when it decides to inject a
// failure.
var ErrChaos = errors.New("fakeremote: chaos")

// WithChaos wraps delegate in a remote.Store that injects a transient
// ABORTED error into Listen, StopListening, CreateTransaction and the
// returned transactions' Commit with probability prob, for exercising
// the Sync Engine's transaction retry loop and the error returns of
// its listen paths under a decorator-over-interface shape. Injected
// Listen errors are returned to the caller; they do not go through
// HandleRejectedListen. delegate is returned unwrapped if prob <= 0.
func WithChaos(delegate remote.Store, prob float32) remote.Store {
	if prob <= 0 {
		return delegate
	}
	return &chaosStore{delegate: delegate, prob: prob}
}

// This could hold a *rand.Rand, but as soon as Listen/CreateTransaction
// are called from multiple goroutines there is no hope of repeatable
// behavior anyway.
type chaosStore struct {
	delegate remote.Store
	prob     float32
}

var _ remote.Store = (*chaosStore)(nil)

func (c *chaosStore) roll() bool { return rand.Float32() < c.prob }

func (c *chaosStore) Listen(ctx context.Context, data model.QueryData) error {
	if c.roll() {
		return status.New(status.Aborted, ErrChaos.Error())
	}
	return c.delegate.Listen(ctx, data)
}

func (c *chaosStore) StopListening(ctx context.Context, targetId model.TargetId) error {
	if c.roll() {
		return status.New(status.Aborted, ErrChaos.Error())
	}
	return c.delegate.StopListening(ctx, targetId)
}

func (c *chaosStore) FillWritePipeline(ctx context.Context) {
	c.delegate.FillWritePipeline(ctx)
}

func (c *chaosStore) CreateTransaction(ctx context.Context) (remote.Transaction, error) {
	if c.roll() {
		return nil, status.New(status.Aborted, ErrChaos.Error())
	}
	txn, err := c.delegate.CreateTransaction(ctx)
	if err != nil {
		return nil, err
	}
	return &chaosTransaction{delegate: txn, prob: c.prob}, nil
}

func (c *chaosStore) CanUseNetwork() bool { return c.delegate.CanUseNetwork() }

func (c *chaosStore) HandleCredentialChange(ctx context.Context) { c.delegate.HandleCredentialChange(ctx) }

type chaosTransaction struct {
	delegate remote.Transaction
	prob     float32
}

var _ remote.Transaction = (*chaosTransaction)(nil)

func (t *chaosTransaction) Commit(ctx context.Context) error {
	if rand.Float32() < t.prob {
		return status.New(status.Aborted, ErrChaos.Error())
	}
	return t.delegate.Commit(ctx)
}
