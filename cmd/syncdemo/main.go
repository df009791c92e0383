// Command syncdemo wires the Sync Engine against the reference
// teststore.Store and fakeremote.Store collaborators and drives a
// short scripted session against them, logging every emitted
// ViewSnapshot. It exists to exercise the full wiring end to end.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/docsync/syncengine/internal/callback"
	"github.com/docsync/syncengine/internal/engine"
	"github.com/docsync/syncengine/internal/fakeremote"
	"github.com/docsync/syncengine/internal/model"
	"github.com/docsync/syncengine/internal/remote"
)

func main() {
	config := &Config{}
	config.Bind(pflag.CommandLine)
	pflag.Parse()

	if err := config.Preflight(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	if err := run(config); err != nil {
		log.WithError(err).Fatal("demo run failed")
	}
}

func run(config *Config) error {
	ctx := context.Background()

	e, remoteStore, cleanup, err := InitializeEngine(config)
	if err != nil {
		return err
	}
	defer cleanup()

	// The metrics server and the scripted demo session run
	// concurrently; either one failing should bring the other down,
	// which is exactly what errgroup.Group gives for free.
	group, groupCtx := errgroup.WithContext(ctx)
	server := &http.Server{Addr: config.MetricsAddr, Handler: metricsHandler()}
	group.Go(func() error { return serveMetrics(server) })
	group.Go(func() error {
		defer server.Close()
		return runDemo(groupCtx, config, e, remoteStore)
	})

	return group.Wait()
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func serveMetrics(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// runDemo plays both sides of a short session: the application's
// listen/write/transaction calls into the Engine, and the "server"
// acknowledging the write via remoteStore, the same scripted-server
// pattern internal/fakeremote's tests use.
func runDemo(ctx context.Context, config *Config, e *engine.Engine, remoteStore *fakeremote.Store) error {
	q := model.Query{CollectionPath: config.Collection}
	if _, err := e.Listen(ctx, q); err != nil {
		return err
	}

	mutations := make([]model.Mutation, 0, config.WriteBatch)
	for i := 0; i < config.WriteBatch; i++ {
		key := model.NewDocumentKey(config.Collection + "/" + uuid.NewString())
		mutations = append(mutations, model.Mutation{Key: key, Fields: map[string]any{"n": i}})
	}

	completion := callback.NewOneShotCompletion()
	if err := e.WriteMutations(ctx, mutations, completion); err != nil {
		return err
	}

	// Play the server's part: acknowledge the batch the demo just
	// wrote. A real Remote Store would do this asynchronously off its
	// own write stream.
	remoteStore.AckWrite(ctx, model.BatchResult{BatchId: 1, Version: model.NewVersion(time.Now().Unix(), 0)})

	if err := completion.Wait(); err != nil {
		return err
	}

	result, err := engine.Transaction(ctx, e, config.TxnRetries, func(_ context.Context, _ remote.Transaction) (string, error) {
		return "ok", nil
	})
	if err != nil {
		return err
	}
	log.WithField("result", result).Info("transaction committed")

	return nil
}
