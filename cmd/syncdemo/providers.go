package main

import (
	"github.com/google/wire"

	"github.com/docsync/syncengine/internal/engine"
	"github.com/docsync/syncengine/internal/events"
	"github.com/docsync/syncengine/internal/fakeremote"
	"github.com/docsync/syncengine/internal/limbo"
	"github.com/docsync/syncengine/internal/remote"
	"github.com/docsync/syncengine/internal/status"
	"github.com/docsync/syncengine/internal/store"
	"github.com/docsync/syncengine/internal/targetid"
	"github.com/docsync/syncengine/internal/teststore"
)

// Set is used by Wire: one provider per collaborator the Engine
// needs, composed by wire.Build in InitializeEngine.
var Set = wire.NewSet(
	ProvideLocalStore,
	ProvideRemoteStore,
	ProvideEventManager,
	ProvideTargetAllocator,
	ProvidePermanentClassifier,
	ProvideEngine,
)

// ProvideLocalStore is called by Wire.
func ProvideLocalStore(config *Config) (store.Local, func(), error) {
	s, err := teststore.Open(":memory:", config.InitialUser)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { s.Close() }, nil
}

// ProvideRemoteStore is called by Wire. main.go's demo driver needs the
// concrete *fakeremote.Store (to call DeliverRemoteEvent/AckWrite as
// the scripted "server"), so config.ChaosProb is applied separately in
// ProvideEngine by wrapping the Engine's *view* of the store with
// fakeremote.WithChaos rather than here.
func ProvideRemoteStore(*Config) *fakeremote.Store {
	return fakeremote.New()
}

// ProvideEventManager is called by Wire.
func ProvideEventManager() events.Manager {
	return logManager{}
}

// ProvideTargetAllocator is called by Wire.
func ProvideTargetAllocator() limbo.TargetAllocator {
	return targetid.NewGenerator()
}

// ProvidePermanentClassifier is called by Wire.
func ProvidePermanentClassifier() status.PermanentClassifier {
	return status.NeverPermanent
}

// ProvideEngine is called by Wire. Construction is two-phase: the
// Engine exists first, then the Remote Store installs it as its
// callback, and only then is the Engine told its operations may
// proceed.
func ProvideEngine(
	config *Config,
	local store.Local,
	remoteStore *fakeremote.Store,
	manager events.Manager,
	targetIDs limbo.TargetAllocator,
	isPermanent status.PermanentClassifier,
) *engine.Engine {
	e := engine.New(local, fakeremote.WithChaos(remoteStore, config.ChaosProb), manager, targetIDs, isPermanent, config.InitialUser)
	remoteStore.SetCallback(e)
	e.SetCallbackRegistered()
	return e
}

var _ remote.Store = (*fakeremote.Store)(nil)
