//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/docsync/syncengine/internal/engine"
	"github.com/docsync/syncengine/internal/fakeremote"
)

// InitializeEngine wires a demo Engine and its collaborators from
// config. Run `go generate ./...` with google/wire installed to
// regenerate wire_gen.go from this file.
func InitializeEngine(config *Config) (*engine.Engine, *fakeremote.Store, func(), error) {
	panic(wire.Build(Set))
}
