package server

import (
	"context"

	"connectrpc.com/connect"

	"github.com/chazu/datex/compiler"
)

// ---------------------------------------------------------------------------
// Shared test infrastructure for server package tests.
// ---------------------------------------------------------------------------

// newTestCompileService creates a CompileService with a private framer and
// template cache.
func newTestCompileService() *CompileService {
	c := compiler.New(nil)
	c.Cache = compiler.NewTemplateCache(nil)
	return NewCompileService(c, nil)
}

// ---------------------------------------------------------------------------
// Request builder helpers.
// ---------------------------------------------------------------------------

func connectReq[T any](msg *T) *connect.Request[T] {
	return connect.NewRequest(msg)
}

func bg() context.Context {
	return context.Background()
}
