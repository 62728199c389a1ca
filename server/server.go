// Package server exposes the DATEX compiler over Connect (HTTP/JSON and
// gRPC on the same port) and as a language server for editors.
package server

import (
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/datex/compiler"
)

var log = commonlog.GetLogger("datex.server")

// DatexServer serves the compile service.
type DatexServer struct {
	compile *CompileService
	mux     *http.ServeMux
}

// ServerOption configures a DatexServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	defaults *compiler.Options
}

// WithDefaults sets the compile options applied to every request, usually
// taken from the project manifest.
func WithDefaults(opts *compiler.Options) ServerOption {
	return func(c *serverConfig) { c.defaults = opts }
}

// New creates a DatexServer compiling with c.
func New(c *compiler.Compiler, opts ...ServerOption) *DatexServer {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &DatexServer{
		compile: NewCompileService(c, cfg.defaults),
		mux:     http.NewServeMux(),
	}

	// Register Connect/gRPC handlers
	s.mux.Handle(CompileProcedure, connect.NewUnaryHandler(CompileProcedure, s.compile.Compile))
	s.mux.Handle(CompileValueProcedure, connect.NewUnaryHandler(CompileValueProcedure, s.compile.CompileValue))
	s.mux.Handle(DisassembleProcedure, connect.NewUnaryHandler(DisassembleProcedure, s.compile.Disassemble))
	s.mux.Handle(ParseBlockProcedure, connect.NewUnaryHandler(ParseBlockProcedure, s.compile.ParseBlock))

	return s
}

// Handler returns the HTTP handler serving all procedures.
func (s *DatexServer) Handler() http.Handler { return s.mux }

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *DatexServer) ListenAndServe(addr string) error {
	fmt.Printf("DATEX compile server listening on %s\n", addr)
	fmt.Printf("  Connect (HTTP/JSON): http://%s%s\n", addr, CompileProcedure)
	fmt.Printf("  gRPC (binary):       grpc://%s\n", addr)
	log.Infof("serving %s on %s", CompileServiceName, addr)
	return http.ListenAndServe(addr, s.mux)
}
