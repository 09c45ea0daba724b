// Package server exposes the compiler over Connect/gRPC and as an LSP
// diagnostics server.
package server

import (
	"fmt"
	"net"
	"net/http"
	"runtime"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"

	"github.com/chazu/moonc/cache"
)

// MooncServer is the compile server. It serves both gRPC (binary protobuf)
// and Connect (HTTP/JSON) on the same port.
type MooncServer struct {
	worker  *Worker
	results *ResultStore
	mux     *http.ServeMux
	log     commonlog.Logger

	stopSweeper func()
}

// ServerOption configures a MooncServer.
type ServerOption func(*serverConfig)

type serverConfig struct {
	cache   *cache.Cache
	maxRegs int
	workers int
	debug   bool
}

// WithCache serves compilations through the given cache.
func WithCache(c *cache.Cache) ServerOption {
	return func(cfg *serverConfig) { cfg.cache = c }
}

// WithMaxRegisters sets the register limit for every compilation.
func WithMaxRegisters(n int) ServerOption {
	return func(cfg *serverConfig) { cfg.maxRegs = n }
}

// WithWorkers sets the number of concurrent compilations.
func WithWorkers(n int) ServerOption {
	return func(cfg *serverConfig) { cfg.workers = n }
}

// WithDebug enables compiler debug logging.
func WithDebug(debug bool) ServerOption {
	return func(cfg *serverConfig) { cfg.debug = debug }
}

// New creates a MooncServer.
func New(opts ...ServerOption) *MooncServer {
	cfg := &serverConfig{
		maxRegs: 250,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	worker := NewWorker(cfg.workers)
	results := NewResultStore()

	s := &MooncServer{
		worker:  worker,
		results: results,
		mux:     http.NewServeMux(),
		log:     commonlog.GetLogger("moonc.server"),
	}

	svc := NewCompileService(worker, results, cfg.cache, cfg.maxRegs, cfg.debug)
	s.mux.Handle(CompileProcedure, connect.NewUnaryHandler(CompileProcedure, svc.Compile))
	s.mux.Handle(FetchProcedure, connect.NewUnaryHandler(FetchProcedure, svc.Fetch))

	// Sweep results every 5 minutes, 30-minute TTL
	s.stopSweeper = results.StartSweeper(5*time.Minute, 30*time.Minute)

	return s
}

// Handler returns the HTTP handler serving the compile service.
func (s *MooncServer) Handler() http.Handler {
	return s.mux
}

// Results returns the store of compiled chunks.
func (s *MooncServer) Results() *ResultStore {
	return s.results
}

// ListenAndServe starts the HTTP server on the given address.
// The address should be in the form "host:port" or ":port".
func (s *MooncServer) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	fmt.Printf("moonc compile server listening on %s\n", l.Addr())
	fmt.Printf("  Connect (HTTP/JSON): http://%s%s\n", l.Addr(), CompileProcedure)
	fmt.Printf("  gRPC (binary):       grpc://%s\n", l.Addr())
	return s.Serve(l)
}

// Serve accepts connections on l. HTTP/2 is served without TLS so plain
// gRPC clients can connect.
func (s *MooncServer) Serve(l net.Listener) error {
	protocols := new(http.Protocols)
	protocols.SetHTTP1(true)
	protocols.SetUnencryptedHTTP2(true)

	srv := &http.Server{
		Handler:   s.mux,
		Protocols: protocols,
	}
	s.log.Infof("serving on %s", l.Addr())
	return srv.Serve(l)
}

// Stop shuts down the server.
func (s *MooncServer) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.worker.Stop()
}
