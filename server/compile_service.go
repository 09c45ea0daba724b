package server

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/chazu/moonc/cache"
	"github.com/chazu/moonc/compiler"
	"github.com/chazu/moonc/proto"
)

const (
	// CompileServiceName is the fully-qualified name of the compile service.
	CompileServiceName = "moonc.v1.CompileService"

	// CompileProcedure compiles a chunk and returns its listing.
	CompileProcedure = "/" + CompileServiceName + "/Compile"

	// FetchProcedure returns the CBOR encoding of a previously compiled chunk.
	FetchProcedure = "/" + CompileServiceName + "/Fetch"

	// ChunkNameHeader carries the chunk name used in listings and errors.
	ChunkNameHeader = "Moonc-Chunk-Name"

	defaultChunkName = "=request"
)

// CompileService implements the Connect/gRPC compile handlers.
type CompileService struct {
	worker  *Worker
	results *ResultStore
	cache   *cache.Cache
	maxRegs int
	debug   bool
	log     commonlog.Logger
}

// NewCompileService creates a CompileService. A nil cache disables caching.
func NewCompileService(worker *Worker, results *ResultStore, c *cache.Cache, maxRegs int, debug bool) *CompileService {
	return &CompileService{
		worker:  worker,
		results: results,
		cache:   c,
		maxRegs: maxRegs,
		debug:   debug,
		log:     commonlog.GetLogger("moonc.server"),
	}
}

// compiled is what a worker hands back for one request.
type compiled struct {
	proto  *proto.Proto
	cached bool
}

// Compile compiles the request source and describes the resulting chunk.
func (s *CompileService) Compile(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[structpb.Struct], error) {
	source := req.Msg.GetValue()
	name := req.Header().Get(ChunkNameHeader)
	if name == "" {
		name = defaultChunkName
	}

	result, err := s.worker.Do(ctx, func() (any, error) {
		return s.compile(name, source)
	})
	if err != nil {
		return nil, s.compileError(err)
	}

	c := result.(compiled)
	id := s.results.Create(c.proto)
	s.log.Debugf("compiled %s as %s (cached %t)", name, id, c.cached)

	body, err := describe(c.proto, id, c.cached)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(body), nil
}

// Fetch returns the encoded prototype stored under a request ID.
func (s *CompileService) Fetch(
	ctx context.Context,
	req *connect.Request[wrapperspb.StringValue],
) (*connect.Response[wrapperspb.BytesValue], error) {
	id := req.Msg.GetValue()
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("request id is required"))
	}

	p, ok := s.results.Lookup(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("result %q not found", id))
	}
	data, err := proto.Marshal(p)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(wrapperspb.Bytes(data)), nil
}

func (s *CompileService) compile(name, source string) (compiled, error) {
	opts := []compiler.Option{compiler.WithDebug(s.debug)}
	if s.cache != nil {
		p, hit, err := s.cache.Compile(name, source, cache.Options{MaxRegisters: s.maxRegs}, opts...)
		return compiled{proto: p, cached: hit}, err
	}
	opts = append(opts, compiler.WithMaxRegisters(s.maxRegs))
	p, err := compiler.Compile(name, source, opts...)
	return compiled{proto: p}, err
}

// compileError maps a compile failure to a Connect error. Source errors
// carry their position as a structured detail.
func (s *CompileService) compileError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	}

	line, column, ok := compiler.ErrorPosition(err)
	if !ok {
		s.log.Errorf("compile failed: %s", err)
		return connect.NewError(connect.CodeInternal, err)
	}

	cerr := connect.NewError(connect.CodeInvalidArgument, err)
	pos, perr := structpb.NewStruct(map[string]any{
		"line":        line,
		"column":      column,
		"unsupported": errors.Is(err, compiler.ErrUnsupported),
	})
	if perr == nil {
		if detail, derr := connect.NewErrorDetail(pos); derr == nil {
			cerr.AddDetail(detail)
		}
	}
	return cerr
}

// describe builds the response body for a compiled chunk.
func describe(p *proto.Proto, id string, cached bool) (*structpb.Struct, error) {
	constants := make([]any, len(p.Constants))
	for i, k := range p.Constants {
		constants[i] = k.String()
	}
	code := make([]any, p.CodeLen())
	for pc := range p.Code {
		code[pc] = p.InstructionString(pc)
	}
	return structpb.NewStruct(map[string]any{
		"request_id":   id,
		"listing":      p.Disassemble(),
		"constants":    constants,
		"instructions": code,
		"max_stack":    p.MaxStackSize,
		"cached":       cached,
	})
}

// ErrorDetailPosition extracts the line and column detail attached to a
// Connect compile error.
func ErrorDetailPosition(err error) (line, column int, ok bool) {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return 0, 0, false
	}
	for _, d := range cerr.Details() {
		v, derr := d.Value()
		if derr != nil {
			continue
		}
		pos, isStruct := v.(*structpb.Struct)
		if !isStruct {
			continue
		}
		fields := pos.GetFields()
		l, hasLine := fields["line"]
		if !hasLine {
			continue
		}
		return int(l.GetNumberValue()), int(fields["column"].GetNumberValue()), true
	}
	return 0, 0, false
}
