package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/moonc/compiler"
	"github.com/chazu/moonc/proto"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "moonc-lsp"

// LspServer publishes compile diagnostics for open Lua documents and shows
// the generated bytecode on hover.
type LspServer struct {
	worker  *Worker
	maxRegs int

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server compiling with the given register limit.
func NewLSP(maxRegs int) *LspServer {
	s := &LspServer{
		worker:  NewWorker(1),
		maxRegs: maxRegs,
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentHover: s.textDocumentHover,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "moonc LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.HoverProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	s.worker.Stop()
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// --- Language features ---

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	uri := params.TextDocument.URI
	pos := params.Position

	s.mu.Lock()
	text, ok := s.docs[string(uri)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}

	result, err := s.worker.Do(context.Background(), func() (any, error) {
		return compiler.Compile(chunkName(uri), text, compiler.WithMaxRegisters(s.maxRegs))
	})
	if err != nil {
		return nil, nil
	}

	return hover(result.(*proto.Proto), text, pos), nil
}

// hover describes the instructions generated for the line under the cursor
// and, when the cursor is on a local's name, the register holding it.
func hover(p *proto.Proto, text string, pos protocol.Position) *protocol.Hover {
	line := int(pos.Line) + 1

	var sb strings.Builder
	if word := extractWord(text, pos); word != "" {
		for _, lv := range p.LocVars {
			if lv.Name == word {
				fmt.Fprintf(&sb, "local %s: R%d, pc %d-%d\n", lv.Name, lv.Reg, lv.StartPC+1, lv.EndPC)
			}
		}
	}

	var code []string
	for pc := range p.Code {
		if p.Line(pc) == line {
			code = append(code, fmt.Sprintf("%d\t%s", pc+1, p.InstructionString(pc)))
		}
	}
	if len(code) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("```\n")
		sb.WriteString(strings.Join(code, "\n"))
		sb.WriteString("\n```")
	}

	if sb.Len() == 0 {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: strings.TrimRight(sb.String(), "\n"),
		},
	}
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	result, err := s.worker.Do(context.Background(), func() (any, error) {
		return diagnose(chunkName(uri), text, s.maxRegs), nil
	})
	if err != nil {
		return
	}

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: result.([]protocol.Diagnostic),
	})
}

// diagnose compiles text and converts a failure into a diagnostic. Syntax
// errors mark the offending column onward; compile errors mark the line.
func diagnose(name, text string, maxRegs int) []protocol.Diagnostic {
	_, err := compiler.Compile(name, text, compiler.WithMaxRegisters(maxRegs))
	if err == nil {
		return []protocol.Diagnostic{}
	}

	var start, end protocol.Position
	if line, column, ok := compiler.ErrorPosition(err); ok && line > 0 {
		lines := strings.Split(text, "\n")
		start.Line = protocol.UInteger(line - 1)
		if column > 0 {
			start.Character = protocol.UInteger(column - 1)
		}
		end.Line = start.Line
		if line <= len(lines) {
			end.Character = protocol.UInteger(len(lines[line-1]))
		}
		if end.Character < start.Character {
			end.Character = start.Character
		}
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	return []protocol.Diagnostic{{
		Range:    protocol.Range{Start: start, End: end},
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	}}
}

// chunkName derives a chunk name from a document URI.
func chunkName(uri protocol.DocumentUri) string {
	name := strings.TrimPrefix(string(uri), "file://")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return defaultChunkName
	}
	return name
}

// --- Text extraction helpers ---

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Find start
	start := col
	for start > 0 && isNameByte(line[start-1]) {
		start--
	}

	// Find end
	end := col
	for end < len(line) && isNameByte(line[end]) {
		end++
	}

	if start == end {
		return ""
	}

	return line[start:end]
}

func isNameByte(ch byte) bool {
	r := rune(ch)
	return r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
}

func boolPtr(b bool) *bool {
	return &b
}
