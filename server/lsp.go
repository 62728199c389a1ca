package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/datex/compiler"
	"github.com/chazu/datex/pkg/reader"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "datex-lsp"

// keywords offered for completion.
var keywords = []string{
	"about", "assert", "await", "constructor", "count", "debug", "delete",
	"destructor", "do", "else", "end", "extends", "false", "freeze",
	"fun", "function", "has", "hold", "if", "implements", "infinity",
	"iterate", "iteration", "iterator", "jfa", "jmp", "jtr", "keys", "lbl",
	"matches", "nan", "null", "observe", "origin", "request", "return",
	"seal", "skip", "subscribe", "subscribers", "template", "transform",
	"true", "type", "unsubscribe", "use", "value", "void", "while",
}

// LspServer reports DATEX compile errors to editors and shows the
// compiled form of a line on hover.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server.
func NewLSP() *LspServer {
	s := &LspServer{
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

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
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
	commonlog.NewInfoMessage(0, "DATEX LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

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

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return complete(text, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return hover(text, params.Position), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	if loc := definition(uri, text, word); loc != nil {
		return *loc, nil
	}
	return nil, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return references(uri, text, word), nil
}

// --- Feature logic ---

// complete offers keywords and variables assigned in text.
func complete(text, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	kwKind := protocol.CompletionItemKindKeyword
	for _, kw := range keywords {
		if strings.HasPrefix(kw, prefix) && kw != prefix {
			items = append(items, protocol.CompletionItem{Label: kw, Kind: &kwKind})
		}
	}

	varKind := protocol.CompletionItemKindVariable
	for _, name := range assignedNames(text) {
		if strings.HasPrefix(name, prefix) && name != prefix {
			items = append(items, protocol.CompletionItem{Label: name, Kind: &varKind})
		}
	}
	return items
}

// hover shows the disassembled body of the line under the cursor.
func hover(text string, pos protocol.Position) *protocol.Hover {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return nil
	}
	line := strings.TrimSpace(lines[pos.Line])
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	body, err := compiler.CompileBody(line, nil, &compiler.Options{KeepScopeOpen: true})
	if err != nil {
		return nil
	}
	listing, err := reader.Disassemble(body)
	if err != nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%d bytes**\n\n```\n%s```\n", len(body), listing)
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

// definition finds the first assignment to word.
func definition(uri protocol.DocumentUri, text, word string) *protocol.Location {
	for i, line := range strings.Split(text, "\n") {
		for _, col := range wordColumns(line, word) {
			if isAssignment(line[col+len(word):]) {
				return &protocol.Location{URI: uri, Range: wordRange(i, col, word)}
			}
		}
	}
	return nil
}

// references lists every occurrence of word outside strings.
func references(uri protocol.DocumentUri, text, word string) []protocol.Location {
	var locs []protocol.Location
	for i, line := range strings.Split(text, "\n") {
		for _, col := range wordColumns(line, word) {
			locs = append(locs, protocol.Location{URI: uri, Range: wordRange(i, col, word)})
		}
	}
	return locs
}

// assignedNames returns the sorted names assigned with '=' in text.
func assignedNames(text string) []string {
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		i := 0
		for i < len(line) {
			if !isNameChar(rune(line[i])) || (i > 0 && isNameChar(rune(line[i-1]))) {
				i++
				continue
			}
			j := i
			for j < len(line) && isNameChar(rune(line[j])) {
				j++
			}
			name := line[i:j]
			if !unicode.IsDigit(rune(name[0])) && (i == 0 || (line[i-1] != '#' && line[i-1] != '.')) && isAssignment(line[j:]) {
				seen[name] = true
			}
			i = j
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// wordColumns returns the byte offsets of whole-word occurrences of word
// in line, skipping quoted strings and comments.
func wordColumns(line, word string) []int {
	var cols []int
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		case c == '"' || c == '\'':
			quote = c
			continue
		case c == '#' && i+1 < len(line) && line[i+1] == ' ':
			return cols
		}
		if !strings.HasPrefix(line[i:], word) {
			continue
		}
		end := i + len(word)
		if (i > 0 && isNameChar(rune(line[i-1]))) || (end < len(line) && isNameChar(rune(line[end]))) {
			continue
		}
		cols = append(cols, i)
		i = end - 1
	}
	return cols
}

// isAssignment reports whether rest starts with an assignment operator.
func isAssignment(rest string) bool {
	rest = strings.TrimLeft(rest, " \t")
	if len(rest) > 1 && strings.ContainsRune("+-*/&|$", rune(rest[0])) {
		rest = rest[1:]
	}
	if !strings.HasPrefix(rest, "=") {
		return false
	}
	return len(rest) == 1 || !strings.ContainsRune("=>/", rune(rest[1]))
}

func wordRange(line, col int, word string) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col)},
		End:   protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(col + len(word))},
	}
}

func isNameChar(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnose(text),
	})
}

// diagnose compiles text and reports the first error, placed on the line
// the compiler stopped at.
func diagnose(text string) []protocol.Diagnostic {
	_, err := compiler.CompileBody(text, nil, nil)
	if err == nil {
		return []protocol.Diagnostic{}
	}

	var line protocol.UInteger
	var syntaxErr *compiler.SyntaxError
	if errors.As(err, &syntaxErr) && syntaxErr.Line > 0 {
		line = protocol.UInteger(syntaxErr.Line - 1)
	}
	width := 0
	if lines := strings.Split(text, "\n"); int(line) < len(lines) {
		width = len(lines[line])
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	return []protocol.Diagnostic{{
		Range: protocol.Range{
			Start: protocol.Position{Line: line, Character: 0},
			End:   protocol.Position{Line: line, Character: protocol.UInteger(width)},
		},
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	}}
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	// Walk backwards from cursor to find the start of the identifier
	start := col
	for start > 0 && isNameChar(rune(line[start-1])) {
		start--
	}

	return line[start:col]
}

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

	start := col
	for start > 0 && isNameChar(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isNameChar(rune(line[end])) {
		end++
	}

	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
