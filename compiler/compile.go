package compiler

import (
	"context"
	"sort"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/datex/dist"
	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
)

var log = commonlog.GetLogger("datex.compiler")

// maxSteps bounds the number of tokens in one script.
var maxSteps = 500_000

// ---------------------------------------------------------------------------
// Compiler
// ---------------------------------------------------------------------------

// Compiler compiles scripts into framed blocks. The zero value is not
// usable; create one with New.
type Compiler struct {
	Framer *dist.Framer
	// Cache, if set, is used by CompileCached.
	Cache *TemplateCache
}

// New creates a compiler framing blocks with framer, or with a framer
// without crypto support if framer is nil.
func New(framer *dist.Framer) *Compiler {
	if framer == nil {
		framer = dist.NewFramer(nil, nil)
	}
	return &Compiler{Framer: framer}
}

// Compile compiles source with the injected data values and returns the
// framed blocks. A body larger than the block size is split; in that case
// an empty slice precedes the last block.
func (c *Compiler) Compile(ctx context.Context, source string, data []any, opts *Options) ([][]byte, error) {
	var blocks [][]byte
	err := c.CompileStream(ctx, source, data, opts, func(b []byte) error {
		blocks = append(blocks, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// CompileStream is Compile passing every block to emit as soon as it is
// ready. Scripts that stream values ('<< stream') emit a block for the
// script up to the stream and one per streamed value before the rest.
func (c *Compiler) CompileStream(ctx context.Context, source string, data []any, opts *Options, emit func([]byte) error) error {
	if opts == nil {
		opts = &Options{}
	}
	if err := checkEncryption(opts); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	h := opts.header()
	if err := c.Framer.AssignSID(&h); err != nil {
		return err
	}
	emit = skipRepeatedFlush(emit)

	s := newState(defaultMatcher, scriptOf(source), data, opts)
	streamed := false
	s.sink = func(body []byte) error {
		streamed = true
		part := h
		part.EndOfScope = false
		return c.Framer.Frame(ctx, body, part, opts.maxBlockSize(), emit)
	}

	body, err := s.run()
	if err != nil {
		return err
	}
	log.Debugf("compiled %d byte body", len(body))
	if !streamed {
		return c.Framer.Frame(ctx, body, h, opts.maxBlockSize(), emit)
	}

	// a split rest already carries the empty block before its last block
	blocks, err := c.Framer.FrameAll(ctx, body, h, opts.maxBlockSize())
	if err != nil {
		return err
	}
	if h.EndOfScope && len(blocks) == 1 {
		blocks = append([][]byte{{}}, blocks...)
	}
	for _, b := range blocks {
		if err := emit(b); err != nil {
			return err
		}
	}
	return nil
}

// CompileTemplate instantiates t with data and frames the result.
func (c *Compiler) CompileTemplate(ctx context.Context, t *Template, data []any, opts *Options) ([][]byte, error) {
	if opts == nil {
		opts = &Options{}
	}
	if err := checkEncryption(opts); err != nil {
		return nil, err
	}
	body, err := t.Instantiate(data, opts)
	if err != nil {
		return nil, err
	}
	return c.Framer.FrameAll(ctx, body, opts.header(), opts.maxBlockSize())
}

// CompileCached compiles source through the template cache: the script is
// parsed once and later calls only encode data. Without a cache it is
// Compile.
func (c *Compiler) CompileCached(ctx context.Context, source string, data []any, opts *Options) ([][]byte, error) {
	if c.Cache == nil {
		return c.Compile(ctx, source, data, opts)
	}
	t, err := c.Cache.Get(source, opts)
	if err != nil {
		return nil, err
	}
	return c.CompileTemplate(ctx, t, data, opts)
}

// skipRepeatedFlush drops an empty block directly following another one.
func skipRepeatedFlush(emit func([]byte) error) func([]byte) error {
	lastEmpty := false
	return func(b []byte) error {
		if len(b) == 0 {
			if lastEmpty {
				return nil
			}
			lastEmpty = true
		} else {
			lastEmpty = false
		}
		return emit(b)
	}
}

func checkEncryption(opts *Options) error {
	if opts.Encrypt && opts.SymKey == nil {
		return dxerr.Compiler("Cannot encrypt without a symmetric encryption key")
	}
	return nil
}

func scriptOf(source string) string {
	if source == "" {
		return ";"
	}
	return source
}

// ---------------------------------------------------------------------------
// Bodies
// ---------------------------------------------------------------------------

// CompileBody compiles source into a DXB body without a block header. The
// script '?' compiles to the encoding of data[0].
func CompileBody(source string, data []any, opts *Options) ([]byte, error) {
	if opts == nil {
		opts = &Options{}
	}
	if source == "?" && len(data) > 0 {
		return compileValue(data[0], opts, !opts.KeepScopeOpen)
	}
	s := newState(defaultMatcher, scriptOf(source), data, opts)
	return s.run()
}

// CompileValue encodes a single native value followed by ';'.
func CompileValue(v any, opts *Options) ([]byte, error) {
	return compileValue(v, opts, true)
}

func compileValue(v any, opts *Options, addEnd bool) ([]byte, error) {
	if opts == nil {
		opts = &Options{}
	}
	s := newState(defaultMatcher, "", nil, opts)
	if err := s.insert(v); err != nil {
		return nil, err
	}
	if addEnd {
		s.op(dxb.OpCloseAndStore)
	}
	return s.b.Bytes(), nil
}

// Precompile compiles source into a template, leaving a slot for every '?'
// placeholder.
func Precompile(source string, opts *Options) (*Template, error) {
	if opts == nil {
		opts = &Options{}
	}
	s := newState(defaultMatcher, scriptOf(source), nil, opts)
	s.template = newTemplate(source)
	s.template.key = TemplateKey(source, opts)
	if _, err := s.run(); err != nil {
		return nil, err
	}
	s.template.freeze()
	return s.template, nil
}

// ---------------------------------------------------------------------------
// Main loop
// ---------------------------------------------------------------------------

// run compiles tokens until the script or the current code block ends and
// returns the body.
func (s *state) run() ([]byte, error) {
	for range maxSteps {
		if err := s.step(); err != nil {
			return nil, err
		}
		if s.streaming != nil {
			if err := s.flushStream(); err != nil {
				return nil, err
			}
			continue
		}
		if s.end || s.pos >= len(s.src) {
			return s.finish()
		}
	}
	return nil, s.syntaxError("DATEX Script to big to compile")
}

// flushStream emits the body compiled so far and then one body per value
// read from the stream, and continues with an empty buffer.
func (s *state) flushStream() error {
	st := s.streaming
	s.streaming = nil
	if s.sink == nil {
		return dxerr.Compiler("Streams can only be compiled into blocks")
	}
	if err := s.sink(append([]byte(nil), s.b.Bytes()...)); err != nil {
		return err
	}
	for v := range st.C {
		var body []byte
		if data, ok := v.([]byte); ok {
			c := NewBuilder()
			c.Emit(dxb.OpBuffer)
			c.EmitUint32(uint32(len(data)))
			c.EmitRaw(data...)
			body = c.Bytes()
		} else {
			var err error
			if body, err = compileValue(v, s.opts, false); err != nil {
				return err
			}
		}
		if err := s.sink(body); err != nil {
			return err
		}
	}
	// positions recorded before the stream refer to bytes already sent
	s.b.Reset()
	clear(s.inserted)
	clear(s.internalVars)
	return nil
}

// finish checks for unclosed constructs and completes the body.
func (s *state) finish() ([]byte, error) {
	for _, sc := range s.subscopes {
		switch sc.parentType {
		case dxb.OpObjectStart:
			return nil, s.syntaxError("Missing closing object bracket")
		case dxb.OpArrayStart:
			return nil, s.syntaxError("Missing closing array bracket")
		case dxb.OpSubscopeStart:
			return nil, s.syntaxError("Missing closing bracket")
		}
	}
	if len(s.waiting) > 0 {
		labels := make([]string, 0, len(s.waiting))
		for l := range s.waiting {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		return nil, s.syntaxError("Jump to non-existing lbl: %s", strings.Join(labels, ","))
	}

	keepOpen := s.opts.KeepScopeOpen && !s.child
	if !keepOpen && !s.lastCommandEnd {
		if err := s.autoCloseAll(); err != nil {
			return nil, err
		}
		s.op(dxb.OpCloseAndStore)
	}

	body := s.b.Bytes()
	if s.template != nil {
		s.finishTemplate(body)
	}
	if !s.child {
		return body, nil
	}

	// values read from the enclosing scope come first:
	// <vars> SCOPE_BLOCK <len:u32> <body>
	x := s.extract
	x.op(dxb.OpScopeBlock)
	x.b.EmitUint32(uint32(len(body)))
	return append(x.b.Bytes(), body...), nil
}
