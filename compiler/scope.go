package compiler

import (
	"strings"

	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
	"github.com/chazu/datex/pkg/value"
)

// ---------------------------------------------------------------------------
// Compilation state
// ---------------------------------------------------------------------------

// Code block kinds of a nested compilation.
const (
	blockNone      = 0
	blockBracketed = 1 // ends at the matching ')'
	blockStatement = 2 // ends at the end of a single statement
)

// Variable extraction modes of a nested compilation. Values of the given
// kinds are read in the enclosing scope and passed into the block.
const (
	extractNone     = 0
	extractVars     = 1
	extractLabels   = 2
	extractPointers = 3
)

// state is the context of one compile call.
type state struct {
	opts    *Options
	matcher *Matcher

	src  []rune
	pos  int
	line int

	data      []any
	dataIndex int

	b *Builder

	// values inserted so far, by identity, and their start positions
	inserted         map[any]*Handle
	internalVars     map[any]int
	internalVarIndex int

	labels     map[string]*Handle
	waiting    map[string][]*Handle
	usedLabels map[string]bool
	cachePoint bool

	subscopes []*subscope

	end            bool
	lastCommandEnd bool
	codeBlockType  int
	extractMode    int
	child          bool

	// values read from the enclosing scope of a nested block
	extract      *state
	extractIndex int
	extractVars  map[dxb.Opcode]map[any]int

	// set while precompiling: the template being built and its slots
	template *Template
	slots    []slot

	streaming     *value.Stream
	collapseFirst bool
	// sink receives the bodies of streamed blocks; nil if the result is
	// not framed
	sink func(body []byte) error
}

// subscope is one bracket level.
type subscope struct {
	start      int
	parentType dxb.Opcode // 0 for the root scope
	lastValue  int
	firstValue int // -1 if no value yet
	pathInfo   int // position of the pending CHILD_GET, -1 if none

	// remaining values before a control construct is complete
	hasCount bool
	count    int

	commas       []int
	hasCE        bool
	ceIndex      int
	firstElement int
	autoClose    dxb.Opcode

	inTemplate     bool
	paramTypeClose bool

	loopStart int
	iterate   int // -1, 0 while reading the iterable, 1 while reading the body
	jfa       *Handle
	while     bool
	ifJump    *Handle // JFA of the current if or else if branch
	ifEnds    []*Handle
	isElse    bool
	function  int
}

func newSubscope(start int, parentType dxb.Opcode, loopStart int) *subscope {
	return &subscope{
		start:        start,
		parentType:   parentType,
		lastValue:    -1,
		firstValue:   -1,
		pathInfo:     -1,
		firstElement: -1,
		loopStart:    loopStart,
		iterate:      -1,
		function:     -1,
	}
}

func newState(m *Matcher, src string, data []any, opts *Options) *state {
	s := &state{
		opts:         opts,
		matcher:      m,
		src:          []rune(src),
		line:         1,
		data:         data,
		b:            NewBuilder(),
		inserted:     make(map[any]*Handle),
		internalVars: make(map[any]int),
		labels:       make(map[string]*Handle),
		waiting:      make(map[string][]*Handle),
		usedLabels:   make(map[string]bool),
		subscopes:    []*subscope{newSubscope(-1, 0, -1)},

		collapseFirst: opts.CollapseFirstInserted,
	}
	s.b.OnShift = s.shiftSubscopes
	return s
}

// newChild creates the state of a nested code block reading src from pos.
func (s *state) newChild(codeBlockType, extractMode int) *state {
	c := &state{
		opts:          s.opts,
		matcher:       s.matcher,
		src:           s.src,
		pos:           s.pos,
		line:          s.line,
		data:          s.data,
		dataIndex:     s.dataIndex,
		b:             NewBuilder(),
		inserted:      make(map[any]*Handle),
		internalVars:  make(map[any]int),
		labels:        make(map[string]*Handle),
		waiting:       make(map[string][]*Handle),
		usedLabels:    make(map[string]bool),
		subscopes:     []*subscope{newSubscope(-1, 0, -1)},
		codeBlockType: codeBlockType,
		extractMode:   extractMode,
		child:         true,
		collapseFirst: s.opts.CollapseFirstInserted,
	}
	c.b.OnShift = c.shiftSubscopes
	c.extract = &state{
		opts:         s.opts,
		matcher:      s.matcher,
		b:            NewBuilder(),
		inserted:     make(map[any]*Handle),
		internalVars: make(map[any]int),
		subscopes:    []*subscope{newSubscope(-1, 0, -1)},
	}
	c.extract.b.OnShift = c.extract.shiftSubscopes
	c.extractVars = map[dxb.Opcode]map[any]int{
		dxb.OpVar:     {},
		dxb.OpLabel:   {},
		dxb.OpPointer: {},
	}
	return c
}

func (s *state) inner() *subscope { return s.subscopes[len(s.subscopes)-1] }

func (s *state) rest() []rune { return s.src[s.pos:] }

func (s *state) syntaxError(format string, args ...any) error {
	err := dxerr.Syntax(format, args...).(*dxerr.SyntaxError)
	err.Line = s.line
	err.Near = s.near()
	return err
}

// atLine stamps the current line on a SyntaxError raised outside the
// state.
func (s *state) atLine(err error) error {
	if se, ok := err.(*dxerr.SyntaxError); ok && se.Line == 0 {
		se.Line = s.line
	}
	return err
}

// near returns the rest of the current line from the compile position.
func (s *state) near() string {
	if s.pos >= len(s.src) {
		return ""
	}
	rest := string(s.rest())
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}

// shiftSubscopes moves the positions held by bracket levels after n bytes
// were inserted behind after.
func (s *state) shiftSubscopes(n, after int) {
	mv := func(p *int) {
		if *p > after {
			*p += n
		}
	}
	for _, sc := range s.subscopes {
		mv(&sc.start)
		mv(&sc.lastValue)
		mv(&sc.firstValue)
		mv(&sc.pathInfo)
		mv(&sc.ceIndex)
		mv(&sc.firstElement)
		mv(&sc.loopStart)
		mv(&sc.function)
		for i := range sc.commas {
			mv(&sc.commas[i])
		}
	}
}

// ---------------------------------------------------------------------------
// Value bookkeeping
// ---------------------------------------------------------------------------

// valueIndex records that a value starts at the current position.
func (s *state) valueIndex() {
	in := s.inner()
	// the property name after '.' is not a value of its own
	if in.pathInfo != -1 && in.pathInfo == s.b.Len()-1 {
		return
	}
	if in.hasCount {
		in.count--
	}
	in.lastValue = s.b.Len()
	if in.firstValue == -1 {
		in.firstValue = s.b.Len()
	}
}

func (s *state) commaIndex(i int) {
	in := s.inner()
	in.commas = append(in.commas, i)
}

// insertByteAt writes op at position at, inserting if at is not the end.
func (s *state) insertByteAt(op dxb.Opcode, at int) {
	s.b.InsertAt(at, byte(op))
}

// ---------------------------------------------------------------------------
// Bracket levels
// ---------------------------------------------------------------------------

// enterSubscope opens a bracket level of the given type. With start >= 0
// the opening byte is inserted there instead of at the end.
func (s *state) enterSubscope(typ dxb.Opcode, start int) {
	parent := s.inner()
	parent.lastValue = s.b.Len()
	if parent.firstValue == -1 {
		parent.firstValue = s.b.Len()
	}
	if parent.hasCount {
		parent.count--
	}
	if start < 0 {
		s.b.Emit(typ)
		start = s.b.Len() - 1
	} else {
		s.insertByteAt(typ, start)
	}
	s.subscopes = append(s.subscopes, newSubscope(start, typ, parent.loopStart))
}

// exitSubscope closes the current bracket level with typ. It reports true
// if the closing bracket ends the enclosing bracketed code block instead.
func (s *state) exitSubscope(typ dxb.Opcode) (bool, error) {
	for s.inner().autoClose != 0 {
		ac := s.inner().autoClose
		s.inner().autoClose = 0
		if _, err := s.exitSubscope(ac); err != nil {
			return false, err
		}
	}

	if typ == dxb.OpSubscopeEnd && s.codeBlockType == blockBracketed && len(s.subscopes) == 1 {
		s.end = true
		return true, nil
	}

	in := s.inner()
	if in.parentType == dxb.OpTupleStart && typ == dxb.OpSubscopeEnd {
		typ = dxb.OpTupleEnd
	}
	if in.parentType == dxb.OpRecordStart && typ == dxb.OpSubscopeEnd {
		typ = dxb.OpRecordEnd
	}

	switch {
	case in.parentType == dxb.OpObjectStart && typ != dxb.OpObjectEnd:
		return false, s.syntaxError("Missing closing object bracket")
	case in.parentType == dxb.OpArrayStart && typ != dxb.OpArrayEnd:
		return false, s.syntaxError("Missing closing array bracket")
	case in.parentType == dxb.OpSubscopeStart && typ != dxb.OpSubscopeEnd:
		return false, s.syntaxError("Missing closing bracket")
	}

	if len(s.subscopes) == 1 {
		switch typ {
		case dxb.OpObjectEnd:
			return false, s.syntaxError("Invalid closing object bracket")
		case dxb.OpArrayEnd:
			return false, s.syntaxError("Invalid closing array bracket")
		case dxb.OpSubscopeEnd:
			return false, s.syntaxError("Invalid closing bracket")
		}
	}

	if typ == dxb.OpRecordEnd {
		if err := s.checkRecordElement(); err != nil {
			return false, err
		}
	}

	// drop trailing commas
	if len(in.commas) > 0 && typ != dxb.OpSubscopeEnd {
		for len(in.commas) > 0 {
			c := in.commas[len(in.commas)-1]
			in.commas = in.commas[:len(in.commas)-1]
			if c != s.b.Len()-1 {
				break
			}
			s.b.Truncate(c)
		}
	}
	s.b.Emit(typ)

	s.subscopes = s.subscopes[:len(s.subscopes)-1]
	return false, nil
}

// autoCloseAll closes the implicit tuple and record levels around the
// current position.
func (s *state) autoCloseAll() error {
	for len(s.subscopes) > 0 && s.inner().autoClose != 0 {
		ac := s.inner().autoClose
		s.inner().autoClose = 0
		if _, err := s.exitSubscope(ac); err != nil {
			return err
		}
	}
	return nil
}

// changeParentType retypes the opening bracket of the current level.
func (s *state) changeParentType(typ dxb.Opcode) {
	in := s.inner()
	in.parentType = typ
	s.b.Set(in.start, byte(typ))
}

// detectRecord turns the current level into a record when a key is seen
// outside of an object, array or tuple.
func (s *state) detectRecord() {
	in := s.inner()
	if in.parentType != 0 && in.parentType != dxb.OpSubscopeStart {
		return
	}
	if in.parentType == dxb.OpSubscopeStart && !in.hasCE {
		s.changeParentType(dxb.OpRecordStart)
		return
	}
	s.enterSubscope(dxb.OpRecordStart, -1)
	s.inner().autoClose = dxb.OpRecordEnd
}

// checkPermPrefix handles a value written before a key in the same
// element ('@x key: ...'), which restricts access to the key. It reports
// whether there was such a prefix.
func (s *state) checkPermPrefix() bool {
	in := s.inner()
	start := in.start + 1
	if len(in.commas) > 0 {
		start = in.commas[len(in.commas)-1] + 1
	}
	if s.b.Len() == start || (s.b.Len() > 0 && s.b.At(s.b.Len()-1) == byte(dxb.OpCloseAndStore)) {
		return false
	}
	if start > 0 && s.b.At(start-1) == byte(dxb.OpElement) {
		s.b.Set(start-1, byte(dxb.OpKeyPermission))
	} else {
		s.insertByteAt(dxb.OpKeyPermission, start)
	}
	return true
}

// checkRecordElement rejects a positional element after a keyed one in
// a record.
func (s *state) checkRecordElement() error {
	in := s.inner()
	if in.parentType != dxb.OpRecordStart || len(in.commas) == 0 {
		return nil
	}
	c := in.commas[len(in.commas)-1]
	if s.b.At(c) == byte(dxb.OpElement) && s.b.Len() > c+1 {
		return s.syntaxError("Missing key in <Record>")
	}
	return nil
}

// key writes an element key, converting the current level to a record
// where needed.
func (s *state) key(k string) error {
	in := s.inner()
	switch in.parentType {
	case dxb.OpArrayStart:
		return s.syntaxError("Invalid key in <Array>")
	case dxb.OpTupleStart:
		return s.syntaxError("Invalid key in <Tuple>")
	}
	perm := s.checkPermPrefix()
	if !perm && s.inner().firstElement != -1 {
		s.b.Truncate(s.inner().firstElement)
	}
	s.detectRecord()
	return s.addKey(k)
}
