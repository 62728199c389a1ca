package compiler

import (
	"encoding/hex"
	"math"
	"strconv"
	"strings"

	"github.com/chazu/datex/pkg/addr"
	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
	"github.com/chazu/datex/pkg/value"
)

// ---------------------------------------------------------------------------
// Token dispatch
// ---------------------------------------------------------------------------

// Tokens that write nothing but a single opcode, preceded by a value index
// when the opcode starts a value of its own.
var (
	valueOps = map[TokenType]dxb.Opcode{
		TokenEnd:         dxb.OpEnd,
		TokenRequest:     dxb.OpRequest,
		TokenCount:       dxb.OpCount,
		TokenAbout:       dxb.OpAbout,
		TokenReturn:      dxb.OpReturn,
		TokenIteration:   dxb.OpIteration,
		TokenIterator:    dxb.OpIterator,
		TokenFreeze:      dxb.OpFreeze,
		TokenSeal:        dxb.OpSeal,
		TokenHas:         dxb.OpHas,
		TokenKeys:        dxb.OpKeys,
		TokenDelete:      dxb.OpDeletePointer,
		TokenSubscribe:   dxb.OpSubscribe,
		TokenUnsubscribe: dxb.OpUnsubscribe,
		TokenValue:       dxb.OpValue,
		TokenGetType:     dxb.OpGetType,
		TokenOrigin:      dxb.OpGetOrigin,
		TokenSubscribers: dxb.OpGetSubscribers,
		TokenTemplate:    dxb.OpTemplate,
		TokenExtends:     dxb.OpExtends,
		TokenImplements:  dxb.OpImplements,
		TokenMatches:     dxb.OpMatches,
		TokenDebug:       dxb.OpDebug,
		TokenObserve:     dxb.OpObserve,
		TokenAwait:       dxb.OpAwait,
		TokenThrowError:  dxb.OpThrowError,
		TokenSpread:      dxb.OpExtend,
	}

	plainOps = map[TokenType]dxb.Opcode{
		TokenSync:          dxb.OpSync,
		TokenStopSync:      dxb.OpStopSync,
		TokenStream:        dxb.OpStream,
		TokenStopStream:    dxb.OpStopStream,
		TokenEqual:         dxb.OpEqual,
		TokenNotEqual:      dxb.OpNotEqual,
		TokenEqualValue:    dxb.OpEqualValue,
		TokenNotEqualValue: dxb.OpNotEqualValue,
		TokenGreaterEqual:  dxb.OpGreaterEqual,
		TokenLessEqual:     dxb.OpLessEqual,
		TokenLess:          dxb.OpLess,
		TokenCreatePointer: dxb.OpCreatePointer,
		TokenAdd:           dxb.OpAdd,
		TokenSubtract:      dxb.OpSubtract,
		TokenMultiply:      dxb.OpMultiply,
		TokenDivide:        dxb.OpDivide,
		TokenOr:            dxb.OpOr,
		TokenAnd:           dxb.OpAnd,
		TokenNot:           dxb.OpNot,
	}

	// compound assignments on a path: a.b += 1
	pathActions = map[TokenType]dxb.Opcode{
		TokenAssignAdd:          dxb.OpAdd,
		TokenAssignSub:          dxb.OpSubtract,
		TokenAssignMul:          dxb.OpMultiply,
		TokenAssignDiv:          dxb.OpDivide,
		TokenAssignAnd:          dxb.OpAnd,
		TokenAssignOr:           dxb.OpOr,
		TokenAssignPointerValue: dxb.OpCreatePointer,
	}

	scopeBlocks = map[TokenType]dxb.Opcode{
		TokenDo:     dxb.OpDo,
		TokenAssert: dxb.OpAssert,
		TokenHold:   dxb.OpHold,
	}
)

// allow vetoes template string tokens outside of the matching context.
func (s *state) allow(t TokenType) bool {
	switch t {
	case TokenTemplateStart:
		return !s.inner().inTemplate
	case TokenTemplateMiddle, TokenTemplateEnd:
		n := len(s.subscopes)
		return n >= 3 && s.subscopes[n-3].inTemplate
	}
	return true
}

// step reads and compiles one token.
func (s *state) step() error {
	wasEnd := s.lastCommandEnd
	s.pos += skipSpace(s.rest())
	s.lastCommandEnd = false

	if len(s.rest()) == 0 {
		s.end = true
		s.lastCommandEnd = wasEnd
		return nil
	}

	tok, ok := s.matcher.Next(s.rest(), s.allow)
	if !ok {
		return s.invalidToken()
	}

	effective, stop, err := s.dispatch(tok, wasEnd)
	if err != nil || stop {
		return err
	}

	if effective {
		s.tryPlusOrMinus()
	}
	if err := s.finishControl(); err != nil {
		return err
	}
	return s.finishFunction()
}

func (s *state) consume(tok Token) { s.pos += tok.Len }

func (s *state) invalidToken() error {
	return s.syntaxError("Invalid token near '%s'", s.near())
}

// endsStatement reports whether the current token terminates a single
// statement code block. The token is then left to the enclosing scope.
func (s *state) endsStatement(wasEnd bool) bool {
	if s.codeBlockType != blockStatement || len(s.subscopes) != 1 {
		return false
	}
	s.end = true
	if wasEnd {
		s.lastCommandEnd = true
	}
	return true
}

// dispatch compiles tok. It reports whether tok produced a value that may
// be followed by a directly attached '+' or '-', and whether the step ends
// without the post-token processing.
func (s *state) dispatch(tok Token, wasEnd bool) (effective, stop bool, err error) {
	if op, ok := valueOps[tok.Type]; ok {
		s.consume(tok)
		s.valueIndex()
		s.op(op)
		return false, false, nil
	}
	if op, ok := plainOps[tok.Type]; ok {
		s.consume(tok)
		s.op(op)
		return false, false, nil
	}
	if op, ok := pathActions[tok.Type]; ok {
		s.consume(tok)
		in := s.inner()
		if in.pathInfo == -1 {
			return false, false, dxerr.Compiler("Invalid assignment")
		}
		s.b.Set(in.pathInfo, byte(dxb.OpChildAction))
		s.insertByteAt(op, in.pathInfo+1)
		return false, false, nil
	}
	if op, ok := scopeBlocks[tok.Type]; ok {
		s.consume(tok)
		return false, false, s.addScopeBlock(op, tok.Matched(1), extractVars)
	}

	switch tok.Type {
	case TokenURL:
		s.consume(tok)
		s.addURL(tok.Text)
		return true, false, nil

	case TokenInsert:
		s.consume(tok)
		idx := s.dataIndex
		if tok.Group(1) != "" {
			idx, _ = strconv.Atoi(tok.Group(1))
		} else {
			s.dataIndex++
		}
		if s.template != nil {
			s.valueIndex()
			s.precompileSlot(idx)
			return true, false, nil
		}
		var v any = value.Void
		if idx < len(s.data) {
			v = s.data[idx]
		}
		return true, false, s.insert(v)

	case TokenKey:
		s.consume(tok)
		name := strings.TrimSpace(strings.TrimSuffix(tok.Text, ":"))
		return true, false, s.key(name)

	case TokenSkip:
		s.consume(tok)
		in := s.inner()
		if in.loopStart == -1 {
			return false, false, dxerr.Compiler("Invalid 'skip' command")
		}
		s.addJump(dxb.OpJmp, in.loopStart)
		s.valueIndex()
		return false, false, nil

	case TokenIterate:
		s.consume(tok)
		in := s.inner()
		in.iterate = 0
		in.hasCount, in.count = true, 1
		s.op(dxb.OpSubscopeStart)
		if err := s.insertVariable(nil, dxb.ActionSet, 0, dxb.OpVarIter, -1); err != nil {
			return false, false, err
		}
		s.op(dxb.OpIterator)
		return false, false, nil

	case TokenWhile:
		s.consume(tok)
		in := s.inner()
		in.while = true
		in.loopStart = s.b.Len() + 1
		in.hasCount, in.count = true, 1
		s.op(dxb.OpSubscopeStart)
		in.jfa = s.addJump(dxb.OpJfa, -1)
		return false, false, nil

	case TokenElseIf:
		s.consume(tok)
		in := s.inner()
		isElse := tok.Matched(1)
		if isElse {
			if len(in.ifEnds) == 0 {
				return false, false, dxerr.Compiler("Invalid else-if statement - no preceding if statement")
			}
			// continue inside the subscope of the previous branch
			s.b.Truncate(s.b.Len() - 1)
		} else {
			s.valueIndex()
		}
		in.hasCount, in.count = true, 2
		if !isElse {
			s.op(dxb.OpSubscopeStart)
		}
		in.ifJump = s.addJump(dxb.OpJfa, -1)
		return false, false, nil

	case TokenElse:
		s.consume(tok)
		in := s.inner()
		if len(in.ifEnds) == 0 {
			return false, false, dxerr.Compiler("Invalid else statement - no preceding if statement")
		}
		s.b.Truncate(s.b.Len() - 1)
		in.isElse = true
		in.hasCount, in.count = true, 1
		return false, false, nil

	case TokenFun:
		s.consume(tok)
		s.valueIndex()
		s.op(dxb.OpStdTypeFunction)
		return true, false, nil

	case TokenNewline:
		s.consume(tok)
		s.line++
		s.lastCommandEnd = wasEnd
		return false, false, nil

	case TokenComment:
		s.consume(tok)
		s.line += strings.Count(tok.Text, "\n")
		s.lastCommandEnd = wasEnd
		return false, false, nil

	case TokenVoid, TokenQuasiVoid:
		s.consume(tok)
		s.addVoid()
		return true, false, nil

	case TokenRemoteCall:
		if s.endsStatement(wasEnd) {
			return false, true, nil
		}
		s.consume(tok)
		return false, false, s.addScopeBlock(dxb.OpRemote, tok.Matched(1), extractNone)

	case TokenTransform:
		s.consume(tok)
		return false, false, s.addScopeBlock(dxb.OpTransform, tok.Matched(1), extractPointers)

	case TokenSubscopeStart:
		s.consume(tok)
		s.enterSubscope(dxb.OpSubscopeStart, -1)
		return false, false, nil

	case TokenTypeRef:
		params := tok.Group(4) == "("
		if params {
			// the parameter tuple is compiled as a regular subscope
			s.pos += tok.Len - 1
			s.inner().paramTypeClose = true
		} else {
			s.consume(tok)
		}
		ns := tok.Group(1)
		if ns == "" {
			ns = "std"
		}
		return false, false, s.addType(ns, tok.Group(2), strings.TrimPrefix(tok.Group(3), "/"), params)

	case TokenGreater:
		s.consume(tok)
		in := s.inner()
		if in.paramTypeClose {
			in.paramTypeClose = false
		} else {
			s.op(dxb.OpGreater)
		}
		return false, false, nil

	case TokenRange:
		s.consume(tok)
		in := s.inner()
		if in.lastValue == -1 {
			return false, false, s.syntaxError("Missing start value of range")
		}
		s.insertByteAt(dxb.OpRange, in.lastValue)
		return false, false, nil

	case TokenPathSeparator:
		s.consume(tok)
		s.inner().pathInfo = s.b.Len()
		s.op(dxb.OpChildGet)
		return s.pathKey(s), false, nil

	case TokenPathRef:
		s.consume(tok)
		_, wildcard := s.matcher.Match(TokenWildcard, s.rest())
		target := s
		if s.extractMode >= extractLabels && !wildcard && s.extract != nil {
			target = s.extract
		}
		target.inner().pathInfo = target.b.Len()
		target.op(dxb.OpChildGetRef)
		s.pathKey(target)
		return false, false, nil

	case TokenJump:
		s.consume(tok)
		return false, false, s.jump(tok.Group(1), tok.Group(2))

	case TokenLabel:
		s.consume(tok)
		return false, false, s.label(tok.Group(1))

	case TokenUse:
		s.consume(tok)
		s.valueIndex()
		s.op(dxb.OpVarRootAction)
		s.op(dxb.OpAdd)
		s.enterSubscope(dxb.OpSubscopeStart, -1)
		s.inner().autoClose = dxb.OpSubscopeEnd
		s.op(dxb.OpSetVarRoot)
		s.op(dxb.OpVarStatic)
		s.op(dxb.OpCloseAndStore)
		return false, false, nil

	case TokenBoolean:
		s.consume(tok)
		s.addBoolean(tok.Text == "true")
		return true, false, nil

	case TokenNull:
		s.consume(tok)
		s.addNull()
		return true, false, nil

	case TokenEmptyArray, TokenEmptyObject:
		s.consume(tok)
		s.valueIndex()
		if tok.Type == TokenEmptyArray {
			s.op(dxb.OpStdTypeArray)
		} else {
			s.op(dxb.OpStdTypeObject)
		}
		s.op(dxb.OpVoid)
		return true, false, nil

	case TokenArrayStart, TokenObjectStart:
		s.consume(tok)
		typ := dxb.OpArrayStart
		if tok.Type == TokenObjectStart {
			typ = dxb.OpObjectStart
		}
		s.enterSubscope(typ, -1)
		in := s.inner()
		in.firstElement = s.b.Len()
		s.commaIndex(s.b.Len())
		s.op(dxb.OpElement)
		return false, false, nil

	case TokenArrayEnd, TokenObjectEnd:
		if s.endsStatement(wasEnd) {
			return false, true, nil
		}
		s.consume(tok)
		typ := dxb.OpArrayEnd
		if tok.Type == TokenObjectEnd {
			typ = dxb.OpObjectEnd
		}
		_, err := s.exitSubscope(typ)
		return true, false, err

	case TokenTemplateStart, TokenTemplateMiddle, TokenTemplateEnd:
		s.consume(tok)
		return tok.Type == TokenTemplateEnd, false, s.templateString(tok)

	case TokenComma:
		if s.endsStatement(wasEnd) {
			return false, true, nil
		}
		s.consume(tok)
		return false, false, s.comma()

	case TokenBuffer:
		s.consume(tok)
		data, err := decodeBuffer(tok.Group(1))
		if err != nil {
			return false, false, err
		}
		s.addBuffer(data)
		return true, false, nil

	case TokenCloseAndStore:
		if s.codeBlockType == blockStatement {
			s.end = true
			if wasEnd {
				s.lastCommandEnd = true
			}
			return false, true, nil
		}
		s.consume(tok)
		s.line += strings.Count(tok.Text, "\n")
		if err := s.autoCloseAll(); err != nil {
			return false, false, err
		}
		s.op(dxb.OpCloseAndStore)
		in := s.inner()
		in.hasCE = true
		in.ceIndex = s.b.Len()
		s.lastCommandEnd = true
		return false, false, nil

	case TokenInfinity:
		s.consume(tok)
		sign := 1
		if tok.Group(1) == "-" {
			sign = -1
		}
		s.addFloat(math.Inf(sign))
		return true, false, nil

	case TokenNaN:
		s.consume(tok)
		s.addFloat(math.NaN())
		return true, false, nil

	case TokenPersonAlias, TokenInstitutionAlias, TokenBot, TokenEndpoint, TokenBroadcastEndpoint:
		s.consume(tok)
		e, err := endpointOf(tok)
		if err != nil {
			return false, false, err
		}
		return true, false, s.addEndpoint(e)

	case TokenStringOrKey:
		s.consume(tok)
		quoted := tok.Group(1)
		s.line += strings.Count(quoted, "\n")
		str, err := unescape(quoted[1 : len(quoted)-1])
		if err != nil {
			return false, false, s.atLine(err)
		}
		if tok.Matched(2) {
			return true, false, s.key(str)
		}
		s.addString(str)
		return true, false, nil

	case TokenSubscopeEnd:
		if s.endsStatement(wasEnd) {
			return false, true, nil
		}
		s.consume(tok)
		ended, err := s.exitSubscope(dxb.OpSubscopeEnd)
		if ended && wasEnd {
			s.lastCommandEnd = true
		}
		return true, false, err

	case TokenConstructorMethod:
		s.consume(tok)
		return false, false, nil

	case TokenFunction:
		s.consume(tok)
		s.inner().function = s.b.Len()
		return false, false, nil

	case TokenPointer:
		s.consume(tok)
		return true, false, s.pointer(tok)

	case TokenInternalVar, TokenVariable, TokenLabeledPointer:
		s.consume(tok)
		return true, false, s.variable(tok)

	case TokenUnit:
		s.consume(tok)
		f, err := strconv.ParseFloat(strings.NewReplacer("_", "", " ", "").Replace(tok.Group(1)), 64)
		if err != nil {
			return false, false, dxerr.Value("Invalid <Unit> %q", tok.Text)
		}
		s.addUnit(f)
		return true, false, nil

	case TokenFloat:
		s.consume(tok)
		f, err := strconv.ParseFloat(strings.ReplaceAll(tok.Text, "_", ""), 64)
		if err != nil {
			return false, false, dxerr.Value("Invalid <Float> %q", tok.Text)
		}
		s.addFloat(f)
		return true, false, nil

	case TokenInt:
		s.consume(tok)
		i, err := strconv.ParseInt(strings.ReplaceAll(tok.Text, "_", ""), 10, 64)
		if err != nil {
			// out of int64 range
			f, _ := strconv.ParseFloat(strings.ReplaceAll(tok.Text, "_", ""), 64)
			s.addFloat(f)
			return true, false, nil
		}
		s.addInt(i)
		return true, false, nil

	case TokenHex:
		s.consume(tok)
		u, err := strconv.ParseUint(tok.Text[2:], 16, 64)
		if err != nil {
			return false, false, dxerr.Value("Invalid hexadecimal <Int> %q", tok.Text)
		}
		s.addInt(int64(u))
		return true, false, nil

	case TokenAssignSet:
		s.consume(tok)
		in := s.inner()
		if in.pathInfo == -1 {
			return false, false, dxerr.Compiler("Invalid assignment")
		}
		s.b.Set(in.pathInfo, byte(dxb.OpChildSet))
		return false, false, nil
	}

	return false, false, s.invalidToken()
}

// pathKey compiles the key following '.' or '->': a wildcard or a property
// name, which is written to target.
func (s *state) pathKey(target *state) bool {
	if tok, ok := s.matcher.Match(TokenWildcard, s.rest()); ok {
		s.consume(tok)
		s.op(dxb.OpWildcard)
		return true
	}
	if tok, ok := s.matcher.Match(TokenProperty, s.rest()); ok {
		s.consume(tok)
		target.addString(tok.Text)
		return true
	}
	return false
}

// tryPlusOrMinus compiles a '+' or '-' directly attached to a value, which
// the number patterns would otherwise read as a sign.
func (s *state) tryPlusOrMinus() {
	rest := s.rest()
	if len(rest) == 0 {
		return
	}
	switch {
	case rest[0] == '+':
		s.op(dxb.OpAdd)
		s.pos++
	case rest[0] == '-' && (len(rest) == 1 || rest[1] != '>'):
		s.op(dxb.OpSubtract)
		s.pos++
	}
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// finishControl completes an iterate, while or if construct once all of its
// values have been read.
func (s *state) finishControl() error {
	in := s.inner()
	if in.hasCount && in.count != 0 {
		return nil
	}

	switch {
	case in.iterate == 0:
		// #iter = iterator <iterable>; loop: jfa end (#iter.next()); #it = #iter.val; <body>
		s.op(dxb.OpCloseAndStore)
		in.loopStart = s.b.Len()
		in.jfa = s.addJump(dxb.OpJfa, -1)
		s.op(dxb.OpSubscopeStart)
		if err := s.insertVariable(nil, dxb.ActionGet, 0, dxb.OpVarIter, -1); err != nil {
			return err
		}
		s.op(dxb.OpChildGet)
		s.addString("next")
		s.op(dxb.OpVoid)
		s.op(dxb.OpSubscopeEnd)
		s.op(dxb.OpCloseAndStore)
		if err := s.insertVariable(nil, dxb.ActionSet, 0, dxb.OpVarIt, -1); err != nil {
			return err
		}
		if err := s.insertVariable(nil, dxb.ActionGet, 0, dxb.OpVarIter, -1); err != nil {
			return err
		}
		s.op(dxb.OpChildGet)
		s.addString("val")
		s.op(dxb.OpCloseAndStore)
		in.iterate = 1
		in.hasCount, in.count = true, 1
		return nil

	case in.iterate == 1:
		s.addJump(dxb.OpJmp, in.loopStart)
		s.b.PatchJump(in.jfa, s.b.Len())
		s.op(dxb.OpSubscopeEnd)
		in.loopStart = -1
		in.iterate = -1

	case in.while:
		s.addJump(dxb.OpJmp, in.loopStart)
		s.b.PatchJump(in.jfa, s.b.Len())
		s.op(dxb.OpSubscopeEnd)
		in.loopStart = -1
		in.while = false

	case in.ifJump != nil:
		in.ifEnds = append(in.ifEnds, s.addJump(dxb.OpJmp, -1))
		s.b.PatchJump(in.ifJump, s.b.Len())
		s.op(dxb.OpSubscopeEnd)
	}

	if in.isElse || in.ifJump != nil {
		end := s.b.Len()
		if in.ifJump != nil {
			// jump behind the branch body, before its closing bracket
			end = s.b.Len() - 1
		}
		for _, h := range in.ifEnds {
			s.b.PatchJump(h, end)
		}
		if in.isElse {
			in.ifEnds = nil
			in.isElse = false
			s.op(dxb.OpSubscopeEnd)
		} else {
			in.ifJump = nil
		}
	}
	in.hasCount = false
	return nil
}

// finishFunction compiles the body of a 'function' once its parameters
// are complete.
func (s *state) finishFunction() error {
	in := s.inner()
	if in.function == -1 || s.b.Len() == in.function {
		return nil
	}
	s.pos += skipSpace(s.rest())
	brackets := false
	if rest := s.rest(); len(rest) > 0 && rest[0] == '(' {
		brackets = true
		s.pos++
	}
	in.function = -1
	return s.addScopeBlock(dxb.OpFunction, brackets, extractNone)
}

// addScopeBlock compiles the code block that follows into a nested body
// and writes op before it.
func (s *state) addScopeBlock(op dxb.Opcode, brackets bool, mode int) error {
	typ := blockStatement
	if brackets {
		typ = blockBracketed
	}
	c := s.newChild(typ, mode)
	body, err := c.run()
	if err != nil {
		return err
	}
	s.pos, s.line, s.dataIndex = c.pos, c.line, c.dataIndex
	s.op(op)
	s.b.EmitRaw(body...)
	return nil
}

func (s *state) jump(kind, label string) error {
	op := dxb.OpJmp
	switch kind {
	case "jtr":
		op = dxb.OpJtr
	case "jfa":
		op = dxb.OpJfa
	}
	s.valueIndex()
	if h, ok := s.labels[label]; ok {
		s.usedLabels[label] = true
		s.addJump(op, h.Pos())
		return nil
	}
	s.waiting[label] = append(s.waiting[label], s.addJump(op, -1))
	return nil
}

func (s *state) label(name string) error {
	s.labels[name] = s.b.Handle(s.b.Len())
	if s.usedLabels[name] {
		return dxerr.Compiler("Multiple use of label: %s", name)
	}
	for _, h := range s.waiting[name] {
		s.b.PatchJump(h, s.b.Len())
	}
	delete(s.waiting, name)
	s.usedLabels[name] = true
	if !s.cachePoint {
		s.cachePoint = true
		s.op(dxb.OpCachePoint)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Collections and template strings
// ---------------------------------------------------------------------------

func (s *state) comma() error {
	if err := s.checkRecordElement(); err != nil {
		return err
	}
	in := s.inner()
	if in.parentType == 0 || in.parentType == dxb.OpSubscopeStart {
		if in.parentType == dxb.OpSubscopeStart && in.start == in.firstValue-1 {
			// (a, ... is a tuple
			s.changeParentType(dxb.OpTupleStart)
			s.insertByteAt(dxb.OpElement, in.start+1)
			s.commaIndex(in.start + 1)
		} else {
			// a, ... without brackets: the tuple starts after the last ';'
			index := in.firstValue
			if in.hasCE && in.ceIndex > index {
				index = in.ceIndex
			}
			if index == -1 {
				return s.syntaxError("Invalid leading comma")
			}
			s.insertByteAt(dxb.OpElement, index)
			s.enterSubscope(dxb.OpTupleStart, index)
			s.inner().autoClose = dxb.OpTupleEnd
			s.commaIndex(index + 1)
		}
	}
	in = s.inner()
	in.firstElement = s.b.Len()
	s.commaIndex(s.b.Len())
	s.op(dxb.OpElement)
	return nil
}

// templateString compiles a part of 'text(expr)text' into
// text + <String>(expr) + text.
func (s *state) templateString(tok Token) error {
	raw := tok.Text[1 : len(tok.Text)-1]
	s.line += strings.Count(raw, "\n")
	str, err := unescape(raw)
	if err != nil {
		return s.atLine(err)
	}

	switch tok.Type {
	case TokenTemplateStart:
		s.inner().inTemplate = true
		s.enterSubscope(dxb.OpSubscopeStart, -1)
		if str != "" {
			s.addString(str)
			s.op(dxb.OpAdd)
		}
		if err := s.addType("std", "String", "", false); err != nil {
			return err
		}
		s.enterSubscope(dxb.OpSubscopeStart, -1)

	case TokenTemplateMiddle:
		if _, err := s.exitSubscope(dxb.OpSubscopeEnd); err != nil {
			return err
		}
		if str != "" {
			s.op(dxb.OpAdd)
			s.addString(str)
		}
		s.op(dxb.OpAdd)
		if err := s.addType("std", "String", "", false); err != nil {
			return err
		}
		s.enterSubscope(dxb.OpSubscopeStart, -1)

	case TokenTemplateEnd:
		if _, err := s.exitSubscope(dxb.OpSubscopeEnd); err != nil {
			return err
		}
		if str != "" {
			s.op(dxb.OpAdd)
			s.addString(str)
		}
		if _, err := s.exitSubscope(dxb.OpSubscopeEnd); err != nil {
			return err
		}
		s.inner().inTemplate = false
	}
	return nil
}

// decodeBuffer parses the hex digits of a `...` buffer literal.
func decodeBuffer(digits string) ([]byte, error) {
	digits = strings.ReplaceAll(digits, "_", "")
	if len(digits)%2 == 1 {
		digits = "0" + digits
	}
	data, err := hex.DecodeString(digits)
	if err != nil {
		return nil, dxerr.Value("Invalid <Buffer> format (base 16)")
	}
	return data, nil
}

// ---------------------------------------------------------------------------
// Endpoints, pointers and variables
// ---------------------------------------------------------------------------

func endpointOf(tok Token) (*addr.Endpoint, error) {
	var subspaces []string
	if chain := tok.Group(2); len(chain) > 1 {
		subspaces = strings.Split(chain[1:], ".")
	}
	instance := tok.Group(6)

	switch tok.Type {
	case TokenPersonAlias:
		return addr.Get(dxb.OpPersonAlias, tok.Group(1), subspaces, instance, nil)
	case TokenInstitutionAlias:
		return addr.Get(dxb.OpInstitutionAlias, tok.Group(1), subspaces, instance, nil)
	case TokenEndpoint:
		return addr.Get(dxb.OpEndpoint, tok.Group(1), subspaces, instance, nil)
	case TokenBroadcastEndpoint:
		return addr.FromID(addr.BroadcastID, subspaces, instance, nil), nil
	}
	name, instance, _ := strings.Cut(tok.Text[1:], "/")
	return addr.Get(dxb.OpBot, name, nil, instance, nil)
}

func (s *state) pointer(tok Token) error {
	action, spec := assignmentAction(tok.Group(3))
	id := strings.NewReplacer("_", "", "x", "0", "X", "0").Replace(tok.Group(1))
	p, err := value.PointerFromHex(id)
	if err != nil {
		return dxerr.Value("Invalid pointer id $%s", tok.Group(1))
	}
	if s.extractMode == extractPointers && action == dxb.ActionGet && s.extract != nil {
		isNew, err := s.insertExtracted(dxb.OpPointer, p.IDString())
		if err != nil || !isNew {
			return err
		}
		return s.extract.addPointerByID(p.ID, action, spec)
	}
	return s.addPointerByID(p.ID, action, spec)
}

// variable compiles a name, #internal or $label variable, including an
// attached assignment operator.
func (s *state) variable(tok Token) error {
	scopeExtract := tok.Group(1) != ""
	name := tok.Group(3)
	internal := tok.Group(2) == "#"
	label := tok.Group(2) == "$"
	action, spec := assignmentAction(tok.Group(4))

	base := dxb.OpVar
	switch {
	case internal:
		base = dxb.OpInternalVar
	case label:
		base = dxb.OpLabel
	}

	var v any = name
	if isHexName(name) && (internal || label || strings.HasPrefix(name, "_")) {
		n, err := strconv.ParseUint(strings.NewReplacer("-", "", "_", "").Replace(name), 16, 16)
		if err != nil {
			n = 0
		}
		v = int(n)
	}

	if name == "with" || name == "use" {
		return dxerr.Compiler("Invalid variable name: %s", name)
	}

	if action == dxb.ActionGet {
		s.valueIndex()
	}

	if internal {
		if r, ok := reservedVars[name]; ok && v == name {
			base, v = r.op, nil
			if r.readOnly && action != dxb.ActionGet {
				return dxerr.Compiler("Invalid action on internal variable #%s", name)
			}
		}
	}

	extract := action == dxb.ActionGet && s.extract != nil &&
		(scopeExtract ||
			(s.extractMode >= extractVars && base == dxb.OpVar) ||
			(s.extractMode >= extractLabels && base == dxb.OpLabel))
	if extract {
		isNew, err := s.insertExtracted(base, v)
		if err != nil || !isNew {
			return err
		}
		return s.extract.insertVariable(v, action, spec, base, -1)
	}
	return s.insertVariable(v, action, spec, base, -1)
}
