package compiler

import (
	"math"
	"strings"

	"github.com/chazu/datex/pkg/addr"
	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
)

// ---------------------------------------------------------------------------
// Emitters: one value or instruction each
// ---------------------------------------------------------------------------

func (s *state) op(op dxb.Opcode) { s.b.Emit(op) }

func (s *state) addString(str string) {
	s.valueIndex()
	if len(str) < 256 {
		s.b.Emit(dxb.OpShortString)
		s.b.EmitRaw(byte(len(str)))
	} else {
		s.b.Emit(dxb.OpString)
		s.b.EmitUint32(uint32(len(str)))
	}
	s.b.EmitRaw([]byte(str)...)
}

func (s *state) addURL(u string) {
	s.valueIndex()
	s.b.Emit(dxb.OpURL)
	s.b.EmitUint32(uint32(len(u)))
	s.b.EmitRaw([]byte(u)...)
}

func (s *state) addBoolean(v bool) {
	s.valueIndex()
	if v {
		s.b.Emit(dxb.OpTrue)
	} else {
		s.b.Emit(dxb.OpFalse)
	}
}

func (s *state) addNull() {
	s.valueIndex()
	s.b.Emit(dxb.OpNull)
}

func (s *state) addVoid() {
	s.valueIndex()
	s.b.Emit(dxb.OpVoid)
}

// addInt uses the smallest of the 8, 16, 32 and 64 bit encodings.
func (s *state) addInt(i int64) {
	s.valueIndex()
	switch {
	case i >= math.MinInt8 && i <= math.MaxInt8:
		s.b.Emit(dxb.OpInt8)
		s.b.EmitRaw(byte(int8(i)))
	case i >= math.MinInt16 && i <= math.MaxInt16:
		s.b.Emit(dxb.OpInt16)
		s.b.EmitUint16(uint16(int16(i)))
	case i >= math.MinInt32 && i <= math.MaxInt32:
		s.b.Emit(dxb.OpInt32)
		s.b.EmitUint32(uint32(int32(i)))
	default:
		s.b.Emit(dxb.OpInt64)
		s.b.EmitUint64(uint64(i))
	}
}

// addFloat stores integral values in int32 range as FLOAT_AS_INT.
func (s *state) addFloat(f float64) {
	s.valueIndex()
	if f == math.Trunc(f) && !math.IsInf(f, 0) && !(f == 0 && math.Signbit(f)) &&
		f >= math.MinInt32 && f <= math.MaxInt32 {
		s.b.Emit(dxb.OpFloatAsInt)
		s.b.EmitUint32(uint32(int32(f)))
		return
	}
	s.b.Emit(dxb.OpFloat64)
	s.b.EmitFloat64(f)
}

func (s *state) addUnit(u float64) {
	s.valueIndex()
	s.b.Emit(dxb.OpUnit)
	s.b.EmitFloat64(u)
}

func (s *state) addBuffer(data []byte) {
	s.valueIndex()
	s.b.Emit(dxb.OpBuffer)
	s.b.EmitUint32(uint32(len(data)))
	s.b.EmitRaw(data...)
}

func (s *state) addKey(k string) error {
	if len(k) > 255 {
		return dxerr.Compiler("Key too long: %d bytes", len(k))
	}
	s.b.Emit(dxb.OpElementWithKey)
	s.b.EmitRaw(byte(len(k)))
	s.b.EmitRaw([]byte(k)...)
	return nil
}

func (s *state) addEndpoint(e *addr.Endpoint) error {
	s.valueIndex()
	out, err := addr.AppendValueTarget(s.b.Bytes(), e)
	if err != nil {
		return err
	}
	s.b.bytes = out
	return nil
}

func (s *state) addFilter(f *addr.Filter) error {
	enc, err := addr.EncodeFilter(f, nil, false)
	if err != nil {
		return err
	}
	s.valueIndex()
	s.b.Emit(dxb.OpFilter)
	s.b.EmitRaw(enc...)
	return nil
}

var stdTypeCodes = map[string]dxb.Opcode{
	"String":     dxb.OpStdTypeString,
	"Int":        dxb.OpStdTypeInt,
	"Float":      dxb.OpStdTypeFloat,
	"Boolean":    dxb.OpStdTypeBoolean,
	"Null":       dxb.OpStdTypeNull,
	"Void":       dxb.OpStdTypeVoid,
	"Buffer":     dxb.OpStdTypeBuffer,
	"Datex":      dxb.OpStdTypeCodeBlock,
	"Datex.Unit": dxb.OpStdTypeUnit,
	"Filter":     dxb.OpStdTypeFilter,
	"Array":      dxb.OpStdTypeArray,
	"Object":     dxb.OpStdTypeObject,
	"Set":        dxb.OpStdTypeSet,
	"Map":        dxb.OpStdTypeMap,
	"Tuple":      dxb.OpStdTypeTuple,
	"Function":   dxb.OpStdTypeFunction,
	"Stream":     dxb.OpStdTypeStream,
	"Any":        dxb.OpStdTypeAny,
	"Task":       dxb.OpStdTypeTask,
	"Assertion":  dxb.OpStdTypeAssertion,
}

// addType writes <ns:name/variation>. Plain std types use their one byte
// shorthand; a variation or parameters make it an extended type.
func (s *state) addType(ns, name, variation string, params bool) error {
	s.valueIndex()
	extended := variation != "" || params
	if (ns == "std" || ns == "") && !extended {
		if op, ok := stdTypeCodes[name]; ok {
			s.b.Emit(op)
			return nil
		}
	}
	if len(ns) > 255 || len(name) > 255 || len(variation) > 255 {
		return dxerr.Compiler("Type name too long: <%s:%s>", ns, name)
	}
	if extended {
		s.b.Emit(dxb.OpExtendedType)
	} else {
		s.b.Emit(dxb.OpType)
	}
	s.b.EmitRaw(byte(len(ns)), byte(len(name)))
	if extended {
		var p byte
		if params {
			p = 1
		}
		s.b.EmitRaw(byte(len(variation)), p)
	}
	s.b.EmitRaw([]byte(ns)...)
	s.b.EmitRaw([]byte(name)...)
	s.b.EmitRaw([]byte(variation)...)
	return nil
}

// addPointerByID writes a pointer instruction with a zero padded id.
func (s *state) addPointerByID(id []byte, action dxb.ActionType, spec dxb.Opcode) error {
	if len(id) > dxb.MaxPointerIDSize {
		return dxerr.Compiler("Pointer ID size must not exceed %d bytes", dxb.MaxPointerIDSize)
	}
	s.valueIndex()
	s.b.Emit(dxb.OpPointer.WithAction(action))
	if spec != 0 {
		s.b.Emit(spec)
	}
	var padded [dxb.MaxPointerIDSize]byte
	copy(padded[:], id)
	s.b.EmitRaw(padded[:]...)
	return nil
}

// addJump writes a jump to target, or to a position patched later if
// target is negative.
func (s *state) addJump(op dxb.Opcode, target int) *Handle {
	return s.b.EmitJump(op, target)
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// insertVariable writes base+action, an optional action specifier and the
// variable name or number. v may be a string, an int or nil for the
// reserved variables that are identified by their opcode alone. A non
// negative at overwrites bytes at that position instead of appending.
func (s *state) insertVariable(v any, action dxb.ActionType, spec dxb.Opcode, base dxb.Opcode, at int) error {
	var enc []byte
	enc = append(enc, byte(base.WithAction(action)))
	if spec != 0 {
		enc = append(enc, byte(spec))
	}
	switch v := v.(type) {
	case nil:
	case string:
		if len(v) > 255 {
			return dxerr.Compiler("Invalid variable name: %s (too long)", v)
		}
		enc = append(enc, byte(len(v)))
		enc = append(enc, v...)
	case int:
		if v < 0 || v > math.MaxUint16 {
			return dxerr.Compiler("Invalid variable id: %d (too big)", v)
		}
		enc = append(enc, 0, byte(v), byte(v>>8))
	}
	if at < 0 {
		s.b.EmitRaw(enc...)
		at = s.b.Len()
	} else {
		copy(s.b.bytes[at:], enc)
		at += len(enc)
	}
	if action != dxb.ActionGet {
		s.b.MarkAssignmentEnd(at)
	}
	return nil
}

// createInternalVariableAt binds the value starting at h to a new internal
// variable by inserting '#n =' in front of it, prefixed with a sub result
// assignment unless the value is already the right hand side of an
// assignment. It returns the variable number, reusing an earlier one for
// the same value.
func (s *state) createInternalVariableAt(h *Handle, val any) (int, error) {
	if n, ok := s.internalVars[val]; ok {
		return n, nil
	}
	at := h.Pos()
	n := s.internalVarIndex
	s.internalVarIndex++
	global := !s.b.IsAssignmentEnd(at)
	gap := 4
	if global {
		gap++
	}
	s.b.InsertGap(at, gap)
	if global {
		s.b.Set(at, byte(dxb.OpSetVarSubResult))
		at++
	}
	if err := s.insertVariable(n, dxb.ActionSet, 0, dxb.OpInternalVar, at); err != nil {
		return 0, err
	}
	s.internalVars[val] = n
	return n, nil
}

// insertExtracted writes a reference to the n-th value passed into a
// nested block. It reports whether the value is new and must be written
// to the extract scope.
func (s *state) insertExtracted(base dxb.Opcode, name any) (bool, error) {
	vars := s.extractVars[base]
	if vars == nil {
		vars = make(map[any]int)
		s.extractVars[base] = vars
	}
	n, ok := vars[name]
	if !ok {
		n = s.extractIndex
		s.extractIndex++
		vars[name] = n
	}
	return !ok, s.insertVariable(n, dxb.ActionGet, 0, dxb.OpInternalVar, -1)
}

// reservedVars are internal variables with their own opcodes. The ones
// marked true are read only.
var reservedVars = map[string]struct {
	op       dxb.Opcode
	readOnly bool
}{
	"result":     {dxb.OpVarResult, false},
	"sub_result": {dxb.OpVarSubResult, false},
	"root":       {dxb.OpVarRoot, false},
	"origin":     {dxb.OpVarOrigin, false},
	"remote":     {dxb.OpVarRemote, false},
	"it":         {dxb.OpVarIt, false},
	"iter":       {dxb.OpVarIter, false},
	"sender":     {dxb.OpVarSender, true},
	"current":    {dxb.OpVarCurrent, true},
	"timestamp":  {dxb.OpVarTimestamp, true},
	"encrypted":  {dxb.OpVarEncrypted, true},
	"signed":     {dxb.OpVarSigned, true},
	"meta":       {dxb.OpVarMeta, true},
	"static":     {dxb.OpVarStatic, true},
	"this":       {dxb.OpVarThis, true},
}

// assignmentAction parses the assignment suffix captured after a
// variable or pointer: '=', '+=', '$=' and so on.
func assignmentAction(suffix string) (dxb.ActionType, dxb.Opcode) {
	suffix = strings.TrimSpace(suffix)
	switch suffix {
	case "":
		return dxb.ActionGet, 0
	case "=":
		return dxb.ActionSet, 0
	}
	switch suffix[0] {
	case '+':
		return dxb.ActionOther, dxb.OpAdd
	case '-':
		return dxb.ActionOther, dxb.OpSubtract
	case '*':
		return dxb.ActionOther, dxb.OpMultiply
	case '/':
		return dxb.ActionOther, dxb.OpDivide
	case '&':
		return dxb.ActionOther, dxb.OpAnd
	case '|':
		return dxb.ActionOther, dxb.OpOr
	case '$':
		return dxb.ActionOther, dxb.OpCreatePointer
	}
	return dxb.ActionGet, 0
}
