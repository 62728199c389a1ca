// Package reader decodes DXB bodies made of literal values back into the
// value model, and renders bodies as opcode listings.
//
// The reader does not execute code: jumps, operators and remote calls
// are reported as unsupported by Decode. It understands what the
// compiler emits for native values, including internal variables for
// shared and cyclic references.
package reader

import (
	"bytes"
	"encoding/binary"
	"math"
	"net/url"

	"github.com/chazu/datex/pkg/addr"
	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
	"github.com/chazu/datex/pkg/value"
)

// stdTypeNames maps std type shorthands to type names.
var stdTypeNames = map[dxb.Opcode]string{
	dxb.OpStdTypeString:    "String",
	dxb.OpStdTypeInt:       "Int",
	dxb.OpStdTypeFloat:     "Float",
	dxb.OpStdTypeBoolean:   "Boolean",
	dxb.OpStdTypeNull:      "Null",
	dxb.OpStdTypeVoid:      "Void",
	dxb.OpStdTypeBuffer:    "Buffer",
	dxb.OpStdTypeCodeBlock: "Datex",
	dxb.OpStdTypeUnit:      "Datex.Unit",
	dxb.OpStdTypeFilter:    "Filter",
	dxb.OpStdTypeArray:     "Array",
	dxb.OpStdTypeObject:    "Object",
	dxb.OpStdTypeSet:       "Set",
	dxb.OpStdTypeMap:       "Map",
	dxb.OpStdTypeTuple:     "Tuple",
	dxb.OpStdTypeRecord:    "Record",
	dxb.OpStdTypeFunction:  "Function",
	dxb.OpStdTypeStream:    "Stream",
	dxb.OpStdTypeAny:       "Any",
	dxb.OpStdTypeAssertion: "Assertion",
	dxb.OpStdTypeTask:      "Task",
	dxb.OpStdTypeIterator:  "Iterator",
}

// noValue is the result of a statement that only assigns.
type noValue struct{}

// Decoder reads values from one body. Internal variables assigned in
// earlier statements stay visible to later ones.
type Decoder struct {
	b    []byte
	i    int
	vars map[int]any
}

// NewDecoder creates a decoder for body.
func NewDecoder(body []byte) *Decoder {
	return &Decoder{b: body, vars: make(map[int]any)}
}

// Decode returns the values of all statements in body.
func Decode(body []byte) ([]any, error) {
	return NewDecoder(body).All()
}

// DecodeValue decodes a body holding a single value, such as the output
// of compiler.CompileValue.
func DecodeValue(body []byte) (any, error) {
	values, err := Decode(body)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, dxerr.Runtime("Expected one value, found %d", len(values))
	}
	return values[0], nil
}

// All decodes the remaining statements.
func (d *Decoder) All() ([]any, error) {
	var out []any
	for d.i < len(d.b) {
		if d.peek() == dxb.OpCloseAndStore {
			d.i++
			continue
		}
		v, err := d.statement()
		if err != nil {
			return nil, err
		}
		if _, ok := v.(noValue); !ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// statement decodes a value or a child assignment on an internal variable.
func (d *Decoder) statement() (any, error) {
	if d.peek() == dxb.OpInternalVar {
		at := d.i
		n, err := d.variable(dxb.OpInternalVar)
		if err != nil {
			return nil, err
		}
		if d.i < len(d.b) && d.peek() == dxb.OpChildSet {
			d.i++
			return noValue{}, d.childSet(n)
		}
		d.i = at
	}
	return d.value()
}

func (d *Decoder) childSet(parent int) error {
	key, err := d.value()
	if err != nil {
		return err
	}
	v, err := d.value()
	if err != nil {
		return err
	}
	switch c := d.vars[parent].(type) {
	case *value.Array:
		i, ok := key.(int64)
		if !ok || i < 0 || int(i) >= len(c.Items) {
			return dxerr.Runtime("Invalid array index %v", key)
		}
		c.Items[i] = v
	case *value.Tuple:
		i, ok := key.(int64)
		if !ok || i < 0 || int(i) >= len(c.Items) {
			return dxerr.Runtime("Invalid tuple index %v", key)
		}
		c.Items[i] = v
	case *value.Object:
		k, ok := key.(string)
		if !ok {
			return dxerr.Runtime("Invalid object key %v", key)
		}
		c.Set(k, v)
	case *value.Record:
		k, ok := key.(string)
		if !ok {
			return dxerr.Runtime("Invalid record key %v", key)
		}
		c.Set(k, v)
	default:
		return dxerr.Runtime("Cannot set a property of #%d", parent)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

func (d *Decoder) value() (any, error) {
	if d.i >= len(d.b) {
		return nil, d.eof()
	}
	at := d.i
	op := dxb.Opcode(d.b[d.i])
	d.i++

	if name, ok := stdTypeNames[op]; ok {
		return value.StdType(name), nil
	}

	switch op {
	case dxb.OpNull:
		return nil, nil
	case dxb.OpVoid:
		return value.Void, nil
	case dxb.OpTrue:
		return true, nil
	case dxb.OpFalse:
		return false, nil
	case dxb.OpInt8:
		b, err := d.bytes(1)
		if err != nil {
			return nil, err
		}
		return int64(int8(b[0])), nil
	case dxb.OpInt16:
		b, err := d.bytes(2)
		if err != nil {
			return nil, err
		}
		return int64(int16(binary.LittleEndian.Uint16(b))), nil
	case dxb.OpInt32:
		b, err := d.bytes(4)
		if err != nil {
			return nil, err
		}
		return int64(int32(binary.LittleEndian.Uint32(b))), nil
	case dxb.OpInt64:
		b, err := d.bytes(8)
		if err != nil {
			return nil, err
		}
		return int64(binary.LittleEndian.Uint64(b)), nil
	case dxb.OpFloat64:
		b, err := d.bytes(8)
		if err != nil {
			return nil, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
	case dxb.OpFloatAsInt:
		b, err := d.bytes(4)
		if err != nil {
			return nil, err
		}
		return float64(int32(binary.LittleEndian.Uint32(b))), nil
	case dxb.OpUnit:
		b, err := d.bytes(8)
		if err != nil {
			return nil, err
		}
		return value.Unit(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	case dxb.OpShortString:
		b, err := d.short()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case dxb.OpString:
		b, err := d.long()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case dxb.OpBuffer:
		b, err := d.long()
		if err != nil {
			return nil, err
		}
		return append([]byte{}, b...), nil
	case dxb.OpURL:
		b, err := d.long()
		if err != nil {
			return nil, err
		}
		u, err := url.Parse(string(b))
		if err != nil {
			return nil, dxerr.Runtime("Invalid URL %q", b)
		}
		return u, nil
	case dxb.OpScopeBlock:
		b, err := d.long()
		if err != nil {
			return nil, err
		}
		return &value.Scope{Body: append([]byte(nil), b...)}, nil

	case dxb.OpArrayStart:
		items, err := d.items(dxb.OpArrayEnd)
		if err != nil {
			return nil, err
		}
		return value.NewArray(items...), nil
	case dxb.OpTupleStart:
		items, err := d.items(dxb.OpTupleEnd)
		if err != nil {
			return nil, err
		}
		return value.NewTuple(items...), nil
	case dxb.OpObjectStart:
		o := value.NewObject()
		return o, d.fields(&o.Fields, dxb.OpObjectEnd)
	case dxb.OpRecordStart:
		r := value.NewRecord()
		return r, d.fields(&r.Fields, dxb.OpRecordEnd)

	case dxb.OpSubscopeStart:
		return d.subscope()
	case dxb.OpSetVarSubResult:
		return d.value()
	case dxb.OpSetInternalVar:
		d.i = at
		n, err := d.variable(dxb.OpSetInternalVar)
		if err != nil {
			return nil, err
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		d.vars[n] = v
		return v, nil
	case dxb.OpInternalVar:
		d.i = at
		n, err := d.variable(dxb.OpInternalVar)
		if err != nil {
			return nil, err
		}
		v, ok := d.vars[n]
		if !ok {
			return nil, dxerr.Runtime("Internal variable #%d is not defined", n)
		}
		return v, nil

	case dxb.OpPointer:
		id, err := d.bytes(dxb.MaxPointerIDSize)
		if err != nil {
			return nil, err
		}
		return &value.Pointer{ID: append([]byte(nil), bytes.TrimRight(id, "\x00")...)}, nil
	case dxb.OpCreatePointer:
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		return &value.Pointer{Value: v}, nil

	case dxb.OpType, dxb.OpExtendedType:
		return d.typ(op == dxb.OpExtendedType)

	case dxb.OpFilter:
		f, _, next, err := addr.DecodeFilter(d.b, d.i, false)
		if err != nil {
			return nil, err
		}
		d.i = next
		return f, nil
	}

	if op.IsEndpoint() {
		e, next, err := addr.DecodeValueTarget(d.b, at)
		if err != nil {
			return nil, err
		}
		d.i = next
		return e, nil
	}
	return nil, dxerr.Runtime("Unsupported instruction %s at %d", op, at)
}

// items reads ELEMENT-separated values up to end.
func (d *Decoder) items(end dxb.Opcode) ([]any, error) {
	items := []any{}
	for {
		if d.i >= len(d.b) {
			return nil, d.eof()
		}
		switch d.peek() {
		case end:
			d.i++
			return items, nil
		case dxb.OpElement:
			d.i++
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
}

// fields reads ELEMENT_WITH_KEY entries up to end.
func (d *Decoder) fields(f *value.Fields, end dxb.Opcode) error {
	for {
		if d.i >= len(d.b) {
			return d.eof()
		}
		switch d.peek() {
		case end:
			d.i++
			return nil
		case dxb.OpElementWithKey:
			d.i++
			k, err := d.short()
			if err != nil {
				return err
			}
			v, err := d.value()
			if err != nil {
				return err
			}
			f.Set(string(k), v)
		default:
			return dxerr.Runtime("Expected a key at %d", d.i)
		}
	}
}

// subscope reads statements up to SUBSCOPE_END and returns the last value.
func (d *Decoder) subscope() (any, error) {
	var last any = value.Void
	for {
		if d.i >= len(d.b) {
			return nil, d.eof()
		}
		switch d.peek() {
		case dxb.OpSubscopeEnd:
			d.i++
			return last, nil
		case dxb.OpCloseAndStore:
			d.i++
			continue
		}
		v, err := d.statement()
		if err != nil {
			return nil, err
		}
		if _, ok := v.(noValue); !ok {
			last = v
		}
	}
}

func (d *Decoder) typ(extended bool) (any, error) {
	head := 2
	if extended {
		head = 4
	}
	h, err := d.bytes(head)
	if err != nil {
		return nil, err
	}
	ns, err := d.bytes(int(h[0]))
	if err != nil {
		return nil, err
	}
	name, err := d.bytes(int(h[1]))
	if err != nil {
		return nil, err
	}
	t := &value.Type{Namespace: string(ns), Name: string(name)}
	if !extended {
		return t, nil
	}
	variation, err := d.bytes(int(h[2]))
	if err != nil {
		return nil, err
	}
	t.Variation = string(variation)
	if h[3] == 1 {
		p, err := d.value()
		if err != nil {
			return nil, err
		}
		params, ok := p.(*value.Tuple)
		if !ok {
			return nil, dxerr.Runtime("Type parameters must be a tuple")
		}
		t.Params = params
	}
	return t, nil
}

// variable reads a variable instruction of the base family and returns
// its number.
func (d *Decoder) variable(base dxb.Opcode) (int, error) {
	if _, err := d.bytes(1); err != nil {
		return 0, err
	}
	b, err := d.bytes(3)
	if err != nil {
		return 0, err
	}
	if b[0] != 0 {
		return 0, dxerr.Runtime("Expected a numbered %s", base)
	}
	return int(b[1]) | int(b[2])<<8, nil
}

// ---- cursor ----

func (d *Decoder) peek() dxb.Opcode { return dxb.Opcode(d.b[d.i]) }

func (d *Decoder) bytes(n int) ([]byte, error) {
	if n < 0 || d.i+n > len(d.b) {
		return nil, d.eof()
	}
	out := d.b[d.i : d.i+n]
	d.i += n
	return out, nil
}

func (d *Decoder) short() ([]byte, error) {
	n, err := d.bytes(1)
	if err != nil {
		return nil, err
	}
	return d.bytes(int(n[0]))
}

func (d *Decoder) long() ([]byte, error) {
	n, err := d.bytes(4)
	if err != nil {
		return nil, err
	}
	return d.bytes(int(binary.LittleEndian.Uint32(n)))
}

func (d *Decoder) eof() error {
	return dxerr.Runtime("Unexpected end of DXB at %d", d.i)
}
