// Package value defines the host-side value model the compiler encodes
// and the reader reconstructs.
//
// Null is Go nil. Integers of any width are DATEX integers; float32 and
// float64 are DATEX floats. Compound values are pointers so that identity
// survives a round trip.
package value

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// VoidType is the type of Void.
type VoidType struct{}

// Void is the DATEX void value, distinct from null.
var Void = VoidType{}

func (VoidType) String() string { return "void" }

// Unit is a numeric quantity in the base unit.
type Unit float64

func (u Unit) String() string { return fmt.Sprintf("%gu", float64(u)) }

// Array is an ordered list.
type Array struct {
	Items []any
}

// NewArray creates an array of the given items.
func NewArray(items ...any) *Array { return &Array{Items: items} }

// Tuple is an immutable ordered list, created by comma expressions.
type Tuple struct {
	Items []any
}

// NewTuple creates a tuple of the given items.
func NewTuple(items ...any) *Tuple { return &Tuple{Items: items} }

// Fields is an insertion-ordered string-keyed map.
type Fields struct {
	keys   []string
	values map[string]any
}

// Set stores v under k, keeping the first insertion position of k.
func (f *Fields) Set(k string, v any) {
	if f.values == nil {
		f.values = make(map[string]any)
	}
	if _, ok := f.values[k]; !ok {
		f.keys = append(f.keys, k)
	}
	f.values[k] = v
}

// Get returns the value stored under k.
func (f *Fields) Get(k string) (any, bool) {
	v, ok := f.values[k]
	return v, ok
}

// Keys returns the keys in insertion order.
func (f *Fields) Keys() []string { return f.keys }

// Len returns the number of keys.
func (f *Fields) Len() int { return len(f.keys) }

// Object is a mutable keyed value.
type Object struct {
	Fields
}

// NewObject creates an empty object.
func NewObject() *Object { return &Object{} }

// Record is an immutable keyed value, created by key expressions in
// parentheses.
type Record struct {
	Fields
}

// NewRecord creates an empty record.
func NewRecord() *Record { return &Record{} }

// Type is a DATEX type reference, <namespace:name/variation>.
type Type struct {
	Namespace string
	Name      string
	Variation string
	// Params is nil for a type without parameters.
	Params *Tuple
}

// StdType returns the std type with the given name.
func StdType(name string) *Type { return &Type{Namespace: "std", Name: name} }

func (t *Type) String() string {
	var sb strings.Builder
	sb.WriteByte('<')
	if t.Namespace != "" && t.Namespace != "std" {
		sb.WriteString(t.Namespace)
		sb.WriteByte(':')
	}
	sb.WriteString(t.Name)
	if t.Variation != "" {
		sb.WriteByte('/')
		sb.WriteString(t.Variation)
	}
	sb.WriteByte('>')
	return sb.String()
}

// Pointer is a reference to a synchronized value by id.
type Pointer struct {
	ID []byte
	// Value is the pointer's current value, used when pointers are
	// collapsed during encoding.
	Value any
}

// PointerFromHex parses a hex pointer id. Underscores and dashes are ignored.
func PointerFromHex(s string) (*Pointer, error) {
	s = strings.NewReplacer("_", "", "-", "").Replace(s)
	if len(s)%2 == 1 {
		s += "0"
	}
	id, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid pointer id %q: %w", s, err)
	}
	return &Pointer{ID: id}, nil
}

// IDString returns the id as upper-case hex.
func (p *Pointer) IDString() string { return strings.ToUpper(hex.EncodeToString(p.ID)) }

func (p *Pointer) String() string { return "$" + p.IDString() }

// PointerProperty is pointer->key.
type PointerProperty struct {
	Pointer *Pointer
	Key     any
}

// Function is a compiled function value: a parameter tuple, captured
// internal variables and a compiled DXB body.
type Function struct {
	Params *Tuple
	Vars   []any
	Body   []byte
}

// Stream is a live source of chunks. A chunk is either raw []byte or any
// encodable value. The channel is closed at end of stream.
type Stream struct {
	C <-chan any
}

// NewStream wraps a channel as a stream.
func NewStream(c <-chan any) *Stream { return &Stream{C: c} }

// Scope is a compiled scope block with the values extracted from the
// enclosing scope.
type Scope struct {
	Vars []any
	Body []byte
}
