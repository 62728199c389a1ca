package addr

import (
	"bytes"

	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
	"github.com/chazu/datex/pkg/logic"
	"github.com/chazu/datex/pkg/value"
)

// Filter encoding limits.
const (
	MaxFilterClauses  = 255
	MaxFilterLiterals = 255
	MaxFilterTargets  = 127
)

// ---------------------------------------------------------------------------
// Endpoint encoding (header sender form)
//
//   type:u8 name_len:u8 subspace_count:u8 instance_len:u8 has_appspace:u8
//   name, (len:u8 subspace)*, instance, [appspace]
//
// instance_len 255 means no instance. The appspace uses the same layout.
// ---------------------------------------------------------------------------

// AppendEndpoint appends the encoding of e to dst. A nil endpoint is
// written as a single 0 byte (anonymous).
func AppendEndpoint(dst []byte, e *Endpoint) ([]byte, error) {
	if e == nil {
		return append(dst, 0), nil
	}
	name := e.NameBytes()
	if len(name) > 255 {
		return nil, dxerr.Compiler("Endpoint name too long: %d bytes", len(name))
	}
	instLen := len(e.Instance)
	if instLen >= 255 {
		return nil, dxerr.Compiler("Endpoint instance too long: %d bytes", instLen)
	}
	if instLen == 0 {
		instLen = 255
	}
	hasApp := byte(0)
	if e.Appspace != nil {
		hasApp = 1
	}
	dst = append(dst, byte(e.Type), byte(len(name)), byte(len(e.Subspaces)), byte(instLen), hasApp)
	dst = append(dst, name...)
	for _, s := range e.Subspaces {
		if len(s) == 0 || len(s) > 255 {
			return nil, dxerr.Compiler("Invalid subspace length: %d", len(s))
		}
		dst = append(dst, byte(len(s)))
		dst = append(dst, s...)
	}
	dst = append(dst, e.Instance...)
	if e.Appspace != nil {
		return AppendEndpoint(dst, e.Appspace)
	}
	return dst, nil
}

// DecodeEndpoint decodes an endpoint written by AppendEndpoint starting at
// b[i]. It returns the endpoint (nil for anonymous) and the index of the
// first byte after it.
func DecodeEndpoint(b []byte, i int) (*Endpoint, int, error) {
	r := &reader{b: b, i: i, err: "Invalid sender"}
	typ := dxb.Opcode(r.byte())
	if r.bad {
		return nil, i, r.fail()
	}
	if typ == 0 {
		return nil, r.i, nil
	}
	nameLen := int(r.byte())
	subCount := int(r.byte())
	instLen := int(r.byte())
	hasApp := r.byte() != 0
	if r.bad {
		return nil, i, r.fail()
	}
	if instLen == 0 {
		return nil, i, r.fail()
	}
	if instLen == 255 {
		instLen = 0
	}
	name := r.bytes(nameLen)
	subspaces := make([]string, 0, subCount)
	for n := 0; n < subCount; n++ {
		l := int(r.byte())
		if l == 0 {
			return nil, i, r.fail()
		}
		subspaces = append(subspaces, string(r.bytes(l)))
	}
	instance := string(r.bytes(instLen))
	if r.bad {
		return nil, i, r.fail()
	}
	var app *Endpoint
	if hasApp {
		var err error
		app, r.i, err = DecodeEndpoint(b, r.i)
		if err != nil {
			return nil, i, err
		}
	}
	e, err := fromParts(typ, name, subspaces, instance, app)
	if err != nil {
		return nil, i, dxerr.Runtime("Invalid sender")
	}
	return e, r.i, nil
}

func fromParts(typ dxb.Opcode, name []byte, subspaces []string, instance string, app *Endpoint) (*Endpoint, error) {
	if len(subspaces) == 0 {
		subspaces = nil
	}
	if baseType(typ) == dxb.OpEndpoint {
		return FromID(name, subspaces, instance, app), nil
	}
	return Get(typ, string(name), subspaces, instance, app)
}

// ---------------------------------------------------------------------------
// Filter encoding
//
//   target table: count:u8, per target either
//     POINTER id[26]
//   or
//     type name_len subspace_count instance_len name (len subspace)* instance
//     appspace_index:u8 (1-based, 0 = none) [has_key:u8 key[512]]
//   clauses: and_count:u8, per clause or_count:u8 then or_count signed
//     1-based target indices (negative = negated)
// ---------------------------------------------------------------------------

// EncodeFilter encodes f in conjunctive normal form. When extended is
// set, every endpoint target carries a key slot filled from keys.
func EncodeFilter(f *Filter, keys map[*Endpoint][]byte, extended bool) ([]byte, error) {
	clauses := f.Clauses()
	if len(clauses) > MaxFilterClauses {
		return nil, dxerr.Compiler("Filter has too many clauses (max %d)", MaxFilterClauses)
	}

	var targets []any
	index := make(map[any]int)
	register := func(t any) int {
		if n, ok := index[t]; ok {
			return n
		}
		index[t] = len(targets)
		targets = append(targets, t)
		return len(targets) - 1
	}

	clauseBuf := []byte{byte(len(clauses))}
	for _, cl := range clauses {
		if len(cl) > MaxFilterLiterals {
			return nil, dxerr.Compiler("Filter clause has too many literals (max %d)", MaxFilterLiterals)
		}
		clauseBuf = append(clauseBuf, byte(len(cl)))
		for _, l := range cl {
			if !isTarget(l.Atom) {
				return nil, dxerr.Compiler("Invalid filter target: %v", l.Atom)
			}
			if e, ok := l.Atom.(*Endpoint); ok && e.Appspace != nil {
				register(e.Appspace)
			}
			n := register(l.Atom) + 1
			if n > MaxFilterTargets {
				return nil, dxerr.Compiler("Filter has too many targets (max %d)", MaxFilterTargets)
			}
			if l.Negated {
				n = -n
			}
			clauseBuf = append(clauseBuf, byte(int8(n)))
		}
	}
	if len(targets) > MaxFilterTargets {
		return nil, dxerr.Compiler("Filter has too many targets (max %d)", MaxFilterTargets)
	}

	buf := []byte{byte(len(targets))}
	for _, t := range targets {
		switch t := t.(type) {
		case *value.Pointer:
			if len(t.ID) > dxb.MaxPointerIDSize {
				return nil, dxerr.Compiler("Pointer ID size must not exceed %d bytes", dxb.MaxPointerIDSize)
			}
			buf = append(buf, byte(dxb.OpPointer))
			var id [dxb.MaxPointerIDSize]byte
			copy(id[:], t.ID)
			buf = append(buf, id[:]...)
		case *Endpoint:
			var err error
			if buf, err = appendFilterTarget(buf, t); err != nil {
				return nil, err
			}
			app := 0
			if t.Appspace != nil {
				app = index[t.Appspace] + 1
			}
			buf = append(buf, byte(app))
			if extended {
				key, ok := keys[t]
				if !ok {
					buf = append(buf, 0)
					continue
				}
				if len(key) != dxb.EncryptedKeySize {
					return nil, dxerr.Compiler("Encrypted key for %s must be %d bytes", t, dxb.EncryptedKeySize)
				}
				buf = append(buf, 1)
				buf = append(buf, key...)
			}
		}
	}
	return append(buf, clauseBuf...), nil
}

func appendFilterTarget(dst []byte, e *Endpoint) ([]byte, error) {
	name := e.NameBytes()
	if len(name) > 255 || len(e.Instance) > 255 || len(e.Subspaces) > 255 {
		return nil, dxerr.Compiler("Filter target too long: %s", e)
	}
	dst = append(dst, byte(e.Type), byte(len(name)), byte(len(e.Subspaces)), byte(len(e.Instance)))
	dst = append(dst, name...)
	for _, s := range e.Subspaces {
		dst = append(dst, byte(len(s)))
		dst = append(dst, s...)
	}
	return append(dst, e.Instance...), nil
}

// DecodeFilter decodes a filter written by EncodeFilter starting at b[i].
// It returns the filter, the attached keys (extended form only) and the
// index of the first byte after the filter.
func DecodeFilter(b []byte, i int, extended bool) (*Filter, map[*Endpoint][]byte, int, error) {
	r := &reader{b: b, i: i, err: "Invalid filter"}
	count := int(r.byte())
	targets := make([]any, 0, count)
	var keys map[*Endpoint][]byte
	for n := 0; n < count && !r.bad; n++ {
		typ := dxb.Opcode(r.byte())
		if typ == dxb.OpPointer {
			id := bytes.TrimRight(r.bytes(dxb.MaxPointerIDSize), "\x00")
			targets = append(targets, &value.Pointer{ID: append([]byte(nil), id...)})
			continue
		}
		nameLen := int(r.byte())
		subCount := int(r.byte())
		instLen := int(r.byte())
		name := r.bytes(nameLen)
		var subspaces []string
		for s := 0; s < subCount; s++ {
			subspaces = append(subspaces, string(r.bytes(int(r.byte()))))
		}
		instance := string(r.bytes(instLen))
		appIdx := int(r.byte())
		if r.bad {
			break
		}
		var app *Endpoint
		if appIdx > 0 {
			if appIdx > len(targets) {
				return nil, nil, i, r.fail()
			}
			a, ok := targets[appIdx-1].(*Endpoint)
			if !ok {
				return nil, nil, i, r.fail()
			}
			app = a
		}
		e, err := fromParts(typ, name, subspaces, instance, app)
		if err != nil {
			return nil, nil, i, r.fail()
		}
		targets = append(targets, e)
		if extended && r.byte() == 1 {
			if keys == nil {
				keys = make(map[*Endpoint][]byte)
			}
			keys[e] = append([]byte(nil), r.bytes(dxb.EncryptedKeySize)...)
		}
	}

	and := logic.And()
	clauses := int(r.byte())
	for c := 0; c < clauses && !r.bad; c++ {
		or := logic.Or()
		lits := int(r.byte())
		for l := 0; l < lits && !r.bad; l++ {
			n := int(int8(r.byte()))
			idx := n
			if idx < 0 {
				idx = -idx
			}
			if idx == 0 || idx > len(targets) {
				return nil, nil, i, r.fail()
			}
			if n < 0 {
				or.Add(logic.Not(targets[idx-1]))
			} else {
				or.Add(targets[idx-1])
			}
		}
		and.Add(or)
	}
	if r.bad {
		return nil, nil, i, r.fail()
	}
	return &Filter{expr: and}, keys, r.i, nil
}

// reader is a bounds-checked byte cursor. After an out-of-range read,
// bad is set and further reads return zero values.
type reader struct {
	b   []byte
	i   int
	bad bool
	err string
}

func (r *reader) byte() byte {
	if r.bad || r.i >= len(r.b) {
		r.bad = true
		return 0
	}
	c := r.b[r.i]
	r.i++
	return c
}

func (r *reader) bytes(n int) []byte {
	if r.bad || n < 0 || r.i+n > len(r.b) {
		r.bad = true
		return nil
	}
	out := r.b[r.i : r.i+n]
	r.i += n
	return out
}

func (r *reader) fail() error {
	return dxerr.Runtime("%s", r.err)
}

// ---------------------------------------------------------------------------
// Endpoint encoding (inline value form)
//
//   type:u8 (+1 for wildcards) name_len:u8 subspace_count:u8 instance_len:u8
//   name, (len:u8 subspace)*, instance, [appspace]
//
// instance_len 0 means any instance ("*"), 255 means no instance. A
// subspace of length 0 is the wildcard subspace.
// ---------------------------------------------------------------------------

// AppendValueTarget appends the inline value encoding of e to dst.
func AppendValueTarget(dst []byte, e *Endpoint) ([]byte, error) {
	name := e.NameBytes()
	if len(name) > 255 || len(e.Subspaces) > 255 || len(e.Instance) >= 255 {
		return nil, dxerr.Compiler("Endpoint too long: %s", e)
	}
	typ := e.Type
	if e.HasWildcard() {
		typ++
	}
	var instLen byte
	switch e.Instance {
	case "":
		instLen = 255
	case "*":
		instLen = 0
	default:
		instLen = byte(len(e.Instance))
	}
	dst = append(dst, byte(typ), byte(len(name)), byte(len(e.Subspaces)), instLen)
	dst = append(dst, name...)
	for _, s := range e.Subspaces {
		if s == "*" {
			dst = append(dst, 0)
			continue
		}
		if len(s) == 0 || len(s) > 255 {
			return nil, dxerr.Compiler("Invalid subspace length: %d", len(s))
		}
		dst = append(dst, byte(len(s)))
		dst = append(dst, s...)
	}
	if e.Instance != "*" {
		dst = append(dst, e.Instance...)
	}
	if e.Appspace != nil {
		return AppendValueTarget(dst, e.Appspace)
	}
	return dst, nil
}

// DecodeValueTarget decodes an inline endpoint starting at b[i], where
// b[i] is the type byte. An endpoint immediately following is read as
// its appspace.
func DecodeValueTarget(b []byte, i int) (*Endpoint, int, error) {
	r := &reader{b: b, i: i, err: "Invalid endpoint"}
	typ := dxb.Opcode(r.byte())
	if !typ.IsEndpoint() {
		return nil, i, r.fail()
	}
	nameLen := int(r.byte())
	subCount := int(r.byte())
	instLen := int(r.byte())
	name := r.bytes(nameLen)
	var subspaces []string
	for n := 0; n < subCount; n++ {
		l := int(r.byte())
		if l == 0 {
			subspaces = append(subspaces, "*")
			continue
		}
		subspaces = append(subspaces, string(r.bytes(l)))
	}
	var instance string
	switch instLen {
	case 0:
		instance = "*"
	case 255:
	default:
		instance = string(r.bytes(instLen))
	}
	if r.bad {
		return nil, i, r.fail()
	}
	var app *Endpoint
	if r.i < len(b) && dxb.Opcode(b[r.i]).IsEndpoint() {
		var err error
		if app, r.i, err = DecodeValueTarget(b, r.i); err != nil {
			return nil, i, err
		}
	}
	e, err := fromParts(typ, name, subspaces, instance, app)
	if err != nil {
		return nil, i, r.fail()
	}
	return e, r.i, nil
}
