package addr

import (
	"fmt"

	"github.com/chazu/datex/pkg/logic"
	"github.com/chazu/datex/pkg/value"
)

// Filter is a logical expression over endpoints and pointers, built with
// logic.And, logic.Or and logic.Not.
type Filter struct {
	expr any
}

// NewFilter creates a filter that requires all of the given parts.
// A single part is used as is.
func NewFilter(parts ...any) *Filter {
	if len(parts) == 1 {
		return &Filter{expr: parts[0]}
	}
	return &Filter{expr: logic.And(parts...)}
}

// Expr returns the filter expression.
func (f *Filter) Expr() any { return f.expr }

// Clauses returns the conjunctive normal form of the filter.
func (f *Filter) Clauses() []logic.Clause { return logic.Clauses(f.expr) }

// Normalize returns the filter in conjunctive normal form.
func (f *Filter) Normalize() *Filter { return &Filter{expr: logic.Normalize(f.expr)} }

// Endpoints returns the non-negated endpoints of the normal form, in
// order of first appearance.
func (f *Filter) Endpoints() []*Endpoint {
	var out []*Endpoint
	seen := make(map[*Endpoint]bool)
	for _, cl := range f.Clauses() {
		for _, l := range cl {
			if e, ok := l.Atom.(*Endpoint); ok && !l.Negated && !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out
}

// Matches reports whether endpoint e satisfies the filter.
func (f *Filter) Matches(e *Endpoint) (bool, error) {
	return Evaluator.Matches(e, f.expr)
}

// Collapse flattens the filter to a plain list of endpoints.
func (f *Filter) Collapse() ([]*Endpoint, error) {
	d, err := Evaluator.Collapse(f.expr)
	if err != nil {
		return nil, err
	}
	out := make([]*Endpoint, 0, d.Len())
	for _, p := range d.Parts() {
		out = append(out, p.(*Endpoint))
	}
	return out, nil
}

func (f *Filter) String() string { return fmt.Sprint(f.expr) }

// Evaluator evaluates logical expressions over endpoints.
var Evaluator = logic.Evaluator{
	IsAtom: func(x any) bool {
		_, ok := x.(*Endpoint)
		return ok
	},
	Match: func(v, against any) bool {
		return v.(*Endpoint).Matches(against.(*Endpoint))
	},
}

// isTarget reports whether x can appear in a filter target table.
func isTarget(x any) bool {
	switch x.(type) {
	case *Endpoint, *value.Pointer:
		return true
	}
	return false
}
