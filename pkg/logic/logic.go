// Package logic implements AND/OR/NOT compositions over atomic values:
// evaluation against a requirement, collapsing to a flat list, and
// conversion to conjunctive normal form.
package logic

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/chazu/datex/pkg/dxerr"
)

// Conjunction is x & y & ... Parts are unique; nil parts are ignored.
type Conjunction struct {
	parts []any
}

// Disjunction is x | y | ... Parts are unique; nil parts are ignored.
type Disjunction struct {
	parts []any
}

// Negation is ~x.
type Negation struct {
	value any
}

// And creates a conjunction of the given parts.
func And(parts ...any) *Conjunction {
	c := &Conjunction{}
	for _, p := range parts {
		c.Add(p)
	}
	return c
}

// Or creates a disjunction of the given parts.
func Or(parts ...any) *Disjunction {
	d := &Disjunction{}
	for _, p := range parts {
		d.Add(p)
	}
	return d
}

// Not negates x. A double negation returns the inner value.
func Not(x any) any {
	if n, ok := x.(*Negation); ok {
		return n.value
	}
	return &Negation{value: x}
}

// Add appends a part unless it is nil or already present.
func (c *Conjunction) Add(x any) { c.parts = addUnique(c.parts, x) }

// Add appends a part unless it is nil or already present.
func (d *Disjunction) Add(x any) { d.parts = addUnique(d.parts, x) }

// Parts returns the parts in insertion order.
func (c *Conjunction) Parts() []any { return c.parts }

// Parts returns the parts in insertion order.
func (d *Disjunction) Parts() []any { return d.parts }

func (c *Conjunction) Len() int { return len(c.parts) }
func (d *Disjunction) Len() int { return len(d.parts) }

// Clear removes all parts.
func (d *Disjunction) Clear() { d.parts = d.parts[:0] }

// Value returns the negated value.
func (n *Negation) Value() any { return n.value }

func (c *Conjunction) String() string { return join(c.parts, " & ") }
func (d *Disjunction) String() string { return join(d.parts, " | ") }
func (n *Negation) String() string    { return "~" + fmt.Sprint(n.value) }

func join(parts []any, sep string) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = fmt.Sprint(p)
	}
	return "(" + strings.Join(strs, sep) + ")"
}

func addUnique(parts []any, x any) []any {
	if x == nil {
		return parts
	}
	for _, p := range parts {
		if same(p, x) {
			return parts
		}
	}
	return append(parts, x)
}

// same compares by identity for pointers and by value for other
// comparable atoms.
func same(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta == nil || ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Evaluator evaluates clauses over one kind of atom.
type Evaluator struct {
	// IsAtom reports whether x is an atom of the expected kind.
	IsAtom func(x any) bool
	// Match reports whether the atomic value satisfies the atomic requirement.
	Match func(value, against any) bool
}

// Matches reports whether value satisfies against.
//
// A disjunction value matches only if all its parts match; a conjunction
// value matches if any part does. Empty connectives match.
func (e Evaluator) Matches(value, against any) (bool, error) {
	switch v := value.(type) {
	case *Disjunction:
		for _, p := range v.parts {
			ok, err := e.Matches(p, against)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *Conjunction:
		if len(v.parts) == 0 {
			return true, nil
		}
		for _, p := range v.parts {
			ok, err := e.Matches(p, against)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case *Negation:
		ok, err := e.Matches(v.value, against)
		return !ok && err == nil, err
	}
	return e.matchesSingle(value, against)
}

func (e Evaluator) matchesSingle(value, against any) (bool, error) {
	if !e.IsAtom(value) {
		return false, dxerr.Runtime("Invalid match check: atomic value has wrong type")
	}
	switch a := against.(type) {
	case *Disjunction:
		if len(a.parts) == 0 {
			return true, nil
		}
		for _, t := range a.parts {
			ok, err := e.matchesSingle(value, t)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case *Conjunction:
		for _, t := range a.parts {
			ok, err := e.matchesSingle(value, t)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *Negation:
		ok, err := e.matchesSingle(value, a.value)
		return !ok && err == nil, err
	}
	if !e.IsAtom(against) {
		return false, dxerr.Runtime("Invalid match check: atomic value has wrong type")
	}
	return e.Match(value, against), nil
}

// Collapse flattens a clause into a plain disjunction of atoms.
// A conjunction whose part contradicts the atoms collected so far
// collapses to an empty list. Negations are not collapsible.
func (e Evaluator) Collapse(value any) (*Disjunction, error) {
	list := &Disjunction{}
	if _, err := e.addToCollapseList(value, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (e Evaluator) addToCollapseList(value any, list *Disjunction) (bool, error) {
	switch v := value.(type) {
	case *Disjunction:
		for _, p := range v.parts {
			ok, err := e.addToCollapseList(p, list)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *Conjunction:
		for _, p := range v.parts {
			ok, err := e.Matches(p, list)
			if err != nil {
				return false, err
			}
			if !ok {
				list.Clear()
				return false, nil
			}
			ok, err = e.addToCollapseList(p, list)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *Negation:
		return false, nil
	}
	if !e.IsAtom(value) {
		return false, dxerr.Runtime("logical collapse: atomic value has wrong type")
	}
	list.Add(value)
	return true, nil
}
