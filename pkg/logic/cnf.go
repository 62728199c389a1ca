package logic

// Literal is an atom, possibly negated.
type Literal struct {
	Atom    any
	Negated bool
}

// Expr returns the literal as a clause value: the atom or its negation.
func (l Literal) Expr() any {
	if l.Negated {
		return &Negation{value: l.Atom}
	}
	return l.Atom
}

func (l Literal) equal(o Literal) bool {
	return l.Negated == o.Negated && same(l.Atom, o.Atom)
}

// Clause is a disjunction of literals.
type Clause []Literal

// Clauses returns the conjunctive normal form of expr as a list of
// clauses. Duplicate literals, tautological clauses (x | ~x) and clauses
// subsumed by a smaller clause are removed. Empty connectives are
// vacuously true and contribute no clauses.
func Clauses(expr any) []Clause {
	return simplify(clausesOf(expr, false))
}

// Normalize converts expr to conjunctive normal form: a conjunction of
// disjunctions of literals. Normalize is idempotent.
func Normalize(expr any) *Conjunction {
	out := &Conjunction{}
	for _, cl := range Clauses(expr) {
		d := &Disjunction{parts: make([]any, 0, len(cl))}
		for _, l := range cl {
			d.parts = append(d.parts, l.Expr())
		}
		out.parts = append(out.parts, d)
	}
	return out
}

func clausesOf(x any, neg bool) []Clause {
	switch v := x.(type) {
	case *Negation:
		return clausesOf(v.value, !neg)
	case *Conjunction:
		if neg {
			return disjoin(v.parts, true)
		}
		return conjoin(v.parts, false)
	case *Disjunction:
		if neg {
			return conjoin(v.parts, true)
		}
		return disjoin(v.parts, false)
	}
	return []Clause{{{Atom: x, Negated: neg}}}
}

func conjoin(parts []any, neg bool) []Clause {
	var out []Clause
	for _, p := range parts {
		out = append(out, clausesOf(p, neg)...)
	}
	return out
}

// disjoin distributes OR over the clause lists of the parts.
func disjoin(parts []any, neg bool) []Clause {
	if len(parts) == 0 {
		return nil
	}
	acc := []Clause{{}}
	for _, p := range parts {
		cp := clausesOf(p, neg)
		if len(cp) == 0 {
			return nil
		}
		next := make([]Clause, 0, len(acc)*len(cp))
		for _, a := range acc {
			for _, c := range cp {
				next = append(next, merge(a, c))
			}
		}
		acc = next
	}
	return acc
}

func merge(a, b Clause) Clause {
	out := make(Clause, 0, len(a)+len(b))
	out = append(out, a...)
	for _, l := range b {
		if !out.contains(l) {
			out = append(out, l)
		}
	}
	return out
}

func (c Clause) contains(l Literal) bool {
	for _, x := range c {
		if x.equal(l) {
			return true
		}
	}
	return false
}

func (c Clause) tautology() bool {
	for _, l := range c {
		if c.contains(Literal{Atom: l.Atom, Negated: !l.Negated}) {
			return true
		}
	}
	return false
}

// subsetOf reports whether every literal of c occurs in o.
func (c Clause) subsetOf(o Clause) bool {
	for _, l := range c {
		if !o.contains(l) {
			return false
		}
	}
	return true
}

func simplify(clauses []Clause) []Clause {
	kept := make([]Clause, 0, len(clauses))
	for _, c := range clauses {
		c = merge(nil, c)
		if !c.tautology() {
			kept = append(kept, c)
		}
	}
	out := kept[:0:0]
	for i, c := range kept {
		subsumed := false
		for j, o := range kept {
			if i == j || !o.subsetOf(c) {
				continue
			}
			// equal clauses keep the first occurrence
			if len(o) < len(c) || j < i {
				subsumed = true
				break
			}
		}
		if !subsumed {
			out = append(out, c)
		}
	}
	return out
}
