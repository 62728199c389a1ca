package logic

import "testing"

func TestNormalize(t *testing.T) {
	a, b, c, d := atom("a"), atom("b"), atom("c"), atom("d")
	tests := []struct {
		name string
		expr any
		want string
	}{
		{"atom", a, "((a))"},
		{"negated atom", Not(a), "((~a))"},
		{"and", And(a, b), "((a) & (b))"},
		{"or", Or(a, b), "((a | b))"},
		{"distribute", Or(a, And(b, c)), "((a | b) & (a | c))"},
		{"distribute both", Or(And(a, b), And(c, d)), "((a | c) & (a | d) & (b | c) & (b | d))"},
		{"de morgan and", Not(And(a, b)), "((~a | ~b))"},
		{"de morgan or", Not(Or(a, b)), "((~a) & (~b))"},
		{"double negation", Not(Not(Or(a, b))), "((a | b))"},
		{"tautology dropped", And(Or(a, Not(a)), b), "((b))"},
		{"duplicate clause", And(Or(a, b), Or(b, a)), "((a | b))"},
		{"absorption", And(a, Or(a, b)), "((a))"},
		{"empty and", And(), "()"},
		{"empty or is true", And(a, Or()), "((a))"},
		{"nested and", And(a, And(b, And(c))), "((a) & (b) & (c))"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.expr).String(); got != tt.want {
				t.Errorf("Normalize(%v) = %s, want %s", tt.expr, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	a, b, c, d := atom("a"), atom("b"), atom("c"), atom("d")
	exprs := []any{
		a,
		Not(a),
		And(a, Or(b, Not(c))),
		Or(And(a, b), Not(And(c, Or(d, a)))),
		Not(Or(And(a, Not(b)), And(Not(c), d))),
		Or(a, Or(b, And(c, Or(d, Not(a))))),
		And(Or(a, b), Or(a, b, c), Not(Not(d))),
	}
	for _, e := range exprs {
		once := Normalize(e)
		twice := Normalize(once)
		if once.String() != twice.String() {
			t.Errorf("Normalize not idempotent for %v: %s then %s", e, once, twice)
		}
	}
}

func TestNormalizePreservesTruth(t *testing.T) {
	atoms := []atom{"a", "b", "c"}
	a, b, c := atoms[0], atoms[1], atoms[2]
	exprs := []any{
		Or(And(a, b), Not(c)),
		Not(And(a, Or(b, c))),
		And(Or(a, Not(b)), Or(Not(a), c)),
	}
	for _, e := range exprs {
		n := Normalize(e)
		for mask := 0; mask < 8; mask++ {
			truth := func(x atom) bool {
				for i, at := range atoms {
					if at == x {
						return mask&(1<<i) != 0
					}
				}
				return false
			}
			if evalBool(e, truth) != evalBool(n, truth) {
				t.Errorf("Normalize(%v) = %v changes truth under mask %03b", e, n, mask)
			}
		}
	}
}

func evalBool(x any, truth func(atom) bool) bool {
	switch v := x.(type) {
	case *Conjunction:
		for _, p := range v.Parts() {
			if !evalBool(p, truth) {
				return false
			}
		}
		return true
	case *Disjunction:
		if v.Len() == 0 {
			return true
		}
		for _, p := range v.Parts() {
			if evalBool(p, truth) {
				return true
			}
		}
		return false
	case *Negation:
		return !evalBool(v.Value(), truth)
	}
	return truth(x.(atom))
}

func TestClauses(t *testing.T) {
	a, b := atom("a"), atom("b")
	cl := Clauses(And(a, Or(Not(b), a)))
	// (a) absorbs (~b | a)
	if len(cl) != 1 || len(cl[0]) != 1 || cl[0][0].Atom != a || cl[0][0].Negated {
		t.Errorf("Clauses = %v, want [[a]]", cl)
	}
}
