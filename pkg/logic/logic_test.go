package logic

import (
	"errors"
	"testing"

	"github.com/chazu/datex/pkg/dxerr"
)

type atom string

var eval = Evaluator{
	IsAtom: func(x any) bool { _, ok := x.(atom); return ok },
	Match:  func(v, a any) bool { return v == a },
}

func TestNotUnwrapsDoubleNegation(t *testing.T) {
	a := atom("a")
	if got := Not(Not(a)); got != a {
		t.Errorf("Not(Not(a)) = %v, want a", got)
	}
}

func TestConnectivesIgnoreNilAndDuplicates(t *testing.T) {
	a, b := atom("a"), atom("b")
	c := And(a, nil, b, a)
	if c.Len() != 2 {
		t.Errorf("And(a, nil, b, a).Len() = %d, want 2", c.Len())
	}
	if got := c.String(); got != "(a & b)" {
		t.Errorf("String = %q, want %q", got, "(a & b)")
	}
}

func TestMatches(t *testing.T) {
	a, b, c := atom("a"), atom("b"), atom("c")
	tests := []struct {
		name    string
		value   any
		against any
		want    bool
	}{
		{"atom equal", a, a, true},
		{"atom differs", a, b, false},
		{"against or", a, Or(b, a), true},
		{"against or miss", c, Or(a, b), false},
		{"against empty or", c, Or(), true},
		{"against and", a, And(a, Not(b)), true},
		{"against and miss", a, And(a, b), false},
		{"against not", a, Not(b), true},
		{"value or needs all", Or(a, b), Or(a, c), false},
		{"value or all match", Or(a, b), Or(a, b, c), true},
		{"value and needs any", And(a, c), b, false},
		{"value and any match", And(a, c), c, true},
		{"value not", Not(a), b, true},
		{"empty value or", Or(), a, true},
		{"empty value and", And(), a, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eval.Matches(tt.value, tt.against)
			if err != nil {
				t.Fatalf("Matches error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Matches(%v, %v) = %v, want %v", tt.value, tt.against, got, tt.want)
			}
		})
	}
}

func TestMatchesWrongAtomType(t *testing.T) {
	_, err := eval.Matches(42, atom("a"))
	var re *dxerr.RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RuntimeError", err)
	}
	_, err = eval.Matches(atom("a"), Or(42))
	if !errors.As(err, &re) {
		t.Fatalf("against err = %v, want RuntimeError", err)
	}
}

func TestCollapse(t *testing.T) {
	a, b, c := atom("a"), atom("b"), atom("c")

	list, err := eval.Collapse(Or(a, Or(b, c), a))
	if err != nil {
		t.Fatal(err)
	}
	if got := list.String(); got != "(a | b | c)" {
		t.Errorf("Collapse(or) = %q, want (a | b | c)", got)
	}

	list, err = eval.Collapse(And(a, a))
	if err != nil {
		t.Fatal(err)
	}
	if list.Len() != 1 {
		t.Errorf("Collapse(a & a).Len() = %d, want 1", list.Len())
	}

	// b contradicts the already collected a
	list, err = eval.Collapse(And(a, b))
	if err != nil {
		t.Fatal(err)
	}
	if list.Len() != 0 {
		t.Errorf("Collapse(a & b) = %v, want empty", list)
	}

	list, err = eval.Collapse(Not(a))
	if err != nil {
		t.Fatal(err)
	}
	if list.Len() != 0 {
		t.Errorf("Collapse(~a) = %v, want empty", list)
	}

	if _, err := eval.Collapse(Or(a, 3)); err == nil {
		t.Error("Collapse with wrong atom type: expected error")
	}
}
