package compiler

import (
	"testing"
)

func TestMatcherNext(t *testing.T) {
	tests := []struct {
		src  string
		typ  TokenType
		text string
	}{
		{"?2", TokenInsert, "?2"},
		{"name: 1", TokenKey, "name:"},
		{"end", TokenEnd, "end"},
		{"else if (x)", TokenElseIf, "else if"},
		{"else (x)", TokenElse, "else"},
		{"x = 1", TokenVariable, "x ="},
		{"#it", TokenInternalVar, "#it"},
		{"<< s", TokenStream, "<<"},
		{"<== s", TokenSync, "<=="},
		{"<std:int>", TokenTypeRef, "<std:int>"},
		{"=== y", TokenEqual, "==="},
		{"...x", TokenSpread, "..."},
		{"..5", TokenRange, ".."},
		{"jmp end", TokenJump, "jmp end"},
		{"( )", TokenQuasiVoid, "( )"},
		{"[]", TokenEmptyArray, "[]"},
		{"'a(", TokenTemplateStart, "'a("},
		{"'abc';", TokenStringOrKey, "'abc'"},
		{"@alice.home", TokenPersonAlias, "@alice.home"},
		{"@+inst", TokenInstitutionAlias, "@+inst"},
		{"@@0a0b", TokenEndpoint, "@@0a0b"},
		{"@*", TokenBroadcastEndpoint, "@*"},
		{"$$", TokenCreatePointer, "$$"},
		{"$aabb", TokenPointer, "$aabb"},
		{"$label", TokenLabeledPointer, "$label"},
		{"-infinity", TokenInfinity, "-infinity"},
		{"1.5", TokenFloat, "1.5"},
		{"42;", TokenInt, "42"},
		{"0x1f", TokenHex, "0x1f"},
		{"5u", TokenUnit, "5u"},
		{"*+bot", TokenBot, "*+bot"},
		{"* 2", TokenMultiply, "*"},
		{"# note", TokenComment, "# note"},
		{";;", TokenCloseAndStore, ";;"},
	}
	for _, tt := range tests {
		tok, ok := defaultMatcher.Next([]rune(tt.src), nil)
		if !ok {
			t.Errorf("Next(%q) found no token", tt.src)
			continue
		}
		if tok.Type != tt.typ {
			t.Errorf("Next(%q).Type = %v, want %v", tt.src, tok.Type, tt.typ)
		}
		if tok.Text != tt.text {
			t.Errorf("Next(%q).Text = %q, want %q", tt.src, tok.Text, tt.text)
		}
	}
}

func TestMatcherGroups(t *testing.T) {
	tok, _ := defaultMatcher.Next([]rune("?12"), nil)
	if got := tok.Group(1); got != "12" {
		t.Errorf("insert index = %q, want %q", got, "12")
	}

	tok, _ = defaultMatcher.Next([]rune("if (x)"), nil)
	if tok.Type != TokenElseIf || tok.Matched(1) {
		t.Errorf("if: %v, else group matched = %v", tok, tok.Matched(1))
	}

	tok, _ = defaultMatcher.Next([]rune("jtr loop"), nil)
	if tok.Group(1) != "jtr" || tok.Group(2) != "loop" {
		t.Errorf("jump groups = %q %q", tok.Group(1), tok.Group(2))
	}

	tok, _ = defaultMatcher.Next([]rune(`"k": 1`), nil)
	if tok.Type != TokenStringOrKey || !tok.Matched(2) {
		t.Errorf("string key: %v, key group matched = %v", tok, tok.Matched(2))
	}

	tok, _ = defaultMatcher.Next([]rune("@bob.a.b"), nil)
	if tok.Group(1) != "bob" || tok.Group(2) != ".a.b" {
		t.Errorf("alias groups = %q %q", tok.Group(1), tok.Group(2))
	}

	if got := tok.Group(99); got != "" {
		t.Errorf("Group(99) = %q, want empty", got)
	}
}

func TestMatcherVeto(t *testing.T) {
	allow := func(t TokenType) bool { return t != TokenInt }
	if tok, ok := defaultMatcher.Next([]rune("1"), allow); ok {
		t.Errorf("Next with INT vetoed = %v, want no token", tok)
	}
	tok, ok := defaultMatcher.Next(nil, allow)
	if !ok || tok.Type != TokenEOF {
		t.Errorf("Next(empty) = %v, %v, want EOF", tok, ok)
	}
}

func TestMatcherMatch(t *testing.T) {
	if _, ok := defaultMatcher.Match(TokenWildcard, []rune("*.x")); !ok {
		t.Error("wildcard did not match '*.x'")
	}
	if _, ok := defaultMatcher.Match(TokenWildcard, []rune("*a")); ok {
		t.Error("wildcard matched '*a'")
	}
	if _, ok := defaultMatcher.Match(TokenEOF, []rune("x")); ok {
		t.Error("EOF has no pattern but matched")
	}
}

func TestSkipSpace(t *testing.T) {
	if got := skipSpace([]rune(" \t\nx")); got != 2 {
		t.Errorf("skipSpace = %d, want 2", got)
	}
	if got := skipSpace([]rune("x")); got != 0 {
		t.Errorf("skipSpace = %d, want 0", got)
	}
}

func TestIsHexName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a_f0", true},
		{"FF", true},
		{"ag", false},
	}
	for _, tt := range tests {
		if got := isHexName(tt.name); got != tt.want {
			t.Errorf("isHexName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTokenString(t *testing.T) {
	tok := Token{Type: TokenInt, Text: "42"}
	if got := tok.String(); got != `INT("42")` {
		t.Errorf("String() = %s", got)
	}
	if got := TokenType(-1).String(); got != "TokenType(-1)" {
		t.Errorf("String() = %s", got)
	}
}
