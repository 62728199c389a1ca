package compiler

import (
	"github.com/dlclark/regexp2"
)

// ---------------------------------------------------------------------------
// Matcher: ordered token patterns
// ---------------------------------------------------------------------------

// Character classes shared by several patterns.
const (
	nameChars  = `A-Za-z0-9À-ž_`
	aliasChars = `A-Za-z0-9À-ž_-`
	assignment = `(\s*[-+/*$&|]?=(?![=>/]))?`
	subspaces  = `((\.([` + aliasChars + `]{1,32}|\*))*)(/(\*|[` + aliasChars + `]{1,8}))?`
	// body of a template string segment up to the next '(' or the closing quote
	templateBody = `(?:(?:[^\\']|)\\(?:\\\\)*'|(?:\\)*[^'\\])*?(?:[^'\\(](\\\\)*|(\\\\)*)`
)

// patterns maps every token type to its anchored pattern.
var patterns = map[TokenType]string{
	TokenURL:    `^[a-zA-Z0-9_]+://[-a-zA-Z0-9@:%._+~#=]{1,256}\.[a-zA-Z0-9()]{1,6}\b([-a-zA-Z0-9()@:%_+.~#?&/=]*)`,
	TokenInsert: `^\?(\d*)`,
	TokenKey:    `^[` + nameChars + `]+?\s*:(?!:)`,

	TokenEnd:       `^end\b`,
	TokenRequest:   `^request\b`,
	TokenCount:     `^count\b`,
	TokenAbout:     `^about\b`,
	TokenReturn:    `^return\b`,
	TokenIteration: `^iteration\b`,
	TokenIterator:  `^iterator\b`,
	TokenSkip:      `^skip\b`,
	TokenIterate:   `^iterate\b`,
	TokenWhile:     `^while\b`,
	TokenElseIf:    `^(else\b)?\s*if\b`,
	TokenElse:      `^else\b`,
	TokenFun:       `^fun\b`,

	TokenNewline:       `^\n`,
	TokenComment:       `^(# .*|###(.|\n)*?###)`,
	TokenVoid:          `^void\b`,
	TokenRemoteCall:    `^(?::: *)\s*(\()?`,
	TokenTransform:     `^transform\b\s*(\()?`,
	TokenQuasiVoid:     `^\(\s*\)`,
	TokenSubscopeStart: `^\(`,

	TokenSync:       `^<==`,
	TokenStopSync:   `^</=`,
	TokenStream:     `^<<`,
	TokenStopStream: `^</`,
	TokenTypeRef:    `^<(?:(\w+?):)?([A-Za-z0-9À-ž_+-]+?)(/[A-Za-z0-9À-ž_+-]*)*?(>|\()`,

	TokenEqual:         `^===`,
	TokenNotEqual:      `^~==`,
	TokenEqualValue:    `^==`,
	TokenNotEqualValue: `^~=`,
	TokenGreaterEqual:  `^>=`,
	TokenLessEqual:     `^<=`,
	TokenGreater:       `^>`,
	TokenLess:          `^<`,

	TokenThrowError:    `^!`,
	TokenSpread:        `^\.\.\.`,
	TokenRange:         `^\.\.`,
	TokenPathSeparator: `^\.`,
	TokenPathRef:       `^->`,

	TokenJump:  `^(jmp|jtr|jfa) +([A-Za-z_]\w*)?`,
	TokenLabel: `^lbl *([A-Za-z_]\w*)?`,
	TokenUse:   `^use\b`,

	TokenBoolean:     `^(true|false)\b`,
	TokenNull:        `^null\b`,
	TokenEmptyArray:  `^\[\s*\]`,
	TokenEmptyObject: `^\{\s*\}`,
	TokenArrayStart:  `^\[`,
	TokenArrayEnd:    `^\]`,

	TokenTemplateStart:  `^'` + templateBody + `\(`,
	TokenTemplateMiddle: `^\)` + templateBody + `\(`,
	TokenTemplateEnd:    `^\)` + templateBody + `'`,

	TokenObjectStart:   `^\{`,
	TokenObjectEnd:     `^\}`,
	TokenComma:         `^,`,
	TokenBuffer:        "^`([A-Fa-f0-9_]*)`",
	TokenCloseAndStore: `^(;\s*)+`,

	TokenInfinity: `^(-|\+)?infinity\b`,
	TokenNaN:      `^nan\b`,

	TokenPersonAlias:       `^@([` + aliasChars + `]{1,32})` + subspaces,
	TokenBot:               `^\*\+?[A-Za-zÀ-ž_][` + aliasChars + `]{0,17}(/(\*|[` + aliasChars + `]{1,8}))?`,
	TokenInstitutionAlias:  `^@\+([` + aliasChars + `]{1,32})` + subspaces,
	TokenEndpoint:          `^@@([A-Fa-f0-9_-]{2,26})` + subspaces,
	TokenBroadcastEndpoint: `^@(\*)` + subspaces,

	TokenStringOrKey: `^("(?:(?:.|\n)*?[^\\])??(?:(?:\\\\)+)?"|'(?:(?:.|\n)*?[^\\])??(?:(?:\\\\)+)?')( *:(?!:))?`,
	TokenSubscopeEnd: `^\)`,

	TokenFreeze:            `^freeze\b`,
	TokenSeal:              `^seal\b`,
	TokenHas:               `^has\b`,
	TokenKeys:              `^keys\b`,
	TokenDelete:            `^delete\b`,
	TokenSubscribe:         `^subscribe\b`,
	TokenUnsubscribe:       `^unsubscribe\b`,
	TokenValue:             `^value\b`,
	TokenGetType:           `^type\b`,
	TokenOrigin:            `^origin\b`,
	TokenSubscribers:       `^subscribers\b`,
	TokenTemplate:          `^template\b`,
	TokenExtends:           `^extends\b`,
	TokenImplements:        `^implements\b`,
	TokenMatches:           `^matches\b`,
	TokenDebug:             `^debug\b`,
	TokenConstructorMethod: `^(constructor|destructor|replicator|creator)\b`,
	TokenObserve:           `^observe\b`,
	TokenFunction:          `^function\b`,
	TokenDo:                `^do\b\s*(\()?`,
	TokenAssert:            `^assert\b\s*(\()?`,
	TokenHold:              `^hold\b\s*(\()?`,
	TokenAwait:             `^await\b`,

	TokenPointer:        `^\$((?:[A-Fa-f0-9]{2}|[xX]([A-Fa-f0-9])){1,26})` + assignment,
	TokenInternalVar:    `^()(#)([` + nameChars + `]+)` + assignment,
	TokenVariable:       `^(\\)?()([A-Za-zÀ-ž_][` + nameChars + `]*)` + assignment,
	TokenLabeledPointer: `^(\\)?(\$)([` + nameChars + `]{1,25})` + assignment,
	TokenCreatePointer:  `^\$\$`,

	TokenUnit:  `^((-|\+)?((\d_?)*\.)?(\d_?)+)u`,
	TokenFloat: `^((-|\+)?((\d_?)*\.)?(\d_?)*((E|e)(-|\+)?(\d_?)+)|(-|\+)?(\d_?)+\.(\d_?)+)`,
	TokenInt:   `^(-|\+)?(\d_?)+\b(?!\.\d)`,
	TokenHex:   `^0x[0-9a-fA-F]+`,

	TokenAssignSet:          `^=`,
	TokenAssignAdd:          `^\+=`,
	TokenAssignSub:          `^-=`,
	TokenAssignMul:          `^\*=`,
	TokenAssignDiv:          `^/=`,
	TokenAssignAnd:          `^&=`,
	TokenAssignOr:           `^\|=`,
	TokenAssignPointerValue: `^\$=`,

	TokenAdd:      `^\+`,
	TokenSubtract: `^-`,
	TokenMultiply: `^\*`,
	TokenDivide:   `^/`,
	TokenOr:       `^\|`,
	TokenAnd:      `^&`,
	TokenNot:      `^~`,

	TokenWildcard: `^\*(?!\+?[A-Za-zÀ-ž_])`,
	TokenProperty: `^[A-Za-zÀ-ž_][` + nameChars + `]*`,
}

// Auxiliary patterns used while parsing but not tokens on their own.
var (
	leadingSpace = regexp2.MustCompile(`^[^\S\n]+`, regexp2.ECMAScript)
	hexVariable  = regexp2.MustCompile(`^[A-Fa-f0-9_]*$`, regexp2.ECMAScript)
)

type rule struct {
	typ TokenType
	re  *regexp2.Regexp
}

// Matcher finds the next token at the start of DATEX script text. Patterns
// are tried in TokenType order; the first one that matches wins.
type Matcher struct {
	rules []rule
	byTyp map[TokenType]*regexp2.Regexp
}

// NewMatcher compiles the token table.
func NewMatcher() *Matcher {
	m := &Matcher{byTyp: make(map[TokenType]*regexp2.Regexp, len(patterns))}
	for t := TokenURL; t <= TokenProperty; t++ {
		src, ok := patterns[t]
		if !ok {
			continue
		}
		re := regexp2.MustCompile(src, regexp2.ECMAScript)
		m.byTyp[t] = re
		if t < TokenWildcard {
			m.rules = append(m.rules, rule{typ: t, re: re})
		}
	}
	return m
}

var defaultMatcher = NewMatcher()

// Next returns the first token whose pattern matches a prefix of src.
// allow, if not nil, can veto token types that are not valid in the
// current state. An empty src yields TokenEOF.
func (m *Matcher) Next(src []rune, allow func(TokenType) bool) (Token, bool) {
	if len(src) == 0 {
		return Token{Type: TokenEOF}, true
	}
	for _, r := range m.rules {
		if allow != nil && !allow(r.typ) {
			continue
		}
		if tok, ok := match(r.typ, r.re, src); ok {
			return tok, true
		}
	}
	return Token{}, false
}

// Match tries a single token type at the start of src.
func (m *Matcher) Match(t TokenType, src []rune) (Token, bool) {
	re, ok := m.byTyp[t]
	if !ok {
		return Token{}, false
	}
	return match(t, re, src)
}

func match(t TokenType, re *regexp2.Regexp, src []rune) (Token, bool) {
	res, err := re.FindRunesMatch(src)
	if err != nil || res == nil || res.Index != 0 {
		return Token{}, false
	}
	groups := res.Groups()
	tok := Token{
		Type:    t,
		Text:    res.String(),
		Len:     res.Length,
		groups:  make([]string, len(groups)),
		matched: make([]bool, len(groups)),
	}
	for i, g := range groups {
		if len(g.Captures) > 0 {
			tok.groups[i] = g.String()
			tok.matched[i] = true
		}
	}
	return tok, true
}

// skipSpace returns the number of leading spaces and tabs in src.
func skipSpace(src []rune) int {
	res, err := leadingSpace.FindRunesMatch(src)
	if err != nil || res == nil {
		return 0
	}
	return res.Length
}

func isHexName(name string) bool {
	ok, err := hexVariable.MatchString(name)
	return err == nil && ok
}
