package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types for DATEX script
// ---------------------------------------------------------------------------

// TokenType represents the type of a token. The constants are declared in
// dispatch order: when several patterns match a prefix of the input, the
// one declared first wins.
type TokenType int

const (
	TokenEOF TokenType = iota

	TokenURL
	TokenInsert // ?, ?2
	TokenKey    // name:

	// Statement keywords
	TokenEnd
	TokenRequest
	TokenCount
	TokenAbout
	TokenReturn
	TokenIteration
	TokenIterator
	TokenSkip
	TokenIterate
	TokenWhile
	TokenElseIf
	TokenElse
	TokenFun

	TokenNewline
	TokenComment
	TokenVoid
	TokenRemoteCall // ::
	TokenTransform
	TokenQuasiVoid // ( )
	TokenSubscopeStart

	TokenSync       // <==
	TokenStopSync   // </=
	TokenStream     // <<
	TokenStopStream // </
	TokenTypeRef    // <ns:Name/variation>

	// Comparison
	TokenEqual         // ===
	TokenNotEqual      // ~==
	TokenEqualValue    // ==
	TokenNotEqualValue // ~=
	TokenGreaterEqual
	TokenLessEqual
	TokenGreater
	TokenLess

	TokenThrowError // !
	TokenSpread     // ...
	TokenRange      // ..
	TokenPathSeparator
	TokenPathRef // ->

	TokenJump  // jmp/jtr/jfa label
	TokenLabel // lbl label
	TokenUse

	TokenBoolean
	TokenNull
	TokenEmptyArray
	TokenEmptyObject
	TokenArrayStart
	TokenArrayEnd

	// Template strings: 'text(  )text(  )text'
	TokenTemplateStart
	TokenTemplateMiddle
	TokenTemplateEnd

	TokenObjectStart
	TokenObjectEnd
	TokenComma
	TokenBuffer
	TokenCloseAndStore // ;

	TokenInfinity
	TokenNaN

	// Endpoints
	TokenPersonAlias
	TokenBot
	TokenInstitutionAlias
	TokenEndpoint
	TokenBroadcastEndpoint

	TokenStringOrKey
	TokenSubscopeEnd

	// Value keywords
	TokenFreeze
	TokenSeal
	TokenHas
	TokenKeys
	TokenDelete
	TokenSubscribe
	TokenUnsubscribe
	TokenValue
	TokenGetType
	TokenOrigin
	TokenSubscribers
	TokenTemplate
	TokenExtends
	TokenImplements
	TokenMatches
	TokenDebug
	TokenConstructorMethod
	TokenObserve
	TokenFunction
	TokenDo
	TokenAssert
	TokenHold
	TokenAwait

	TokenPointer
	TokenInternalVar    // #name
	TokenVariable       // name
	TokenLabeledPointer // $label
	TokenCreatePointer  // $$

	// Numbers
	TokenUnit
	TokenFloat
	TokenInt
	TokenHex

	// Assignment on paths
	TokenAssignSet
	TokenAssignAdd
	TokenAssignSub
	TokenAssignMul
	TokenAssignDiv
	TokenAssignAnd
	TokenAssignOr
	TokenAssignPointerValue

	// Operators
	TokenAdd
	TokenSubtract
	TokenMultiply
	TokenDivide
	TokenOr
	TokenAnd
	TokenNot

	// Sub-patterns matched explicitly, never dispatched
	TokenWildcard
	TokenProperty
)

var tokenNames = map[TokenType]string{
	TokenEOF:                "EOF",
	TokenURL:                "URL",
	TokenInsert:             "INSERT",
	TokenKey:                "KEY",
	TokenEnd:                "END",
	TokenRequest:            "REQUEST",
	TokenCount:              "COUNT",
	TokenAbout:              "ABOUT",
	TokenReturn:             "RETURN",
	TokenIteration:          "ITERATION",
	TokenIterator:           "ITERATOR",
	TokenSkip:               "SKIP",
	TokenIterate:            "ITERATE",
	TokenWhile:              "WHILE",
	TokenElseIf:             "ELSE_IF",
	TokenElse:               "ELSE",
	TokenFun:                "FUN",
	TokenNewline:            "NEWLINE",
	TokenComment:            "COMMENT",
	TokenVoid:               "VOID",
	TokenRemoteCall:         "REMOTE_CALL",
	TokenTransform:          "TRANSFORM",
	TokenQuasiVoid:          "QUASI_VOID",
	TokenSubscopeStart:      "SUBSCOPE_START",
	TokenSync:               "SYNC",
	TokenStopSync:           "STOP_SYNC",
	TokenStream:             "STREAM",
	TokenStopStream:         "STOP_STREAM",
	TokenTypeRef:            "TYPE",
	TokenEqual:              "EQUAL",
	TokenNotEqual:           "NOT_EQUAL",
	TokenEqualValue:         "EQUAL_VALUE",
	TokenNotEqualValue:      "NOT_EQUAL_VALUE",
	TokenGreaterEqual:       "GREATER_EQUAL",
	TokenLessEqual:          "LESS_EQUAL",
	TokenGreater:            "GREATER",
	TokenLess:               "LESS",
	TokenThrowError:         "THROW_ERROR",
	TokenSpread:             "SPREAD",
	TokenRange:              "RANGE",
	TokenPathSeparator:      "PATH_SEPARATOR",
	TokenPathRef:            "PATH_REF",
	TokenJump:               "JUMP",
	TokenLabel:              "LABEL",
	TokenUse:                "USE",
	TokenBoolean:            "BOOLEAN",
	TokenNull:               "NULL",
	TokenEmptyArray:         "EMPTY_ARRAY",
	TokenEmptyObject:        "EMPTY_OBJECT",
	TokenArrayStart:         "ARRAY_START",
	TokenArrayEnd:           "ARRAY_END",
	TokenTemplateStart:      "TSTRING_START",
	TokenTemplateMiddle:     "TSTRING_B_CLOSE",
	TokenTemplateEnd:        "TSTRING_END",
	TokenObjectStart:        "OBJECT_START",
	TokenObjectEnd:          "OBJECT_END",
	TokenComma:              "COMMA",
	TokenBuffer:             "BUFFER",
	TokenCloseAndStore:      "CLOSE_AND_STORE",
	TokenInfinity:           "INFINITY",
	TokenNaN:                "NAN",
	TokenPersonAlias:        "PERSON_ALIAS",
	TokenBot:                "BOT",
	TokenInstitutionAlias:   "INSTITUTION_ALIAS",
	TokenEndpoint:           "ENDPOINT",
	TokenBroadcastEndpoint:  "BROADCAST_ENDPOINT",
	TokenStringOrKey:        "STRING_OR_ESCAPED_KEY",
	TokenSubscopeEnd:        "SUBSCOPE_END",
	TokenFreeze:             "FREEZE",
	TokenSeal:               "SEAL",
	TokenHas:                "HAS",
	TokenKeys:               "KEYS",
	TokenDelete:             "DELETE",
	TokenSubscribe:          "SUBSCRIBE",
	TokenUnsubscribe:        "UNSUBSCRIBE",
	TokenValue:              "VALUE",
	TokenGetType:            "GET_TYPE",
	TokenOrigin:             "ORIGIN",
	TokenSubscribers:        "SUBSCRIBERS",
	TokenTemplate:           "TEMPLATE",
	TokenExtends:            "EXTENDS",
	TokenImplements:         "IMPLEMENTS",
	TokenMatches:            "MATCHES",
	TokenDebug:              "DEBUG",
	TokenConstructorMethod:  "CONSTRUCTOR_METHOD",
	TokenObserve:            "OBSERVE",
	TokenFunction:           "FUNCTION",
	TokenDo:                 "DO",
	TokenAssert:             "ASSERT",
	TokenHold:               "HOLD",
	TokenAwait:              "AWAIT",
	TokenPointer:            "POINTER",
	TokenInternalVar:        "INTERNAL_VAR",
	TokenVariable:           "VARIABLE",
	TokenLabeledPointer:     "LABELED_POINTER",
	TokenCreatePointer:      "CREATE_POINTER",
	TokenUnit:               "UNIT",
	TokenFloat:              "FLOAT",
	TokenInt:                "INT",
	TokenHex:                "HEX",
	TokenAssignSet:          "ASSIGN_SET",
	TokenAssignAdd:          "ASSIGN_ADD",
	TokenAssignSub:          "ASSIGN_SUB",
	TokenAssignMul:          "ASSIGN_MULTIPLY",
	TokenAssignDiv:          "ASSIGN_DIVIDE",
	TokenAssignAnd:          "ASSIGN_AND",
	TokenAssignOr:           "ASSIGN_OR",
	TokenAssignPointerValue: "ASSIGN_POINTER_VALUE",
	TokenAdd:                "ADD",
	TokenSubtract:           "SUBTRACT",
	TokenMultiply:           "MULTIPLY",
	TokenDivide:             "DIVIDE",
	TokenOr:                 "OR",
	TokenAnd:                "AND",
	TokenNot:                "NOT",
	TokenWildcard:           "WILDCARD",
	TokenProperty:           "PROPERTY",
}

// String returns the name of a token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is one lexical unit matched at the start of the remaining text.
type Token struct {
	Type TokenType
	// Text is the full match.
	Text string
	// Len is the length of the match in runes.
	Len int

	groups  []string
	matched []bool
}

// Group returns the text of capture group i, or "" if it did not take part
// in the match.
func (t Token) Group(i int) string {
	if i < 0 || i >= len(t.groups) {
		return ""
	}
	return t.groups[i]
}

// Matched reports whether capture group i took part in the match.
func (t Token) Matched(i int) bool {
	return i >= 0 && i < len(t.matched) && t.matched[i]
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)", t.Type, t.Text)
}
