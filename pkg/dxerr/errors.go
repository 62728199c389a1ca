// Package dxerr defines the error kinds raised while compiling and framing
// DATEX scripts.
package dxerr

import "fmt"

// SyntaxError reports malformed script text. Line is 1-based.
type SyntaxError struct {
	Msg  string
	Line int
	Near string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("SyntaxError: %s (line %d)", e.Msg, e.Line)
	}
	return "SyntaxError: " + e.Msg
}

// CompilerError reports invalid use of the compiler by the caller.
type CompilerError struct {
	Msg string
}

func (e *CompilerError) Error() string { return "CompilerError: " + e.Msg }

// ValueError reports a value that cannot be encoded.
type ValueError struct {
	Msg string
}

func (e *ValueError) Error() string { return "ValueError: " + e.Msg }

// RuntimeError reports malformed binary input in decode helpers, or an
// atomic value of the wrong type passed to logical evaluation.
type RuntimeError struct {
	Msg string
}

func (e *RuntimeError) Error() string { return "RuntimeError: " + e.Msg }

// Syntax returns a *SyntaxError without line information.
func Syntax(format string, args ...any) error {
	return &SyntaxError{Msg: fmt.Sprintf(format, args...)}
}

// Compiler returns a *CompilerError.
func Compiler(format string, args ...any) error {
	return &CompilerError{Msg: fmt.Sprintf(format, args...)}
}

// Value returns a *ValueError.
func Value(format string, args ...any) error {
	return &ValueError{Msg: fmt.Sprintf(format, args...)}
}

// Runtime returns a *RuntimeError.
func Runtime(format string, args ...any) error {
	return &RuntimeError{Msg: fmt.Sprintf(format, args...)}
}
