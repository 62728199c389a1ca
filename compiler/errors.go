package compiler

import "github.com/chazu/datex/pkg/dxerr"

// Error kinds returned by the compiler. They are shared with the framing
// and address packages; use errors.As to tell them apart.
type (
	SyntaxError   = dxerr.SyntaxError
	CompilerError = dxerr.CompilerError
	ValueError    = dxerr.ValueError
	RuntimeError  = dxerr.RuntimeError
)
