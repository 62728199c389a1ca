package compiler

import (
	"github.com/chazu/datex/dist"
	"github.com/chazu/datex/pkg/dxb"
)

// Options control how a script is compiled and framed. The embedded
// Header carries routing and scope options; its EndOfScope field is
// derived from KeepScopeOpen and ignored otherwise.
type Options struct {
	dist.Header

	// KeepScopeOpen leaves the scope open for further blocks: the last
	// block is not marked end of scope and no trailing ';' is added.
	KeepScopeOpen bool

	// CollapsePointers encodes the current value of pointers instead of
	// a pointer reference, prefixed with '$$' unless NoCreatePointers.
	CollapsePointers bool
	NoCreatePointers bool
	// CollapseFirstInserted collapses only the first pointer inserted.
	CollapseFirstInserted bool

	// MaxBlockSize is the size at which bodies are split into several
	// blocks. dxb.MaxBlockSize if 0.
	MaxBlockSize int
}

func (o *Options) maxBlockSize() int {
	if o.MaxBlockSize <= 0 {
		return dxb.MaxBlockSize
	}
	return o.MaxBlockSize
}

func (o *Options) header() dist.Header {
	h := o.Header
	h.EndOfScope = !o.KeepScopeOpen
	return h
}
