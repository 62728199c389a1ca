// Package compiler translates DATEX script text and native values into
// DXB, the binary instruction format executed by DATEX interpreters, and
// frames the result into routed blocks.
//
// Compilation is a single pass. A priority ordered token table (Matcher)
// feeds a state machine that writes directly into a Builder. Constructs
// whose shape is only known later, such as a parenthesized group that
// turns out to be a tuple or a value that turns out to be referenced
// twice, are fixed up by inserting bytes at earlier positions; every
// position the compiler remembers is a Handle that moves with the
// inserted bytes.
//
// Scripts can be precompiled into a Template with placeholders for
// injected values, and templates can be kept in a TemplateCache keyed by
// the xxh3 hash of their source.
package compiler
