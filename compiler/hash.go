package compiler

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/zeebo/xxh3"
)

// ValueHash computes the SHA-256 hash of a value's encoding. Pointers are
// collapsed to their current value, so two pointers to equal values hash
// alike.
func ValueHash(v any) ([32]byte, error) {
	body, err := CompileValue(v, &Options{
		CollapsePointers:      true,
		CollapseFirstInserted: true,
		NoCreatePointers:      true,
	})
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(body), nil
}

// SourceKey is the cache key of a script text.
func SourceKey(source string) uint64 {
	return xxh3.HashString(source)
}

// TemplateKey is the cache key of a script precompiled with opts. Options
// that change the body get their own key; with none set it is the
// SourceKey.
func TemplateKey(source string, opts *Options) uint64 {
	var flags byte
	if opts != nil {
		for i, set := range []bool{opts.KeepScopeOpen, opts.CollapsePointers, opts.NoCreatePointers, opts.CollapseFirstInserted} {
			if set {
				flags |= 1 << i
			}
		}
	}
	if flags == 0 {
		return SourceKey(source)
	}
	return xxh3.Hash(append([]byte(source), 0, flags))
}

// EncodeBase64 encodes a block or body for text channels.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeBase64 reverses EncodeBase64.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
