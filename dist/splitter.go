package dist

import (
	"context"

	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
)

// SplitBody cuts body into chunks of at most maxBody bytes. An empty body
// yields one empty chunk.
func SplitBody(body []byte, maxBody int) [][]byte {
	if len(body) == 0 || maxBody <= 0 {
		return [][]byte{body}
	}
	chunks := make([][]byte, 0, (len(body)+maxBody-1)/maxBody)
	for len(body) > maxBody {
		chunks = append(chunks, body[:maxBody])
		body = body[maxBody:]
	}
	return append(chunks, body)
}

// Frame wraps body into blocks. If the framed block would reach maxSize
// (dxb.MaxBlockSize if 0), the body is split into several blocks of the
// same scope; only the last block can be marked end of scope.
//
// emit is called for every block in order. A zero length slice is emitted
// right before the last block of a split body; receivers use it to flush
// what they have buffered.
func (f *Framer) Frame(ctx context.Context, body []byte, h Header, maxSize int, emit func([]byte) error) error {
	if maxSize <= 0 {
		maxSize = dxb.MaxBlockSize
	}
	if err := f.AssignSID(&h); err != nil {
		return err
	}
	meta, err := f.ComputeMetaInfo(ctx, &h, len(body))
	if err != nil {
		return err
	}
	if meta.FullSize < maxSize {
		block, err := f.AppendHeader(ctx, body, h, meta)
		if err != nil {
			return err
		}
		return emit(block)
	}

	maxBody := maxSize - meta.PreHeaderSize - meta.SignedHeaderSize
	if h.Encrypt && f.Crypto != nil {
		maxBody -= f.Crypto.Overhead()
	}
	if maxBody <= 0 {
		return dxerr.Compiler("Block size %d is too small for the block header", maxSize)
	}
	chunks := SplitBody(body, maxBody)
	log.Debugf("splitting %d byte body into %d blocks", len(body), len(chunks))
	for i, chunk := range chunks {
		last := i == len(chunks)-1
		bh := h
		bh.EndOfScope = last && h.EndOfScope
		if h.Inc != nil {
			inc := *h.Inc + uint16(i)
			bh.Inc = &inc
		}
		block, err := f.AppendHeader(ctx, chunk, bh, meta)
		if err != nil {
			return err
		}
		if last {
			if err := emit([]byte{}); err != nil {
				return err
			}
		}
		if err := emit(block); err != nil {
			return err
		}
	}
	return nil
}

// FrameAll is Frame collecting the blocks into a slice.
func (f *Framer) FrameAll(ctx context.Context, body []byte, h Header, maxSize int) ([][]byte, error) {
	var blocks [][]byte
	err := f.Frame(ctx, body, h, maxSize, func(b []byte) error {
		blocks = append(blocks, b)
		return nil
	})
	return blocks, err
}
