package compiler

import (
	"encoding/binary"
	"math"

	"github.com/chazu/datex/pkg/dxb"
)

// ---------------------------------------------------------------------------
// Builder: growable DXB buffer with positions that survive insertion
// ---------------------------------------------------------------------------

// Builder accumulates DXB bytes. Unlike a plain append buffer it allows
// bytes to be inserted at an earlier position; every Handle, jump target
// and assignment end recorded so far is moved along with the bytes it
// refers to.
type Builder struct {
	bytes []byte

	handles    []*Handle
	jumps      []*Handle // positions of u32 jump operands
	assignEnds map[int]bool

	// OnShift is called after n bytes were inserted; positions greater
	// than after have moved by n.
	OnShift func(n, after int)
}

// Handle is a buffer position kept up to date across insertions.
type Handle struct {
	pos int
}

// Pos returns the current position.
func (h *Handle) Pos() int { return h.pos }

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		bytes:      make([]byte, 0, 256),
		assignEnds: make(map[int]bool),
	}
}

// Bytes returns the built bytes.
func (b *Builder) Bytes() []byte { return b.bytes }

// Len returns the current write position.
func (b *Builder) Len() int { return len(b.bytes) }

// At returns the byte at position i.
func (b *Builder) At(i int) byte { return b.bytes[i] }

// Set overwrites the byte at position i.
func (b *Builder) Set(i int, v byte) { b.bytes[i] = v }

// Truncate moves the write position back to n, dropping everything after.
func (b *Builder) Truncate(n int) {
	if n >= 0 && n < len(b.bytes) {
		b.bytes = b.bytes[:n]
	}
}

// Reset drops all bytes and tracked positions.
func (b *Builder) Reset() {
	b.bytes = b.bytes[:0]
	b.handles = nil
	b.jumps = nil
	b.assignEnds = make(map[int]bool)
}

// Emit appends an opcode.
func (b *Builder) Emit(op dxb.Opcode) {
	b.bytes = append(b.bytes, byte(op))
}

// EmitRaw appends raw bytes.
func (b *Builder) EmitRaw(data ...byte) {
	b.bytes = append(b.bytes, data...)
}

// EmitUint16 appends a little-endian uint16.
func (b *Builder) EmitUint16(v uint16) {
	b.bytes = binary.LittleEndian.AppendUint16(b.bytes, v)
}

// EmitUint32 appends a little-endian uint32.
func (b *Builder) EmitUint32(v uint32) {
	b.bytes = binary.LittleEndian.AppendUint32(b.bytes, v)
}

// EmitUint64 appends a little-endian uint64.
func (b *Builder) EmitUint64(v uint64) {
	b.bytes = binary.LittleEndian.AppendUint64(b.bytes, v)
}

// EmitFloat64 appends a little-endian IEEE 754 double.
func (b *Builder) EmitFloat64(v float64) {
	b.EmitUint64(math.Float64bits(v))
}

// PutUint32 overwrites four bytes at position i.
func (b *Builder) PutUint32(i int, v uint32) {
	binary.LittleEndian.PutUint32(b.bytes[i:], v)
}

// Uint32 reads four bytes at position i.
func (b *Builder) Uint32(i int) uint32 {
	return binary.LittleEndian.Uint32(b.bytes[i:])
}

// ---------------------------------------------------------------------------
// Tracked positions
// ---------------------------------------------------------------------------

// Handle returns a tracked position starting at pos.
func (b *Builder) Handle(pos int) *Handle {
	h := &Handle{pos: pos}
	b.handles = append(b.handles, h)
	return h
}

// EmitJump appends a jump opcode with a u32 target. A negative target
// writes 0 to be patched later. The returned handle tracks the operand.
func (b *Builder) EmitJump(op dxb.Opcode, target int) *Handle {
	b.Emit(op)
	h := &Handle{pos: len(b.bytes)}
	b.jumps = append(b.jumps, h)
	if target < 0 {
		target = 0
	}
	b.EmitUint32(uint32(target))
	return h
}

// PatchJump sets the target of the jump operand at h.
func (b *Builder) PatchJump(h *Handle, target int) {
	b.PutUint32(h.pos, uint32(target))
}

// MarkAssignmentEnd records that an assignment ends at pos, so the value
// starting there is already bound.
func (b *Builder) MarkAssignmentEnd(pos int) {
	b.assignEnds[pos] = true
}

// IsAssignmentEnd reports whether an assignment ends at pos.
func (b *Builder) IsAssignmentEnd(pos int) bool {
	return b.assignEnds[pos]
}

// InsertAt inserts data at position at. Positions at or after at move right.
// Inserting at the end is a plain append.
func (b *Builder) InsertAt(at int, data ...byte) {
	if at >= len(b.bytes) {
		b.bytes = append(b.bytes, data...)
		return
	}
	b.open(at, len(data))
	copy(b.bytes[at:], data)
	b.shift(len(data), at-1)
}

// InsertGap inserts n zero bytes at position at. Positions strictly after at
// move right; a position equal to at keeps pointing at the new bytes.
func (b *Builder) InsertGap(at, n int) {
	b.open(at, n)
	clear(b.bytes[at : at+n])
	b.shift(n, at)
}

func (b *Builder) open(at, n int) {
	b.bytes = append(b.bytes, make([]byte, n)...)
	copy(b.bytes[at+n:], b.bytes[at:len(b.bytes)-n])
}

func (b *Builder) shift(n, after int) {
	for _, h := range b.handles {
		if h.pos > after {
			h.pos += n
		}
	}
	for _, h := range b.jumps {
		if h.pos > after {
			h.pos += n
		}
		if to := int(b.Uint32(h.pos)); to > after {
			b.PutUint32(h.pos, uint32(to+n))
		}
	}
	if len(b.assignEnds) > 0 {
		moved := make(map[int]bool, len(b.assignEnds))
		for i := range b.assignEnds {
			if i > after {
				i += n
			}
			moved[i] = true
		}
		b.assignEnds = moved
	}
	if b.OnShift != nil {
		b.OnShift(n, after)
	}
}
