// Package dist frames compiled DATEX bodies into DXB blocks.
//
// A block is a plaintext pre-header (routing information and an optional
// signature), a signed header (scope id, counters, flags, timestamp) and
// the body. Bodies too large for one block are split into several blocks
// of the same scope; values that arrive over time are streamed as a
// sequence of blocks.
//
// Pre-header layout (little endian unless noted):
//
//	0   magic 0x01 0x64
//	2   version
//	3   u16 total block size (0 if larger than 65535)
//	5   ttl
//	6   priority
//	7   signature/encryption mode
//	8   sender endpoint
//	    u16 receiver section length (0xffff = flood), receiver filter
//	    signature (96 bytes, if signed)
//
// Signed header:
//
//	u32 sid, u16 return index, u16 block increment, u8 protocol type,
//	u8 flags (encrypted, executable, end of scope, 5 bit device type),
//	u64 big endian timestamp in ms since dxb.BigBangTime,
//	IV (16 bytes, if encrypted)
package dist
