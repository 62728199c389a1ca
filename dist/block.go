package dist

import (
	"encoding/binary"
	"time"

	"github.com/chazu/datex/pkg/addr"
	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
)

// BlockInfo is the decoded header of a DXB block.
type BlockInfo struct {
	Version  byte
	Size     int
	TTL      byte
	Prio     byte
	SignMode byte

	Sender    *addr.Endpoint
	Receivers *addr.Filter
	Keys      map[*addr.Endpoint][]byte
	Flood     bool
	Signature []byte

	SID         uint32
	ReturnIndex uint16
	Inc         uint16
	Type        dxb.ProtocolType
	Encrypted   bool
	Executable  bool
	EndOfScope  bool
	Device      byte
	Timestamp   time.Time
	IV          []byte

	// SignedHeaderStart is the offset of the signed header, which is also
	// where the signed data begins.
	SignedHeaderStart int
	// Body is the (possibly encrypted) body.
	Body []byte
}

func checkMagic(block []byte) error {
	if len(block) < 9 || block[0] != dxb.Magic0 || block[1] != dxb.Magic1 {
		return dxerr.Runtime("Invalid DXB block")
	}
	return nil
}

// ExtractSender decodes the sender of a block and returns the offset after
// it.
func ExtractSender(block []byte) (*addr.Endpoint, int, error) {
	if err := checkMagic(block); err != nil {
		return nil, 0, err
	}
	return addr.DecodeEndpoint(block, 8)
}

// receiverSection returns the start of the receiver section (its length
// field) and its encoded length.
func receiverSection(block []byte) (start, n int, err error) {
	_, start, err = ExtractSender(block)
	if err != nil {
		return 0, 0, err
	}
	if start+2 > len(block) {
		return 0, 0, dxerr.Runtime("Invalid DXB block")
	}
	n = int(binary.LittleEndian.Uint16(block[start:]))
	if n != dxb.FloodReceivers && start+2+n > len(block) {
		return 0, 0, dxerr.Runtime("Invalid DXB block")
	}
	return start, n, nil
}

// ExtractReceivers decodes the receiver filter and the wrapped keys of a
// block. flood is set for blocks sent to all endpoints; f is nil if the
// block has no receivers.
func ExtractReceivers(block []byte) (f *addr.Filter, keys map[*addr.Endpoint][]byte, flood bool, err error) {
	start, n, err := receiverSection(block)
	if err != nil {
		return nil, nil, false, err
	}
	if n == dxb.FloodReceivers {
		return nil, nil, true, nil
	}
	if n == 0 {
		return nil, nil, false, nil
	}
	f, keys, _, err = addr.DecodeFilter(block[:start+2+n], start+2, true)
	return f, keys, false, err
}

// SetTTL overwrites the ttl of a block in place.
func SetTTL(block []byte, ttl byte) error {
	if err := checkMagic(block); err != nil {
		return err
	}
	block[5] = ttl
	return nil
}

// UpdateReceivers returns a copy of block addressed to f. Wrapped keys of
// endpoints that are still receivers are kept. The signature stays valid
// since the receiver section is not signed.
func UpdateReceivers(block []byte, f *addr.Filter) ([]byte, error) {
	start, n, err := receiverSection(block)
	if err != nil {
		return nil, err
	}
	_, keys, _, err := ExtractReceivers(block)
	if err != nil {
		return nil, err
	}
	rest := start + 2
	if n != dxb.FloodReceivers {
		rest += n
	}

	var section []byte
	if f != nil {
		kept := make(map[*addr.Endpoint][]byte)
		for _, e := range f.Endpoints() {
			if k, ok := keys[e]; ok {
				kept[e] = k
			}
		}
		if section, err = addr.EncodeFilter(f, kept, true); err != nil {
			return nil, err
		}
		if len(section) >= dxb.FloodReceivers {
			return nil, dxerr.Compiler("Receiver section too large (%d bytes)", len(section))
		}
	}

	out := make([]byte, 0, len(block)-rest+start+2+len(section))
	out = append(out, block[:start]...)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(section)))
	out = append(out, section...)
	out = append(out, block[rest:]...)
	if len(out) > dxb.MaxBlockSize {
		binary.LittleEndian.PutUint16(out[3:], 0)
	} else {
		binary.LittleEndian.PutUint16(out[3:], uint16(len(out)))
	}
	return out, nil
}

// ParseHeader decodes the pre-header and signed header of a block.
func ParseHeader(block []byte) (*BlockInfo, error) {
	if err := checkMagic(block); err != nil {
		return nil, err
	}
	info := &BlockInfo{
		Version:  block[2],
		Size:     int(binary.LittleEndian.Uint16(block[3:])),
		TTL:      block[5],
		Prio:     block[6],
		SignMode: block[7],
	}
	var err error
	var i int
	if info.Sender, i, err = ExtractSender(block); err != nil {
		return nil, err
	}
	if info.Receivers, info.Keys, info.Flood, err = ExtractReceivers(block); err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint16(block[i:]))
	i += 2
	if n != dxb.FloodReceivers {
		i += n
	}
	signed := info.SignMode == SignModeSigned || info.SignMode == SignModeSignedEncrypted
	if signed {
		if i+dxb.SignatureSize > len(block) {
			return nil, dxerr.Runtime("Invalid DXB block")
		}
		info.Signature = block[i : i+dxb.SignatureSize]
		i += dxb.SignatureSize
	}

	info.SignedHeaderStart = i
	if i+signedHeaderFixedSize > len(block) {
		return nil, dxerr.Runtime("Invalid DXB block")
	}
	info.SID = binary.LittleEndian.Uint32(block[i:])
	info.ReturnIndex = binary.LittleEndian.Uint16(block[i+4:])
	info.Inc = binary.LittleEndian.Uint16(block[i+6:])
	info.Type = dxb.ProtocolType(block[i+8])
	flags := block[i+9]
	info.Encrypted = flags&0x80 != 0
	info.Executable = flags&0x40 != 0
	info.EndOfScope = flags&0x20 != 0
	info.Device = flags & 0x1f
	ms := int64(binary.BigEndian.Uint64(block[i+10:]))
	info.Timestamp = time.UnixMilli(ms + dxb.BigBangTime)
	i += signedHeaderFixedSize
	if info.Encrypted {
		if i+dxb.IVSize > len(block) {
			return nil, dxerr.Runtime("Invalid DXB block")
		}
		info.IV = block[i : i+dxb.IVSize]
		i += dxb.IVSize
	}
	info.Body = block[i:]
	return info, nil
}
