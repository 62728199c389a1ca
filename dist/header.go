package dist

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/datex/pkg/addr"
	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
)

var log = commonlog.GetLogger("datex.dist")

// Signature and encryption modes stored at pre-header offset 7.
const (
	SignModeNone            byte = 0
	SignModeSigned          byte = 1
	SignModeSignedEncrypted byte = 2
	SignModeEncrypted       byte = 3
)

const (
	preHeaderFixedSize    = 10
	signedHeaderFixedSize = 18
)

// Header holds the routing and scope options of a block.
type Header struct {
	Sender *addr.Endpoint
	// Receivers is nil for no receivers.
	Receivers *addr.Filter
	// Flood sends the block to all reachable endpoints; Receivers is ignored.
	Flood bool
	Type  dxb.ProtocolType

	Sign    bool
	Encrypt bool
	SymKey  []byte
	// SendSymKey wraps SymKey for every receiver endpoint and stores it in
	// the receiver section.
	SendSymKey bool

	// AllowExecute defaults to Type.Executable().
	AllowExecute *bool
	// SID is generated if nil (0 for DATA blocks).
	SID         *uint32
	ReturnIndex uint16
	// Inc is taken from the counter service if nil.
	Inc        *uint16
	EndOfScope bool
	// ForceID replaces the sender with its id endpoint.
	ForceID bool

	// TTL defaults to dxb.DefaultTTL when 0.
	TTL  byte
	Prio byte
	// Device defaults to the framer's device type when 0.
	Device byte
}

// MetaInfo holds the encoded variable parts of a pre-header and the
// resulting sizes, computed once per compilation.
type MetaInfo struct {
	Sender    []byte
	Receivers []byte
	Keys      map[*addr.Endpoint][]byte

	PreHeaderSize    int
	SignedHeaderSize int
	FullSize         int
}

// Framer builds DXB blocks. It is safe for concurrent use as long as its
// Crypto implementation is.
type Framer struct {
	Crypto   Crypto
	Counters *Counters
	// Device is the default device type written into block flags.
	Device byte
	// IDEndpoint resolves an alias to its id endpoint for Header.ForceID.
	IDEndpoint func(*addr.Endpoint) *addr.Endpoint
	Now        func() time.Time
}

// NewFramer creates a framer. crypto may be nil if no block is signed or
// encrypted; counters may be nil to use a private counter service.
func NewFramer(crypto Crypto, counters *Counters) *Framer {
	if counters == nil {
		counters = NewCounters()
	}
	return &Framer{
		Crypto:   crypto,
		Counters: counters,
		Device:   dxb.DeviceMobile,
		Now:      time.Now,
	}
}

// PackFlags packs values into one byte. widths gives the bit width of each
// field, the first field occupying the most significant bits.
func PackFlags(widths []int, values ...int) (byte, error) {
	if len(widths) != len(values) {
		return 0, dxerr.Compiler("Flag widths and values differ in length")
	}
	total := 0
	for _, w := range widths {
		total += w
	}
	if total != 8 {
		return 0, dxerr.Compiler("Flag widths must add up to 8 bits, got %d", total)
	}
	var b byte
	shift := 8
	for i, w := range widths {
		shift -= w
		if values[i] < 0 || values[i] >= 1<<w {
			return 0, dxerr.Compiler("Flag value %d does not fit into %d bits", values[i], w)
		}
		b |= byte(values[i]) << shift
	}
	return b, nil
}

func boolBit(b bool) int {
	if b {
		return 1
	}
	return 0
}

func signMode(sign, encrypt bool) byte {
	switch {
	case sign && encrypt:
		return SignModeSignedEncrypted
	case sign:
		return SignModeSigned
	case encrypt:
		return SignModeEncrypted
	}
	return SignModeNone
}

func (f *Framer) sender(h *Header) (*addr.Endpoint, error) {
	if !h.ForceID || h.Sender == nil || h.Sender.Type == dxb.OpEndpoint {
		return h.Sender, nil
	}
	if f.IDEndpoint != nil {
		if id := f.IDEndpoint(h.Sender); id != nil {
			return id, nil
		}
	}
	return nil, dxerr.Compiler("No id endpoint known for %s", h.Sender)
}

// ComputeMetaInfo encodes the sender and receiver sections of h and
// computes the block sizes for a body of bodyLen bytes.
func (f *Framer) ComputeMetaInfo(ctx context.Context, h *Header, bodyLen int) (*MetaInfo, error) {
	m := &MetaInfo{}
	sender, err := f.sender(h)
	if err != nil {
		return nil, err
	}
	if m.Sender, err = addr.AppendEndpoint(nil, sender); err != nil {
		return nil, err
	}

	if h.SendSymKey && h.SymKey != nil && h.Receivers != nil && !h.Flood {
		if f.Crypto == nil {
			return nil, dxerr.Compiler("No crypto service to encrypt the symmetric key")
		}
		m.Keys = make(map[*addr.Endpoint][]byte)
		for _, e := range h.Receivers.Endpoints() {
			k, err := f.Crypto.EncryptKeyFor(ctx, h.SymKey, e)
			if err != nil {
				return nil, err
			}
			m.Keys[e] = k
		}
	}
	if h.Receivers != nil && !h.Flood {
		if m.Receivers, err = addr.EncodeFilter(h.Receivers, m.Keys, true); err != nil {
			return nil, err
		}
		if len(m.Receivers) >= dxb.FloodReceivers {
			return nil, dxerr.Compiler("Receiver section too large (%d bytes)", len(m.Receivers))
		}
	}

	m.PreHeaderSize = preHeaderFixedSize + len(m.Sender) + len(m.Receivers)
	if h.Sign {
		m.PreHeaderSize += dxb.SignatureSize
	}
	m.SignedHeaderSize = signedHeaderFixedSize
	if h.Encrypt {
		m.SignedHeaderSize += dxb.IVSize
	}
	m.FullSize = m.PreHeaderSize + m.SignedHeaderSize + bodyLen
	if h.Encrypt && f.Crypto != nil {
		m.FullSize += f.Crypto.Overhead()
	}
	return m, nil
}

// AssignSID fills in h.SID if it is unset. RESPONSE blocks must carry the
// sid of the request they answer; DATA blocks use sid 0.
func (f *Framer) AssignSID(h *Header) error {
	if h.SID != nil {
		return nil
	}
	var sid uint32
	switch h.Type {
	case dxb.ProtocolResponse:
		return dxerr.Compiler("Cannot generate a new SID for a RESPONSE")
	case dxb.ProtocolData:
		sid = 0
	default:
		sid = f.Counters.GenerateSID()
	}
	h.SID = &sid
	return nil
}

func (f *Framer) blockInc(h *Header, sid uint32) (uint16, error) {
	if h.Inc != nil {
		return *h.Inc, nil
	}
	if h.Type == dxb.ProtocolResponse {
		var to *addr.Endpoint
		if h.Receivers != nil {
			to, _ = h.Receivers.Expr().(*addr.Endpoint)
		}
		return f.Counters.BlockIncForRemote(sid, to, h.EndOfScope)
	}
	return f.Counters.BlockInc(sid), nil
}

// AppendHeader frames body as one block. meta may be nil, in which case
// it is computed from h.
func (f *Framer) AppendHeader(ctx context.Context, body []byte, h Header, meta *MetaInfo) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if (h.Sign || h.Encrypt) && f.Crypto == nil {
		return nil, dxerr.Compiler("No crypto service configured")
	}
	if meta == nil {
		var err error
		if meta, err = f.ComputeMetaInfo(ctx, &h, len(body)); err != nil {
			return nil, err
		}
	}
	if err := f.AssignSID(&h); err != nil {
		return nil, err
	}
	sid := *h.SID
	inc, err := f.blockInc(&h, sid)
	if err != nil {
		return nil, err
	}

	executable := h.Type.Executable()
	if h.AllowExecute != nil {
		executable = *h.AllowExecute
	}
	device := h.Device
	if device == 0 {
		device = f.Device
	}
	flags, err := PackFlags([]int{1, 1, 1, 5},
		boolBit(h.Encrypt), boolBit(executable), boolBit(h.EndOfScope), int(device))
	if err != nil {
		return nil, err
	}
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	ts := now().UnixMilli() - dxb.BigBangTime
	if ts < 0 {
		ts = 0
	}

	signed := make([]byte, 0, meta.SignedHeaderSize)
	signed = binary.LittleEndian.AppendUint32(signed, sid)
	signed = binary.LittleEndian.AppendUint16(signed, h.ReturnIndex)
	signed = binary.LittleEndian.AppendUint16(signed, inc)
	signed = append(signed, byte(h.Type), flags)
	signed = binary.BigEndian.AppendUint64(signed, uint64(ts))

	if h.Encrypt {
		if h.SymKey == nil {
			return nil, dxerr.Compiler("No symmetric encryption key provided")
		}
		sealed, iv, err := f.Crypto.Encrypt(ctx, body, h.SymKey)
		if err != nil {
			return nil, err
		}
		signed = append(signed, iv...)
		body = sealed
	}

	ttl := h.TTL
	if ttl == 0 {
		ttl = dxb.DefaultTTL
	}
	block := make([]byte, 0, meta.PreHeaderSize+len(signed)+len(body))
	block = append(block, dxb.Magic0, dxb.Magic1, dxb.Version, 0, 0, ttl, h.Prio, signMode(h.Sign, h.Encrypt))
	block = append(block, meta.Sender...)
	switch {
	case h.Flood:
		block = binary.LittleEndian.AppendUint16(block, dxb.FloodReceivers)
	default:
		block = binary.LittleEndian.AppendUint16(block, uint16(len(meta.Receivers)))
		block = append(block, meta.Receivers...)
	}
	sigAt := len(block)
	if h.Sign {
		block = append(block, make([]byte, dxb.SignatureSize)...)
	}
	block = append(block, signed...)
	block = append(block, body...)

	if h.Sign {
		sig, err := f.Crypto.Sign(ctx, block[sigAt+dxb.SignatureSize:])
		if err != nil {
			return nil, err
		}
		if len(sig) != dxb.SignatureSize {
			return nil, dxerr.Compiler("Invalid signature size %d", len(sig))
		}
		copy(block[sigAt:], sig)
	}

	if len(block) > dxb.MaxBlockSize {
		log.Warningf("block size %d exceeds the maximum block size, size field set to 0", len(block))
	} else {
		binary.LittleEndian.PutUint16(block[3:], uint16(len(block)))
	}
	return block, nil
}
