package dist

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chazu/datex/pkg/addr"
	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
	"github.com/chazu/datex/pkg/logic"
)

// fakeCrypto is a deterministic Crypto for layout tests.
type fakeCrypto struct {
	signed [][]byte
}

func (c *fakeCrypto) Sign(_ context.Context, data []byte) ([]byte, error) {
	c.signed = append(c.signed, append([]byte(nil), data...))
	return bytes.Repeat([]byte{0xab}, dxb.SignatureSize), nil
}

func (c *fakeCrypto) Encrypt(_ context.Context, data, key []byte) ([]byte, []byte, error) {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[0]
	}
	return out, bytes.Repeat([]byte{0x11}, dxb.IVSize), nil
}

func (c *fakeCrypto) EncryptKeyFor(_ context.Context, key []byte, e *addr.Endpoint) ([]byte, error) {
	return bytes.Repeat([]byte{e.Name[0]}, dxb.EncryptedKeySize), nil
}

func (c *fakeCrypto) Overhead() int { return 0 }

var testTime = time.UnixMilli(dxb.BigBangTime + 123456)

func newTestFramer(c Crypto) *Framer {
	f := NewFramer(c, nil)
	f.Now = func() time.Time { return testTime }
	return f
}

func u32(v uint32) *uint32 { return &v }

func TestPackFlags(t *testing.T) {
	got, err := PackFlags([]int{1, 1, 1, 5}, 1, 0, 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0xa3 {
		t.Errorf("PackFlags: got %#x, want 0xa3", got)
	}
	if _, err := PackFlags([]int{1, 1, 1, 5}, 2, 0, 0, 0); err == nil {
		t.Error("expected overflow error")
	}
	if _, err := PackFlags([]int{1, 1}, 1, 1); err == nil {
		t.Error("expected error for widths not adding up to 8")
	}
}

func TestAppendHeader_Layout(t *testing.T) {
	f := newTestFramer(nil)
	alice := addr.MustParse("@alice")
	bob := addr.MustParse("@bob")
	body := []byte{0x01, 0x02, 0x03}

	block, err := f.AppendHeader(context.Background(), body, Header{
		Sender:     alice,
		Receivers:  addr.NewFilter(bob),
		Type:       dxb.ProtocolRequest,
		SID:        u32(0x01020304),
		EndOfScope: true,
		Prio:       3,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if block[0] != 0x01 || block[1] != 0x64 || block[2] != dxb.Version {
		t.Errorf("magic/version: got % x", block[:3])
	}
	if got := int(binary.LittleEndian.Uint16(block[3:])); got != len(block) {
		t.Errorf("size field: got %d, want %d", got, len(block))
	}
	if block[5] != dxb.DefaultTTL || block[6] != 3 || block[7] != SignModeNone {
		t.Errorf("ttl/prio/mode: got % x", block[5:8])
	}

	info, err := ParseHeader(block)
	if err != nil {
		t.Fatal(err)
	}
	if info.Sender != alice {
		t.Errorf("Sender: got %v, want %v", info.Sender, alice)
	}
	if info.Receivers == nil {
		t.Fatal("Receivers: got nil")
	}
	if eps := info.Receivers.Endpoints(); len(eps) != 1 || eps[0] != bob {
		t.Errorf("Receivers: got %v, want %v", eps, bob)
	}
	if info.SID != 0x01020304 || info.Inc != 0 || info.ReturnIndex != 0 {
		t.Errorf("sid/inc/ri: got %#x/%d/%d", info.SID, info.Inc, info.ReturnIndex)
	}
	if !info.Executable || !info.EndOfScope || info.Encrypted {
		t.Errorf("flags: executable=%v eos=%v encrypted=%v", info.Executable, info.EndOfScope, info.Encrypted)
	}
	if info.Device != dxb.DeviceMobile {
		t.Errorf("Device: got %d, want %d", info.Device, dxb.DeviceMobile)
	}
	if !info.Timestamp.Equal(testTime) {
		t.Errorf("Timestamp: got %v, want %v", info.Timestamp, testTime)
	}
	ts := block[info.SignedHeaderStart+10 : info.SignedHeaderStart+18]
	if binary.BigEndian.Uint64(ts) != 123456 {
		t.Errorf("timestamp bytes: got % x", ts)
	}
	if !bytes.Equal(info.Body, body) {
		t.Errorf("Body: got % x, want % x", info.Body, body)
	}
}

func TestAppendHeader_MetaSizes(t *testing.T) {
	f := newTestFramer(&fakeCrypto{})
	alice := addr.MustParse("@alice")
	h := Header{Sender: alice, Sign: true, Encrypt: true, SymKey: []byte{0x55}}
	body := make([]byte, 40)

	meta, err := f.ComputeMetaInfo(context.Background(), &h, len(body))
	if err != nil {
		t.Fatal(err)
	}
	wantPre := 10 + len(meta.Sender) + dxb.SignatureSize
	if meta.PreHeaderSize != wantPre {
		t.Errorf("PreHeaderSize: got %d, want %d", meta.PreHeaderSize, wantPre)
	}
	if meta.SignedHeaderSize != 18+dxb.IVSize {
		t.Errorf("SignedHeaderSize: got %d, want %d", meta.SignedHeaderSize, 18+dxb.IVSize)
	}
	h.SID = u32(1)
	block, err := f.AppendHeader(context.Background(), body, h, meta)
	if err != nil {
		t.Fatal(err)
	}
	if len(block) != meta.FullSize {
		t.Errorf("block size: got %d, want %d", len(block), meta.FullSize)
	}
}

func TestAppendHeader_SignAndEncrypt(t *testing.T) {
	c := &fakeCrypto{}
	f := newTestFramer(c)
	body := []byte{0x10, 0x20}

	block, err := f.AppendHeader(context.Background(), body, Header{
		Type:    dxb.ProtocolRequest,
		SID:     u32(9),
		Sign:    true,
		Encrypt: true,
		SymKey:  []byte{0xff},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if block[7] != SignModeSignedEncrypted {
		t.Errorf("sign mode: got %d, want %d", block[7], SignModeSignedEncrypted)
	}
	info, err := ParseHeader(block)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(info.Signature, bytes.Repeat([]byte{0xab}, dxb.SignatureSize)) {
		t.Error("signature not written into the pre-header")
	}
	if !info.Encrypted || !bytes.Equal(info.IV, bytes.Repeat([]byte{0x11}, dxb.IVSize)) {
		t.Errorf("encryption: encrypted=%v iv=% x", info.Encrypted, info.IV)
	}
	if !bytes.Equal(info.Body, []byte{0xef, 0xdf}) {
		t.Errorf("Body: got % x, want ef df", info.Body)
	}
	if len(c.signed) != 1 || !bytes.Equal(c.signed[0], block[info.SignedHeaderStart:]) {
		t.Error("signature must cover the signed header and the body")
	}
}

func TestAppendHeader_Errors(t *testing.T) {
	ctx := context.Background()
	f := newTestFramer(&fakeCrypto{})
	bob := addr.MustParse("@bob")

	tests := []struct {
		name string
		h    Header
		want string
	}{
		{"response without sid", Header{Type: dxb.ProtocolResponse, Receivers: addr.NewFilter(bob)},
			"Cannot generate a new SID for a RESPONSE"},
		{"response to filter", Header{Type: dxb.ProtocolResponse, SID: u32(1),
			Receivers: addr.NewFilter(logic.Or(bob, addr.MustParse("@carol")))},
			"Can only send datex responses to endpoint targets"},
		{"encrypt without key", Header{SID: u32(1), Encrypt: true},
			"No symmetric encryption key provided"},
	}
	for _, tt := range tests {
		_, err := f.AppendHeader(ctx, []byte{1}, tt.h, nil)
		var ce *dxerr.CompilerError
		if !errors.As(err, &ce) {
			t.Errorf("%s: got %v, want CompilerError", tt.name, err)
			continue
		}
		if !strings.Contains(ce.Msg, tt.want) {
			t.Errorf("%s: got %q, want %q", tt.name, ce.Msg, tt.want)
		}
	}
}

func TestAppendHeader_DefaultSID(t *testing.T) {
	f := newTestFramer(nil)
	block, err := f.AppendHeader(context.Background(), nil, Header{Type: dxb.ProtocolData}, nil)
	if err != nil {
		t.Fatal(err)
	}
	info, _ := ParseHeader(block)
	if info.SID != 0 {
		t.Errorf("DATA sid: got %d, want 0", info.SID)
	}
	if info.Executable {
		t.Error("DATA blocks are not executable by default")
	}

	block, err = f.AppendHeader(context.Background(), nil, Header{Type: dxb.ProtocolRequest}, nil)
	if err != nil {
		t.Fatal(err)
	}
	info, _ = ParseHeader(block)
	if !f.Counters.InUse(info.SID) {
		t.Errorf("request sid %d should be generated by the counter service", info.SID)
	}
}

func TestAppendHeader_ResponseIncReset(t *testing.T) {
	f := newTestFramer(nil)
	bob := addr.MustParse("@bob")
	for i := 0; i < 2; i++ {
		block, err := f.AppendHeader(context.Background(), []byte{1}, Header{
			Type:       dxb.ProtocolResponse,
			SID:        u32(77),
			Receivers:  addr.NewFilter(bob),
			EndOfScope: true,
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
		info, _ := ParseHeader(block)
		if info.Inc != 0 {
			t.Errorf("response %d: got inc %d, want 0", i, info.Inc)
		}
	}
}

func TestAppendHeader_Oversized(t *testing.T) {
	f := newTestFramer(nil)
	block, err := f.AppendHeader(context.Background(), make([]byte, dxb.MaxBlockSize), Header{SID: u32(1)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint16(block[3:]); got != 0 {
		t.Errorf("size field: got %d, want 0", got)
	}
}

func TestAppendHeader_Flood(t *testing.T) {
	f := newTestFramer(nil)
	block, err := f.AppendHeader(context.Background(), []byte{1}, Header{SID: u32(1), Flood: true,
		Receivers: addr.NewFilter(addr.MustParse("@bob"))}, nil)
	if err != nil {
		t.Fatal(err)
	}
	to, _, flood, err := ExtractReceivers(block)
	if err != nil {
		t.Fatal(err)
	}
	if !flood || to != nil {
		t.Errorf("ExtractReceivers: got %v flood=%v, want flood", to, flood)
	}
}
