package dist

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"testing"

	"github.com/chazu/datex/pkg/addr"
	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/logic"
)

func TestSetTTL(t *testing.T) {
	f := newTestFramer(nil)
	block, err := f.AppendHeader(context.Background(), []byte{1}, Header{SID: u32(1)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	size := binary.LittleEndian.Uint16(block[3:])
	if err := SetTTL(block, 7); err != nil {
		t.Fatal(err)
	}
	info, _ := ParseHeader(block)
	if info.TTL != 7 {
		t.Errorf("TTL: got %d, want 7", info.TTL)
	}
	if binary.LittleEndian.Uint16(block[3:]) != size {
		t.Error("SetTTL must not touch the size field")
	}
	if err := SetTTL([]byte{1, 2}, 1); err == nil {
		t.Error("expected error for a non-DXB buffer")
	}
}

func TestExtractSender_Invalid(t *testing.T) {
	block := []byte{dxb.Magic0, dxb.Magic1, 1, 0, 0, 64, 0, 0, byte(dxb.OpPersonAlias), 5, 0, 'a'}
	if _, _, err := ExtractSender(block); err == nil {
		t.Error("expected error for a truncated sender")
	}
}

func TestUpdateReceivers(t *testing.T) {
	ctx := context.Background()
	f := newTestFramer(&fakeCrypto{})
	bob := addr.MustParse("@bob")
	carol := addr.MustParse("@carol")
	dave := addr.MustParse("@dave")
	body := []byte{0xde, 0xad}

	block, err := f.AppendHeader(ctx, body, Header{
		Sender:     addr.MustParse("@alice"),
		Receivers:  addr.NewFilter(logic.Or(bob, carol)),
		SID:        u32(3),
		SymKey:     []byte{1},
		SendSymKey: true,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	_, keys, _, err := ExtractReceivers(block)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("keys: got %d, want 2", len(keys))
	}

	updated, err := UpdateReceivers(block, addr.NewFilter(logic.Or(carol, dave)))
	if err != nil {
		t.Fatal(err)
	}
	to, keys, _, err := ExtractReceivers(updated)
	if err != nil {
		t.Fatal(err)
	}
	if eps := to.Endpoints(); len(eps) != 2 || eps[0] != carol || eps[1] != dave {
		t.Errorf("receivers: got %v, want [@carol @dave]", eps)
	}
	if !bytes.Equal(keys[carol], bytes.Repeat([]byte{'c'}, dxb.EncryptedKeySize)) {
		t.Error("key of @carol should be kept")
	}
	if _, ok := keys[dave]; ok {
		t.Error("@dave has no key")
	}
	if got := int(binary.LittleEndian.Uint16(updated[3:])); got != len(updated) {
		t.Errorf("size field: got %d, want %d", got, len(updated))
	}
	info, err := ParseHeader(updated)
	if err != nil {
		t.Fatal(err)
	}
	if info.SID != 3 || !bytes.Equal(info.Body, body) {
		t.Errorf("signed part changed: sid=%d body=% x", info.SID, info.Body)
	}

	cleared, err := UpdateReceivers(updated, nil)
	if err != nil {
		t.Fatal(err)
	}
	if to, _, _, _ := ExtractReceivers(cleared); to != nil {
		t.Errorf("receivers: got %v, want none", to)
	}
}

func TestStdCrypto_SignVerify(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	c, err := NewStdCrypto(key)
	if err != nil {
		t.Fatal(err)
	}
	f := newTestFramer(c)
	block, err := f.AppendHeader(context.Background(), []byte("body"), Header{SID: u32(1), Sign: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	info, _ := ParseHeader(block)
	if !Verify(&key.PublicKey, block[info.SignedHeaderStart:], info.Signature) {
		t.Error("signature does not verify")
	}
	block[len(block)-1] ^= 1
	if Verify(&key.PublicKey, block[info.SignedHeaderStart:], info.Signature) {
		t.Error("signature verifies after tampering")
	}
}

func TestStdCrypto_EncryptDecrypt(t *testing.T) {
	c, _ := NewStdCrypto(nil)
	key := bytes.Repeat([]byte{7}, 32)
	f := newTestFramer(c)
	plain := []byte("secret body")
	block, err := f.AppendHeader(context.Background(), plain, Header{SID: u32(1), Encrypt: true, SymKey: key}, nil)
	if err != nil {
		t.Fatal(err)
	}
	info, _ := ParseHeader(block)
	if got := int(binary.LittleEndian.Uint16(block[3:])); got != len(block) {
		t.Errorf("size field: got %d, want %d", got, len(block))
	}
	got, err := Decrypt(info.Body, key, info.IV)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("Decrypt: got %q, want %q", got, plain)
	}
	if _, _, err := c.Encrypt(context.Background(), plain, []byte{1, 2, 3}); err == nil {
		t.Error("expected error for an invalid key size")
	}
}

func TestStdCrypto_EncryptKeyFor(t *testing.T) {
	if testing.Short() {
		t.Skip("generating a 4096 bit key is slow")
	}
	priv, err := rsa.GenerateKey(rand.Reader, 4096)
	if err != nil {
		t.Fatal(err)
	}
	c, _ := NewStdCrypto(nil)
	bob := addr.MustParse("@bob")
	if _, err := c.EncryptKeyFor(context.Background(), []byte{1}, bob); err == nil {
		t.Error("expected error for an endpoint without key")
	}
	c.SetEndpointKey(bob, &priv.PublicKey)
	wrapped, err := c.EncryptKeyFor(context.Background(), []byte{1, 2, 3}, bob)
	if err != nil {
		t.Fatal(err)
	}
	if len(wrapped) != dxb.EncryptedKeySize {
		t.Errorf("wrapped key: got %d bytes, want %d", len(wrapped), dxb.EncryptedKeySize)
	}
}
