package dist

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"math/big"
	"sync"

	"github.com/chazu/datex/pkg/addr"
	"github.com/chazu/datex/pkg/dxb"
	"github.com/chazu/datex/pkg/dxerr"
)

// Crypto is the signing and encryption service used when framing blocks.
type Crypto interface {
	// Sign returns a dxb.SignatureSize byte signature of data.
	Sign(ctx context.Context, data []byte) ([]byte, error)
	// Encrypt seals data with a symmetric key and returns the ciphertext
	// and a dxb.IVSize byte IV.
	Encrypt(ctx context.Context, data, key []byte) (sealed, iv []byte, err error)
	// EncryptKeyFor wraps a symmetric key for a receiver. The result is
	// dxb.EncryptedKeySize bytes.
	EncryptKeyFor(ctx context.Context, key []byte, e *addr.Endpoint) ([]byte, error)
	// Overhead is the number of bytes Encrypt adds to the plaintext.
	Overhead() int
}

// StdCrypto implements Crypto with ECDSA P-384 signatures, AES-GCM body
// encryption and RSA-OAEP key wrapping for 4096 bit receiver keys.
type StdCrypto struct {
	signing *ecdsa.PrivateKey

	mu   sync.RWMutex
	keys map[*addr.Endpoint]*rsa.PublicKey
}

// NewStdCrypto creates a crypto service signing with key, which must use
// the P-384 curve. key may be nil if nothing is signed.
func NewStdCrypto(key *ecdsa.PrivateKey) (*StdCrypto, error) {
	if key != nil && key.Curve != elliptic.P384() {
		return nil, fmt.Errorf("dist: signing key must use P-384")
	}
	return &StdCrypto{signing: key, keys: make(map[*addr.Endpoint]*rsa.PublicKey)}, nil
}

// SetEndpointKey registers the public key used to wrap symmetric keys for e.
func (c *StdCrypto) SetEndpointKey(e *addr.Endpoint, pub *rsa.PublicKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[e] = pub
}

func (c *StdCrypto) Sign(_ context.Context, data []byte) ([]byte, error) {
	if c.signing == nil {
		return nil, dxerr.Compiler("No signing key provided")
	}
	digest := sha512.Sum384(data)
	r, s, err := ecdsa.Sign(rand.Reader, c.signing, digest[:])
	if err != nil {
		return nil, fmt.Errorf("dist: sign: %w", err)
	}
	sig := make([]byte, dxb.SignatureSize)
	r.FillBytes(sig[:dxb.SignatureSize/2])
	s.FillBytes(sig[dxb.SignatureSize/2:])
	return sig, nil
}

// Verify checks a signature produced by Sign.
func Verify(pub *ecdsa.PublicKey, data, sig []byte) bool {
	if len(sig) != dxb.SignatureSize {
		return false
	}
	digest := sha512.Sum384(data)
	r := new(big.Int).SetBytes(sig[:dxb.SignatureSize/2])
	s := new(big.Int).SetBytes(sig[dxb.SignatureSize/2:])
	return ecdsa.Verify(pub, digest[:], r, s)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, dxerr.Compiler("Invalid symmetric encryption key: %v", err)
	}
	return cipher.NewGCMWithNonceSize(block, dxb.IVSize)
}

func (c *StdCrypto) Encrypt(_ context.Context, data, key []byte) ([]byte, []byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	iv := make([]byte, dxb.IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("dist: generate iv: %w", err)
	}
	return gcm.Seal(nil, iv, data, nil), iv, nil
}

// Decrypt opens data sealed by Encrypt.
func Decrypt(sealed, key, iv []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("dist: decrypt: %w", err)
	}
	return plain, nil
}

func (c *StdCrypto) EncryptKeyFor(_ context.Context, key []byte, e *addr.Endpoint) ([]byte, error) {
	c.mu.RLock()
	pub := c.keys[e]
	c.mu.RUnlock()
	if pub == nil {
		return nil, dxerr.Compiler("No public encryption key for %s", e)
	}
	if pub.Size() != dxb.EncryptedKeySize {
		return nil, dxerr.Compiler("Public encryption key for %s must be %d bits", e, dxb.EncryptedKeySize*8)
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("dist: wrap key for %s: %w", e, err)
	}
	return wrapped, nil
}

// Overhead is the GCM tag size.
func (c *StdCrypto) Overhead() int { return 16 }
