package wrap

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/blockvault/bv"
)

// KeySize is the master key size for XChaCha.
const KeySize = 32

// XChaCha encrypts with XChaCha20-Poly1305 using a nonce derived from the
// plaintext (a SIV-style construction): the nonce is a keyed hash of the
// plaintext under a key separate from the encryption key. Encryption is
// therefore deterministic, and deduplication works at the ciphertext level.
// The cost is that an observer can tell when two blocks are equal, which is
// inherent to content-addressed dedup anyway.
type XChaCha struct {
	aead     cipher.AEAD
	nonceKey []byte
}

// NewXChaCha builds an XChaCha wrapper from a 32-byte master key.
// The encryption key and the nonce-derivation key are both derived from it
// with HKDF-SHA256, so a single secret per tag suffices.
func NewXChaCha(masterKey []byte) (*XChaCha, error) {
	if len(masterKey) != KeySize {
		return nil, errors.Wrapf(bv.ErrCrypto, "master key is %d bytes, want %d", len(masterKey), KeySize)
	}

	encKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte("bv/enc")), encKey); err != nil {
		return nil, errors.Wrap(err, "deriving encryption key")
	}
	nonceKey := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte("bv/nonce")), nonceKey); err != nil {
		return nil, errors.Wrap(err, "deriving nonce key")
	}

	aead, err := chacha20poly1305.NewX(encKey)
	if err != nil {
		return nil, errors.Wrap(bv.ErrCrypto, err.Error())
	}
	return &XChaCha{aead: aead, nonceKey: nonceKey}, nil
}

func (x *XChaCha) nonce(plaintext bv.Blob) []byte {
	mac := hmac.New(sha256.New, x.nonceKey)
	mac.Write(plaintext)
	return mac.Sum(nil)[:chacha20poly1305.NonceSizeX]
}

// Encrypt implements Wrapper. The nonce is prepended to the sealed box.
func (x *XChaCha) Encrypt(plaintext bv.Blob) (bv.Blob, error) {
	nonce := x.nonce(plaintext)
	out := make([]byte, len(nonce), len(nonce)+len(plaintext)+16)
	copy(out, nonce)
	return x.aead.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt implements Wrapper.
func (x *XChaCha) Decrypt(ciphertext bv.Blob) (bv.Blob, error) {
	if len(ciphertext) < chacha20poly1305.NonceSizeX {
		return nil, errors.Wrap(bv.ErrCrypto, "ciphertext shorter than nonce")
	}
	nonce := ciphertext[:chacha20poly1305.NonceSizeX]
	plaintext, err := x.aead.Open(nil, nonce, ciphertext[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return nil, errors.Wrap(bv.ErrCrypto, err.Error())
	}
	return plaintext, nil
}
