package wrap

import (
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/blockvault/bv"
)

// Zstd compresses plaintext with zstandard before handing it to an inner
// wrapper, and decompresses after the inner wrapper decrypts. Compressing
// before encryption is what makes compression possible at all: ciphertext
// does not compress.
type Zstd struct {
	inner Wrapper
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewZstd wraps inner with zstandard compression.
func NewZstd(inner Wrapper) (*Zstd, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd encoder")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd decoder")
	}
	return &Zstd{inner: inner, enc: enc, dec: dec}, nil
}

// Encrypt implements Wrapper.
func (z *Zstd) Encrypt(plaintext bv.Blob) (bv.Blob, error) {
	return z.inner.Encrypt(z.enc.EncodeAll(plaintext, nil))
}

// Decrypt implements Wrapper.
func (z *Zstd) Decrypt(ciphertext bv.Blob) (bv.Blob, error) {
	compressed, err := z.inner.Decrypt(ciphertext)
	if err != nil {
		return nil, err
	}
	plaintext, err := z.dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, errors.Wrap(bv.ErrCrypto, err.Error())
	}
	return plaintext, nil
}
