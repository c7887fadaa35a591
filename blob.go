package bv

import (
	"bytes"
	"encoding/hex"
)

// Blob is an immutable-by-convention byte sequence.
//
// Converting a []byte to a Blob transfers ownership:
// the caller must not mutate the slice afterward.
// Use CopyBlob when the caller needs to keep writing to its buffer.
type Blob []byte

// CopyBlob makes a Blob from a copy of b.
func CopyBlob(b []byte) Blob {
	out := make(Blob, len(b))
	copy(out, b)
	return out
}

// BlobFromString makes a Blob of the UTF-8 encoding of s.
func BlobFromString(s string) Blob {
	return Blob(s)
}

// BlobFromHex decodes a hex string into a Blob.
func BlobFromHex(s string) (Blob, error) {
	b, err := hex.DecodeString(s)
	return Blob(b), err
}

// String interprets the blob as UTF-8 text.
func (b Blob) String() string {
	return string(b)
}

// Hex renders the blob as lowercase hex.
func (b Blob) Hex() string {
	return hex.EncodeToString(b)
}

// Equal compares blobs by content.
func (b Blob) Equal(other Blob) bool {
	return bytes.Equal(b, other)
}
