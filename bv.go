// Package bv defines the value types shared by the block vault:
// blobs, content addresses, the error taxonomy, and configuration.
package bv

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

// Addr is the content address of a stored block:
// the sha256 hash of its ciphertext.
// Identical ciphertext always yields an identical Addr,
// which is what makes deduplication work.
type Addr [sha256.Size]byte

// Zero is the zero value of an Addr.
var Zero Addr

// AddrOf computes the content address of b.
func AddrOf(b Blob) Addr {
	return sha256.Sum256(b)
}

func (a Addr) String() string {
	return hex.EncodeToString(a[:])
}

// Less tells whether a sorts before other.
func (a Addr) Less(other Addr) bool {
	return bytes.Compare(a[:], other[:]) < 0
}

// FromHex parses the hex string s into a.
func (a *Addr) FromHex(s string) error {
	if len(s) != 2*sha256.Size {
		return errors.New("wrong length for address")
	}
	_, err := hex.Decode(a[:], []byte(s))
	return err
}

// AddrFromHex parses a hex string as an Addr.
func AddrFromHex(s string) (Addr, error) {
	var out Addr
	err := out.FromHex(s)
	return out, err
}

// AddrFromBytes converts a byte slice to an Addr.
func AddrFromBytes(b []byte) Addr {
	var out Addr
	copy(out[:], b)
	return out
}

// MarshalText implements encoding.TextMarshaler,
// rendering a as lowercase hex.
func (a Addr) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Addr) UnmarshalText(text []byte) error {
	return a.FromHex(string(text))
}
