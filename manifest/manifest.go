// Package manifest records which blocks compose one backup generation.
//
// A manifest is itself stored as an encrypted block, so access to it is
// gated by possession of the decryption key for its wrapper tag.
package manifest

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/blockvault/bv"
	"github.com/blockvault/bv/wrap"
)

// FormatVersion is the serialization format this code writes.
// Readers dispatch on the version found in the data, so future formats can
// coexist with old blocks indefinitely.
const FormatVersion = 1

// Entry names one block of the backup: where it lives, how big its
// plaintext was, and which wrapper encrypted it.
type Entry struct {
	Addr    bv.Addr  `json:"addr"`
	Size    int64    `json:"size"`
	Wrapper wrap.Tag `json:"wrapper"`
}

// Manifest is the complete record of one backup generation. Entry order is
// preserved: it is part of the public contract, and restore paths depend
// on it.
type Manifest struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

// New assembles a manifest over entries, stamping it with a fresh ID and
// the current time.
func New(entries []Entry) *Manifest {
	return &Manifest{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Entries:   entries,
	}
}

type envelope struct {
	FormatVersion int `json:"format_version"`
	*Manifest
}

// Encode serializes m. The format version is the envelope's first field.
func (m *Manifest) Encode() (bv.Blob, error) {
	raw, err := json.Marshal(envelope{FormatVersion: FormatVersion, Manifest: m})
	return bv.Blob(raw), errors.Wrap(err, "encoding manifest")
}

// Decode parses an encoded manifest, dispatching on its format version.
// Data written by a newer format fails with bv.ErrUnsupportedFormat rather
// than misparsing.
func Decode(b bv.Blob) (*Manifest, error) {
	var version struct {
		FormatVersion int `json:"format_version"`
	}
	if err := json.Unmarshal(b, &version); err != nil {
		return nil, errors.Wrap(err, "reading manifest format version")
	}

	switch version.FormatVersion {
	case FormatVersion:
		var e envelope
		e.Manifest = new(Manifest)
		if err := json.Unmarshal(b, &e); err != nil {
			return nil, errors.Wrap(err, "decoding manifest")
		}
		return e.Manifest, nil
	default:
		return nil, errors.Wrapf(bv.ErrUnsupportedFormat, "format version %d (reader supports up to %d)", version.FormatVersion, FormatVersion)
	}
}

// Storer stores one block. *blockstore.Client satisfies it.
type Storer interface {
	Put(ctx context.Context, plaintext bv.Blob, tag wrap.Tag) (bv.Addr, bool, error)
}

// Getter fetches one block. *blockstore.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, addr bv.Addr, tag wrap.Tag) (bv.Blob, error)
}

// Store encodes m and stores it as an encrypted block under tag, returning
// the manifest's own content address.
func Store(ctx context.Context, s Storer, m *Manifest, tag wrap.Tag) (bv.Addr, error) {
	encoded, err := m.Encode()
	if err != nil {
		return bv.Zero, err
	}
	addr, _, err := s.Put(ctx, encoded, tag)
	return addr, errors.Wrap(err, "storing manifest block")
}

// Load fetches and decodes the manifest at addr. A missing decryption key
// surfaces as bv.ErrCrypto; that is the intended access control.
func Load(ctx context.Context, g Getter, addr bv.Addr, tag wrap.Tag) (*Manifest, error) {
	encoded, err := g.Get(ctx, addr, tag)
	if err != nil {
		return nil, errors.Wrapf(err, "loading manifest %s", addr)
	}
	return Decode(encoded)
}
