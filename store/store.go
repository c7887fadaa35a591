// Package store defines the remote object-storage capability the vault
// uploads to, and a registry of backend factories.
package store

import "context"

// Metadata is the string metadata persisted alongside an object.
// The vault uses it to carry the write-time integrity checksum.
type Metadata map[string]string

// ChecksumKey is the metadata key under which the block store client
// records the blake2b digest of the object's content.
const ChecksumKey = "checksum"

// Clone returns a copy of m, so stores can retain metadata without
// aliasing caller memory.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store is a remote object store. Object names are opaque strings; the
// vault uses hex content addresses. Put is last-writer-wins, which is
// harmless under content addressing: an identical name implies identical
// content.
//
// Get, Stat and Delete report a missing object with bv.ErrNotFound
// (possibly wrapped).
type Store interface {
	// Has tells whether an object exists at key.
	Has(ctx context.Context, key string) (bool, error)

	// Stat returns the metadata of the object at key without downloading
	// its content.
	Stat(ctx context.Context, key string) (Metadata, error)

	// Get returns the content and metadata of the object at key.
	Get(ctx context.Context, key string) ([]byte, Metadata, error)

	// Put durably stores data and metadata at key.
	Put(ctx context.Context, key string, data []byte, md Metadata) error

	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error

	// List calls f for every key in the store. Order is unspecified.
	// If f returns an error, List stops and returns it.
	List(ctx context.Context, f func(key string) error) error
}
