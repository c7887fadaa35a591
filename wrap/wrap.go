// Package wrap maps wrapper tags to encrypt/decrypt capabilities.
//
// A wrapper tag is persisted alongside every block, so changing the default
// wrapper for new blocks never invalidates old ones and never forces a
// re-upload. The registry is append-only for the same reason: a tag, once
// registered, keeps its meaning for as long as blocks carrying it exist.
package wrap

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/blockvault/bv"
)

// Tag identifies the encryption scheme and key version a block was
// encrypted under.
type Tag string

// Wrapper is an encrypt/decrypt capability.
//
// Encrypt must be deterministic: encrypting the same plaintext twice yields
// identical ciphertext. The content address is the hash of the ciphertext,
// so determinism is what extends deduplication across backup runs.
type Wrapper interface {
	Encrypt(plaintext bv.Blob) (bv.Blob, error)
	Decrypt(ciphertext bv.Blob) (bv.Blob, error)
}

// Registry maps tags to wrappers. It is safe for concurrent use; after
// initialization it is read-mostly.
type Registry struct {
	mu sync.RWMutex
	m  map[Tag]Wrapper
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[Tag]Wrapper)}
}

// Register adds w under tag. Tags are never redefined: registering an
// existing tag is an error.
func (r *Registry) Register(tag Tag, w Wrapper) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.m[tag]; ok {
		return errors.Errorf("wrapper tag %q already registered", tag)
	}
	r.m[tag] = w
	return nil
}

// MustRegister is Register, panicking on error. For init-time wiring.
func (r *Registry) MustRegister(tag Tag, w Wrapper) {
	if err := r.Register(tag, w); err != nil {
		panic(err)
	}
}

// Lookup finds the wrapper for tag.
func (r *Registry) Lookup(tag Tag) (Wrapper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.m[tag]
	if !ok {
		return nil, errors.Wrapf(bv.ErrUnknownWrapper, "tag %q", tag)
	}
	return w, nil
}

// Encrypt encrypts plaintext under the wrapper registered for tag.
func (r *Registry) Encrypt(tag Tag, plaintext bv.Blob) (bv.Blob, error) {
	w, err := r.Lookup(tag)
	if err != nil {
		return nil, err
	}
	return w.Encrypt(plaintext)
}

// Decrypt decrypts ciphertext under the wrapper registered for tag.
func (r *Registry) Decrypt(tag Tag, ciphertext bv.Blob) (bv.Blob, error) {
	w, err := r.Lookup(tag)
	if err != nil {
		return nil, err
	}
	return w.Decrypt(ciphertext)
}
