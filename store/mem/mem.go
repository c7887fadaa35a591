// Package mem implements an in-memory object store.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/blockvault/bv"
	"github.com/blockvault/bv/store"
)

var _ store.Store = &Store{}

type object struct {
	data []byte
	md   store.Metadata
}

// Store is a memory-based implementation of an object store.
// Mostly useful in tests.
type Store struct {
	mu      sync.Mutex
	objects map[string]object
}

// New produces a new Store.
func New() *Store {
	return &Store{objects: make(map[string]object)}
}

// Has tells whether an object exists at key.
func (s *Store) Has(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

// Stat returns the metadata of the object at key.
func (s *Store) Stat(_ context.Context, key string) (store.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[key]
	if !ok {
		return nil, bv.ErrNotFound
	}
	return o.md.Clone(), nil
}

// Get returns the content and metadata of the object at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, store.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.objects[key]
	if !ok {
		return nil, nil, bv.ErrNotFound
	}
	data := make([]byte, len(o.data))
	copy(data, o.data)
	return data, o.md.Clone(), nil
}

// Put stores data and metadata at key.
func (s *Store) Put(_ context.Context, key string, data []byte, md store.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)
	s.objects[key] = object{data: stored, md: md.Clone()}
	return nil
}

// Delete removes the object at key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return bv.ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

// List calls f for every key in the store, in lexicographic order.
func (s *Store) List(_ context.Context, f func(key string) error) error {
	s.mu.Lock()
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	sort.Strings(keys)
	for _, key := range keys {
		if err := f(key); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (store.Store, error) {
		return New(), nil
	})
}
