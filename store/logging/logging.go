// Package logging implements a store that delegates everything to a nested
// store, logging operations as they happen.
package logging

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/blockvault/bv/store"
)

var _ store.Store = &Store{}

// Store wraps a nested store with zap logging.
type Store struct {
	s   store.Store
	log *zap.SugaredLogger
}

// New produces a new Store logging to log.
func New(s store.Store, log *zap.Logger) *Store {
	return &Store{s: s, log: log.Sugar()}
}

// Has implements store.Store.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	ok, err := s.s.Has(ctx, key)
	if err != nil {
		s.log.Errorw("has", "key", key, "err", err)
	} else {
		s.log.Debugw("has", "key", key, "ok", ok)
	}
	return ok, err
}

// Stat implements store.Store.
func (s *Store) Stat(ctx context.Context, key string) (store.Metadata, error) {
	md, err := s.s.Stat(ctx, key)
	if err != nil {
		s.log.Errorw("stat", "key", key, "err", err)
	} else {
		s.log.Debugw("stat", "key", key)
	}
	return md, err
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key string) ([]byte, store.Metadata, error) {
	data, md, err := s.s.Get(ctx, key)
	if err != nil {
		s.log.Errorw("get", "key", key, "err", err)
	} else {
		s.log.Infow("get", "key", key, "bytes", len(data))
	}
	return data, md, err
}

// Put implements store.Store.
func (s *Store) Put(ctx context.Context, key string, data []byte, md store.Metadata) error {
	err := s.s.Put(ctx, key, data, md)
	if err != nil {
		s.log.Errorw("put", "key", key, "err", err)
	} else {
		s.log.Infow("put", "key", key, "bytes", len(data))
	}
	return err
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.s.Delete(ctx, key)
	if err != nil {
		s.log.Errorw("delete", "key", key, "err", err)
	} else {
		s.log.Infow("delete", "key", key)
	}
	return err
}

// List implements store.Store.
func (s *Store) List(ctx context.Context, f func(key string) error) error {
	s.log.Debugw("list")
	return s.s.List(ctx, func(key string) error {
		s.log.Debugw("list", "key", key)
		return f(key)
	})
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (store.Store, error) {
		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.New(`"nested" parameter missing "type"`)
		}
		nestedStore, err := store.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		log, err := zap.NewProduction()
		if err != nil {
			return nil, errors.Wrap(err, "creating logger")
		}
		return New(nestedStore, log), nil
	})
}
