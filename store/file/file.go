// Package file implements an object store as a file hierarchy.
package file

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/blockvault/bv"
	"github.com/blockvault/bv/store"
)

var _ store.Store = &Store{}

// Store is a file-based implementation of an object store.
// Object content lives in write-once files fanned out by name prefix;
// metadata lives in a JSON sidecar next to the content.
//
// Keys are hex-encoded into file names, so arbitrary key strings are safe.
type Store struct {
	fs afero.Fs
}

// New produces a new Store storing data beneath root on the OS filesystem.
func New(root string) *Store {
	return &Store{fs: afero.NewBasePathFs(afero.NewOsFs(), root)}
}

// NewWithFs produces a new Store on an arbitrary afero filesystem.
// Handy for tests with afero.NewMemMapFs.
func NewWithFs(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

const metaSuffix = ".meta"

func objPath(key string) string {
	name := hex.EncodeToString([]byte(key))
	prefix := name
	if len(prefix) > 2 {
		prefix = prefix[:2]
	}
	return filepath.Join("objects", prefix, name)
}

// Has tells whether an object exists at key.
func (s *Store) Has(_ context.Context, key string) (bool, error) {
	fi, err := s.fs.Stat(objPath(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "statting %s", objPath(key))
	}
	return !fi.IsDir(), nil
}

// Stat returns the metadata of the object at key.
func (s *Store) Stat(ctx context.Context, key string) (store.Metadata, error) {
	ok, err := s.Has(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, bv.ErrNotFound
	}
	return s.readMeta(key)
}

func (s *Store) readMeta(key string) (store.Metadata, error) {
	raw, err := afero.ReadFile(s.fs, objPath(key)+metaSuffix)
	if os.IsNotExist(err) {
		return nil, nil // object stored without metadata
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading metadata for %s", key)
	}
	var md store.Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, errors.Wrapf(err, "decoding metadata for %s", key)
	}
	return md, nil
}

// Get returns the content and metadata of the object at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, store.Metadata, error) {
	data, err := afero.ReadFile(s.fs, objPath(key))
	if os.IsNotExist(err) {
		return nil, nil, bv.ErrNotFound
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading %s", objPath(key))
	}
	md, err := s.readMeta(key)
	if err != nil {
		return nil, nil, err
	}
	return data, md, nil
}

// Put stores data and metadata at key.
func (s *Store) Put(_ context.Context, key string, data []byte, md store.Metadata) error {
	path := objPath(key)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "ensuring path %s exists", filepath.Dir(path))
	}

	if md != nil {
		raw, err := json.Marshal(md)
		if err != nil {
			return errors.Wrapf(err, "encoding metadata for %s", key)
		}
		if err := afero.WriteFile(s.fs, path+metaSuffix, raw, 0644); err != nil {
			return errors.Wrapf(err, "writing metadata for %s", key)
		}
	}

	if err := afero.WriteFile(s.fs, path, data, 0644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// Delete removes the object at key.
func (s *Store) Delete(_ context.Context, key string) error {
	path := objPath(key)
	err := s.fs.Remove(path)
	if os.IsNotExist(err) {
		return bv.ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "removing %s", path)
	}
	if err := s.fs.Remove(path + metaSuffix); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing metadata for %s", key)
	}
	return nil
}

// List calls f for every key in the store.
func (s *Store) List(_ context.Context, f func(key string) error) error {
	root := "objects"
	if ok, err := afero.DirExists(s.fs, root); err != nil || !ok {
		return err
	}

	prefixes, err := afero.ReadDir(s.fs, root)
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", root)
	}
	for _, prefix := range prefixes {
		if !prefix.IsDir() {
			continue
		}
		infos, err := afero.ReadDir(s.fs, filepath.Join(root, prefix.Name()))
		if err != nil {
			return errors.Wrapf(err, "reading dir %s/%s", root, prefix.Name())
		}
		for _, info := range infos {
			name := info.Name()
			if info.IsDir() || filepath.Ext(name) == metaSuffix {
				continue
			}
			key, err := hex.DecodeString(name)
			if err != nil {
				continue // not one of ours
			}
			if err := f(string(key)); err != nil {
				return err
			}
		}
	}
	return nil
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (store.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
