// Package gcs implements an object store on Google Cloud Storage.
package gcs

import (
	"context"
	stderrs "errors"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/blockvault/bv"
	bvstore "github.com/blockvault/bv/store"
)

var _ bvstore.Store = &Store{}

// Store is a Google Cloud Storage-based implementation of an object store.
type Store struct {
	bucket *storage.BucketHandle
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

// Has tells whether an object exists at key.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.bucket.Object(key).Attrs(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(classify(err), "getting attrs of %s", key)
	}
	return true, nil
}

// Stat returns the metadata of the object at key.
func (s *Store) Stat(ctx context.Context, key string) (bvstore.Metadata, error) {
	attrs, err := s.bucket.Object(key).Attrs(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, bv.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(classify(err), "getting attrs of %s", key)
	}
	return bvstore.Metadata(attrs.Metadata).Clone(), nil
}

// Get returns the content and metadata of the object at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bvstore.Metadata, error) {
	obj := s.bucket.Object(key)

	attrs, err := obj.Attrs(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, nil, bv.ErrNotFound
	}
	if err != nil {
		return nil, nil, errors.Wrapf(classify(err), "getting attrs of %s", key)
	}

	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, nil, errors.Wrapf(classify(err), "opening reader for %s", key)
	}
	defer r.Close()

	data := make([]byte, r.Attrs.Size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, nil, errors.Wrapf(classify(err), "reading contents of %s", key)
	}
	return data, bvstore.Metadata(attrs.Metadata).Clone(), nil
}

// Put stores data and metadata at key. Writes are conditional on the object
// not existing; losing that race is fine, since under content addressing the
// other writer stored identical bytes.
func (s *Store) Put(ctx context.Context, key string, data []byte, md bvstore.Metadata) error {
	obj := s.bucket.Object(key).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	if md != nil {
		w.Metadata = md
	}

	_, err := w.Write(data)
	if err == nil {
		err = w.Close()
	} else {
		w.Close()
	}

	var e *googleapi.Error
	if stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed {
		return nil
	}
	return errors.Wrapf(classify(err), "writing object %s", key)
}

// Delete removes the object at key.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.bucket.Object(key).Delete(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return bv.ErrNotFound
	}
	return errors.Wrapf(classify(err), "deleting object %s", key)
}

// List calls f for every key in the bucket, in lexicographic order.
func (s *Store) List(ctx context.Context, f func(key string) error) error {
	iter := s.bucket.Objects(ctx, nil)
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return classify(err)
		}
		if err := f(obj.Name); err != nil {
			return err
		}
	}
}

// classify wraps service-side failures as transient so callers can apply
// their retry policy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(bv.ErrTransient, err.Error())
}

func init() {
	bvstore.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (bvstore.Store, error) {
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		var opts []option.ClientOption
		if creds, ok := conf["creds"].(string); ok {
			opts = append(opts, option.WithCredentialsFile(creds))
		}
		c, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName)), nil
	})
}
