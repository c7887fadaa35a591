// Package s3 implements an object store on Amazon S3.
package s3

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	awss3 "github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"

	"github.com/blockvault/bv"
	"github.com/blockvault/bv/store"
)

var _ store.Store = &Store{}

// Store is an S3-based implementation of an object store.
type Store struct {
	bucket     string
	s3         *awss3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
}

// Option configures a Store.
type Option func(*Store)

// Bucket sets the bucket objects are stored in.
func Bucket(bucket string) Option {
	return func(s *Store) {
		s.bucket = bucket
	}
}

// New produces a new Store from an AWS session.
func New(sess *session.Session, opts ...Option) *Store {
	s := new(Store)
	for _, apply := range opts {
		apply(s)
	}
	s.s3 = awss3.New(sess)
	s.uploader = s3manager.NewUploaderWithClient(s.s3)
	s.downloader = s3manager.NewDownloaderWithClient(s.s3)
	return s
}

func notFound(err error) bool {
	var rerr awserr.RequestFailure
	return errors.As(err, &rerr) && rerr.StatusCode() == http.StatusNotFound
}

// Has tells whether an object exists at key.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.s3.HeadObjectWithContext(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if notFound(err) {
			return false, nil
		}
		return false, errors.Wrapf(bv.ErrTransient, "head %s: %v", key, err)
	}
	return true, nil
}

// Stat returns the metadata of the object at key.
func (s *Store) Stat(ctx context.Context, key string) (store.Metadata, error) {
	head, err := s.s3.HeadObjectWithContext(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if notFound(err) {
			return nil, bv.ErrNotFound
		}
		return nil, errors.Wrapf(bv.ErrTransient, "head %s: %v", key, err)
	}
	return fromAWSMetadata(head.Metadata), nil
}

// Get returns the content and metadata of the object at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, store.Metadata, error) {
	obj, err := s.s3.GetObjectWithContext(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if notFound(err) {
			return nil, nil, bv.ErrNotFound
		}
		return nil, nil, errors.Wrapf(bv.ErrTransient, "get %s: %v", key, err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, nil, errors.Wrapf(bv.ErrTransient, "reading %s: %v", key, err)
	}
	return data, fromAWSMetadata(obj.Metadata), nil
}

// Put stores data and metadata at key.
func (s *Store) Put(ctx context.Context, key string, data []byte, md store.Metadata) error {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     bytes.NewReader(data),
		Metadata: toAWSMetadata(md),
	})
	if err != nil {
		return errors.Wrapf(bv.ErrTransient, "put %s: %v", key, err)
	}
	return nil
}

// Delete removes the object at key.
//
// S3 DeleteObject succeeds on missing keys, so a Has check distinguishes the
// bv.ErrNotFound case callers may want to treat as benign.
func (s *Store) Delete(ctx context.Context, key string) error {
	ok, err := s.Has(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return bv.ErrNotFound
	}
	_, err = s.s3.DeleteObjectWithContext(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return errors.Wrapf(bv.ErrTransient, "delete %s: %v", key, err)
	}
	return nil
}

// List calls f for every key in the bucket.
func (s *Store) List(ctx context.Context, f func(key string) error) error {
	var ferr error
	err := s.s3.ListObjectsV2PagesWithContext(ctx, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}, func(page *awss3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			if ferr = f(aws.StringValue(obj.Key)); ferr != nil {
				return false
			}
		}
		return true
	})
	if ferr != nil {
		return ferr
	}
	if err != nil {
		return errors.Wrapf(bv.ErrTransient, "listing bucket %s: %v", s.bucket, err)
	}
	return nil
}

func toAWSMetadata(md store.Metadata) map[string]*string {
	if md == nil {
		return nil
	}
	out := make(map[string]*string, len(md))
	for k, v := range md {
		out[k] = aws.String(v)
	}
	return out
}

// fromAWSMetadata lowercases keys: S3 canonicalizes metadata keys as HTTP
// headers, so "checksum" comes back "Checksum".
func fromAWSMetadata(md map[string]*string) store.Metadata {
	if md == nil {
		return nil
	}
	out := make(store.Metadata, len(md))
	for k, v := range md {
		out[strings.ToLower(k)] = aws.StringValue(v)
	}
	return out
}

func init() {
	store.Register("s3", func(_ context.Context, conf map[string]interface{}) (store.Store, error) {
		bucket, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		cfg := aws.NewConfig()
		if region, ok := conf["region"].(string); ok {
			cfg = cfg.WithRegion(region)
		}
		sess, err := session.NewSession(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "creating aws session")
		}
		return New(sess, Bucket(bucket)), nil
	})
}
