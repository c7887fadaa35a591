// Package testutil holds conformance helpers shared by the object-store
// backend tests.
package testutil

import (
	"context"
	"errors"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/blockvault/bv"
	"github.com/blockvault/bv/store"
)

// Conformance puts a Store implementation through the behavior every
// backend must share: round-tripping content and metadata, existence
// checks, idempotent content under repeated puts, NotFound reporting, and
// listing.
func Conformance(ctx context.Context, t *testing.T, s store.Store) {
	const key = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	data := []byte("some object content")
	md := store.Metadata{store.ChecksumKey: "abc123"}

	// Empty store.
	ok, err := s.Has(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("empty store claims to have object")
	}
	if _, _, err := s.Get(ctx, key); !errors.Is(err, bv.ErrNotFound) {
		t.Fatalf("Get on empty store: got %v, want ErrNotFound", err)
	}
	if _, err := s.Stat(ctx, key); !errors.Is(err, bv.ErrNotFound) {
		t.Fatalf("Stat on empty store: got %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, key); !errors.Is(err, bv.ErrNotFound) {
		t.Fatalf("Delete on empty store: got %v, want ErrNotFound", err)
	}

	// Round trip.
	if err := s.Put(ctx, key, data, md); err != nil {
		t.Fatal(err)
	}
	ok, err = s.Has(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("stored object not reported by Has")
	}

	got, gotMD, err := s.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(data, got); diff != "" {
		t.Errorf("content mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(md, gotMD); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	statMD, err := s.Stat(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(md, statMD); diff != "" {
		t.Errorf("Stat metadata mismatch (-want +got):\n%s", diff)
	}

	// Re-put of identical content is harmless.
	if err := s.Put(ctx, key, data, md); err != nil {
		t.Fatal(err)
	}

	// Listing.
	var keys []string
	err = s.List(ctx, func(k string) error {
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{key}, keys); diff != "" {
		t.Errorf("listed keys mismatch (-want +got):\n%s", diff)
	}

	// Delete.
	if err := s.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	ok, err = s.Has(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("deleted object still reported by Has")
	}
}

// AllKeys writes a random set of random objects to an empty store and makes
// sure the right key set comes back out of List.
func AllKeys(ctx context.Context, t *testing.T, storeFactory func() store.Store) {
	if err := quick.Check(allKeysHelper(ctx, t, storeFactory), nil); err != nil {
		t.Error(err)
	}
}

func allKeysHelper(ctx context.Context, t *testing.T, storeFactory func() store.Store) func([][]byte) bool {
	return func(blobs [][]byte) bool {
		var (
			s    = storeFactory()
			want []string
			seen = make(map[string]bool)
		)
		for _, blob := range blobs {
			key := bv.AddrOf(blob).String()
			if err := s.Put(ctx, key, blob, nil); err != nil {
				t.Fatal(err)
			}
			if !seen[key] {
				seen[key] = true
				want = append(want, key)
			}
		}
		var got []string
		err := s.List(ctx, func(k string) error {
			got = append(got, k)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		sort.Strings(want)
		sort.Strings(got)

		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}
}
