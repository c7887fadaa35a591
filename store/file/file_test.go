package file

import (
	"context"
	"testing"

	"github.com/spf13/afero"

	"github.com/blockvault/bv/store"
	"github.com/blockvault/bv/testutil"
)

func TestStore(t *testing.T) {
	testutil.Conformance(context.Background(), t, NewWithFs(afero.NewMemMapFs()))
}

func TestAllKeys(t *testing.T) {
	testutil.AllKeys(context.Background(), t, func() store.Store {
		return NewWithFs(afero.NewMemMapFs())
	})
}

func TestOnDisk(t *testing.T) {
	testutil.Conformance(context.Background(), t, New(t.TempDir()))
}
