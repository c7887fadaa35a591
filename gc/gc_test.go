package gc

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockvault/bv"
	"github.com/blockvault/bv/blockstore"
	"github.com/blockvault/bv/manifest"
	"github.com/blockvault/bv/store/mem"
	"github.com/blockvault/bv/wrap"
)

const testTag wrap.Tag = "v1"

func newClient(t *testing.T, seed byte) (*blockstore.Client, *mem.Store) {
	t.Helper()

	reg := wrap.NewRegistry()
	w, err := wrap.NewXChaCha(bytes.Repeat([]byte{seed}, wrap.KeySize))
	require.NoError(t, err)
	require.NoError(t, reg.Register(testTag, w))

	s := mem.New()
	c, err := blockstore.New(s, reg, bv.DefaultConfig())
	require.NoError(t, err)
	return c, s
}

func putBlock(ctx context.Context, t *testing.T, c *blockstore.Client, content string) manifest.Entry {
	t.Helper()
	b := bv.BlobFromString(content)
	addr, _, err := c.Put(ctx, b, testTag)
	require.NoError(t, err)
	return manifest.Entry{Addr: addr, Size: int64(len(b)), Wrapper: testTag}
}

func TestRunSweepsUnreferenced(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t, 0x01)

	a := putBlock(ctx, t, c, "block a")
	b := putBlock(ctx, t, c, "block b")
	blkC := putBlock(ctx, t, c, "block c")
	d := putBlock(ctx, t, c, "block d")

	m1Addr, err := manifest.Store(ctx, c, manifest.New([]manifest.Entry{a, b}), testTag)
	require.NoError(t, err)
	m2Addr, err := manifest.Store(ctx, c, manifest.New([]manifest.Entry{b, blkC}), testTag)
	require.NoError(t, err)

	// Retain only the first manifest. The second manifest and the blocks
	// only it references become garbage, as does the block no manifest
	// ever referenced.
	summary, err := New(c, bv.DefaultConfig()).Run(ctx, []Ref{{Addr: m1Addr, Wrapper: testTag}})
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Scanned)
	assert.Equal(t, 3, summary.Live)
	assert.Equal(t, 3, summary.Deleted)
	assert.Equal(t, 0, summary.Failed)

	for _, live := range []bv.Addr{a.Addr, b.Addr} {
		_, err := c.Get(ctx, live, testTag)
		assert.NoError(t, err, "live block %s", live)
	}
	_, err = manifest.Load(ctx, c, m1Addr, testTag)
	assert.NoError(t, err, "retained manifest must survive")

	for _, dead := range []bv.Addr{blkC.Addr, d.Addr, m2Addr} {
		_, err := c.Get(ctx, dead, testTag)
		assert.ErrorIs(t, err, bv.ErrNotFound, "garbage block %s", dead)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t, 0x01)

	a := putBlock(ctx, t, c, "block a")
	putBlock(ctx, t, c, "stray")
	mAddr, err := manifest.Store(ctx, c, manifest.New([]manifest.Entry{a}), testTag)
	require.NoError(t, err)

	retained := []Ref{{Addr: mAddr, Wrapper: testTag}}
	collector := New(c, bv.DefaultConfig())

	first, err := collector.Run(ctx, retained)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Deleted)

	second, err := collector.Run(ctx, retained)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Deleted)
	assert.Equal(t, 2, second.Scanned)
}

func TestAbortsWhenManifestUnreadable(t *testing.T) {
	// The retained manifest was written under a key the sweeping client
	// does not hold. The run must abort before deleting anything: an
	// unreadable manifest cannot be proven to reference nothing.
	ctx := context.Background()
	writer, s := newClient(t, 0x01)

	a := putBlock(ctx, t, writer, "block a")
	putBlock(ctx, t, writer, "stray")
	mAddr, err := manifest.Store(ctx, writer, manifest.New([]manifest.Entry{a}), testTag)
	require.NoError(t, err)

	reader, err := blockstore.New(s, func() *wrap.Registry {
		reg := wrap.NewRegistry()
		w, werr := wrap.NewXChaCha(bytes.Repeat([]byte{0x02}, wrap.KeySize))
		require.NoError(t, werr)
		require.NoError(t, reg.Register(testTag, w))
		return reg
	}(), bv.DefaultConfig())
	require.NoError(t, err)

	summary, err := New(reader, bv.DefaultConfig()).Run(ctx, []Ref{{Addr: mAddr, Wrapper: testTag}})
	assert.ErrorIs(t, err, bv.ErrCrypto)
	assert.Equal(t, 0, summary.Deleted)

	var remaining int
	require.NoError(t, reader.ListAddrs(ctx, func(bv.Addr) error {
		remaining++
		return nil
	}))
	assert.Equal(t, 3, remaining, "abort must leave the store untouched")
}

func TestAbortsOnMissingManifest(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t, 0x01)

	putBlock(ctx, t, c, "stray")

	bogus := bv.AddrOf(bv.BlobFromString("never stored"))
	summary, err := New(c, bv.DefaultConfig()).Run(ctx, []Ref{{Addr: bogus, Wrapper: testTag}})
	assert.ErrorIs(t, err, bv.ErrNotFound)
	assert.Equal(t, 0, summary.Deleted)
}

// failingDeletes refuses every delete, for exercising the failure ceiling.
type failingDeletes struct {
	Client
}

func (f failingDeletes) Delete(context.Context, bv.Addr) error {
	return bv.ErrTransient
}

func TestFailureCeilingAbortsRun(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t, 0x01)

	for i := 0; i < 10; i++ {
		putBlock(ctx, t, c, string(rune('a'+i)))
	}

	cfg := bv.DefaultConfig()
	cfg.GCMaxFailures = 2
	cfg.GCConcurrency = 1

	summary, err := New(failingDeletes{c}, cfg).Run(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, 0, summary.Deleted)
	assert.Greater(t, summary.Failed, cfg.GCMaxFailures)
}

func TestEmptyStore(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t, 0x01)

	summary, err := New(c, bv.DefaultConfig()).Run(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, summary)
}
