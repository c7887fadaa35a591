// Package blockstore turns plaintext blocks into durably stored remote
// objects and fetches them back with integrity verification.
package blockstore

import (
	"context"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/minio/blake2b-simd"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/blockvault/bv"
	"github.com/blockvault/bv/store"
	"github.com/blockvault/bv/wrap"
)

// Client encrypts blocks, derives their content addresses, and issues
// PUT/GET/DELETE against a remote object store.
type Client struct {
	s   store.Store
	reg *wrap.Registry
	cfg bv.Config
	log *zap.SugaredLogger

	// resident remembers addresses known to exist remotely, so repeat puts
	// of the same content skip the network entirely.
	resident *lru.Cache

	// flight collapses concurrent puts of the same address into one upload.
	flight singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// Logger sets the client's logger. The default discards everything.
func Logger(log *zap.Logger) Option {
	return func(c *Client) {
		c.log = log.Sugar()
	}
}

// New produces a new Client over s, resolving wrapper tags in reg.
func New(s store.Store, reg *wrap.Registry, cfg bv.Config, opts ...Option) (*Client, error) {
	resident, err := lru.New(cfg.ResidencyCache)
	if err != nil {
		return nil, errors.Wrap(err, "creating residency cache")
	}
	c := &Client{
		s:        s,
		reg:      reg,
		cfg:      cfg,
		log:      zap.NewNop().Sugar(),
		resident: resident,
	}
	for _, apply := range opts {
		apply(c)
	}
	return c, nil
}

func checksum(data []byte) string {
	h, err := blake2b.New(&blake2b.Config{Size: 32})
	if err != nil {
		panic(err) // fixed config, cannot fail
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// retry runs f, retrying transient failures with exponential backoff up to
// the configured attempt count. Non-transient failures return immediately.
func (c *Client) retry(ctx context.Context, desc string, f func() error) error {
	delay := c.cfg.RetryBase
	for attempt := 0; ; attempt++ {
		err := f()
		if err == nil || !errors.Is(err, bv.ErrTransient) {
			return err
		}
		if attempt >= c.cfg.MaxRetries {
			return errors.Wrapf(err, "%s: giving up after %d attempts", desc, attempt+1)
		}
		c.log.Warnw("retrying", "op", desc, "attempt", attempt+1, "delay", delay, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// Put encrypts plaintext under tag, computes the ciphertext's content
// address, and stores the ciphertext at that address if no object is already
// there. The added result is false on a dedup hit.
func (c *Client) Put(ctx context.Context, plaintext bv.Blob, tag wrap.Tag) (bv.Addr, bool, error) {
	ciphertext, err := c.reg.Encrypt(tag, plaintext)
	if err != nil {
		return bv.Zero, false, errors.Wrapf(err, "encrypting block under tag %q", tag)
	}
	addr := bv.AddrOf(ciphertext)
	key := addr.String()

	if c.resident.Contains(addr) {
		return addr, false, nil
	}

	v, err, shared := c.flight.Do(key, func() (interface{}, error) {
		added, err := c.putObject(ctx, key, ciphertext)
		if err != nil {
			return false, err
		}
		c.resident.Add(addr, struct{}{})
		return added, nil
	})
	if err != nil {
		return addr, false, err
	}
	return addr, v.(bool) && !shared, nil
}

func (c *Client) putObject(ctx context.Context, key string, ciphertext bv.Blob) (added bool, err error) {
	var has bool
	err = c.retry(ctx, "has "+key, func() error {
		var err error
		has, err = c.s.Has(ctx, key)
		return err
	})
	if err != nil {
		return false, errors.Wrapf(err, "checking existence of %s", key)
	}
	if has {
		c.log.Debugw("dedup hit", "addr", key)
		return false, nil
	}

	sum := checksum(ciphertext)
	md := store.Metadata{store.ChecksumKey: sum}
	err = c.retry(ctx, "put "+key, func() error {
		return c.s.Put(ctx, key, ciphertext, md)
	})
	if err != nil {
		return false, errors.Wrapf(err, "storing object %s", key)
	}

	// Write-time verification: confirm the stored metadata carries the
	// checksum we just computed, without trusting the PUT's own success.
	var stored store.Metadata
	err = c.retry(ctx, "stat "+key, func() error {
		var err error
		stored, err = c.s.Stat(ctx, key)
		return err
	})
	if err != nil {
		return false, errors.Wrapf(err, "verifying object %s", key)
	}
	if stored[store.ChecksumKey] != sum {
		return false, errors.Wrapf(bv.ErrIntegrity, "object %s: stored checksum %q does not match %q", key, stored[store.ChecksumKey], sum)
	}

	c.log.Infow("stored block", "addr", key, "bytes", len(ciphertext))
	return true, nil
}

// Get downloads the ciphertext at addr, verifies it against the checksum
// recorded at write time, and decrypts it under tag.
func (c *Client) Get(ctx context.Context, addr bv.Addr, tag wrap.Tag) (bv.Blob, error) {
	key := addr.String()

	var (
		data []byte
		md   store.Metadata
	)
	err := c.retry(ctx, "get "+key, func() error {
		var err error
		data, md, err = c.s.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching object %s", key)
	}

	stored, ok := md[store.ChecksumKey]
	if !ok {
		return nil, errors.Wrapf(bv.ErrIntegrity, "object %s has no recorded checksum", key)
	}
	if sum := checksum(data); sum != stored {
		return nil, errors.Wrapf(bv.ErrIntegrity, "object %s: checksum %q does not match recorded %q", key, sum, stored)
	}

	plaintext, err := c.reg.Decrypt(tag, data)
	if err != nil {
		return nil, errors.Wrapf(err, "decrypting object %s under tag %q", key, tag)
	}
	c.resident.Add(addr, struct{}{})
	return plaintext, nil
}

// Delete removes the object at addr. Deleting an absent object is a no-op.
func (c *Client) Delete(ctx context.Context, addr bv.Addr) error {
	key := addr.String()
	err := c.retry(ctx, "delete "+key, func() error {
		err := c.s.Delete(ctx, key)
		if errors.Is(err, bv.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "deleting object %s", key)
	}
	c.resident.Remove(addr)
	return nil
}

// Resident tells whether addr is locally known to exist remotely.
func (c *Client) Resident(addr bv.Addr) bool {
	return c.resident.Contains(addr)
}

// ListAddrs calls f for every content address present remotely.
// Keys that do not parse as addresses are skipped.
func (c *Client) ListAddrs(ctx context.Context, f func(bv.Addr) error) error {
	return c.s.List(ctx, func(key string) error {
		addr, err := bv.AddrFromHex(key)
		if err != nil {
			c.log.Warnw("skipping foreign object", "key", key)
			return nil
		}
		return f(addr)
	})
}
