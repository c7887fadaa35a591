// Package gc reclaims remote storage for blocks referenced by no retained
// manifest: a mark-and-sweep over content addresses.
package gc

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blockvault/bv"
	"github.com/blockvault/bv/manifest"
	"github.com/blockvault/bv/wrap"
)

// Client is the slice of the block store client GC needs.
// *blockstore.Client satisfies it.
type Client interface {
	Get(ctx context.Context, addr bv.Addr, tag wrap.Tag) (bv.Blob, error)
	Delete(ctx context.Context, addr bv.Addr) error
	ListAddrs(ctx context.Context, f func(bv.Addr) error) error
}

// Ref names one retained manifest: its address and the wrapper that can
// decrypt it.
type Ref struct {
	Addr    bv.Addr
	Wrapper wrap.Tag
}

// Summary reports the outcome of one collection run.
type Summary struct {
	// Scanned is the number of remote objects enumerated.
	Scanned int
	// Live is the size of the computed live set.
	Live int
	// Deleted is the number of objects removed.
	Deleted int
	// Failed is the number of deletes that failed.
	Failed int
}

// Collector computes live sets and sweeps unreferenced objects.
type Collector struct {
	c   Client
	cfg bv.Config
	log *zap.SugaredLogger
}

// Option configures a Collector.
type Option func(*Collector)

// Logger sets the collector's logger. The default discards everything.
func Logger(log *zap.Logger) Option {
	return func(c *Collector) {
		c.log = log.Sugar()
	}
}

// New produces a Collector deleting through client.
func New(client Client, cfg bv.Config, opts ...Option) *Collector {
	c := &Collector{c: client, cfg: cfg, log: zap.NewNop().Sugar()}
	for _, apply := range opts {
		apply(c)
	}
	return c
}

// Run performs one mark-and-sweep.
//
// The caller must pass only manifests known to be fully committed: a backup
// run whose manifest is not yet durably stored must not have its in-flight
// blocks swept.
//
// Every retained manifest is loaded and decrypted before the first delete.
// If any fails — missing key, unknown wrapper, unreadable format — the run
// aborts with nothing deleted: an unreadable manifest cannot be proven to
// reference nothing, and sweeping past it risks destroying live data.
func (c *Collector) Run(ctx context.Context, retained []Ref) (Summary, error) {
	var summary Summary

	// Mark. The manifests' own blocks are live too.
	live := make(map[bv.Addr]struct{})
	for _, ref := range retained {
		m, err := manifest.Load(ctx, c.c, ref.Addr, ref.Wrapper)
		if err != nil {
			return summary, errors.Wrapf(err, "loading retained manifest %s; aborting with no deletions", ref.Addr)
		}
		live[ref.Addr] = struct{}{}
		for _, e := range m.Entries {
			live[e.Addr] = struct{}{}
		}
	}
	summary.Live = len(live)

	// Sweep. Objects are independent, so deletes run in parallel; order is
	// unspecified. Individual transient failures are tolerated up to the
	// configured ceiling, after which the run aborts rather than keep
	// deleting on a misbehaving service.
	var (
		scanned int64
		deleted int64
		failed  int64
	)
	errTooManyFailures := errors.New("failure ceiling reached")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.GCConcurrency)

	err := c.c.ListAddrs(ctx, func(addr bv.Addr) error {
		atomic.AddInt64(&scanned, 1)
		if _, ok := live[addr]; ok {
			return nil
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			if err := c.c.Delete(gctx, addr); err != nil {
				c.log.Errorw("delete failed", "addr", addr.String(), "err", err)
				if atomic.AddInt64(&failed, 1) > int64(c.cfg.GCMaxFailures) {
					return errors.Wrapf(errTooManyFailures, "after %d failed deletes", c.cfg.GCMaxFailures)
				}
				return nil
			}
			c.log.Infow("deleted", "addr", addr.String())
			atomic.AddInt64(&deleted, 1)
			return nil
		})
		return nil
	})

	werr := g.Wait()

	summary.Scanned = int(atomic.LoadInt64(&scanned))
	summary.Deleted = int(atomic.LoadInt64(&deleted))
	summary.Failed = int(atomic.LoadInt64(&failed))

	if err != nil {
		return summary, errors.Wrap(err, "enumerating remote objects")
	}
	if werr != nil {
		return summary, errors.Wrap(werr, "sweeping")
	}

	c.log.Infow("gc complete",
		"scanned", summary.Scanned,
		"live", summary.Live,
		"deleted", summary.Deleted,
		"failed", summary.Failed,
	)
	return summary, nil
}
