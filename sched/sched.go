// Package sched admits block uploads to bounded concurrency.
//
// Blocks are split by size onto two queues: a small-item queue whose many
// workers hide per-request latency, and a big-item queue whose few workers
// avoid buffering memory for parallel transfers that the link cannot carry
// anyway. Each queue's workers run independently, so neither queue can
// starve the other.
package sched

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/blockvault/bv"
	"github.com/blockvault/bv/wrap"
)

// Putter stores one block and reports its content address.
// *blockstore.Client satisfies it.
type Putter interface {
	Put(ctx context.Context, plaintext bv.Blob, tag wrap.Tag) (bv.Addr, bool, error)
}

// Handle is the caller's side of one submitted block. Completion order
// across handles is unspecified; callers correlate by handle, never by
// submission order.
type Handle struct {
	done chan struct{}

	mu       sync.Mutex
	canceled bool

	addr  bv.Addr
	added bool
	err   error
}

// Await blocks until the upload resolves or ctx is done, then returns the
// stored content address or the upload's failure.
func (h *Handle) Await(ctx context.Context) (bv.Addr, error) {
	select {
	case <-ctx.Done():
		return bv.Zero, ctx.Err()
	case <-h.done:
		return h.addr, h.err
	}
}

// Done exposes the handle's completion channel for select loops.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Added reports whether the block was newly uploaded (as opposed to a dedup
// hit). Only meaningful after the handle resolves without error.
func (h *Handle) Added() bool {
	return h.added
}

// Cancel withdraws the request. A still-pending request is dropped at zero
// cost and its handle resolves with context.Canceled. Once a worker has
// started the upload, cancellation is best-effort: the remote PUT may
// complete anyway, leaving an unreferenced object for GC to reclaim later.
func (h *Handle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.canceled {
		h.canceled = true
	}
}

func (h *Handle) isCanceled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canceled
}

func (h *Handle) resolve(addr bv.Addr, added bool, err error) {
	h.addr = addr
	h.added = added
	h.err = err
	close(h.done)
}

type request struct {
	plaintext bv.Blob
	tag       wrap.Tag
	ctx       context.Context
	handle    *Handle
}

type queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []*request
	closed  bool
}

func newQueue() *queue {
	q := new(queue)
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(r *request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, r)
	q.cond.Signal()
}

// pop blocks until a request is available or the queue is closed.
func (q *queue) pop() (*request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.pending) == 0 {
		return nil, false
	}
	r := q.pending[0]
	q.pending = q.pending[1:]
	return r, true
}

func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Scheduler accepts put requests and drains them into a Putter under
// per-queue concurrency limits.
type Scheduler struct {
	p         Putter
	threshold int
	small     *queue
	big       *queue
	log       *zap.SugaredLogger

	wg       sync.WaitGroup // workers
	inflight sync.WaitGroup // unresolved handles

	mu     sync.Mutex
	closed bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// Logger sets the scheduler's logger. The default discards everything.
func Logger(log *zap.Logger) Option {
	return func(s *Scheduler) {
		s.log = log.Sugar()
	}
}

// New produces a running Scheduler over p. Queue limits and the size
// threshold come from cfg.
func New(p Putter, cfg bv.Config, opts ...Option) *Scheduler {
	s := &Scheduler{
		p:         p,
		threshold: cfg.SmallThreshold,
		small:     newQueue(),
		big:       newQueue(),
		log:       zap.NewNop().Sugar(),
	}
	for _, apply := range opts {
		apply(s)
	}

	for i := 0; i < cfg.SmallLimit; i++ {
		s.wg.Add(1)
		go s.work(s.small)
	}
	for i := 0; i < cfg.BigLimit; i++ {
		s.wg.Add(1)
		go s.work(s.big)
	}
	return s
}

func (s *Scheduler) work(q *queue) {
	defer s.wg.Done()
	for {
		r, ok := q.pop()
		if !ok {
			return
		}
		s.execute(r)
	}
}

func (s *Scheduler) execute(r *request) {
	defer s.inflight.Done()

	if r.handle.isCanceled() {
		r.handle.resolve(bv.Zero, false, context.Canceled)
		return
	}
	if err := r.ctx.Err(); err != nil {
		r.handle.resolve(bv.Zero, false, err)
		return
	}

	addr, added, err := s.p.Put(r.ctx, r.plaintext, r.tag)
	if err != nil {
		// The failure belongs to this handle alone; the worker slot is
		// free again as soon as we return.
		s.log.Errorw("upload failed", "bytes", len(r.plaintext), "err", err)
	}
	r.handle.resolve(addr, added, err)
}

// Submit enqueues a block for upload and returns immediately. The returned
// handle resolves with the stored content address once the upload finishes.
// ctx governs the upload itself, not just the submission.
func (s *Scheduler) Submit(ctx context.Context, plaintext bv.Blob, tag wrap.Tag) *Handle {
	h := &Handle{done: make(chan struct{})}
	r := &request{plaintext: plaintext, tag: tag, ctx: ctx, handle: h}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.resolve(bv.Zero, false, errors.New("scheduler closed"))
		return h
	}
	s.inflight.Add(1)
	s.mu.Unlock()

	if len(plaintext) <= s.threshold {
		s.small.push(r)
	} else {
		s.big.push(r)
	}
	return h
}

// Wait blocks until every handle submitted so far has resolved.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Close drains the queues and stops the workers. Submitting after Close
// resolves the handle with an error.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.inflight.Wait()
	s.small.close()
	s.big.close()
	s.wg.Wait()
}
