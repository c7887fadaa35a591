package sched

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockvault/bv"
	"github.com/blockvault/bv/wrap"
)

func testConfig() bv.Config {
	cfg := bv.DefaultConfig()
	cfg.SmallThreshold = 100
	cfg.SmallLimit = 8
	cfg.BigLimit = 2
	return cfg
}

// trackingPutter records peak concurrency per size class.
type trackingPutter struct {
	threshold int
	delay     time.Duration

	mu        sync.Mutex
	curSmall  int
	peakSmall int
	curBig    int
	peakBig   int

	fail func(plaintext bv.Blob) error
}

func (p *trackingPutter) Put(ctx context.Context, plaintext bv.Blob, tag wrap.Tag) (bv.Addr, bool, error) {
	small := len(plaintext) <= p.threshold

	p.mu.Lock()
	if small {
		p.curSmall++
		if p.curSmall > p.peakSmall {
			p.peakSmall = p.curSmall
		}
	} else {
		p.curBig++
		if p.curBig > p.peakBig {
			p.peakBig = p.curBig
		}
	}
	p.mu.Unlock()

	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	p.mu.Lock()
	if small {
		p.curSmall--
	} else {
		p.curBig--
	}
	p.mu.Unlock()

	if p.fail != nil {
		if err := p.fail(plaintext); err != nil {
			return bv.Zero, false, err
		}
	}
	return bv.AddrOf(plaintext), true, nil
}

func makeBlock(size int, seed byte) bv.Blob {
	b := make([]byte, size)
	for i := range b {
		b[i] = seed
	}
	return b
}

func TestConcurrencyBounds(t *testing.T) {
	cfg := testConfig()
	p := &trackingPutter{threshold: cfg.SmallThreshold, delay: 2 * time.Millisecond}
	s := New(p, cfg)
	defer s.Close()

	ctx := context.Background()
	var handles []*Handle
	for i := 0; i < 100; i++ {
		handles = append(handles, s.Submit(ctx, makeBlock(10, byte(i)), "v1"))
	}
	for i := 0; i < 20; i++ {
		handles = append(handles, s.Submit(ctx, makeBlock(5000, byte(i)), "v1"))
	}

	// Liveness: every handle resolves.
	for _, h := range handles {
		_, err := h.Await(ctx)
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, p.peakSmall, cfg.SmallLimit)
	assert.LessOrEqual(t, p.peakBig, cfg.BigLimit)
	assert.Positive(t, p.peakSmall)
	assert.Positive(t, p.peakBig)
}

func TestQueuesDoNotStarveEachOther(t *testing.T) {
	// Saturate the big queue with slow uploads; small submissions made
	// afterward must still complete promptly.
	cfg := testConfig()
	cfg.BigLimit = 1
	p := &trackingPutter{threshold: cfg.SmallThreshold, delay: 30 * time.Millisecond}
	s := New(p, cfg)
	defer s.Close()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		s.Submit(ctx, makeBlock(5000, byte(i)), "v1")
	}

	small := s.Submit(ctx, makeBlock(10, 0xaa), "v1")

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := small.Await(waitCtx)
	require.NoError(t, err, "small upload was starved behind the big queue")
}

func TestFailureIsolation(t *testing.T) {
	cfg := testConfig()
	bad := makeBlock(10, 0xff)
	p := &trackingPutter{
		threshold: cfg.SmallThreshold,
		fail: func(plaintext bv.Blob) error {
			if plaintext.Equal(bad) {
				return assert.AnError
			}
			return nil
		},
	}
	s := New(p, cfg)
	defer s.Close()

	ctx := context.Background()
	failing := s.Submit(ctx, bad, "v1")
	ok := s.Submit(ctx, makeBlock(10, 0x01), "v1")

	_, err := failing.Await(ctx)
	assert.ErrorIs(t, err, assert.AnError)

	// The failed slot was released; other work proceeds.
	addr, err := ok.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, bv.AddrOf(makeBlock(10, 0x01)), addr)
}

func TestCancelPending(t *testing.T) {
	cfg := testConfig()
	cfg.SmallLimit = 1
	cfg.BigLimit = 1

	release := make(chan struct{})
	var once sync.Once
	p := &blockingPutter{release: release}
	s := New(p, cfg)
	defer s.Close()
	defer once.Do(func() { close(release) })

	ctx := context.Background()

	// Occupy the single small worker.
	running := s.Submit(ctx, makeBlock(1, 0x01), "v1")

	// This one is still pending; cancel it before a worker picks it up.
	pending := s.Submit(ctx, makeBlock(1, 0x02), "v1")
	pending.Cancel()

	once.Do(func() { close(release) })

	_, err := running.Await(ctx)
	require.NoError(t, err)

	_, err = pending.Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// blockingPutter parks every Put until released.
type blockingPutter struct {
	release chan struct{}
}

func (p *blockingPutter) Put(_ context.Context, plaintext bv.Blob, _ wrap.Tag) (bv.Addr, bool, error) {
	<-p.release
	return bv.AddrOf(plaintext), true, nil
}

func TestSubmitRespectsContext(t *testing.T) {
	cfg := testConfig()
	cfg.SmallLimit = 1

	release := make(chan struct{})
	p := &blockingPutter{release: release}
	s := New(p, cfg)
	defer s.Close()
	defer close(release)

	// Occupy the worker, then submit with an already-canceled context.
	s.Submit(context.Background(), makeBlock(1, 0x01), "v1")

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	h := s.Submit(canceled, makeBlock(1, 0x02), "v1")

	_, err := h.Await(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWait(t *testing.T) {
	cfg := testConfig()
	p := &trackingPutter{threshold: cfg.SmallThreshold, delay: time.Millisecond}
	s := New(p, cfg)
	defer s.Close()

	ctx := context.Background()
	handles := make([]*Handle, 0, 50)
	for i := 0; i < 50; i++ {
		handles = append(handles, s.Submit(ctx, makeBlock(10, byte(i)), "v1"))
	}

	require.NoError(t, s.Wait(ctx))

	// After Wait, every handle is resolved.
	for _, h := range handles {
		select {
		case <-h.Done():
		default:
			t.Fatal("Wait returned with an unresolved handle")
		}
	}
}

func TestSubmitAfterClose(t *testing.T) {
	cfg := testConfig()
	p := &trackingPutter{threshold: cfg.SmallThreshold}
	s := New(p, cfg)
	s.Close()

	h := s.Submit(context.Background(), makeBlock(1, 0x01), "v1")
	_, err := h.Await(context.Background())
	assert.Error(t, err)
}
