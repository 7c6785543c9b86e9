// Package pipeline provides the bounded hand-off queue between ingest
// sources and the engine forwarders.
//
// Each source owns one Pipeline. The HTTP handler (or UDP read loop)
// pushes decoded batches in, the engine forwarder drains them out and
// publishes to NATS. Producers block when the pipeline is full, so
// backpressure reaches the network edge instead of dropping data.
package pipeline

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/c360/logstreams/errors"
	"github.com/c360/logstreams/event"
)

// ErrClosed is returned by Push after Close, and by Next once the
// remaining buffered batches have drained.
var ErrClosed = stderrors.New("pipeline closed")

// Pipeline is a fixed-capacity FIFO of event batches. All methods are
// safe for concurrent use; the Pipeline is the only state shared
// between a source's request handlers and its forwarder.
type Pipeline struct {
	mu       sync.Mutex
	items    []event.Batch
	capacity int
	size     int
	head     int // next write position
	tail     int // next read position
	closed   bool

	notEmpty *sync.Cond
	notFull  *sync.Cond

	pushed  atomic.Uint64
	popped  atomic.Uint64
	blocked atomic.Uint64

	metrics *pipelineMetrics // optional Prometheus metrics
}

// Stats is a point-in-time snapshot of pipeline counters.
type Stats struct {
	Pushed   uint64 `json:"pushed"`
	Popped   uint64 `json:"popped"`
	Blocked  uint64 `json:"blocked"`
	Depth    int    `json:"depth"`
	Capacity int    `json:"capacity"`
}

// New creates a pipeline holding at most capacity batches. Capacity
// values below one are raised to one. Returns an error only when
// metrics registration was requested and failed.
func New(capacity int, options ...Option) (*Pipeline, error) {
	if capacity <= 0 {
		capacity = 1
	}

	opts := applyOptions(options...)

	var metrics *pipelineMetrics
	if opts.metricsReg != nil && opts.metricsName != "" {
		var err error
		metrics, err = newPipelineMetrics(opts.metricsReg, opts.metricsName)
		if err != nil {
			return nil, errors.WrapTransient(err, "Pipeline", "New", "metrics registration")
		}
	}

	p := &Pipeline{
		items:    make([]event.Batch, capacity),
		capacity: capacity,
		metrics:  metrics,
	}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)

	return p, nil
}

// Push appends a batch, blocking while the pipeline is full. Ownership
// of the batch transfers to the pipeline on success. Returns the
// context error if ctx is cancelled during the wait, or ErrClosed once
// the pipeline has been closed.
func (p *Pipeline) Push(ctx context.Context, batch event.Batch) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if p.size == p.capacity {
		p.blocked.Add(1)
		if p.metrics != nil {
			p.metrics.recordBlocked()
		}

		if err := p.waitLocked(ctx, p.notFull, func() bool { return p.size == p.capacity }); err != nil {
			return err
		}
		if p.closed {
			return ErrClosed
		}
	}

	p.items[p.head] = batch
	p.head = (p.head + 1) % p.capacity
	p.size++
	p.pushed.Add(1)

	if p.metrics != nil {
		p.metrics.recordPush(p.size, p.capacity)
	}

	p.notEmpty.Signal()
	return nil
}

// Next removes and returns the oldest batch, blocking while the
// pipeline is empty. After Close, buffered batches keep draining in
// order; once empty Next returns ErrClosed.
func (p *Pipeline) Next(ctx context.Context) (event.Batch, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if p.size == 0 {
		if p.closed {
			return nil, ErrClosed
		}

		if err := p.waitLocked(ctx, p.notEmpty, func() bool { return p.size == 0 }); err != nil {
			return nil, err
		}
		if p.size == 0 {
			return nil, ErrClosed
		}
	}

	batch := p.items[p.tail]
	p.items[p.tail] = nil // clear for GC
	p.tail = (p.tail + 1) % p.capacity
	p.size--
	p.popped.Add(1)

	if p.metrics != nil {
		p.metrics.recordPop(p.size, p.capacity)
	}

	p.notFull.Signal()
	return batch, nil
}

// waitLocked blocks on cond while stuck() holds and the pipeline is
// open. Must be called with p.mu held; the lock is held again on
// return. A watcher goroutine broadcasts on context cancellation,
// which is safe without holding the lock.
func (p *Pipeline) waitLocked(ctx context.Context, cond *sync.Cond, stuck func() bool) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			cond.Broadcast()
		case <-done:
		}
	}()

	for stuck() && !p.closed {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		cond.Wait()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return nil
}

// Close marks the pipeline closed and wakes all blocked producers and
// consumers. Pending and future Push calls fail with ErrClosed; Next
// keeps returning buffered batches until the pipeline is empty. Safe
// to call more than once.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
}

// Depth returns the current number of buffered batches.
func (p *Pipeline) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Capacity returns the maximum number of batches the pipeline holds.
func (p *Pipeline) Capacity() int {
	return p.capacity // immutable after New
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	depth := p.size
	p.mu.Unlock()

	return Stats{
		Pushed:   p.pushed.Load(),
		Popped:   p.popped.Load(),
		Blocked:  p.blocked.Load(),
		Depth:    depth,
		Capacity: p.capacity,
	}
}
