package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/logstreams/event"
	"github.com/c360/logstreams/metric"
)

func makeBatch(messages ...string) event.Batch {
	batch := make(event.Batch, 0, len(messages))
	for _, msg := range messages {
		ev := event.New()
		ev.Insert(event.KeyMessage, msg)
		batch = append(batch, ev)
	}
	return batch
}

func firstMessage(t *testing.T, batch event.Batch) string {
	t.Helper()
	require.NotEmpty(t, batch)
	msg, ok := batch[0].Get(event.KeyMessage)
	require.True(t, ok)
	return msg.(string)
}

func TestPipelineBasicOperations(t *testing.T) {
	p, err := New(3)
	require.NoError(t, err, "Failed to create pipeline")
	defer p.Close()

	ctx := context.Background()

	if err := p.Push(ctx, makeBatch("first")); err != nil {
		t.Fatalf("Failed to push: %v", err)
	}
	if p.Depth() != 1 {
		t.Errorf("Expected depth 1, got %d", p.Depth())
	}

	require.NoError(t, p.Push(ctx, makeBatch("second")))
	require.NoError(t, p.Push(ctx, makeBatch("third")))

	if p.Capacity() != 3 {
		t.Errorf("Expected capacity 3, got %d", p.Capacity())
	}

	// Batches come back in push order
	for _, want := range []string{"first", "second", "third"} {
		batch, err := p.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, firstMessage(t, batch))
	}

	if p.Depth() != 0 {
		t.Errorf("Expected depth 0 after draining, got %d", p.Depth())
	}
}

func TestPipelineMinimumCapacity(t *testing.T) {
	p, err := New(0)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 1, p.Capacity())

	p, err = New(-5)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 1, p.Capacity())
}

func TestPushBlocksWhenFull(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Push(ctx, makeBatch("one")))
	require.NoError(t, p.Push(ctx, makeBatch("two")))

	var wg sync.WaitGroup
	var pushErr error

	// Start blocking push in goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		pushErr = p.Push(ctx, makeBatch("three"))
	}()

	// Wait a bit to ensure the push is blocked
	time.Sleep(50 * time.Millisecond)

	// Drain to unblock the push
	batch, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", firstMessage(t, batch))

	wg.Wait()

	if pushErr != nil {
		t.Errorf("Push should have succeeded after drain, got error: %v", pushErr)
	}
	if p.Depth() != 2 {
		t.Errorf("Expected depth 2 after unblocking push, got %d", p.Depth())
	}

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Blocked, "exactly one push should have waited")
}

func TestPushContextCancellation(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Push(context.Background(), makeBatch("fill")))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err = p.Push(ctx, makeBatch("blocked"))
	elapsed := time.Since(start)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if elapsed < 40*time.Millisecond || elapsed > 200*time.Millisecond {
		t.Errorf("Expected ~50ms cancellation, got %v", elapsed)
	}

	// The cancelled batch must not have been enqueued
	assert.Equal(t, 1, p.Depth())
}

func TestPushAlreadyCancelledContext(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = p.Push(ctx, makeBatch("never"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, p.Depth())
}

func TestPushAfterClose(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)

	p.Close()

	err = p.Push(context.Background(), makeBatch("late"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNextDrainsAfterClose(t *testing.T) {
	p, err := New(4)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Push(ctx, makeBatch("one")))
	require.NoError(t, p.Push(ctx, makeBatch("two")))

	p.Close()

	// Buffered batches keep draining in order after Close
	batch, err := p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "one", firstMessage(t, batch))

	batch, err = p.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "two", firstMessage(t, batch))

	// Then the pipeline reports closed
	_, err = p.Next(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestCloseUnblocksPush(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)

	require.NoError(t, p.Push(context.Background(), makeBatch("fill")))

	var wg sync.WaitGroup
	var pushErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		pushErr = p.Push(context.Background(), makeBatch("blocked"))
	}()

	time.Sleep(50 * time.Millisecond)
	p.Close()
	wg.Wait()

	assert.ErrorIs(t, pushErr, ErrClosed)
}

func TestCloseUnblocksNext(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var nextErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, nextErr = p.Next(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	p.Close()
	wg.Wait()

	assert.ErrorIs(t, nextErr, ErrClosed)
}

func TestCloseIdempotent(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)

	p.Close()
	p.Close() // must not panic or deadlock

	_, err = p.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNextContextCancellation(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = p.Next(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed < 40*time.Millisecond || elapsed > 200*time.Millisecond {
		t.Errorf("Expected ~50ms wait, got %v", elapsed)
	}
}

func TestPipelineStats(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Push(ctx, makeBatch("a")))
	require.NoError(t, p.Push(ctx, makeBatch("b")))

	_, err = p.Next(ctx)
	require.NoError(t, err)

	stats := p.Stats()
	assert.Equal(t, uint64(2), stats.Pushed)
	assert.Equal(t, uint64(1), stats.Popped)
	assert.Equal(t, uint64(0), stats.Blocked)
	assert.Equal(t, 1, stats.Depth)
	assert.Equal(t, 2, stats.Capacity)
}

func TestConcurrentProducersSingleConsumer(t *testing.T) {
	p, err := New(4)
	require.NoError(t, err)

	const producers = 5
	const batchesPerProducer = 20

	ctx := context.Background()
	var wg sync.WaitGroup

	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < batchesPerProducer; j++ {
				msg := fmt.Sprintf("producer-%d-%d", id, j)
				if err := p.Push(ctx, makeBatch(msg)); err != nil {
					t.Errorf("Push failed: %v", err)
					return
				}
			}
		}(i)
	}

	go func() {
		wg.Wait()
		p.Close()
	}()

	received := 0
	for {
		_, err := p.Next(ctx)
		if errors.Is(err, ErrClosed) {
			break
		}
		require.NoError(t, err)
		received++
	}

	assert.Equal(t, producers*batchesPerProducer, received)

	stats := p.Stats()
	assert.Equal(t, uint64(producers*batchesPerProducer), stats.Pushed)
	assert.Equal(t, uint64(producers*batchesPerProducer), stats.Popped)
	assert.Equal(t, 0, stats.Depth)
}

func TestPipelineWithMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	p, err := New(2, WithMetrics(registry, "http-ingest"))
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Push(ctx, makeBatch("one")))
	_, err = p.Next(ctx)
	require.NoError(t, err)

	metricFamilies, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)

	found := make(map[string]bool)
	for _, mf := range metricFamilies {
		found[mf.GetName()] = true
	}

	for _, name := range []string{
		"logstreams_pipeline_pushes_total",
		"logstreams_pipeline_pops_total",
		"logstreams_pipeline_blocked_total",
		"logstreams_pipeline_depth",
		"logstreams_pipeline_utilization",
	} {
		assert.True(t, found[name], "expected metric %s to be registered", name)
	}

	// Two pipelines registering under the same component name collide
	_, err = New(2, WithMetrics(registry, "http-ingest"))
	assert.Error(t, err)
}

func TestPipelineWithNilMetricsRegistry(t *testing.T) {
	p, err := New(2, WithMetrics(nil, "ignored"))
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Push(context.Background(), makeBatch("one")))
}

func TestPushNoGoroutineLeaks(t *testing.T) {
	initialGoroutines := runtime.NumGoroutine()

	p, err := New(1)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Push(context.Background(), makeBatch("fill")))

	// Repeatedly time out blocked pushes
	for i := 0; i < 10; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_ = p.Push(ctx, makeBatch("blocked"))
		cancel()
	}

	// Give time for watcher goroutines to clean up
	time.Sleep(100 * time.Millisecond)

	finalGoroutines := runtime.NumGoroutine()
	if finalGoroutines > initialGoroutines+2 {
		t.Errorf("Potential goroutine leak: started with %d, ended with %d",
			initialGoroutines, finalGoroutines)
	}
}
