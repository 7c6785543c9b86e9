package component

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// LifecycleFactory creates a new instance of a LifecycleComponent for testing
type LifecycleFactory func() LifecycleComponent

// StandardLifecycleTests runs the lifecycle conformance suite against any
// component implementing LifecycleComponent. Source packages call this from
// their own tests so every component honors the same transitions.
//
// The factory must return a fresh, startable component on every call; sources
// that bind network resources should use ephemeral or per-call addresses.
func StandardLifecycleTests(t *testing.T, factory LifecycleFactory) {
	t.Run("Compliance", func(t *testing.T) {
		testLifecycleCompliance(t, factory)
	})
	t.Run("ErrorPaths", func(t *testing.T) {
		testLifecycleErrorPaths(t, factory)
	})
	t.Run("Concurrent", func(t *testing.T) {
		testConcurrentLifecycle(t, factory)
	})
	t.Run("NoLeaks", func(t *testing.T) {
		testNoGoroutineLeaks(t, factory)
	})
}

// testLifecycleCompliance tests standard lifecycle state transitions
func testLifecycleCompliance(t *testing.T, factory LifecycleFactory) {
	tests := []struct {
		name string
		test func(t *testing.T, comp LifecycleComponent)
	}{
		{"Initialize", testInitialize},
		{"StartStop", testStartStop},
		{"DoubleStart", testDoubleStart},
		{"DoubleStop", testDoubleStop},
		{"StopWithoutStart", testStopWithoutStart},
		{"RestartAfterStop", testRestartAfterStop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := factory()
			require.NotNil(t, comp, "Component factory returned nil")
			tt.test(t, comp)
		})
	}
}

func testInitialize(t *testing.T, comp LifecycleComponent) {
	err := comp.Initialize()
	assert.NoError(t, err, "Initialize should succeed on fresh component")
}

func testStartStop(t *testing.T, comp LifecycleComponent) {
	require.NoError(t, comp.Initialize(), "Initialize must succeed before Start")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	assert.NoError(t, comp.Start(ctx), "Start should succeed after Initialize")
	assert.NoError(t, comp.Stop(5*time.Second), "Stop should succeed after Start")
}

func testDoubleStart(t *testing.T, comp LifecycleComponent) {
	require.NoError(t, comp.Initialize(), "Initialize must succeed")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, comp.Start(ctx), "First Start should succeed")

	// Second start may no-op or error, but must not wedge the component
	_ = comp.Start(ctx)

	assert.NoError(t, comp.Stop(5*time.Second), "Stop should succeed")
}

func testDoubleStop(t *testing.T, comp LifecycleComponent) {
	require.NoError(t, comp.Initialize(), "Initialize must succeed")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, comp.Start(ctx), "Start must succeed")

	assert.NoError(t, comp.Stop(5*time.Second), "First Stop should succeed")
	assert.NoError(t, comp.Stop(5*time.Second), "Second Stop should be idempotent")
}

func testStopWithoutStart(t *testing.T, comp LifecycleComponent) {
	assert.NoError(t, comp.Stop(5*time.Second), "Stop should be safe without Start")
}

func testRestartAfterStop(t *testing.T, comp LifecycleComponent) {
	require.NoError(t, comp.Initialize(), "Initialize should succeed")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, comp.Start(ctx), "First Start should succeed")
	require.NoError(t, comp.Stop(5*time.Second), "Stop should succeed")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()

	err := comp.Start(ctx2)
	if err != nil {
		// Some components require re-initialization after stop
		require.NoError(t, comp.Initialize(), "Re-initialize should succeed if Start fails after Stop")
		err = comp.Start(ctx2)
		assert.NoError(t, err, "Start should succeed after re-initialization")
	}

	assert.NoError(t, comp.Stop(5*time.Second), "Final Stop should succeed")
}

// testLifecycleErrorPaths tests error scenarios and edge cases
func testLifecycleErrorPaths(t *testing.T, factory LifecycleFactory) {
	t.Run("CancelledContextOnStart", func(t *testing.T) {
		comp := factory()
		require.NotNil(t, comp, "Component factory returned nil")
		require.NoError(t, comp.Initialize())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		// A cancelled context should either fail Start or stop it promptly;
		// the component must remain stoppable either way.
		_ = comp.Start(ctx)
		assert.NoError(t, comp.Stop(5*time.Second), "Component should be stoppable after cancelled Start")
	})

	t.Run("StartWithoutInitialize", func(t *testing.T) {
		comp := factory()
		require.NotNil(t, comp, "Component factory returned nil")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Implementations may initialize implicitly or reject; both are fine
		_ = comp.Start(ctx)
		assert.NoError(t, comp.Stop(5*time.Second), "Component should be stoppable regardless")
	})
}

// testConcurrentLifecycle tests concurrent operations on lifecycle methods
func testConcurrentLifecycle(t *testing.T, factory LifecycleFactory) {
	comp := factory()
	require.NotNil(t, comp, "Component factory returned nil")
	require.NoError(t, comp.Initialize(), "Initialize must succeed")

	const workers = 20
	var wg sync.WaitGroup
	startErrs := make([]error, workers)
	stopErrs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			startErrs[idx] = comp.Start(ctx)
		}(i)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			time.Sleep(10 * time.Millisecond) // Give starts a chance
			stopErrs[idx] = comp.Stop(5 * time.Second)
		}(i)
	}

	wg.Wait()

	successfulStarts := 0
	for _, err := range startErrs {
		if err == nil {
			successfulStarts++
		}
	}
	successfulStops := 0
	for _, err := range stopErrs {
		if err == nil {
			successfulStops++
		}
	}

	assert.GreaterOrEqual(t, successfulStarts, 1, "At least one Start should succeed")
	assert.GreaterOrEqual(t, successfulStops, 1, "At least one Stop should succeed")

	// Final cleanup
	_ = comp.Stop(5 * time.Second)
}

// testNoGoroutineLeaks runs full lifecycles and checks goroutine counts settle
func testNoGoroutineLeaks(t *testing.T, factory LifecycleFactory) {
	if testing.Short() {
		t.Skip("Skipping leak test in short mode")
	}

	before := runtime.NumGoroutine()

	for i := 0; i < 5; i++ {
		comp := factory()
		require.NotNil(t, comp, "Component factory returned nil")

		require.NoError(t, comp.Initialize())
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		require.NoError(t, comp.Start(ctx))
		require.NoError(t, comp.Stop(5*time.Second))
		cancel()
	}

	// Let finished goroutines drain before counting
	time.Sleep(100 * time.Millisecond)
	runtime.GC()

	after := runtime.NumGoroutine()
	assert.LessOrEqual(t, after, before+3,
		"goroutine count grew from %d to %d over repeated lifecycles", before, after)
}
