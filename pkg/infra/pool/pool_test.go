package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, config *Config) *Pool {
	t.Helper()
	p, err := NewPool("test", DefaultPool, config)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func TestPoolSubmit(t *testing.T) {
	p := newTestPool(t, &Config{Capacity: 4})

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			mu.Lock()
			seen++
			mu.Unlock()
		}))
	}
	wg.Wait()

	assert.Equal(t, 10, seen)
	assert.Equal(t, "test", p.Name())
	assert.Equal(t, DefaultPool, p.Type())
	assert.Equal(t, 4, p.Cap())

	stats := p.Stats()
	assert.Equal(t, int64(10), stats.SubmittedTasks)
	assert.Equal(t, int64(10), stats.CompletedTasks)
	assert.Zero(t, stats.FailedTasks)
}

func TestPoolSubmitAfterRelease(t *testing.T) {
	p, err := NewPool("released", DefaultPool, &Config{Capacity: 1})
	require.NoError(t, err)

	p.Release()
	// Release is idempotent.
	p.Release()

	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
}

func TestPoolNonblockingOverload(t *testing.T) {
	p := newTestPool(t, &Config{Capacity: 1, Nonblocking: true})

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	err := p.Submit(func() {})
	assert.ErrorIs(t, err, ErrPoolOverload)
	assert.Equal(t, int64(1), p.Stats().RejectedTasks)

	close(block)
}

func TestPoolPanicRecovery(t *testing.T) {
	panics := make(chan interface{}, 1)
	p := newTestPool(t, &Config{
		Capacity:     2,
		PanicHandler: func(r interface{}) { panics <- r },
	})

	require.NoError(t, p.Submit(func() { panic("worker exploded") }))

	select {
	case r := <-panics:
		assert.Equal(t, "worker exploded", r)
	case <-time.After(2 * time.Second):
		t.Fatal("panic handler was not invoked")
	}

	require.Eventually(t, func() bool {
		return p.Stats().PanicRecovered == 1
	}, time.Second, 10*time.Millisecond)

	// The pool keeps serving after a panic.
	done := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool stopped accepting work after a panic")
	}
}

func TestSubmitWithContext(t *testing.T) {
	p := newTestPool(t, &Config{Capacity: 2})

	t.Run("already cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := p.SubmitWithContext(ctx, func() { t.Fatal("task must not run") })
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("live context runs the task", func(t *testing.T) {
		done := make(chan struct{})
		require.NoError(t, p.SubmitWithContext(context.Background(), func() { close(done) }))
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("task did not run")
		}
	})
}

func TestPoolTune(t *testing.T) {
	p := newTestPool(t, &Config{Capacity: 2})

	p.Tune(8)
	assert.Equal(t, 8, p.Cap())
}
