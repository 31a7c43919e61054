package workerpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsJobs(t *testing.T) {
	p := New(Config{Workers: 2, QueueSize: 8}, nil)
	p.Start()
	defer p.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := 0

	for i := 0; i < 5; i++ {
		wg.Add(1)
		err := p.Submit(func(_ context.Context) {
			defer wg.Done()
			mu.Lock()
			seen++
			mu.Unlock()
		})
		require.NoError(t, err)
	}

	wg.Wait()
	assert.Equal(t, 5, seen)
	assert.Equal(t, int64(5), p.Stats().Submitted)
}

func TestSubmitFailsWhenQueueFull(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, nil)
	// Not started: nothing drains the queue.

	require.NoError(t, p.Submit(func(_ context.Context) {}))
	err := p.Submit(func(_ context.Context) {})
	assert.Error(t, err)
	assert.Equal(t, int64(1), p.Stats().Dropped)
}

func TestSubmitFailsAfterStop(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 4, ShutdownTimeout: time.Second}, nil)
	p.Start()
	p.Stop()

	err := p.Submit(func(_ context.Context) {})
	assert.Error(t, err)
}

func TestStopDrainsQueuedJobs(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 16, ShutdownTimeout: time.Second}, nil)
	p.Start()

	var mu sync.Mutex
	done := 0
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(func(_ context.Context) {
			mu.Lock()
			done++
			mu.Unlock()
		}))
	}

	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, done)
	assert.Equal(t, int64(10), p.Stats().Completed)
}
