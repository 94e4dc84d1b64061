package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floroz/atelier/pkg/logger"
)

func TestWorkerPool_RunsSubmittedTasks(t *testing.T) {
	wp := NewWorkerPool(PoolConfig{Name: "test", MaxWorkers: 4, MaxCapacity: 50}, logger.NewNop())

	var count int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, wp.Submit(func() {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
		}))
	}
	wg.Wait()
	wp.Stop()

	assert.Equal(t, int64(20), atomic.LoadInt64(&count))
}

func TestWorkerPool_NonBlockingRejectsWhenFull(t *testing.T) {
	wp := NewWorkerPool(PoolConfig{Name: "tiny", MaxWorkers: 1, MaxCapacity: 1, NonBlocking: true}, logger.NewNop())

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, wp.Submit(func() {
		close(started)
		<-block
	}))
	<-started

	// One queued task fits, the next one does not.
	var rejected bool
	for i := 0; i < 3; i++ {
		if err := wp.Submit(func() {}); err != nil {
			rejected = true
			assert.ErrorIs(t, err, ErrPoolFull)
			assert.Contains(t, err.Error(), "tiny")
		}
	}
	assert.True(t, rejected)

	close(block)
	wp.Stop()
}

func TestWorkerPool_RecoversPanics(t *testing.T) {
	wp := NewWorkerPool(PoolConfig{Name: "panicky", MaxWorkers: 1}, logger.NewNop())

	require.NoError(t, wp.Submit(func() { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, wp.Submit(func() { close(done) }))
	<-done
	wp.Stop()

	assert.Equal(t, uint64(1), wp.Stats().Failed)
}

func TestWorkerPool_StopWithinReturnsOnDeadline(t *testing.T) {
	wp := NewWorkerPool(PoolConfig{Name: "slow", MaxWorkers: 1, MaxCapacity: 10}, logger.NewNop())

	release := make(chan struct{})
	defer close(release)
	require.NoError(t, wp.Submit(func() { <-release }))

	start := time.Now()
	wp.StopWithin(50 * time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)
}
