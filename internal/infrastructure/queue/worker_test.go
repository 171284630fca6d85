package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	remaining atomic.Int64
	executed  atomic.Int64
	failFirst atomic.Bool
}

func (r *countingRunner) ExecuteNext(context.Context) (bool, error) {
	if r.failFirst.CompareAndSwap(true, false) {
		return false, errors.New("store unavailable")
	}
	if r.remaining.Add(-1) < 0 {
		return false, nil
	}
	r.executed.Add(1)
	return true, nil
}

func TestWorkerPoolDrainsQueue(t *testing.T) {
	runner := &countingRunner{}
	runner.remaining.Store(10)

	pool := NewWorkerPool(runner, 3, zerolog.Nop())
	pool.pollInterval = 10 * time.Millisecond
	pool.Start(context.Background())
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return runner.executed.Load() == 10
	}, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerPoolStopsIdleWorkers(t *testing.T) {
	runner := &countingRunner{}
	pool := NewWorkerPool(runner, 2, zerolog.Nop())
	pool.pollInterval = 10 * time.Millisecond
	pool.Start(context.Background())

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestWorkerPoolSurvivesClaimErrors(t *testing.T) {
	runner := &countingRunner{}
	runner.remaining.Store(1)
	runner.failFirst.Store(true)

	pool := NewWorkerPool(runner, 1, zerolog.Nop())
	pool.pollInterval = 10 * time.Millisecond
	pool.Start(context.Background())
	defer pool.Stop()

	require.Eventually(t, func() bool {
		return runner.executed.Load() == 1
	}, 10*time.Second, 20*time.Millisecond, "worker should back off after a claim error and keep running")
}

func TestWorkerPoolMinimumOneWorker(t *testing.T) {
	pool := NewWorkerPool(&countingRunner{}, 0, zerolog.Nop())
	assert.Equal(t, 1, pool.workers)
}
