package queue

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TaskRunner claims and executes one due task, reporting whether the queue
// had work.
type TaskRunner interface {
	ExecuteNext(ctx context.Context) (bool, error)
}

// Polling cadence. The idle interval is jittered so workers do not hit the
// store in lockstep.
const (
	DefaultPollInterval = 2 * time.Second
	errorBackoff        = 5 * time.Second
)

// WorkerPool runs a fixed number of goroutines draining the task queue. When
// a worker finds work it claims the next task immediately; it only sleeps on
// an empty queue or a claim error.
type WorkerPool struct {
	runner       TaskRunner
	workers      int
	pollInterval time.Duration
	logger       zerolog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorkerPool creates a pool of the given size.
func NewWorkerPool(runner TaskRunner, workers int, logger zerolog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		runner:       runner,
		workers:      workers,
		pollInterval: DefaultPollInterval,
		logger:       logger,
	}
}

// Start launches the workers. They run until Stop or context cancellation.
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.logger.Info().Int("workers", p.workers).Msg("Task workers started")
}

// Stop cancels the workers and waits for in-flight tasks to settle.
func (p *WorkerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info().Msg("Task workers stopped")
}

func (p *WorkerPool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		claimed, err := p.runner.ExecuteNext(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			p.logger.Error().Err(err).Int("worker", id).Msg("Task claim failed")
			if !p.sleep(ctx, errorBackoff) {
				return
			}
		case !claimed:
			if !p.sleep(ctx, p.jitteredInterval()) {
				return
			}
		}
	}
}

func (p *WorkerPool) jitteredInterval() time.Duration {
	half := p.pollInterval / 2
	return half + time.Duration(rand.Int63n(int64(p.pollInterval)))
}

func (p *WorkerPool) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
