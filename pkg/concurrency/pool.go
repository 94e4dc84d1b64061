package concurrency

import (
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond"

	"github.com/floroz/atelier/pkg/logger"
)

// ErrPoolFull is returned by Submit on a non-blocking pool with no free slot.
var ErrPoolFull = errors.New("worker pool is full")

// PoolConfig holds configuration for a worker pool
type PoolConfig struct {
	Name        string
	MaxWorkers  int
	MaxCapacity int
	IdleTimeout time.Duration
	// NonBlocking makes Submit fail with ErrPoolFull instead of waiting for a slot.
	// Request paths use it so a slow side effect never delays the response.
	NonBlocking bool
}

// Stats is a point-in-time view of a pool, logged on shutdown.
type Stats struct {
	Running   int    `json:"running"`
	Waiting   uint64 `json:"waiting"`
	Submitted uint64 `json:"submitted"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
}

// WorkerPool runs fire-and-forget side effects on a bounded set of goroutines.
type WorkerPool struct {
	pool   *pond.WorkerPool
	config PoolConfig
	logger logger.Logger
}

func NewWorkerPool(cfg PoolConfig, log logger.Logger) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 10
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = 100
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = time.Minute
	}

	log = log.With("component", "worker_pool", "pool", cfg.Name)

	pool := pond.New(
		cfg.MaxWorkers,
		cfg.MaxCapacity,
		pond.MinWorkers(1),
		pond.IdleTimeout(cfg.IdleTimeout),
		pond.Strategy(pond.Balanced()),
		pond.PanicHandler(func(p interface{}) {
			log.Error("Worker pool task panicked", "panic", p)
		}),
	)

	return &WorkerPool{
		pool:   pool,
		config: cfg,
		logger: log,
	}
}

// Submit queues task. A non-blocking pool returns ErrPoolFull when its queue is full.
func (wp *WorkerPool) Submit(task func()) error {
	if !wp.config.NonBlocking {
		wp.pool.Submit(task)
		return nil
	}
	if !wp.pool.TrySubmit(task) {
		return fmt.Errorf("%w: %s (capacity %d)", ErrPoolFull, wp.config.Name, wp.config.MaxCapacity)
	}
	return nil
}

// Stop waits for queued tasks and stops the pool.
func (wp *WorkerPool) Stop() {
	wp.pool.StopAndWait()
}

// StopWithin waits up to d for queued tasks; whatever is still queued afterwards is discarded.
func (wp *WorkerPool) StopWithin(d time.Duration) {
	wp.pool.StopAndWaitFor(d)
	if waiting := wp.pool.WaitingTasks(); waiting > 0 {
		wp.logger.Warn("Worker pool stopped with tasks still queued", "waiting", waiting)
	}
}

func (wp *WorkerPool) Stats() Stats {
	return Stats{
		Running:   wp.pool.RunningWorkers(),
		Waiting:   wp.pool.WaitingTasks(),
		Submitted: wp.pool.SubmittedTasks(),
		Succeeded: wp.pool.SuccessfulTasks(),
		Failed:    wp.pool.FailedTasks(),
	}
}
