package workerpool

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	ErrPoolClosed   = errors.New("worker pool is closed")
	ErrPoolOverload = errors.New("worker pool is overloaded")
)

// Config worker pool settings
type Config struct {
	Workers   int `mapstructure:"workers"`    // concurrent goroutines
	QueueSize int `mapstructure:"queue_size"` // callers allowed to block waiting for a worker, 0 means unbounded
}

// DefaultConfig returns the default pool configuration
func DefaultConfig() *Config {
	return &Config{
		Workers:   64,
		QueueSize: 1024,
	}
}

// Statistics counters
type Statistics struct {
	Submitted int64
	Completed int64
	Panicked  int64
	Rejected  int64
	Running   int64
}

// Pool is a bounded goroutine pool backed by ants
type Pool struct {
	pool   *ants.Pool
	logger *zap.Logger

	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64
	running   atomic.Int64
}

// New creates a pool
func New(config *Config, logger *zap.Logger) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("workers must be > 0, got %d", config.Workers)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{logger: logger}

	antsPool, err := ants.NewPool(config.Workers,
		ants.WithMaxBlockingTasks(config.QueueSize),
		ants.WithPanicHandler(func(r interface{}) {
			p.panicked.Add(1)
			logger.Error("worker panic", zap.Any("error", r))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}
	p.pool = antsPool

	return p, nil
}

// Submit schedules task, blocking while all workers are busy and the wait queue has room
func (p *Pool) Submit(task func()) error {
	p.submitted.Add(1)

	err := p.pool.Submit(func() {
		p.running.Add(1)
		defer func() {
			p.running.Add(-1)
			p.completed.Add(1)
		}()
		task()
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ants.ErrPoolClosed):
		p.rejected.Add(1)
		return ErrPoolClosed
	case errors.Is(err, ants.ErrPoolOverload):
		p.rejected.Add(1)
		return ErrPoolOverload
	default:
		p.rejected.Add(1)
		return err
	}
}

// Running returns the number of busy workers
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Free returns the number of idle workers
func (p *Pool) Free() int {
	return p.pool.Free()
}

// Cap returns the pool capacity
func (p *Pool) Cap() int {
	return p.pool.Cap()
}

// Tune changes the pool capacity
func (p *Pool) Tune(size int) {
	if size <= 0 {
		return
	}
	p.logger.Info("tuning worker pool", zap.Int("from", p.pool.Cap()), zap.Int("to", size))
	p.pool.Tune(size)
}

// Stats returns a snapshot of pool counters
func (p *Pool) Stats() Statistics {
	return Statistics{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Rejected:  p.rejected.Load(),
		Running:   p.running.Load(),
	}
}

// Shutdown stops accepting tasks and waits up to timeout for running ones
func (p *Pool) Shutdown(timeout time.Duration) error {
	if timeout <= 0 {
		p.pool.Release()
		return nil
	}
	return p.pool.ReleaseTimeout(timeout)
}
