package bot

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Job is one unit of background work, typically a metadata lookup or a media
// fetch. The supplied context is the pool's lifecycle context.
type Job func(ctx context.Context)

// PoolConfig controls the concurrency characteristics of the worker pool.
type PoolConfig struct {
	QueueSize int
	Workers   int
}

// Pool runs download work on a fixed set of workers so a burst of requests
// cannot spawn an unbounded number of yt-dlp processes.
type Pool struct {
	logger *slog.Logger

	jobs   chan Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// ErrPoolClosed is returned by Submit after the pool has been shut down.
var ErrPoolClosed = errors.New("worker pool closed")

// NewPool starts the workers immediately.
func NewPool(cfg PoolConfig, logger *slog.Logger) *Pool {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		logger: logger,
		jobs:   make(chan Job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.worker()
	}

	return p
}

// Submit schedules a job, blocking while the queue is full.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	if job == nil {
		return errors.New("nil job")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	case p.jobs <- job:
		return nil
	}
}

// Shutdown stops accepting jobs and waits for in-flight work to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		p.cancel()
		close(p.jobs)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			job(p.ctx)
		}
	}
}
