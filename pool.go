package jp2view

import (
	"context"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Job is one unit of work run by a Pool worker.
type Job func(ctx context.Context) error

type task struct {
	ctx  context.Context
	job  Job
	done func(error)
}

type poolConfig struct {
	spawn  func(id int) error
	logger log.FieldLogger
}

// PoolOption configures NewPool.
type PoolOption func(*poolConfig)

// WithSpawner installs a hook consulted before each worker after the first
// is started. An error stops the pool from growing any further.
func WithSpawner(spawn func(id int) error) PoolOption {
	return func(c *poolConfig) {
		c.spawn = spawn
	}
}

// WithPoolLogger sets the pool's logger.
func WithPoolLogger(l log.FieldLogger) PoolOption {
	return func(c *poolConfig) {
		c.logger = l
	}
}

// Pool is a fixed set of worker goroutines shared by every Process call of
// one session. Destroy must only be called once every producer using the
// pool has finished; the pool must not be used afterwards.
type Pool struct {
	tasks   chan task
	workers sync.WaitGroup
	n       int
	destroy sync.Once
}

// NewPool starts min(requested, runtime.NumCPU()) workers, and at least one.
// If a worker cannot be started the pool keeps the ones it has.
func NewPool(requested int, opts ...PoolOption) *Pool {
	cfg := poolConfig{logger: log.StandardLogger()}
	for _, o := range opts {
		o(&cfg)
	}

	want := max(min(requested, runtime.NumCPU()), 1)
	p := &Pool{tasks: make(chan task)}
	for id := range want {
		if id > 0 && cfg.spawn != nil {
			if err := cfg.spawn(id); err != nil {
				cfg.logger.WithFields(log.Fields{"requested": want, "started": id}).
					WithError(err).Debug("worker pool capped")
				break
			}
		}
		p.workers.Add(1)
		go p.work()
		p.n++
	}
	return p
}

func (p *Pool) work() {
	defer p.workers.Done()
	for t := range p.tasks {
		if err := t.ctx.Err(); err != nil {
			t.done(err)
			continue
		}
		t.done(t.job(t.ctx))
	}
}

// NumThreads returns the number of workers actually started.
func (p *Pool) NumThreads() int {
	return p.n
}

// Run runs every job on the pool and returns once all of them have
// finished. After the first failure, jobs that have not started are skipped.
// It returns the first error.
func (p *Pool) Run(ctx context.Context, jobs []Job) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		wg    sync.WaitGroup
		once  sync.Once
		first error
	)
	done := func(err error) {
		if err != nil {
			once.Do(func() {
				first = err
				cancel(err)
			})
		}
		wg.Done()
	}

	wg.Add(len(jobs))
	for _, j := range jobs {
		p.tasks <- task{ctx: ctx, job: j, done: done}
	}
	wg.Wait()
	return first
}

// Destroy stops the workers and waits for them to exit.
func (p *Pool) Destroy() {
	p.destroy.Do(func() {
		close(p.tasks)
		p.workers.Wait()
	})
}
