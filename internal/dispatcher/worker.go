package dispatcher

import (
	"context"
	"errors"
	"sync"

	mpkg "github.com/local/linerelay/internal/metrics"
	"github.com/rs/zerolog/log"
)

var ErrPoolStopped = errors.New("worker pool stopped")

type Config struct {
	Concurrency int
	QueueSize   int
}

// Pool runs submitted tasks on a fixed set of workers fed by a bounded queue.
// Submit blocks while the queue is full.
type Pool struct {
	cfg   Config
	tasks chan func()
	stop  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func NewPool(cfg Config) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	return &Pool{cfg: cfg, tasks: make(chan func(), cfg.QueueSize), stop: make(chan struct{})}
}

func (p *Pool) Start() {
	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.loop(i)
	}
}

// Stop signals workers to exit and waits for in-flight tasks or ctx, whichever
// comes first. Queued tasks that never started are dropped.
func (p *Pool) Stop(ctx context.Context) error {
	p.once.Do(func() { close(p.stop) })
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit enqueues task. It returns ctx.Err() if ctx ends before a queue slot
// frees up, or ErrPoolStopped after Stop.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	select {
	case <-p.stop:
		return ErrPoolStopped
	default:
	}
	select {
	case p.tasks <- task:
		mpkg.SetQueueDepth(len(p.tasks))
		return nil
	case <-p.stop:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int { return len(p.tasks) }

func (p *Pool) Concurrency() int { return p.cfg.Concurrency }

func (p *Pool) loop(id int) {
	defer p.wg.Done()
	log.Debug().Int("worker", id).Msg("invoker worker started")
	for {
		select {
		case <-p.stop:
			log.Debug().Int("worker", id).Msg("invoker worker stopped")
			return
		case task := <-p.tasks:
			mpkg.SetQueueDepth(len(p.tasks))
			p.run(id, task)
		}
	}
}

func (p *Pool) run(id int, task func()) {
	mpkg.WorkerBusy(1)
	defer mpkg.WorkerBusy(-1)
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int("worker", id).Interface("panic", r).Msg("invoker task panicked")
		}
	}()
	task()
}
