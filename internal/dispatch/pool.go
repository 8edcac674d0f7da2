package dispatch

import (
	"context"
	"fmt"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/nantokaworks/twitch-lighter/internal/metrics"
	"github.com/nantokaworks/twitch-lighter/internal/shared/logger"
	"go.uber.org/zap"
)

// Submitter accepts fire-and-forget work. Submit must not block.
type Submitter interface {
	Submit(source string, run func(ctx context.Context)) bool
}

type job struct {
	id     string
	source string
	run    func(ctx context.Context)
}

// Pool is a fixed set of workers fed by a bounded queue. Submit never
// blocks: when the queue is full the job is dropped. Nothing waits for a
// submitted job to finish.
type Pool struct {
	workers int
	queue   chan job
	done    chan struct{}

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Pool{
		workers: workers,
		queue:   make(chan job, queueSize),
		done:    make(chan struct{}),
	}
}

// Start launches the workers. Calling it more than once is a no-op.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	logger.Info("Worker pool started",
		zap.Int("workers", p.workers),
		zap.Int("queue_size", cap(p.queue)))
}

// Submit queues run. It returns false if the pool is stopped or full.
func (p *Pool) Submit(source string, run func(ctx context.Context)) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		metrics.JobsRejected.WithLabelValues("stopped").Inc()
		logger.Debug("Worker pool stopped, dropping job", zap.String("source", source))
		return false
	}

	j := job{id: newJobID(), source: source, run: run}
	select {
	case p.queue <- j:
		return true
	default:
		metrics.JobsRejected.WithLabelValues("queue_full").Inc()
		logger.Warn("Job queue full, dropping event",
			zap.String("job_id", j.id),
			zap.String("source", source),
			zap.Int("queue_size", cap(p.queue)))
		return false
	}
}

// Stop stops intake. Workers exit after their current job; queued jobs are
// abandoned. Stop does not wait.
func (p *Pool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	close(p.done)
	logger.Info("Stopping worker pool")
}

// Wait blocks until every worker has exited. Only meaningful after Stop.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case j := <-p.queue:
			p.runJob(j)
		}
	}
}

func (p *Pool) runJob(j job) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked",
				zap.String("job_id", j.id),
				zap.String("source", j.source),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()

	logger.Debug("Running job", zap.String("job_id", j.id), zap.String("source", j.source))
	// in-flight light calls are not cancelled on shutdown
	j.run(context.Background())
}

func newJobID() string {
	id, err := gonanoid.New(10)
	if err != nil {
		return "unknown"
	}
	return id
}
