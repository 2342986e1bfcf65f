package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/distrischool/grade-service/pkg/logger"
	"github.com/distrischool/grade-service/pkg/metrics"
)

const metricsInterval = 5 * time.Second

// Closer is the part of the outbox the pool closes on shutdown.
type Closer interface {
	Close() error
}

// Pool runs a fixed number of workers over one queue.
type Pool struct {
	queue     Queue
	publisher Publisher
	size      int
	opts      []Option
	logger    logger.Logger

	workers []*InMemoryWorker
	active  atomic.Int64
	wg      sync.WaitGroup
	stop    chan struct{}
	once    sync.Once
}

// NewPool creates a pool of n workers. Worker options apply to every worker.
func NewPool(n int, q Queue, p Publisher, opts ...Option) *Pool {
	if n < 1 {
		n = 1
	}
	return &Pool{
		queue:     q,
		publisher: p,
		size:      n,
		opts:      opts,
		logger:    logger.Named("worker-pool"),
		stop:      make(chan struct{}),
	}
}

// Start launches the workers and the metrics updater.
func (p *Pool) Start(ctx context.Context) {
	p.workers = make([]*InMemoryWorker, 0, p.size)
	for i := 0; i < p.size; i++ {
		opts := append([]Option{WithName(fmt.Sprintf("worker-%d", i))}, p.opts...)
		w := NewInMemoryWorker(p.queue, p.publisher, opts...)
		w.busy = p.track
		p.workers = append(p.workers, w)

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.Run(ctx)
		}()
	}
	metrics.UpdateWorkerCount(p.size)
	go p.startMetricsUpdater()
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", p.size))
}

// Shutdown closes the queue, lets the workers drain it and waits for them.
// Workers still running when ctx ends are stopped.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() { close(p.stop) })
	if c, ok := p.queue.(Closer); ok {
		if err := c.Close(); err != nil {
			p.logger.Warn(ctx, "failed to close queue", logger.Error(err))
		}
	}

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		metrics.UpdateWorkerCount(0)
		return nil
	case <-ctx.Done():
		for _, w := range p.workers {
			_ = w.Shutdown(context.Background())
		}
		metrics.UpdateWorkerCount(0)
		return fmt.Errorf("worker pool drain: %w", ctx.Err())
	}
}

// Stop shuts the pool down with a default timeout.
func (p *Pool) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return p.Shutdown(ctx)
}

// Size reports the configured number of workers.
func (p *Pool) Size() int { return p.size }

// Active reports how many workers are publishing right now.
func (p *Pool) Active() int { return int(p.active.Load()) }

func (p *Pool) track(busy bool) {
	if busy {
		p.active.Add(1)
		return
	}
	p.active.Add(-1)
}

func (p *Pool) startMetricsUpdater() {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	active := p.Active()
	metrics.UpdateWorkerActiveCount(active)
	metrics.UpdateWorkerIdleCount(p.size - active)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		metrics.RecordSystemGCPauseTime(float64(m.PauseNs[(m.NumGC+255)%256]) / 1e6)
	}
}
