package trigger

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/metrics"
	"smartbin-backend/internal/models"
)

// Config holds dispatcher configuration
type Config struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	Backoff     time.Duration
}

// Dispatcher is the in-process reading-created trigger. Events are
// sharded by bin so each bin is handled by one worker in order.
type Dispatcher struct {
	handler     Handler
	queues      []chan models.ReadingCreated
	maxAttempts int
	backoff     time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

// NewDispatcher creates a dispatcher. Call Start before publishing.
func NewDispatcher(handler Handler, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}

	ctx, cancel := context.WithCancel(context.Background())
	queues := make([]chan models.ReadingCreated, cfg.Workers)
	perWorker := cfg.QueueSize / cfg.Workers
	if perWorker < 1 {
		perWorker = 1
	}
	for i := range queues {
		queues[i] = make(chan models.ReadingCreated, perWorker)
	}

	return &Dispatcher{
		handler:     handler,
		queues:      queues,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
		ctx:         ctx,
		cancel:      cancel,
		log:         logger.WithComponent("dispatcher"),
	}
}

// Start launches the workers.
func (d *Dispatcher) Start() {
	d.log.Info().
		Int("workers", len(d.queues)).
		Int("max_attempts", d.maxAttempts).
		Msg("🚀 Starting reading dispatcher")

	for i, q := range d.queues {
		d.wg.Add(1)
		go d.worker(i, q)
	}
}

// Publish enqueues evt, blocking while the bin's queue is full.
func (d *Dispatcher) Publish(ctx context.Context, evt models.ReadingCreated) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	q := d.queues[shard(evt.BinID, len(d.queues))]
	select {
	case q <- evt:
		metrics.TriggerQueueDepth.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops accepting events, drains the queues and waits for workers.
// Pending retries are abandoned if ctx expires first.
func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		d.cancel()
		<-done
	}
	d.cancel()
	d.log.Info().Msg("🛑 Reading dispatcher stopped")
}

func (d *Dispatcher) worker(id int, q <-chan models.ReadingCreated) {
	defer d.wg.Done()
	log := d.log.With().Int("worker_id", id).Logger()

	for evt := range q {
		metrics.TriggerQueueDepth.Dec()
		_ = deliver(d.ctx, d.handler, evt, d.maxAttempts, d.backoff, log)
	}
}

func shard(key string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}
