package searchsync

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ecojiaflow/ecolojia/internal/domain"
	"github.com/ecojiaflow/ecolojia/internal/search"
	"github.com/ecojiaflow/ecolojia/pkg/logger"
)

// QueueConfig tunes the background queue.
type QueueConfig struct {
	Size        int
	Workers     int
	MaxAttempts int

	// AttemptTimeout bounds a single index call.
	AttemptTimeout time.Duration

	// BaseBackoff doubles after every failed attempt up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// RatePerSecond paces index calls across all workers. 0 is unlimited.
	RatePerSecond float64
	Burst         int
}

// DefaultQueueConfig returns the defaults used when nothing is configured.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Size:           1024,
		Workers:        4,
		MaxAttempts:    5,
		AttemptTimeout: DefaultTimeout,
		BaseBackoff:    100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		RatePerSecond:  0,
		Burst:          1,
	}
}

func (c QueueConfig) withDefaults() QueueConfig {
	d := DefaultQueueConfig()
	if c.Size <= 0 {
		c.Size = d.Size
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = d.BaseBackoff
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = max(d.MaxBackoff, c.BaseBackoff)
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	return c
}

type job struct {
	ctx     context.Context
	op      Op
	id      string
	seq     uint64
	product domain.Product
}

// Queue hands syncs to retrying workers. Jobs for one product id always land
// on the same worker, so they run in the order they were queued, and a job
// still retrying is dropped once a later job for its id is waiting. A full
// queue rejects the job immediately instead of blocking the request.
type Queue struct {
	indexer search.Indexer
	cfg     QueueConfig
	limiter *rate.Limiter
	logger  *slog.Logger

	shards []chan job
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	// pendingMu guards the bookkeeping below.
	pendingMu sync.Mutex
	pending   int
	seq       uint64
	latest    map[string]uint64

	// abort is canceled when Shutdown runs out of time.
	abort       context.Context
	cancelAbort context.CancelFunc

	jitter func() float64
}

var _ Dispatcher = (*Queue)(nil)

// NewQueue starts cfg.Workers workers, each draining its own shard.
func NewQueue(indexer search.Indexer, cfg QueueConfig, logger *slog.Logger) *Queue {
	cfg = cfg.withDefaults()

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	abort, cancel := context.WithCancel(context.Background())
	q := &Queue{
		indexer:     indexer,
		cfg:         cfg,
		limiter:     rate.NewLimiter(limit, cfg.Burst),
		logger:      logger,
		shards:      make([]chan job, cfg.Workers),
		latest:      make(map[string]uint64),
		abort:       abort,
		cancelAbort: cancel,
		jitter:      rand.Float64,
	}

	q.wg.Add(cfg.Workers)
	for i := range q.shards {
		// Size bounds the whole queue, so any shard may hold all of it.
		q.shards[i] = make(chan job, cfg.Size)
		go q.worker(q.shards[i])
	}
	return q
}

// Upsert implements Dispatcher. The product is copied into the job.
func (q *Queue) Upsert(ctx context.Context, p *domain.Product) error {
	return q.enqueue(ctx, job{op: OpUpsert, id: p.ID, product: *p})
}

// Delete implements Dispatcher.
func (q *Queue) Delete(ctx context.Context, id string) error {
	return q.enqueue(ctx, job{op: OpDelete, id: id})
}

// Len returns the number of jobs waiting.
func (q *Queue) Len() int {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	return q.pending
}

// shardFor returns the index of the worker that handles id.
func shardFor(id string, workers int) int {
	if workers <= 1 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(workers))
}

func (q *Queue) enqueue(ctx context.Context, j job) error {
	j.ctx = logger.Detach(ctx)

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return report(ctx, q.logger, ModeQueue, j.op, j.id, ErrQueueClosed)
	}

	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()

	if q.pending >= q.cfg.Size {
		return report(ctx, q.logger, ModeQueue, j.op, j.id, ErrQueueFull)
	}

	q.seq++
	j.seq = q.seq
	select {
	case q.shards[shardFor(j.id, len(q.shards))] <- j:
	default:
		return report(ctx, q.logger, ModeQueue, j.op, j.id, ErrQueueFull)
	}
	q.latest[j.id] = j.seq
	q.pending++
	queueDepth.Set(float64(q.pending))
	return nil
}

// dequeued records that a worker took a job off its shard.
func (q *Queue) dequeued() {
	q.pendingMu.Lock()
	q.pending--
	queueDepth.Set(float64(q.pending))
	q.pendingMu.Unlock()
}

// superseded reports whether a later job for j's product has been queued.
func (q *Queue) superseded(j job) bool {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	return q.latest[j.id] != j.seq
}

// done forgets j's id unless a later job for it is still queued.
func (q *Queue) done(j job) {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	if q.latest[j.id] == j.seq {
		delete(q.latest, j.id)
	}
}

// Shutdown stops accepting jobs and waits for the queue to drain. When ctx
// ends first, in-flight retries are abandoned and ctx.Err() is returned.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		for _, shard := range q.shards {
			close(shard)
		}
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancelAbort()
		return nil
	case <-ctx.Done():
		q.cancelAbort()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) worker(shard <-chan job) {
	defer q.wg.Done()
	for j := range shard {
		q.dequeued()
		q.process(j)
		q.done(j)
	}
}

func (q *Queue) process(j job) {
	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	stop := context.AfterFunc(q.abort, cancel)
	defer stop()

	start := time.Now()
	var err error
	for attempt := 1; attempt <= q.cfg.MaxAttempts; attempt++ {
		if q.superseded(j) {
			supersededTotal.WithLabelValues(string(j.op)).Inc()
			logger.WithContext(ctx, q.logger).DebugContext(ctx, "search sync job superseded by a later job",
				slog.String("op", string(j.op)),
				slog.String("product_id", j.id),
				slog.Int("attempt", attempt),
			)
			return
		}
		if err = q.attempt(ctx, j); err == nil {
			break
		}
		if ctx.Err() != nil || attempt == q.cfg.MaxAttempts {
			break
		}

		wait := Backoff(attempt, q.cfg.BaseBackoff, q.cfg.MaxBackoff, q.jitter())
		logger.WithContext(ctx, q.logger).WarnContext(ctx, "search sync attempt failed, retrying",
			slog.String("op", string(j.op)),
			slog.String("product_id", j.id),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", q.cfg.MaxAttempts),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)
		retriesTotal.WithLabelValues(string(j.op)).Inc()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	observe(ModeQueue, j.op, start, err)

	if err != nil {
		_ = report(ctx, q.logger, ModeQueue, j.op, j.id, err)
	}
}

func (q *Queue) attempt(ctx context.Context, j job) error {
	if err := q.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, q.cfg.AttemptTimeout)
	defer cancel()

	switch j.op {
	case OpUpsert:
		return q.indexer.Upsert(ctx, &j.product)
	case OpDelete:
		return q.indexer.Delete(ctx, j.id)
	default:
		return errors.New("unknown sync op " + string(j.op))
	}
}

// Backoff returns the wait before retry number attempt (1-based): base
// doubled per attempt, capped at maxWait, then scaled into [d/2, d] by
// jitter in [0, 1].
func Backoff(attempt int, base, maxWait time.Duration, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt && d < maxWait; i++ {
		d *= 2
	}
	d = min(d, maxWait)

	jitter = min(max(jitter, 0), 1)
	half := d / 2
	return half + time.Duration(float64(d-half)*jitter)
}
