// Package worker executes outbound writes off the interaction loop.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/relayctl/internal/coalesce"
	"github.com/dokzlo13/relayctl/internal/ledger"
	"github.com/dokzlo13/relayctl/internal/remote"
)

// ErrClosed is reported for writes submitted after Close.
var ErrClosed = errors.New("worker pool closed")

// Default configuration
const (
	DefaultWorkerCount  = 1
	DefaultQueueSize    = 16
	DefaultWriteTimeout = 2 * time.Second
)

// Config tunes the pool.
type Config struct {
	Workers   int
	QueueSize int
	// RateLimit caps writes per second across all workers; 0 disables pacing.
	RateLimit float64
	// Timeout bounds a single write call.
	Timeout time.Duration
}

// Result is the outcome of one write. Err is nil, remote.ErrUnavailable or
// remote.ErrRejected.
type Result struct {
	Write    coalesce.PendingWrite
	Err      error
	Cause    error
	Duration time.Duration
}

// ResultFunc receives results on a worker goroutine. It must not block.
type ResultFunc func(Result)

// Journal records write activity.
type Journal interface {
	Append(e ledger.Entry) error
}

// Pool runs writes on a fixed set of workers. Each property is pinned to one
// worker so writes of the same property are executed in submission order.
type Pool struct {
	link    remote.Link
	cfg     Config
	limiter *rate.Limiter
	results ResultFunc
	journal Journal

	mu     sync.RWMutex
	closed bool
	queues []chan coalesce.PendingWrite
	wg     sync.WaitGroup

	// ctx bounds in-flight writes; cancelled when Close gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a pool and starts its workers. journal may be nil.
func New(link remote.Link, cfg Config, results ResultFunc, journal Journal) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkerCount
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultWriteTimeout
	}

	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		link:    link,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		results: results,
		journal: journal,
		queues:  make([]chan coalesce.PendingWrite, cfg.Workers),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := range p.queues {
		p.queues[i] = make(chan coalesce.PendingWrite, cfg.QueueSize)
		p.wg.Add(1)
		go p.worker(i, p.queues[i])
	}

	log.Debug().
		Int("workers", cfg.Workers).
		Int("queue_size", cfg.QueueSize).
		Float64("rate_limit", cfg.RateLimit).
		Msg("Write worker pool started")
	return p
}

// Submit queues w for delivery. Non-blocking: it returns false when the pool
// is closed or the shard queue is full, and the write is not executed.
func (p *Pool) Submit(w coalesce.PendingWrite) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		log.Warn().Str("property", w.Property.String()).Msg("Write pool closed, dropping write")
		return false
	}

	select {
	case p.queues[p.shard(w)] <- w:
		return true
	default:
		log.Warn().
			Str("property", w.Property.String()).
			Float64("value", w.Value).
			Msg("Write queue full, dropping write")
		return false
	}
}

// Close stops accepting writes and waits for queued ones to finish. When ctx
// expires first, in-flight writes are cancelled.
func (p *Pool) Close(ctx context.Context) {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		for _, q := range p.queues {
			close(q)
		}
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug().Msg("Write workers stopped gracefully")
	case <-ctx.Done():
		log.Warn().Msg("Write pool shutdown timed out, cancelling in-flight writes")
		p.cancel()
		<-done
	}
	p.cancel()
}

func (p *Pool) shard(w coalesce.PendingWrite) int {
	return int(w.Property) % len(p.queues)
}

// worker processes writes from its queue
func (p *Pool) worker(id int, queue <-chan coalesce.PendingWrite) {
	defer p.wg.Done()

	for w := range queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("property", w.Property.String()).
						Int("worker", id).
						Msg("Write handler panicked")
					p.deliver(Result{Write: w, Err: remote.ErrUnavailable, Cause: errors.New("write panicked")})
				}
			}()
			p.deliver(p.execute(w))
		}()
	}
}

func (p *Pool) execute(w coalesce.PendingWrite) Result {
	if err := p.limiter.Wait(p.ctx); err != nil {
		return Result{Write: w, Err: remote.ErrUnavailable, Cause: err}
	}

	p.record(ledger.EventWriteDispatched, w, nil, 0)

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err := p.link.Write(ctx, w.Property, w.Value)
	res := Result{Write: w, Err: remote.Classify(err), Cause: err, Duration: time.Since(start)}
	if errors.Is(res.Err, remote.ErrDisconnected) {
		res.Err = remote.ErrUnavailable
	}

	switch {
	case res.Err == nil:
		p.record(ledger.EventWriteConfirmed, w, nil, res.Duration)
		log.Debug().
			Str("property", w.Property.String()).
			Float64("value", w.Value).
			Dur("took", res.Duration).
			Msg("Write delivered")
	case errors.Is(res.Err, remote.ErrRejected):
		p.record(ledger.EventWriteRejected, w, err, res.Duration)
		log.Warn().Err(err).Str("property", w.Property.String()).Float64("value", w.Value).Msg("Write rejected")
	default:
		p.record(ledger.EventWriteFailed, w, err, res.Duration)
		log.Warn().Err(err).Str("property", w.Property.String()).Int("attempt", w.Attempt).Msg("Write failed")
	}
	return res
}

func (p *Pool) deliver(res Result) {
	if p.results != nil {
		p.results(res)
	}
}

func (p *Pool) record(t ledger.EventType, w coalesce.PendingWrite, err error, took time.Duration) {
	if p.journal == nil {
		return
	}
	e := ledger.Entry{
		EventType: t,
		Property:  w.Property.String(),
		Value:     w.Value,
		Attempt:   w.Attempt,
		Seq:       w.Seq,
	}
	if err != nil {
		e.Error = err.Error()
	}
	if took > 0 {
		e.Payload = map[string]any{"duration_ms": took.Milliseconds()}
	}
	if jerr := p.journal.Append(e); jerr != nil {
		log.Debug().Err(jerr).Msg("Failed to journal write")
	}
}
