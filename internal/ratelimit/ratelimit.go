/*

This file contains the token-bucket rate limiter wrapped around every
external call. A single worker drains a FIFO queue, so at most one request is
in flight from the limiter's perspective no matter how many callers enqueue
concurrently. A recognized rate-limit failure zeroes the bucket, waits out a
cooldown, and retries the same request before anything else in the queue runs,
so call sites never see throttling errors.

*/

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/elys-network/ara/internal/logger"
	"github.com/rs/zerolog"
)

var (
	ErrLimiterClosed = errors.New("rate limiter is closed")
	// ErrRateLimited can be returned (or wrapped) by callables to signal an
	// explicit throttle response without relying on message matching.
	ErrRateLimited = errors.New("rate limited")
)

// Config holds the limiter's tunables.
type Config struct {
	// RatePerSecond is the continuous token refill rate.
	RatePerSecond float64
	// Burst is the requested bucket capacity. The effective capacity is
	// max(Burst, 2*RatePerSecond).
	Burst int
	// Cooldown is how long the limiter sleeps after a rate-limit response
	// before retrying the throttled request.
	Cooldown time.Duration
}

type request struct {
	ctx  context.Context
	fn   func() error
	done chan error
}

// Limiter is a token-bucket throttle with a sequentially drained queue.
type Limiter struct {
	logger   zerolog.Logger
	rate     float64
	capacity float64
	cooldown time.Duration

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	closed     bool

	queue chan *request
	stop  chan struct{}
	wg    sync.WaitGroup

	// now is replaceable in tests.
	now   func() time.Time
	sleep func(time.Duration)
}

// New creates a limiter and starts its drain worker.
func New(cfg Config) (*Limiter, error) {
	if cfg.RatePerSecond <= 0 {
		return nil, fmt.Errorf("rate must be positive, got %f", cfg.RatePerSecond)
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Second
	}
	capacity := float64(cfg.Burst)
	if doubled := 2 * cfg.RatePerSecond; doubled > capacity {
		capacity = doubled
	}

	l := &Limiter{
		logger:     logger.GetForComponent("rate_limiter"),
		rate:       cfg.RatePerSecond,
		capacity:   capacity,
		cooldown:   cfg.Cooldown,
		tokens:     capacity,
		lastRefill: time.Now(),
		queue:      make(chan *request, 256),
		stop:       make(chan struct{}),
		now:        time.Now,
		sleep:      time.Sleep,
	}
	l.wg.Add(1)
	go l.drain()
	return l, nil
}

// Execute enqueues fn and blocks until it has run (possibly after internal
// rate-limit retries) or ctx is cancelled.
func (l *Limiter) Execute(ctx context.Context, fn func() error) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLimiterClosed
	}
	l.mu.Unlock()

	req := &request{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case l.queue <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stop:
		return ErrLimiterClosed
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the drain worker. Queued requests fail with ErrLimiterClosed.
func (l *Limiter) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	close(l.stop)
	l.wg.Wait()
}

func (l *Limiter) drain() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stop:
			l.failPending()
			return
		case req := <-l.queue:
			l.dispatch(req)
		}
	}
}

func (l *Limiter) failPending() {
	for {
		select {
		case req := <-l.queue:
			req.done <- ErrLimiterClosed
		default:
			return
		}
	}
}

// dispatch runs one request, retrying it in place on rate-limit responses.
// Retrying before pulling the next queued request is what puts the throttled
// request back at the front of the line.
func (l *Limiter) dispatch(req *request) {
	for {
		if err := req.ctx.Err(); err != nil {
			req.done <- err
			return
		}
		l.waitForToken()

		err := req.fn()
		if err == nil || !IsRateLimitError(err) {
			req.done <- err
			return
		}

		l.logger.Warn().
			Err(err).
			Dur("cooldown", l.cooldown).
			Msg("Rate limit hit, zeroing bucket and retrying request")
		l.mu.Lock()
		l.tokens = 0
		l.lastRefill = l.now()
		l.mu.Unlock()
		l.sleep(l.cooldown)
	}
}

// waitForToken blocks until one token is available, then consumes it.
// Refill is continuous, based on wall-clock time since the last refill.
func (l *Limiter) waitForToken() {
	for {
		l.mu.Lock()
		now := l.now()
		elapsed := now.Sub(l.lastRefill).Seconds()
		l.tokens += elapsed * l.rate
		if l.tokens > l.capacity {
			l.tokens = l.capacity
		}
		l.lastRefill = now

		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return
		}
		deficit := 1 - l.tokens
		l.mu.Unlock()

		wait := time.Duration(deficit / l.rate * float64(time.Second))
		l.sleep(wait)
	}
}

// IsRateLimitError reports whether err looks like an explicit throttle
// response from a third party.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}
