/*

This file contains the retry-with-backoff policy composed with the rate
limiter for all network calls. Backoff is exponential with an optional jitter
of up to 25%, and the error classifier decides which failures are worth
retrying at all.

*/

package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/elys-network/ara/internal/logger"
)

// Policy holds the retry tunables for one class of calls.
type Policy struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
	// ShouldRetry classifies an error as transient. Nil means
	// DefaultShouldRetry.
	ShouldRetry func(error) bool
}

// DefaultPolicy suits generic network calls.
var DefaultPolicy = Policy{
	MaxRetries:        3,
	InitialDelay:      1 * time.Second,
	MaxDelay:          30 * time.Second,
	BackoffMultiplier: 2.0,
	Jitter:            true,
}

// TradePolicy is stricter: a balance shortfall cannot succeed on retry
// without external state changing, so it is never retried.
var TradePolicy = Policy{
	MaxRetries:        2,
	InitialDelay:      2 * time.Second,
	MaxDelay:          20 * time.Second,
	BackoffMultiplier: 2.0,
	Jitter:            true,
	ShouldRetry:       TradeShouldRetry,
}

// ExhaustedError is raised when every attempt failed. It is distinguishable
// from the underlying failure and carries the attempt count and elapsed time.
type ExhaustedError struct {
	Attempts int
	Elapsed  time.Duration
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts in %s: %v", e.Attempts, e.Elapsed, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Do runs fn under the policy, sleeping between attempts. Non-retryable
// errors propagate immediately; running out of attempts returns an
// *ExhaustedError wrapping the last failure.
func Do(ctx context.Context, p Policy, fn func() error) error {
	retryLogger := logger.GetForComponent("retry")
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = DefaultShouldRetry
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxRetries {
			return &ExhaustedError{
				Attempts: attempt + 1,
				Elapsed:  time.Since(start),
				Last:     lastErr,
			}
		}

		delay := delayForAttempt(p, attempt)
		retryLogger.Debug().
			Err(lastErr).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("Transient failure, backing off before retry")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// delayForAttempt computes min(maxDelay, initial * multiplier^attempt), plus
// up to 25% random jitter when enabled.
func delayForAttempt(p Policy, attempt int) time.Duration {
	backoff := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if max := float64(p.MaxDelay); p.MaxDelay > 0 && backoff > max {
		backoff = max
	}
	if p.Jitter {
		backoff += backoff * 0.25 * rand.Float64()
	}
	return time.Duration(backoff)
}

// DefaultShouldRetry treats network, timeout, 5xx, and throttle shaped
// errors as transient and refuses validation, auth, and balance failures.
func DefaultShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	nonRetryable := []string{
		"validation", "invalid", "unauthorized", "forbidden",
		"auth", "insufficient funds", "insufficient balance", "no route",
	}
	for _, marker := range nonRetryable {
		if strings.Contains(msg, marker) {
			return false
		}
	}

	retryable := []string{
		"timeout", "timed out", "connection", "network", "temporarily",
		"unavailable", "reset by peer", "eof", "429", "rate limit",
		"500", "502", "503", "504", "internal server error",
	}
	for _, marker := range retryable {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// TradeShouldRetry is the default classifier with an explicit refusal for
// anything mentioning an insufficient balance.
func TradeShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if strings.Contains(strings.ToLower(err.Error()), "insufficient balance") {
		return false
	}
	return DefaultShouldRetry(err)
}
