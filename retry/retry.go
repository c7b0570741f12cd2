// Package retry provides a bounded retry executor with multiplicative
// backoff. A Policy performs tries-1 guarded attempts, sleeping between
// them, then one final unguarded attempt whose error propagates to the
// caller. Callers that only want to see the real error once the budget is
// exhausted rely on that asymmetry.
package retry

import (
	"log/slog"
	"time"
)

// Policy describes how an operation is retried.
type Policy struct {
	// Tries is the total attempt budget, including the final unguarded
	// attempt. Values below 1 behave like 1 (a single unguarded attempt).
	Tries int

	// Delay is the wait before the first retry.
	Delay time.Duration

	// Backoff multiplies the delay after each failed attempt.
	// Values below 1 behave like 1 (constant delay).
	Backoff float64

	// Retryable reports whether an error belongs to the recoverable set.
	// Nil means every error is recoverable.
	Retryable func(error) bool

	// Sleep replaces time.Sleep between attempts. Nil means time.Sleep.
	Sleep func(time.Duration)

	Logger *slog.Logger
}

// Do invokes op under the policy. name labels the operation in retry
// diagnostics. Sleeping between attempts blocks the calling goroutine.
func (p Policy) Do(name string, op func() error) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backoff := p.Backoff
	if backoff < 1 {
		backoff = 1
	}

	tries, delay := p.Tries, p.Delay
	for tries > 1 {
		err := op()
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		tries--
		logger.Warn("retry: attempt failed",
			"op", name, "error", err, "attempts_left", tries, "wait", delay)
		sleep(delay)
		delay = time.Duration(float64(delay) * backoff)
	}

	// Final attempt outside the loop: its failure is the caller's to see.
	return op()
}
