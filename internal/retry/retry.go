package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     bool          // Exponential backoff: Delay * 2^attempt
	Jitter      time.Duration // upper bound of random extra wait per retry

	// Retryable decides whether an error is worth another attempt.
	// Nil means every error is retryable.
	Retryable func(error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Wait returns the pause before retry number attempt (1-based).
func (c RetryConfig) Wait(attempt int) time.Duration {
	delay := c.Delay
	if c.Backoff {
		delay = c.Delay << (attempt - 1)
	}
	if c.Jitter > 0 {
		delay += rand.N(c.Jitter)
	}
	return delay
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted or ctx is done.
func WithRetry(ctx context.Context, config RetryConfig, fn func() error) error {
	attempts := max(config.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if config.Retryable != nil && !config.Retryable(err) {
			return err
		}
		if attempt == attempts {
			return fmt.Errorf("failed after %d attempts: %w", attempts, err)
		}

		delay := config.Wait(attempt)
		if config.OnRetry != nil {
			config.OnRetry(attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
