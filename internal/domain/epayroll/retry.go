package epayroll

import (
	"fmt"
	"time"
)

type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	Strategy    string
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: DefaultMaxAttempts, Backoff: DefaultBackoff, Strategy: BackoffFixed}
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	if p.Backoff <= 0 {
		return fmt.Errorf("retry backoff must be positive")
	}
	switch p.Strategy {
	case BackoffFixed, BackoffExponential, "":
		return nil
	}
	return fmt.Errorf("unknown retry backoff strategy %q", p.Strategy)
}

// Delay is the wait before the retry that follows the given failed attempt
// count (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.Strategy != BackoffExponential {
		return p.Backoff
	}
	delay := p.Backoff
	for i := 1; i < attempt; i++ {
		if delay > 365*24*time.Hour {
			break
		}
		delay *= 2
	}
	return delay
}

// NextRetry returns when the attempt after retryCount failures is due, or nil
// once the cap is reached.
func (p RetryPolicy) NextRetry(retryCount int, now time.Time) *time.Time {
	if retryCount >= p.MaxAttempts {
		return nil
	}
	next := now.Add(p.Delay(retryCount))
	return &next
}

// Exhausted reports whether a rejected transmission with retryCount failures
// will not be retried automatically.
func (p RetryPolicy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxAttempts
}
