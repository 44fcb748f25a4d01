// Package retry implements the bounded exponential-backoff policy shared by
// player resolution, persistence and downloads.
package retry

import (
	"context"
	"time"
)

// Policy retries an operation up to MaxRetries times after the first
// attempt, sleeping BaseDelay, BaseDelay*Multiplier, ... between attempts.
type Policy struct {
	MaxRetries int           // default 5
	BaseDelay  time.Duration // default 100ms
	Multiplier float64       // default 2
	MaxDelay   time.Duration // 0 = uncapped
}

// Default returns the policy with R=5, d=100ms, x2.
func Default() Policy {
	return Policy{MaxRetries: 5, BaseDelay: 100 * time.Millisecond, Multiplier: 2}
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	return p
}

// Delay returns the wait before retry number n (1-based).
func (p Policy) Delay(n int) time.Duration {
	p = p.withDefaults()
	if n < 1 {
		n = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < n; i++ {
		d *= p.Multiplier
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, returns an error retryable rejects, or the
// retries are exhausted. It returns the number of retries performed and the
// last error. A nil retryable retries every error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, retryable func(error) bool) (int, error) {
	p = p.withDefaults()
	retries := 0
	for {
		err := fn(ctx)
		if err == nil {
			return retries, nil
		}
		if retryable != nil && !retryable(err) {
			return retries, err
		}
		if retries >= p.MaxRetries {
			return retries, err
		}
		retries++
		if sleepErr := sleep(ctx, p.Delay(retries)); sleepErr != nil {
			return retries - 1, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
