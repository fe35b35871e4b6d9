package faults

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrel-data/visionproof/internal/monitoring"
	"github.com/kestrel-data/visionproof/internal/timeutil"
)

// Backoff controls retry pacing. Delay grows geometrically from Base by
// Multiplier per attempt, capped at Max.
type Backoff struct {
	Base        time.Duration
	Multiplier  float64
	Max         time.Duration
	MaxAttempts int
}

// DefaultBackoff matches the pacing used for remote collaborator calls:
// 5 attempts starting at 200ms and doubling, capped at 5s.
var DefaultBackoff = Backoff{
	Base:        200 * time.Millisecond,
	Multiplier:  2,
	Max:         5 * time.Second,
	MaxAttempts: 5,
}

// Delay returns the pause before retry attempt n (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * b.Multiplier)
		if b.Max > 0 && d > b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Retry runs fn until it succeeds, returns a non-transient error, or the
// attempt cap is reached. Only transient failures are retried; permanent,
// data and timeout errors return immediately. Waits respect ctx.
func Retry(ctx context.Context, clock timeutil.Clock, b Backoff, op string, fn func() error) error {
	attempts := b.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultBackoff.MaxAttempts
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := b.Delay(attempt - 1)
			monitoring.Logf("retrying %s (attempt %d/%d) after %v: %v", op, attempt+1, attempts, delay, err)
			timer := clock.NewTimer(delay)
			select {
			case <-timer.C():
			case <-ctx.Done():
				timer.Stop()
				return Timeout(op, ctx.Err())
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return Timeout(op, ctx.Err())
		}
	}

	return Transient(op, fmt.Errorf("gave up after %d attempts: %w", attempts, err))
}
