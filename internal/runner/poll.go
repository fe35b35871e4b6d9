package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrel-data/visionproof/internal/analysis"
	"github.com/kestrel-data/visionproof/internal/faults"
	"github.com/kestrel-data/visionproof/internal/monitoring"
	"github.com/kestrel-data/visionproof/internal/timeutil"
)

// PollPolicy bounds the job-status poll loop. The delay between polls
// grows geometrically from Base by Multiplier, capped at Max; the whole
// loop gives up after Timeout.
type PollPolicy struct {
	Base       time.Duration
	Multiplier float64
	Max        time.Duration
	Timeout    time.Duration
}

// DefaultPollPolicy suits jobs that normally finish within a few minutes.
var DefaultPollPolicy = PollPolicy{
	Base:       2 * time.Second,
	Multiplier: 1.5,
	Max:        30 * time.Second,
	Timeout:    10 * time.Minute,
}

func (p PollPolicy) withDefaults() PollPolicy {
	if p.Base <= 0 {
		p.Base = DefaultPollPolicy.Base
	}
	if p.Multiplier <= 1 {
		p.Multiplier = DefaultPollPolicy.Multiplier
	}
	if p.Max <= 0 {
		p.Max = DefaultPollPolicy.Max
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultPollPolicy.Timeout
	}
	return p
}

// consecutive transient poll errors tolerated before the loop gives up.
const maxPollErrors = 5

// pollUntilDone drives poll until the job reaches a terminal status, the
// policy timeout elapses, or errors exhaust the tolerance. Transient
// errors consume error budget but keep the loop alive; permanent errors
// end it at once.
func pollUntilDone(ctx context.Context, clock timeutil.Clock, policy PollPolicy, jobID string, poll func(context.Context) (analysis.PollResult, error)) (analysis.PollResult, error) {
	policy = policy.withDefaults()
	start := clock.Now()
	delay := policy.Base
	errBudget := maxPollErrors

	for {
		res, err := poll(ctx)
		switch {
		case err == nil:
			errBudget = maxPollErrors
			if res.Status.Terminal() {
				return res, nil
			}
		case faults.Retryable(err):
			errBudget--
			monitoring.Logf("poll job %s: transient failure (%d left): %v", jobID, errBudget, err)
			if errBudget <= 0 {
				return analysis.PollResult{}, faults.Transient("poll job", fmt.Errorf("job %s: poll errors exhausted: %w", jobID, err))
			}
		default:
			return analysis.PollResult{}, err
		}

		if clock.Since(start) >= policy.Timeout {
			return analysis.PollResult{}, faults.Timeout("poll job", fmt.Errorf("job %s did not finish within %v", jobID, policy.Timeout))
		}

		timer := clock.NewTimer(delay)
		select {
		case <-timer.C():
		case <-ctx.Done():
			timer.Stop()
			return analysis.PollResult{}, faults.Timeout("poll job", ctx.Err())
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if delay > policy.Max {
			delay = policy.Max
		}
	}
}
