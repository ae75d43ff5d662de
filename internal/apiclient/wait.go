package apiclient

import (
	"context"
	"errors"
	"time"

	"github.com/roasbeef/learnhub/internal/plan"
)

const (
	// DefaultPollInterval is the wait between plan polls.
	DefaultPollInterval = 3 * time.Second

	// DefaultPollAttempts bounds a WaitForPlan call.
	DefaultPollAttempts = 40
)

// PollConfig tunes WaitForPlan.
type PollConfig struct {
	// Interval is the wait between attempts.
	Interval time.Duration

	// MaxAttempts is the number of GetPlan calls made before giving up.
	MaxAttempts int

	// Fallback, when set, is returned alongside ErrPlanNotReady once the
	// attempts are exhausted.
	Fallback *plan.Record
}

// DefaultPollConfig returns the default polling parameters.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    DefaultPollInterval,
		MaxAttempts: DefaultPollAttempts,
	}
}

// WaitForPlan polls until the plan for id is stored. A not-ready reply
// keeps polling and any other error aborts. When the attempts run out it
// returns cfg.Fallback together with ErrPlanNotReady.
func (c *Client) WaitForPlan(ctx context.Context, id string,
	cfg PollConfig) (*plan.Record, error) {

	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		rec, err := c.GetPlan(ctx, id)
		switch {
		case err == nil:
			return rec, nil

		case !errors.Is(err, ErrPlanNotReady):
			return nil, err
		}

		if attempt >= cfg.MaxAttempts {
			return cfg.Fallback, err
		}

		if err := wait(ctx, cfg.Interval); err != nil {
			return nil, err
		}
	}
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil

	case <-ctx.Done():
		return ctx.Err()
	}
}
