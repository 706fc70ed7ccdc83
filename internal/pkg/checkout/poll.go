package checkout

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// PollConfig bounds the post-checkout entitlement poll. The delay before
// attempt n is Initial*2^n capped at Max; the poll gives up after Timeout or
// MaxAttempts refreshes, whichever comes first.
type PollConfig struct {
	Initial     time.Duration
	Max         time.Duration
	Timeout     time.Duration
	MaxAttempts int
}

func DefaultPollConfig() PollConfig {
	return PollConfig{
		Initial:     2 * time.Second,
		Max:         15 * time.Second,
		Timeout:     2 * time.Minute,
		MaxAttempts: 12,
	}
}

func (c PollConfig) withDefaults() PollConfig {
	d := DefaultPollConfig()
	if c.Initial <= 0 {
		c.Initial = d.Initial
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

func (c PollConfig) delay(attempt int) time.Duration {
	d := c.Initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= c.Max {
			return c.Max
		}
	}
	return d
}

// pollUntil calls check with exponential backoff until it reports true, the
// timeout elapses or ctx is canceled.
func pollUntil(ctx context.Context, cfg PollConfig, check func(context.Context) (bool, error)) Outcome {
	cfg = cfg.withDefaults()
	pollCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	for attempt := 0; cfg.MaxAttempts <= 0 || attempt < cfg.MaxAttempts; attempt++ {
		timer := time.NewTimer(cfg.delay(attempt))
		select {
		case <-pollCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return Canceled
			}
			return StillProcessing
		case <-timer.C:
		}

		ok, err := check(pollCtx)
		if err != nil {
			log.Debugf("[Checkout] Entitlement refresh attempt %d failed: %v", attempt+1, err)
			continue
		}
		if ok {
			return Confirmed
		}
	}
	if ctx.Err() != nil {
		return Canceled
	}
	return StillProcessing
}
