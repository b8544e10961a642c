package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttle is a token bucket gating how often failed deliveries are handed
// back to the broker. A poison message requeued in a tight loop would
// otherwise spin the consumer at full speed.
type Throttle struct {
	limiter *rate.Limiter
}

// New creates a Throttle allowing perSec requeues per second with the given
// burst. A non-positive perSec disables throttling.
func New(perSec float64, burst int) *Throttle {
	if perSec <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(perSec), max(burst, 1))}
}

// Wait blocks until a token is available.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (t *Throttle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
