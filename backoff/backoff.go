// Package backoff implements exponential backoff with jitter and a
// classification-aware retry executor. Every component that waits before
// retrying — transport negotiation, tool calls, reconnection — routes
// through this package.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/fwojciec/tether"
)

// tickInterval is how often Sleep invokes its countdown callback.
const tickInterval = 100 * time.Millisecond

// Policy describes an exponential backoff schedule.
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // fraction of the delay, in [0, 1); 0 disables jitter
	MaxAttempts  int
}

// Default returns the policy used for ordinary calls.
func Default() Policy {
	return Policy{
		InitialDelay: time.Second,
		MaxDelay:     32 * time.Second,
		Multiplier:   2,
		JitterFactor: 0.25,
		MaxAttempts:  3,
	}
}

// Connect returns the policy used for connection bootstrap, which tolerates
// far more attempts than a single call.
func Connect() Policy {
	p := Default()
	p.MaxAttempts = 20
	return p
}

// Delay computes the delay before retry attempt (1-based):
// min(initial * multiplier^(attempt-1), max), perturbed by a uniformly
// random amount in ±delay*jitter and floored at zero.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if max := float64(p.MaxDelay); d > max {
		d = max
	}
	if p.JitterFactor > 0 {
		d += (rand.Float64()*2 - 1) * p.JitterFactor * d
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Sleep waits for d unless ctx is cancelled first, in which case it returns
// immediately with a cancelled classification. If onTick is non-nil it is
// invoked roughly every 100ms with the remaining time, for countdown
// displays.
func Sleep(ctx context.Context, d time.Duration, onTick func(remaining time.Duration)) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	var tickC <-chan time.Time
	if onTick != nil {
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	deadline := time.Now().Add(d)
	for {
		select {
		case <-ctx.Done():
			return tether.Classify(ctx.Err())
		case <-tickC:
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			onTick(remaining)
		case <-timer.C:
			return nil
		}
	}
}
