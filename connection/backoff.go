package connection

import (
	"math/rand"
	"sync"
	"time"
)

// backoff tracks the reconnect delay schedule. The stored delay grows
// multiplicatively on repeated failure and resets to the base once a
// connection has stayed up past the reset window; jitter is applied to the
// returned delay only, so the schedule itself stays monotone.
type backoff struct {
	base       time.Duration
	max        time.Duration
	multiplier float64
	resetAfter time.Duration

	mu             sync.Mutex
	current        time.Duration
	connectedAt    time.Time
	disconnectedAt time.Time

	jitter func() float64 // uniform [0,1); swappable in tests
}

func newBackoff(cfg Config) *backoff {
	return &backoff{
		base:       cfg.ReconnectBaseWait,
		max:        cfg.ReconnectMaxWait,
		multiplier: cfg.BackoffMultiplier,
		resetAfter: cfg.StableResetWindow,
		current:    cfg.ReconnectBaseWait,
		jitter:     rand.Float64,
	}
}

func (b *backoff) markConnected(t time.Time) {
	b.mu.Lock()
	b.connectedAt = t
	b.mu.Unlock()
}

func (b *backoff) markDisconnected(t time.Time) {
	b.mu.Lock()
	b.disconnectedAt = t
	b.mu.Unlock()
}

// next advances the schedule and returns the jittered delay before the
// upcoming reconnect attempt, clamped to [base, max].
func (b *backoff) next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disconnectedAt.Sub(b.connectedAt) > b.resetAfter {
		// Reset once per drop: clearing the uptime mark lets repeated
		// failures during the same outage grow the delay again.
		b.current = b.base
		b.connectedAt = b.disconnectedAt
	} else {
		b.current = time.Duration(float64(b.current) * b.multiplier)
	}
	if b.current > b.max {
		b.current = b.max
	}

	// ±20% jitter so a fleet of clients does not retry in lockstep.
	d := time.Duration(float64(b.current) * (1 + (b.jitter()*0.4 - 0.2)))
	if d < b.base {
		d = b.base
	}
	if d > b.max {
		d = b.max
	}
	return d
}
