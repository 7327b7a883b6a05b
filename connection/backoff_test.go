package connection

import (
	"testing"
	"time"
)

func testBackoffConfig() Config {
	return Config{
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  480 * time.Second,
		BackoffMultiplier: 1.5,
		StableResetWindow: 15 * time.Minute,
	}
}

// neutralJitter makes next() return the un-jittered delay (1 + 0.5*0.4 - 0.2 = 1).
func neutralJitter() float64 { return 0.5 }

func TestBackoffGrowsMonotonically(t *testing.T) {
	b := newBackoff(testBackoffConfig())
	b.jitter = neutralJitter

	// A short-lived connection: no reset.
	base := time.Now()
	b.markConnected(base)
	b.markDisconnected(base.Add(time.Second))

	prev := time.Duration(0)
	for i := 0; i < 20; i++ {
		d := b.next()
		if d < prev {
			t.Fatalf("attempt %d: delay %v < previous %v", i, d, prev)
		}
		if d > 480*time.Second {
			t.Fatalf("attempt %d: delay %v exceeds ceiling", i, d)
		}
		prev = d
	}
	if prev != 480*time.Second {
		t.Errorf("final delay = %v, want the 480s ceiling", prev)
	}
}

func TestBackoffResetsAfterStableConnection(t *testing.T) {
	b := newBackoff(testBackoffConfig())
	b.jitter = neutralJitter

	base := time.Now()
	b.markConnected(base)
	b.markDisconnected(base.Add(time.Second))
	for i := 0; i < 10; i++ {
		b.next()
	}

	// Stably up for longer than the reset window before dropping again.
	b.markConnected(base)
	b.markDisconnected(base.Add(16 * time.Minute))

	if d := b.next(); d != time.Second {
		t.Errorf("delay after stable period = %v, want the 1s floor", d)
	}
}

func TestBackoffJitterStaysInBand(t *testing.T) {
	b := newBackoff(testBackoffConfig())

	base := time.Now()
	b.markConnected(base)
	b.markDisconnected(base.Add(time.Second))

	// After one growth step the un-jittered delay is 1.5s; jittered values
	// must stay within ±20% of it and within [floor, ceiling].
	d := b.next()
	lo := time.Duration(float64(1500*time.Millisecond) * 0.8)
	hi := time.Duration(float64(1500*time.Millisecond) * 1.2)
	if d < lo || d > hi {
		t.Errorf("jittered delay = %v, want within [%v, %v]", d, lo, hi)
	}
}

func TestBackoffFloorClamp(t *testing.T) {
	cfg := testBackoffConfig()
	b := newBackoff(cfg)
	b.jitter = func() float64 { return 0 } // maximum downward jitter

	base := time.Now()
	b.markConnected(base)
	b.markDisconnected(base.Add(16 * time.Minute)) // forces reset to floor

	if d := b.next(); d != cfg.ReconnectBaseWait {
		t.Errorf("delay = %v, want clamp at the %v floor", d, cfg.ReconnectBaseWait)
	}
}
