package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
// A multiplier of 1 yields a fixed interval.
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// Retry counts consecutive failures and hands out the matching delay.
// It is not safe for concurrent use.
type Retry struct {
	cfg      BackoffConfig
	rng      *rand.Rand
	failures int
}

func NewRetry(cfg BackoffConfig) *Retry {
	r := &Retry{cfg: cfg}
	if cfg.Jitter {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return r
}

// Fail records a failed attempt.
func (r *Retry) Fail() {
	r.failures++
}

// Reset clears the failure streak after progress was made.
func (r *Retry) Reset() {
	r.failures = 0
}

// Failures reports the current streak length.
func (r *Retry) Failures() int {
	return r.failures
}

// Delay is the wait before the next attempt; a clean streak waits InitialDelay.
func (r *Retry) Delay() time.Duration {
	return NextBackoffDelay(r.cfg, r.failures, r.rng)
}
