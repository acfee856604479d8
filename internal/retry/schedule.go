package retry

import (
	"math"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// schedule implements backoff.BackOff with the exact curve spec.md §4.8
// requires: attempt k waits min(maxDelay, baseDelay*2^k) with ±25% uniform
// jitter, floored at 100ms, for a fixed number of attempts. It is handed to
// backoff.Retry so the library's retry loop (and backoff.Permanent error
// wrapping) is reused rather than a hand-rolled loop.
type schedule struct {
	attempt      int
	maxAttempts  int
	baseDelay    time.Duration
	maxDelay     time.Duration
	floor        time.Duration
	jitterFactor float64
	rng          *rand.Rand
}

const (
	defaultMaxAttempts  = 5
	defaultBaseDelay    = 1 * time.Second
	defaultMaxDelay     = 30 * time.Second
	defaultFloor        = 100 * time.Millisecond
	defaultJitterFactor = 0.25
)

// newScheduleFunc is a seam tests override to exercise the retry loop
// without sleeping through the real backoff curve.
var newScheduleFunc = newSchedule

func newSchedule() *schedule {
	return &schedule{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		maxDelay:     defaultMaxDelay,
		floor:        defaultFloor,
		jitterFactor: defaultJitterFactor,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *schedule) Reset() { s.attempt = 0 }

// NextBackOff returns backoff.Stop once maxAttempts have been spent;
// otherwise it returns the jittered exponential delay for the next attempt.
func (s *schedule) NextBackOff() time.Duration {
	s.attempt++
	if s.attempt >= s.maxAttempts {
		return backoff.Stop
	}

	raw := float64(s.baseDelay) * math.Pow(2, float64(s.attempt))
	if raw > float64(s.maxDelay) {
		raw = float64(s.maxDelay)
	}

	jitter := raw * s.jitterFactor * (s.rng.Float64()*2 - 1)
	d := time.Duration(raw + jitter)
	if d < s.floor {
		d = s.floor
	}
	return d
}
