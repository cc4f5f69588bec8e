package healthmon

import (
	"math/rand"
	"time"
)

// StateTimer is the hysteresis filter behind node-state decisions.
// Negative feedback multiplies the current value (with a fuzz term so a
// fleet of nodes does not move in lockstep); positive feedback decays
// it linearly with elapsed real time. The value is always clamped to
// [min, max], so a single bad tick cannot pin the node unhealthy and a
// burst of bad ticks cannot push the recovery horizon past max.
type StateTimer struct {
	min          time.Duration
	max          time.Duration
	current      time.Duration
	multiplier   float64
	decreaseRate time.Duration
	fuzzFactor   float64
	lastFeedback time.Time
	rnd          *rand.Rand
}

// NewStateTimer creates a timer. decreaseRate is the wall time it takes
// positive feedback to shed one min-quantum of timer value.
func NewStateTimer(min, initial, max time.Duration, multiplier float64,
	decreaseRate time.Duration, fuzzFactor float64, now time.Time) *StateTimer {
	if initial < min {
		initial = min
	}
	if initial > max {
		initial = max
	}
	return &StateTimer{
		min:          min,
		max:          max,
		current:      initial,
		multiplier:   multiplier,
		decreaseRate: decreaseRate,
		fuzzFactor:   fuzzFactor,
		lastFeedback: now,
		rnd:          rand.New(rand.NewSource(now.UnixNano())),
	}
}

// NegativeFeedback multiplicatively increases the timer.
func (t *StateTimer) NegativeFeedback() {
	m := t.multiplier
	if t.fuzzFactor > 0 {
		m *= 1 + t.fuzzFactor*(2*t.rnd.Float64()-1)
	}
	t.current = clampDuration(time.Duration(float64(t.current)*m), t.min, t.max)
}

// PositiveFeedback decays the timer toward min proportionally to the
// real time elapsed since the previous PositiveFeedback call (or since
// construction). NegativeFeedback does not reset that reference time.
func (t *StateTimer) PositiveFeedback(now time.Time) {
	elapsed := now.Sub(t.lastFeedback)
	t.lastFeedback = now
	if elapsed <= 0 {
		return
	}
	decay := time.Duration(float64(elapsed) / float64(t.decreaseRate) * float64(t.min))
	t.current = clampDuration(t.current-decay, t.min, t.max)
}

// Current returns the current timer value.
func (t *StateTimer) Current() time.Duration {
	return t.current
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	if d < lo {
		return lo
	}
	if d > hi {
		return hi
	}
	return d
}
