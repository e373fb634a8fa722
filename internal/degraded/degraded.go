package degraded

import (
	"sync"
	"time"
)

var defaultTracker Tracker

// RecordLive records a forecast served from live or cached upstream data.
func RecordLive() {
	defaultTracker.RecordLive()
}

// RecordFallback records a forecast served from the synthetic fallback.
func RecordFallback() {
	defaultTracker.RecordFallback()
}

// RecordDenied records a rate-limit denial (429).
func RecordDenied() {
	defaultTracker.RecordDenied()
}

// FallbackRate returns (fallbackCount, totalCount) within the window.
// totalCount = live + fallback outcomes; denials are excluded.
func FallbackRate(window time.Duration) (fallbacks, total int) {
	return defaultTracker.FallbackRate(window)
}

// DenialCount returns the number of rate-limit denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.DenialCount(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains sliding windows of forecast outcomes. The health handler
// reads it to decide degraded (fallback-rate breach) and overloaded states.
type Tracker struct {
	mu            sync.Mutex
	liveTimes     []time.Time
	fallbackTimes []time.Time
	deniedTimes   []time.Time
}

// RecordLive records a live or cached outcome in the tracker.
func (t *Tracker) RecordLive() {
	t.recordOutcome(&t.liveTimes)
}

// RecordFallback records a synthetic fallback outcome in the tracker.
func (t *Tracker) RecordFallback() {
	t.recordOutcome(&t.fallbackTimes)
}

// RecordDenied records a rate-limit denial (429) in the tracker.
func (t *Tracker) RecordDenied() {
	t.recordOutcome(&t.deniedTimes)
}

func (t *Tracker) recordOutcome(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// FallbackRate returns (fallbackCount, totalCount) within the window.
func (t *Tracker) FallbackRate(window time.Duration) (fallbacks, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-window)
	fb := countInWindow(t.fallbackTimes, cutoff)
	live := countInWindow(t.liveTimes, cutoff)
	return fb, fb + live
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countInWindow(t.deniedTimes, time.Now().Add(-window))
}

// Reset clears all recorded outcomes from the tracker.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.liveTimes = nil
	t.fallbackTimes = nil
	t.deniedTimes = nil
}

func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked removes timestamps older than maxAge (5 minutes) from all outcome slices.
// Must be called with mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	maxAge := 5 * time.Minute
	cutoff := now.Add(-maxAge)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.liveTimes)
	prune(&t.fallbackTimes)
	prune(&t.deniedTimes)
}
