package healthmon

import (
	"time"
)

// TimeSeries is a bounded sliding-window time-series: a ring of
// fixed-width buckets spanning a configured window. Samples older than
// the window are retired by Update; range queries interpolate linearly
// when a bucket only partially overlaps the queried interval.
//
// Not safe for concurrent use. The monitor mutates its series only on
// its executor.
type TimeSeries struct {
	buckets        []bucket
	bucketDuration time.Duration
	window         time.Duration
	latest         time.Time
}

type bucket struct {
	start time.Time
	sum   time.Duration
	count uint64
}

// NewTimeSeries creates a series of numBuckets buckets spanning window.
func NewTimeSeries(numBuckets int, window time.Duration) *TimeSeries {
	return &TimeSeries{
		buckets:        make([]bucket, numBuckets),
		bucketDuration: window / time.Duration(numBuckets),
		window:         window,
	}
}

func (ts *TimeSeries) bucketStart(t time.Time) time.Time {
	return t.Truncate(ts.bucketDuration)
}

func (ts *TimeSeries) bucketIndex(t time.Time) int {
	n := t.UnixNano() / int64(ts.bucketDuration)
	return int(n % int64(len(ts.buckets)))
}

// Add records a sample of duration d taken at tp. Samples older than
// the window relative to the latest observed time are dropped.
func (ts *TimeSeries) Add(tp time.Time, d time.Duration) {
	if tp.After(ts.latest) {
		ts.latest = tp
	}
	if tp.Before(ts.latest.Add(-ts.window)) {
		return
	}
	b := &ts.buckets[ts.bucketIndex(tp)]
	start := ts.bucketStart(tp)
	if !b.start.Equal(start) {
		// The ring slot last held an older interval.
		b.start = start
		b.sum = 0
		b.count = 0
	}
	b.sum += d
	b.count++
}

// Update advances the series to now and retires buckets that fell
// entirely outside the window.
func (ts *TimeSeries) Update(now time.Time) {
	if now.After(ts.latest) {
		ts.latest = now
	}
	horizon := ts.latest.Add(-ts.window)
	for i := range ts.buckets {
		b := &ts.buckets[i]
		if b.count == 0 && b.sum == 0 {
			continue
		}
		if !b.start.Add(ts.bucketDuration).After(horizon) {
			*b = bucket{}
		}
	}
}

// Sum returns the interpolated sum of sample durations in [from, to).
func (ts *TimeSeries) Sum(from, to time.Time) time.Duration {
	var total float64
	ts.scan(from, to, func(b *bucket, fraction float64) {
		total += float64(b.sum) * fraction
	})
	return time.Duration(total)
}

// Count returns the interpolated number of samples in [from, to).
func (ts *TimeSeries) Count(from, to time.Time) float64 {
	var total float64
	ts.scan(from, to, func(b *bucket, fraction float64) {
		total += float64(b.count) * fraction
	})
	return total
}

// Avg returns Sum/Count over [from, to), or 0 when the range is empty.
func (ts *TimeSeries) Avg(from, to time.Time) time.Duration {
	count := ts.Count(from, to)
	if count == 0 {
		return 0
	}
	return time.Duration(float64(ts.Sum(from, to)) / count)
}

func (ts *TimeSeries) scan(from, to time.Time, fn func(b *bucket, fraction float64)) {
	if !to.After(from) {
		return
	}
	for i := range ts.buckets {
		b := &ts.buckets[i]
		if b.count == 0 {
			continue
		}
		bStart := b.start
		bEnd := b.start.Add(ts.bucketDuration)
		if !bEnd.After(from) || !to.After(bStart) {
			continue
		}
		overlapStart := bStart
		if from.After(overlapStart) {
			overlapStart = from
		}
		overlapEnd := bEnd
		if to.Before(overlapEnd) {
			overlapEnd = to
		}
		fraction := float64(overlapEnd.Sub(overlapStart)) / float64(ts.bucketDuration)
		fn(b, fraction)
	}
}
