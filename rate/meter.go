// Package rate provides the per-section byte and update meters of the
// avatar codec, plus the name registry behind the data-rate query
// interface. Increments are lock-free atomics so the encode and decode hot
// paths never contend; folding a window into the smoothed rate happens on
// query under a small mutex.
package rate

import (
	"sync"
	"sync/atomic"
	"time"
)

// nowFunc is replaced in tests.
var nowFunc = time.Now

// minWindow is the shortest interval a rate sample is computed over.
const minWindow = time.Second

// Meter accumulates event counts and reports a windowed per-second rate.
// The zero value is ready to use.
type Meter struct {
	pending atomic.Int64

	mu    sync.Mutex
	rate  float64
	start time.Time
}

// Increment adds n to the meter. Safe for concurrent use.
func (m *Meter) Increment(n int) {
	m.pending.Add(int64(n))
}

// Rate returns the most recent windowed per-second rate. Windows shorter
// than one second report the previous window's rate.
func (m *Meter) Rate() float64 {
	now := nowFunc()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.start.IsZero() {
		m.start = now
		return 0
	}

	elapsed := now.Sub(m.start)
	if elapsed >= minWindow {
		m.rate = float64(m.pending.Swap(0)) / elapsed.Seconds()
		m.start = now
	}

	return m.rate
}

// Average tracks a running average of sample values and of the interval
// between samples, in the manner of a simple receive-statistics counter.
type Average struct {
	mu          sync.Mutex
	sampleAvg   float64
	deltaAvg    float64 // seconds between samples
	lastSample  time.Time
	sampleCount int64
}

const averageSmoothing = 0.1

// Update folds one sample into both averages.
func (a *Average) Update(value int) {
	now := nowFunc()

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sampleCount == 0 {
		a.sampleAvg = float64(value)
	} else {
		a.sampleAvg = a.sampleAvg*(1-averageSmoothing) + float64(value)*averageSmoothing
		delta := now.Sub(a.lastSample).Seconds()
		if a.deltaAvg == 0 {
			a.deltaAvg = delta
		} else {
			a.deltaAvg = a.deltaAvg*(1-averageSmoothing) + delta*averageSmoothing
		}
	}
	a.lastSample = now
	a.sampleCount++
}

// SampleValuePerSecond returns the average sample value divided by the
// average inter-sample interval.
func (a *Average) SampleValuePerSecond() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.deltaAvg == 0 {
		return 0
	}

	return a.sampleAvg / a.deltaAvg
}

// EventDelta returns the average interval between samples in seconds.
func (a *Average) EventDelta() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.deltaAvg
}
