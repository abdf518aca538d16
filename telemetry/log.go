// Package telemetry holds the recorded sample series for each device.
package telemetry

import (
	"sync"
	"time"
)

// Sample is a single timestamped reading from a device.
type Sample struct {
	// Time is seconds since the Unix epoch.
	Time float64
	// Value is the reading: mirror position in millimeters, or detector
	// intensity as a fraction of full scale.
	Value float64
}

// SampleCallback is invoked once per new reading. It is always called
// outside the log's lock, so it may block without stalling the polling
// worker.
type SampleCallback func(value float64)

// Now returns the current wall-clock time in sample timestamp units.
func Now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// Log is an append-only series of samples. Exactly one background worker
// appends; any number of readers may snapshot concurrently.
type Log struct {
	mu      sync.RWMutex
	samples []Sample
}

// Append records a sample at the end of the series.
func (l *Log) Append(t, value float64) {
	l.mu.Lock()
	l.samples = append(l.samples, Sample{Time: t, Value: value})
	l.mu.Unlock()
}

// Len returns the number of recorded samples.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.samples)
}

// Last returns the most recent sample, if any.
func (l *Log) Last() (Sample, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.samples) == 0 {
		return Sample{}, false
	}
	return l.samples[len(l.samples)-1], true
}

// Snapshot returns a copy of the series. The copy is safe to iterate
// while the worker keeps appending.
func (l *Log) Snapshot() []Sample {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Sample, len(l.samples))
	copy(out, l.samples)
	return out
}

// Clear discards all recorded samples. Appends racing with Clear land
// either before or after it; the series restarts from empty.
func (l *Log) Clear() {
	l.mu.Lock()
	l.samples = nil
	l.mu.Unlock()
}
