package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// DefaultWindowSize is the sample capacity used when none is configured.
const DefaultWindowSize = 100_000

// Window is a fixed-capacity ring of samples. Once full, each Record evicts
// the oldest sample.
type Window struct {
	mu       sync.Mutex
	samples  []Sample
	head     int // index of the oldest sample
	count    int
	failures int

	// Everything recorded since the last Reset, evicted samples included.
	hist             *hdrhistogram.Histogram
	recorded         int64
	recordedFailures int64
}

// NewWindow creates a window holding at most capacity samples. A non-positive
// capacity selects DefaultWindowSize.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{
		samples: make([]Sample, capacity),
		// Track latencies from 1µs up to 60s with 3 significant figures.
		hist: hdrhistogram.New(1, 60_000_000, 3),
	}
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.samples)
}

// Len returns the number of samples currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Record appends a sample, evicting the oldest one when the window is full.
func (w *Window) Record(s Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	capacity := len(w.samples)
	if w.count == capacity {
		if w.samples[w.head].Failed() {
			w.failures--
		}
		w.samples[w.head] = s
		w.head = (w.head + 1) % capacity
	} else {
		w.samples[(w.head+w.count)%capacity] = s
		w.count++
	}

	w.recorded++
	if s.Failed() {
		w.failures++
		w.recordedFailures++
		return
	}
	us := s.Latency.Microseconds()
	if us < w.hist.LowestTrackableValue() {
		us = w.hist.LowestTrackableValue()
	}
	if us > w.hist.HighestTrackableValue() {
		us = w.hist.HighestTrackableValue()
	}
	_ = w.hist.RecordValue(us)
}

// Reset discards every sample.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()

	clear(w.samples)
	w.head = 0
	w.count = 0
	w.failures = 0
	w.hist.Reset()
	w.recorded = 0
	w.recordedFailures = 0
}

// Samples returns a copy of the held samples, oldest first.
func (w *Window) Samples() []Sample {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.orderedLocked()
}

// Snapshot summarizes the current contents without mutating the window.
// Samples are copied under the lock and summarized after it is released.
// It panics if the window's bookkeeping is inconsistent.
func (w *Window) Snapshot() Snapshot {
	w.mu.Lock()
	if w.count > len(w.samples) {
		count, capacity := w.count, len(w.samples)
		w.mu.Unlock()
		panic(fmt.Sprintf("metrics: window holds %d samples, capacity %d", count, capacity))
	}
	samples := w.orderedLocked()
	failures := w.failures
	overall := Overall{
		Recorded: w.recorded,
		Failures: w.recordedFailures,
	}
	if w.hist.TotalCount() > 0 {
		overall.P99 = time.Duration(w.hist.ValueAtQuantile(99)) * time.Microsecond
		overall.P99Ms = toMillis(overall.P99)
	}
	w.mu.Unlock()

	snap := Summarize(samples)
	if snap.Failures != failures || snap.Successes+snap.Failures != snap.Count {
		panic(fmt.Sprintf("metrics: inconsistent window: %d samples, %d successes, %d failures (tracked %d)",
			snap.Count, snap.Successes, snap.Failures, failures))
	}
	snap.Overall = overall
	return snap
}

func (w *Window) orderedLocked() []Sample {
	out := make([]Sample, w.count)
	capacity := len(w.samples)
	for i := 0; i < w.count; i++ {
		out[i] = w.samples[(w.head+i)%capacity]
	}
	return out
}
