package metrics

import (
	"math"
	"sort"
	"time"
)

// Snapshot is an immutable summary of a window at a point in time.
type Snapshot struct {
	Count       int     `json:"count" yaml:"count"`
	Successes   int     `json:"successes" yaml:"successes"`
	Failures    int     `json:"failures" yaml:"failures"`
	FailureRate float64 `json:"failure_rate" yaml:"failure_rate"` // percent of Count

	// Latency is nil when the window holds no successful sample.
	Latency *LatencyStats `json:"latency,omitempty" yaml:"latency,omitempty"`

	FailureReasons map[string]int `json:"failure_reasons,omitempty" yaml:"failure_reasons,omitempty"`

	Overall Overall `json:"overall" yaml:"overall"`
}

// LatencyStats summarizes successful latencies.
type LatencyStats struct {
	Min    time.Duration `json:"-" yaml:"-"`
	Max    time.Duration `json:"-" yaml:"-"`
	Mean   time.Duration `json:"-" yaml:"-"`
	P50    time.Duration `json:"-" yaml:"-"`
	P90    time.Duration `json:"-" yaml:"-"`
	StdDev time.Duration `json:"-" yaml:"-"`

	// JSON-friendly millisecond fields.
	MinMs    float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs    float64 `json:"max_ms" yaml:"max_ms"`
	MeanMs   float64 `json:"mean_ms" yaml:"mean_ms"`
	P50Ms    float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms    float64 `json:"p90_ms" yaml:"p90_ms"`
	StdDevMs float64 `json:"std_ms" yaml:"std_ms"`
}

// Overall covers every sample recorded since the window was last reset,
// including samples the window has since evicted.
type Overall struct {
	Recorded int64         `json:"recorded" yaml:"recorded"`
	Failures int64         `json:"failures" yaml:"failures"`
	P99      time.Duration `json:"-" yaml:"-"`
	P99Ms    float64       `json:"p99_ms" yaml:"p99_ms"`
}

// Empty reports whether the snapshot was taken from an empty window.
func (s Snapshot) Empty() bool {
	return s.Count == 0
}

// Summarize computes a snapshot over samples. The Overall section is left zero.
func Summarize(samples []Sample) Snapshot {
	snap := Snapshot{Count: len(samples)}
	if len(samples) == 0 {
		return snap
	}

	latencies := make([]time.Duration, 0, len(samples))
	for _, s := range samples {
		if s.Failed() {
			snap.Failures++
			if snap.FailureReasons == nil {
				snap.FailureReasons = make(map[string]int)
			}
			snap.FailureReasons[s.Reason()]++
			continue
		}
		latencies = append(latencies, s.Latency)
	}
	snap.Successes = len(latencies)
	snap.FailureRate = float64(snap.Failures) / float64(snap.Count) * 100

	if len(latencies) > 0 {
		snap.Latency = summarizeLatencies(latencies)
	}
	return snap
}

func summarizeLatencies(latencies []time.Duration) *LatencyStats {
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum float64
	for _, l := range latencies {
		sum += float64(l)
	}
	mean := sum / float64(len(latencies))

	var variance float64
	for _, l := range latencies {
		d := float64(l) - mean
		variance += d * d
	}
	variance /= float64(len(latencies))

	stats := &LatencyStats{
		Min:    latencies[0],
		Max:    latencies[len(latencies)-1],
		Mean:   time.Duration(math.Round(mean)),
		P50:    Percentile(latencies, 50),
		P90:    Percentile(latencies, 90),
		StdDev: time.Duration(math.Round(math.Sqrt(variance))),
	}
	stats.MinMs = toMillis(stats.Min)
	stats.MaxMs = toMillis(stats.Max)
	stats.MeanMs = toMillis(stats.Mean)
	stats.P50Ms = toMillis(stats.P50)
	stats.P90Ms = toMillis(stats.P90)
	stats.StdDevMs = toMillis(stats.StdDev)
	return stats
}

// Percentile returns the p-th percentile (0-100) of an ascending slice,
// interpolating linearly between the two nearest ranks.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[len(sorted)-1]
	}

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	lo := float64(sorted[lower])
	hi := float64(sorted[upper])
	return time.Duration(math.Round(lo + (hi-lo)*weight))
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
