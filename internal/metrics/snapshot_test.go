package metrics_test

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/torosent/rampfire/internal/metrics"
	"github.com/torosent/rampfire/internal/runner"
)

func TestSnapshotSingleWorkerScenario(t *testing.T) {
	w := metrics.NewWindow(100)
	for _, v := range []int{10, 20, 30, 40, 50} {
		w.Record(metrics.Success(ms(v)))
	}

	snap := w.Snapshot()
	if snap.Count != 5 || snap.Failures != 0 {
		t.Fatalf("count/failures = %d/%d, want 5/0", snap.Count, snap.Failures)
	}
	lat := snap.Latency
	if lat.Min != ms(10) {
		t.Errorf("min = %s, want 10ms", lat.Min)
	}
	if lat.Max != ms(50) {
		t.Errorf("max = %s, want 50ms", lat.Max)
	}
	if lat.P50 != ms(30) {
		t.Errorf("p50 = %s, want 30ms", lat.P50)
	}
	if lat.P90 != ms(46) {
		t.Errorf("p90 = %s, want 46ms", lat.P90)
	}
	if lat.Mean != ms(30) {
		t.Errorf("mean = %s, want 30ms", lat.Mean)
	}
	// Population standard deviation of 10..50 step 10 is sqrt(200) ms.
	wantStd := time.Duration(math.Round(math.Sqrt(200) * float64(time.Millisecond)))
	if lat.StdDev != wantStd {
		t.Errorf("std = %s, want %s", lat.StdDev, wantStd)
	}
	if lat.P90Ms != 46 {
		t.Errorf("p90 ms = %v, want 46", lat.P90Ms)
	}
}

func TestSnapshotFailuresExcludedFromPercentiles(t *testing.T) {
	w := metrics.NewWindow(10)
	w.Record(metrics.Success(ms(10)))
	w.Record(metrics.Failure(&runner.HTTPError{StatusCode: 500}))
	w.Record(metrics.Success(ms(20)))

	snap := w.Snapshot()
	if snap.Successes != 2 || snap.Failures != 1 || snap.Count != 3 {
		t.Fatalf("unexpected counts %+v", snap)
	}
	if math.Abs(snap.FailureRate-33.33) > 0.01 {
		t.Errorf("failure rate = %.4f, want 33.33", snap.FailureRate)
	}
	if snap.Latency.P50 != ms(15) {
		t.Errorf("p50 = %s, want 15ms", snap.Latency.P50)
	}
	if snap.FailureReasons["HTTP 500"] != 1 {
		t.Errorf("expected HTTP 500 reason, got %v", snap.FailureReasons)
	}
}

func TestSnapshotOnlyFailures(t *testing.T) {
	snap := metrics.Summarize([]metrics.Sample{
		metrics.Failure(errors.New("a")),
		metrics.Failure(errors.New("b")),
	})
	if snap.Latency != nil {
		t.Fatalf("expected no latency stats when every sample failed")
	}
	if snap.FailureRate != 100 {
		t.Errorf("failure rate = %v, want 100", snap.FailureRate)
	}
}

func TestPercentileMonotonic(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		n := 1 + rnd.Intn(300)
		samples := make([]metrics.Sample, n)
		for i := range samples {
			samples[i] = metrics.Success(time.Duration(rnd.Int63n(int64(time.Second))))
		}
		lat := metrics.Summarize(samples).Latency
		if !(lat.Min <= lat.P50 && lat.P50 <= lat.P90 && lat.P90 <= lat.Max) {
			t.Fatalf("round %d: min %s p50 %s p90 %s max %s not ordered", round, lat.Min, lat.P50, lat.P90, lat.Max)
		}
	}
}

func TestPercentileInterpolation(t *testing.T) {
	sorted := []time.Duration{ms(1), ms(2), ms(3), ms(4)}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	tests := []struct {
		p    float64
		want time.Duration
	}{
		{0, ms(1)},
		{50, 2500 * time.Microsecond},
		{100, ms(4)},
		{90, 3700 * time.Microsecond},
	}
	for _, tt := range tests {
		if got := metrics.Percentile(sorted, tt.p); got != tt.want {
			t.Errorf("Percentile(%v) = %s, want %s", tt.p, got, tt.want)
		}
	}
	if got := metrics.Percentile(nil, 50); got != 0 {
		t.Errorf("Percentile(nil) = %s, want 0", got)
	}
}

func TestSampleReason(t *testing.T) {
	if got := metrics.Failure(&runner.HTTPError{StatusCode: 404}).Reason(); got != "HTTP 404" {
		t.Errorf("reason = %q, want HTTP 404", got)
	}
	if got := metrics.Failure(nil).Reason(); got != "Request failed" {
		t.Errorf("reason = %q, want Request failed", got)
	}
	if got := metrics.Success(ms(1)).Reason(); got != "" {
		t.Errorf("reason for success = %q, want empty", got)
	}
}
