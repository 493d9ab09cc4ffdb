package runner_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/torosent/rampfire/internal/metrics"
	"github.com/torosent/rampfire/internal/runner"
)

// fakeRequester simulates performing a request with fixed latency.
type fakeRequester struct {
	latency  time.Duration
	calls    atomic.Int64
	inflight atomic.Int64
	peak     atomic.Int64
	failFor  int64 // first failFor calls fail
}

func (f *fakeRequester) Do(ctx context.Context) error {
	n := f.calls.Add(1)
	cur := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if cur <= p || f.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	select {
	case <-time.After(f.latency):
	case <-ctx.Done():
		return ctx.Err()
	}
	if n <= f.failFor {
		return &runner.HTTPError{StatusCode: 500}
	}
	return nil
}

type recordingObserver struct {
	mu        sync.Mutex
	phases    map[int][]runner.Phase
	requests  atomic.Int64
	completed []runner.LevelResult
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{phases: make(map[int][]runner.Phase)}
}

func (o *recordingObserver) RequestCompleted(int, metrics.Sample) { o.requests.Add(1) }

func (o *recordingObserver) PhaseChanged(concurrency int, p runner.Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases[concurrency] = append(o.phases[concurrency], p)
}

func (o *recordingObserver) LevelCompleted(r runner.LevelResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed = append(o.completed, r)
}

type countingReporter struct {
	starts, stops atomic.Int32
	active        func() bool
}

func (c *countingReporter) Start() { c.starts.Add(1) }
func (c *countingReporter) Stop()  { c.stops.Add(1) }

func TestLevelMeasuresAfterWarmup(t *testing.T) {
	req := &fakeRequester{latency: 2 * time.Millisecond}
	obs := newRecordingObserver()
	lvl := runner.NewLevel(runner.Options{
		Requester:   req,
		WarmupDelay: 10 * time.Millisecond,
		Observer:    obs,
		RunID:       "run-a",
	})

	res, err := lvl.Run(context.Background(), 3, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID != "run-a" || res.Concurrency != 3 {
		t.Fatalf("unexpected identity: %+v", res)
	}
	if res.Start.IsZero() || !res.End.After(res.Start) {
		t.Fatalf("bad timestamps: start %v end %v", res.Start, res.End)
	}
	if res.Duration() < 50*time.Millisecond {
		t.Fatalf("measured %s, want >= 50ms", res.Duration())
	}
	if res.Snapshot.Count == 0 || res.Snapshot.Failures != 0 {
		t.Fatalf("unexpected snapshot: %+v", res.Snapshot)
	}
	if res.Snapshot.Latency == nil || res.Snapshot.Latency.Min < 2*time.Millisecond {
		t.Fatalf("latency stats missing or too low: %+v", res.Snapshot.Latency)
	}

	obs.mu.Lock()
	phases := obs.phases[3]
	completed := len(obs.completed)
	obs.mu.Unlock()
	want := []runner.Phase{runner.PhaseAwaitingInitial, runner.PhaseWarming, runner.PhaseLive}
	if len(phases) != len(want) {
		t.Fatalf("phases = %v, want %v", phases, want)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("phases = %v, want %v", phases, want)
		}
	}
	if completed != 1 {
		t.Fatalf("LevelCompleted called %d times", completed)
	}
}

func TestLevelDiscardsInitialFailures(t *testing.T) {
	req := &fakeRequester{latency: time.Millisecond, failFor: 2}
	lvl := runner.NewLevel(runner.Options{Requester: req, WarmupDelay: 10 * time.Millisecond})

	res, err := lvl.Run(context.Background(), 2, 30*time.Millisecond)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Snapshot.Failures != 0 {
		t.Fatalf("warm-up failures leaked into level: %+v", res.Snapshot.FailureReasons)
	}
}

func TestLevelZeroWarmupDiscardsColdRequest(t *testing.T) {
	var calls atomic.Int64
	req := requesterFunc(func(ctx context.Context) error {
		latency := time.Millisecond
		if calls.Add(1) == 1 {
			latency = 150 * time.Millisecond
		}
		select {
		case <-time.After(latency):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	lvl := runner.NewLevel(runner.Options{Requester: req, WarmupDelay: 0})

	res, err := lvl.Run(context.Background(), 1, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Snapshot.Count == 0 || res.Snapshot.Latency == nil {
		t.Fatalf("nothing measured: %+v", res.Snapshot)
	}
	if res.Snapshot.Latency.Max >= 100*time.Millisecond {
		t.Fatalf("cold first request leaked into level, max = %s", res.Snapshot.Latency.Max)
	}
}

func TestLevelRecordsFailures(t *testing.T) {
	req := &fakeRequester{latency: time.Millisecond, failFor: 1 << 40}
	lvl := runner.NewLevel(runner.Options{Requester: req})

	res, err := lvl.Run(context.Background(), 2, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Snapshot.Count == 0 || res.Snapshot.Failures != res.Snapshot.Count {
		t.Fatalf("expected all failures, got %+v", res.Snapshot)
	}
	if res.Snapshot.FailureRate != 100 {
		t.Fatalf("failure rate = %v, want 100", res.Snapshot.FailureRate)
	}
	if res.Snapshot.FailureReasons["HTTP 500"] != res.Snapshot.Failures {
		t.Fatalf("failure reasons = %v", res.Snapshot.FailureReasons)
	}
	if res.Snapshot.Latency != nil {
		t.Fatalf("latency stats should be absent, got %+v", res.Snapshot.Latency)
	}
}

func TestLevelBoundsOutstandingRequests(t *testing.T) {
	req := &fakeRequester{latency: 3 * time.Millisecond}
	lvl := runner.NewLevel(runner.Options{Requester: req})

	if _, err := lvl.Run(context.Background(), 4, 30*time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if peak := req.peak.Load(); peak > 4 {
		t.Fatalf("peak in-flight = %d, want <= 4", peak)
	}
}

func TestLevelDrainsBeforeReturning(t *testing.T) {
	req := &fakeRequester{latency: 2 * time.Millisecond}
	lvl := runner.NewLevel(runner.Options{Requester: req})

	if _, err := lvl.Run(context.Background(), 3, 20*time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := req.inflight.Load(); n != 0 {
		t.Fatalf("%d requests still in flight after Run returned", n)
	}
	calls := req.calls.Load()
	time.Sleep(20 * time.Millisecond)
	if after := req.calls.Load(); after != calls {
		t.Fatalf("requests issued after level ended: %d -> %d", calls, after)
	}
}

func TestLevelReporterLifecycle(t *testing.T) {
	rep := &countingReporter{}
	var sawConcurrency int
	lvl := runner.NewLevel(runner.Options{
		Requester: &fakeRequester{latency: time.Millisecond},
		Reporter: func(concurrency int, _ *metrics.Window, active func() bool) runner.Reporter {
			sawConcurrency = concurrency
			rep.active = active
			return rep
		},
	})

	if _, err := lvl.Run(context.Background(), 2, 10*time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sawConcurrency != 2 {
		t.Fatalf("factory concurrency = %d", sawConcurrency)
	}
	if rep.starts.Load() != 1 || rep.stops.Load() != 1 {
		t.Fatalf("starts %d stops %d, want 1/1", rep.starts.Load(), rep.stops.Load())
	}
	if !rep.active() {
		t.Fatal("reporter should be active after warm-up")
	}
}

func TestLevelCancelledBeforeLive(t *testing.T) {
	req := &fakeRequester{latency: time.Hour}
	lvl := runner.NewLevel(runner.Options{Requester: req})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res, err := lvl.Run(ctx, 2, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !res.Start.IsZero() {
		t.Fatalf("level never went live but Start = %v", res.Start)
	}
	if res.Snapshot.Count != 0 {
		t.Fatalf("unexpected samples: %d", res.Snapshot.Count)
	}
}

func TestLevelCancelledWhileMeasuring(t *testing.T) {
	req := &fakeRequester{latency: time.Millisecond}
	lvl := runner.NewLevel(runner.Options{Requester: req})

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := lvl.Run(ctx, 2, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("cancellation did not stop the level promptly")
	}
	if res.Start.IsZero() || res.Snapshot.Count == 0 {
		t.Fatalf("expected partial result, got %+v", res)
	}
}

func TestLevelPanicsOnInvalidConcurrency(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for concurrency 0")
		}
	}()
	lvl := runner.NewLevel(runner.Options{Requester: &fakeRequester{}})
	_, _ = lvl.Run(context.Background(), 0, time.Millisecond)
}

func TestLevelEmitsSpan(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	lvl := runner.NewLevel(runner.Options{
		Requester: &fakeRequester{latency: time.Millisecond},
		Tracer:    tp.Tracer("test"),
	})
	if _, err := lvl.Run(context.Background(), 1, 10*time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Name != "rampfire.level" {
		t.Fatalf("span name = %q", spans[0].Name)
	}
	found := false
	for _, attr := range spans[0].Attributes {
		if string(attr.Key) == "rampfire.concurrency" && attr.Value.AsInt64() == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("concurrency attribute missing: %v", spans[0].Attributes)
	}
}

type requesterFunc func(ctx context.Context) error

func (f requesterFunc) Do(ctx context.Context) error { return f(ctx) }
