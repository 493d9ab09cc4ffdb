package runner

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/rampfire/internal/metrics"
)

// LevelResult is the finalized outcome of one concurrency level.
type LevelResult struct {
	RunID       string           `json:"run_id" yaml:"run_id"`
	Concurrency int              `json:"concurrency" yaml:"concurrency"`
	Start       time.Time        `json:"start_time" yaml:"start_time"`
	End         time.Time        `json:"end_time" yaml:"end_time"`
	Snapshot    metrics.Snapshot `json:"stats" yaml:"stats"`
}

// Duration returns the measured span of the level.
func (r LevelResult) Duration() time.Duration {
	if r.Start.IsZero() || r.End.Before(r.Start) {
		return 0
	}
	return r.End.Sub(r.Start)
}

// Level runs a single concurrency level. Only one Level may be active on a
// window at a time.
type Level struct {
	opt   Options
	pacer pacer
}

// NewLevel creates a level controller.
func NewLevel(opt Options) *Level {
	opt.normalize()
	return &Level{opt: opt, pacer: newPacer(opt)}
}

// Run spawns concurrency workers, waits for warm-up to finish, measures for
// duration and returns the frozen result once every worker has drained.
// If ctx is cancelled the partial result is returned with ctx.Err().
func (l *Level) Run(ctx context.Context, concurrency int, duration time.Duration) (LevelResult, error) {
	if concurrency < 1 {
		panic(fmt.Sprintf("runner: concurrency must be >= 1, got %d", concurrency))
	}
	if l.opt.Requester == nil {
		panic("runner: Requester is required")
	}

	logger := l.opt.Logger.With(zap.Int("concurrency", concurrency))
	ctx, span := l.opt.Tracer.Start(ctx, "rampfire.level",
		trace.WithAttributes(attribute.Int("rampfire.concurrency", concurrency)))
	defer span.End()

	window := l.opt.Window
	window.Reset()

	result := LevelResult{RunID: l.opt.RunID, Concurrency: concurrency}
	detector := NewDetector(DetectorOptions{
		Concurrency: concurrency,
		Delay:       l.opt.WarmupDelay,
		Window:      window,
		Logger:      logger,
		OnPhase: func(p Phase) {
			l.opt.Observer.PhaseChanged(concurrency, p)
		},
	})
	l.opt.Observer.PhaseChanged(concurrency, PhaseAwaitingInitial)

	var reporter Reporter
	if l.opt.Reporter != nil {
		reporter = l.opt.Reporter(concurrency, window, func() bool {
			return detector.Phase() != PhaseAwaitingInitial
		})
	}
	if reporter != nil {
		reporter.Start()
	}

	workers := make([]*Worker, concurrency)
	drained := make(chan int, concurrency)
	for i := range workers {
		w := newWorker(i, concurrency, l.opt, detector, l.pacer)
		workers[i] = w
		go func() {
			w.Run(ctx)
			drained <- w.ID()
		}()
	}
	logger.Info("level started", zap.Int("workers", concurrency))

	finish := func() {
		if reporter != nil {
			reporter.Stop()
		}
		detector.Stop()
		for _, w := range workers {
			w.Stop()
		}
		l.drain(logger, drained, concurrency)
	}
	abort := func(err error) (LevelResult, error) {
		// Samples taken before Live are not measurements.
		if !result.Start.IsZero() {
			result.Snapshot = window.Snapshot()
		}
		result.End = time.Now()
		finish()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("level aborted", zap.Stringer("phase", detector.Phase()), zap.Error(err))
		return result, err
	}

	select {
	case <-detector.Live():
	case <-ctx.Done():
		return abort(ctx.Err())
	}
	result.Start = detector.StartedAt()
	span.AddEvent("live")

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return abort(ctx.Err())
	}

	result.Snapshot = window.Snapshot()
	result.End = time.Now()
	finish()

	span.SetAttributes(
		attribute.Int("rampfire.samples", result.Snapshot.Count),
		attribute.Int("rampfire.failures", result.Snapshot.Failures),
	)
	span.SetStatus(codes.Ok, "")
	logger.Info("level finished",
		zap.Int("samples", result.Snapshot.Count),
		zap.Int("failures", result.Snapshot.Failures),
		zap.Duration("measured", result.Duration()))
	l.opt.Observer.LevelCompleted(result)
	return result, nil
}

func (l *Level) drain(logger *zap.Logger, drained <-chan int, total int) {
	logger.Info("waiting on in-flight requests", zap.Int("workers", total))
	for n := 1; n <= total; n++ {
		id := <-drained
		logger.Debug("worker drained", zap.Int("worker", id), zap.Int("drained", n), zap.Int("of", total))
	}
}
