package runner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/torosent/rampfire/internal/metrics"
)

// Worker is one closed-loop request loop: issue, await, record, re-issue.
// At most one request per worker is ever outstanding.
type Worker struct {
	id          int
	concurrency int
	requester   Requester
	window      *metrics.Window
	detector    *Detector
	pacer       pacer
	observer    Observer

	stop      atomic.Bool
	completed atomic.Int64
	done      chan struct{}
}

func newWorker(id, concurrency int, opt Options, detector *Detector, p pacer) *Worker {
	return &Worker{
		id:          id,
		concurrency: concurrency,
		requester:   opt.Requester,
		window:      opt.Window,
		detector:    detector,
		pacer:       p,
		observer:    opt.Observer,
		done:        make(chan struct{}),
	}
}

// ID returns the worker index within its level.
func (w *Worker) ID() int { return w.id }

// Completed returns the number of recorded completions.
func (w *Worker) Completed() int64 { return w.completed.Load() }

// Stop asks the worker to exit once its in-flight request completes.
func (w *Worker) Stop() { w.stop.Store(true) }

// Done is closed when Run returns.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Run loops until Stop is called or ctx is cancelled. Failures are recorded
// and never end the loop.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	first := true
	for !w.stop.Load() && ctx.Err() == nil {
		if w.pacer != nil {
			if err := w.pacer.Wait(ctx); err != nil {
				return
			}
		}

		start := time.Now()
		err := w.requester.Do(ctx)
		latency := time.Since(start)

		// A stopped level has already frozen its snapshot.
		if w.stop.Load() || ctx.Err() != nil {
			return
		}

		sample := metrics.Success(latency)
		if err != nil {
			sample = metrics.Failure(err)
		}
		w.window.Record(sample)
		w.completed.Add(1)
		w.observer.RequestCompleted(w.concurrency, sample)

		// Recorded first so the detector's reset also discards this sample.
		if first {
			first = false
			_ = w.detector.InitialResponse()
		}
	}
}
