package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/rampfire/internal/metrics"
	"github.com/torosent/rampfire/internal/runner"
)

// DefaultReportInterval is the live reporting period.
const DefaultReportInterval = 3 * time.Second

// Snapshotter provides the current window summary.
type Snapshotter interface {
	Snapshot() metrics.Snapshot
}

// ProgressReporter prints one line per tick while a level is warming or live.
type ProgressReporter struct {
	source      Snapshotter
	active      func() bool
	concurrency int
	interval    time.Duration
	writer      io.Writer
	colors      *ColorScheme
	ticker      *time.Ticker
	done        chan struct{}
	finished    chan struct{}
	running     int32
	now         func() time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
// Ticks are silent while active returns false. A nil colors disables coloring.
func NewProgressReporter(source Snapshotter, active func() bool, concurrency int, interval time.Duration, writer io.Writer, colors *ColorScheme) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	if active == nil {
		active = func() bool { return true }
	}
	return &ProgressReporter{
		source:      source,
		active:      active,
		concurrency: concurrency,
		interval:    interval,
		writer:      writer,
		colors:      colors,
		done:        make(chan struct{}),
		finished:    make(chan struct{}),
		now:         time.Now,
	}
}

// NewReporterFactory adapts NewProgressReporter to the runner's per-level hook.
func NewReporterFactory(interval time.Duration, writer io.Writer, colors *ColorScheme) runner.ReporterFactory {
	return func(concurrency int, window *metrics.Window, active func() bool) runner.Reporter {
		return NewProgressReporter(window, active, concurrency, interval, writer, colors)
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.running, 0, 1) {
		return // already running
	}
	p.ticker = time.NewTicker(p.interval)
	go p.run()
}

// Stop halts progress updates. No line is written after Stop returns.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.running, 1, 2) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			// Stop may race with a pending tick.
			select {
			case <-p.done:
				return
			default:
			}
			if !p.active() {
				continue
			}
			line := FormatProgressLine(p.now(), p.concurrency, p.source.Snapshot(), p.colors)
			fmt.Fprintln(p.writer, line)
		case <-p.done:
			return
		}
	}
}

// FormatProgressLine renders a live snapshot.
func FormatProgressLine(now time.Time, concurrency int, snap metrics.Snapshot, colors *ColorScheme) string {
	c := colors
	if c == nil {
		c = NoColorScheme()
	}
	prefix := fmt.Sprintf("%s [c=%d]", c.Timestamp.Sprint(FormatTimestamp(now)), concurrency)

	if snap.Empty() {
		return prefix + " No responses yet."
	}

	failures := c.OK.Sprintf("%d", snap.Failures)
	if snap.Failures > 0 {
		failures = c.Failure.Sprintf("%d", snap.Failures)
	}

	if snap.Latency == nil {
		return fmt.Sprintf("%s failures: %s (%.2f%%) measurements: %d",
			prefix, failures, snap.FailureRate, snap.Count)
	}

	l := snap.Latency
	return fmt.Sprintf("%s P50/P90: %s/%s min/max: %s/%s std: %s failures: %s (%.2f%%) measurements: %d",
		prefix,
		c.Latency.Sprint(formatMs(l.P50)),
		c.Latency.Sprint(formatMs(l.P90)),
		formatMs(l.Min),
		formatMs(l.Max),
		formatMs(l.StdDev),
		failures,
		snap.FailureRate,
		snap.Count,
	)
}

func formatMs(d time.Duration) string {
	return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
}
