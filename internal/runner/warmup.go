package runner

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase is the warm-up state of a level.
type Phase int32

const (
	// PhaseAwaitingInitial waits for every worker's first completion.
	PhaseAwaitingInitial Phase = iota
	// PhaseWarming discards samples until the warm-up delay elapses.
	PhaseWarming
	// PhaseLive is the measured part of the level.
	PhaseLive
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingInitial:
		return "awaiting_initial"
	case PhaseWarming:
		return "warming"
	case PhaseLive:
		return "live"
	default:
		return "unknown"
	}
}

// ErrUnexpectedInitial is returned when an initial response arrives after the
// detector has left PhaseAwaitingInitial.
var ErrUnexpectedInitial = errors.New("initial response received after all initial responses")

// Resetter clears accumulated samples.
type Resetter interface {
	Reset()
}

// DetectorOptions configure a Detector.
type DetectorOptions struct {
	Concurrency int           // initial responses required before warming
	Delay       time.Duration // warm-up period; zero goes live immediately
	Window      Resetter      // reset on entering Warming and Live
	Logger      *zap.Logger
	OnPhase     func(Phase) // optional; called on each transition
}

// Detector tracks first completions per worker and decides when a level's
// measurements become trustworthy. A new Detector is used for every level.
type Detector struct {
	mu        sync.Mutex
	opt       DetectorOptions
	phase     Phase
	initial   int
	timer     *time.Timer
	stopped   bool
	live      chan struct{}
	startedAt time.Time
}

// NewDetector creates a detector in PhaseAwaitingInitial.
func NewDetector(opt DetectorOptions) *Detector {
	if opt.Concurrency < 1 {
		opt.Concurrency = 1
	}
	if opt.Delay < 0 {
		opt.Delay = 0
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	return &Detector{opt: opt, live: make(chan struct{})}
}

// InitialResponse records one worker's first completion. Once Concurrency
// completions have been seen the window is reset and warm-up begins. Calls
// made outside PhaseAwaitingInitial are logged and return ErrUnexpectedInitial.
func (d *Detector) InitialResponse() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.phase != PhaseAwaitingInitial {
		d.opt.Logger.Warn("initial response after warm-up started",
			zap.Stringer("phase", d.phase),
			zap.Int("concurrency", d.opt.Concurrency))
		return fmt.Errorf("%w (phase %s)", ErrUnexpectedInitial, d.phase)
	}
	if d.stopped {
		return nil
	}

	d.initial++
	if d.initial < d.opt.Concurrency {
		return nil
	}

	d.opt.Logger.Info("all initial requests completed", zap.Int("concurrency", d.opt.Concurrency))
	d.resetWindow()
	d.setPhaseLocked(PhaseWarming)

	if d.opt.Delay == 0 {
		d.goLiveLocked()
		return nil
	}
	d.timer = time.AfterFunc(d.opt.Delay, d.warmupElapsed)
	return nil
}

func (d *Detector) warmupElapsed() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.phase != PhaseWarming {
		return
	}
	d.opt.Logger.Info("warm-up complete (discarding results)", zap.Duration("delay", d.opt.Delay))
	d.goLiveLocked()
}

func (d *Detector) goLiveLocked() {
	d.resetWindow()
	d.startedAt = time.Now()
	d.setPhaseLocked(PhaseLive)
	close(d.live)
}

func (d *Detector) resetWindow() {
	if d.opt.Window != nil {
		d.opt.Window.Reset()
	}
}

func (d *Detector) setPhaseLocked(p Phase) {
	d.phase = p
	if d.opt.OnPhase != nil {
		d.opt.OnPhase(p)
	}
}

// Stop cancels a pending warm-up timer. The detector ignores further
// transitions afterwards.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}

// Live is closed when the detector enters PhaseLive.
func (d *Detector) Live() <-chan struct{} {
	return d.live
}

// Phase returns the current phase.
func (d *Detector) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// InitialCount returns the number of initial responses seen so far.
func (d *Detector) InitialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initial
}

// StartedAt returns the official level start, or the zero time before Live.
func (d *Detector) StartedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startedAt
}
