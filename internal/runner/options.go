package runner

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/torosent/rampfire/internal/metrics"
)

// DefaultWarmupDelay is the settle period discarded after every worker has
// completed its first request.
const DefaultWarmupDelay = 5 * time.Second

// Requester abstracts executing a single request operation.
// Implementations should return an error for failed requests.
type Requester interface {
	Do(ctx context.Context) error
}

// Reporter emits live snapshots while a level runs.
type Reporter interface {
	Start()
	Stop()
}

// ReporterFactory builds the reporter for one level. active reports whether
// the level has left the AwaitingInitial phase.
type ReporterFactory func(concurrency int, window *metrics.Window, active func() bool) Reporter

// Options configure Level and Ramp.
type Options struct {
	Requester       Requester                   // request executor (required)
	Window          *metrics.Window             // shared sample window; created when nil
	WarmupDelay     time.Duration               // settle period after all initial responses
	MaxRate         int                         // requests per second ceiling across all workers (0 means unlimited)
	Reporter        ReporterFactory             // optional live reporter
	Observer        Observer                    // optional metrics hooks
	OnLevelComplete func(LevelResult)           // invoked by Ramp after each level
	Logger          *zap.Logger                 // defaults to a no-op logger
	Tracer          trace.Tracer                // defaults to a no-op tracer
	RunID           string                      // generated when empty
	LimiterFactory  func(rps int) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.Window == nil {
		o.Window = metrics.NewWindow(metrics.DefaultWindowSize)
	}
	if o.WarmupDelay < 0 {
		o.WarmupDelay = 0
	}
	if o.MaxRate < 0 {
		o.MaxRate = 0
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("rampfire")
	}
	if o.RunID == "" {
		o.RunID = ulid.Make().String()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst of one keeps closed-loop workers from bunching up.
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}
