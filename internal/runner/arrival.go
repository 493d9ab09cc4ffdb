package runner

import (
	"context"

	"golang.org/x/time/rate"
)

// pacer gates each request issue. Workers stay closed-loop; a pacer can only
// lower the rate they sustain.
type pacer interface {
	Wait(ctx context.Context) error
}

func newPacer(opt Options) pacer {
	if opt.MaxRate <= 0 {
		return nil
	}
	return &uniformArrival{limiter: opt.LimiterFactory(opt.MaxRate)}
}

// uniformArrival delegates pacing to a rate.Limiter (uniform spacing).
type uniformArrival struct {
	limiter *rate.Limiter
}

func (u *uniformArrival) Wait(ctx context.Context) error {
	if u == nil || u.limiter == nil {
		return nil
	}
	return u.limiter.Wait(ctx)
}
