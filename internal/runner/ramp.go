package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Ramp runs a sequence of levels strictly one after another, each starting
// only after the previous one has fully drained.
type Ramp struct {
	opt Options
}

// NewRamp creates a ramp orchestrator. Every level shares the ramp's window
// and run ID.
func NewRamp(opt Options) *Ramp {
	opt.normalize()
	return &Ramp{opt: opt}
}

// RunID identifies the ramp in logs and result files.
func (r *Ramp) RunID() string { return r.opt.RunID }

// Run executes one level per entry in levels, in order, each measured for
// duration. Results are returned in level order. On error the completed
// results are returned alongside it, including the interrupted level's
// partial result.
func (r *Ramp) Run(ctx context.Context, levels []int, duration time.Duration) ([]LevelResult, error) {
	results := make([]LevelResult, 0, len(levels))
	logger := r.opt.Logger.With(zap.String("run_id", r.opt.RunID))

	for i, concurrency := range levels {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		logger.Info("starting level",
			zap.Int("level", i+1),
			zap.Int("of", len(levels)),
			zap.Int("concurrency", concurrency))

		level := NewLevel(r.opt)
		result, err := level.Run(ctx, concurrency, duration)
		if err != nil {
			results = append(results, result)
			return results, fmt.Errorf("level %d (concurrency %d): %w", i+1, concurrency, err)
		}
		results = append(results, result)
		if r.opt.OnLevelComplete != nil {
			r.opt.OnLevelComplete(result)
		}
	}
	logger.Info("ramp complete", zap.Int("levels", len(results)))
	return results, nil
}
