package runner

import "github.com/torosent/rampfire/internal/metrics"

// Observer receives notifications from a running ramp. Implementations must be
// safe for concurrent use; RequestCompleted is called from every worker.
type Observer interface {
	RequestCompleted(concurrency int, s metrics.Sample)
	PhaseChanged(concurrency int, phase Phase)
	LevelCompleted(result LevelResult)
}

type nopObserver struct{}

func (nopObserver) RequestCompleted(int, metrics.Sample) {}
func (nopObserver) PhaseChanged(int, Phase)              {}
func (nopObserver) LevelCompleted(LevelResult)           {}
