// Package runner drives closed-loop concurrency ramps for rampfire.
//
// A ramp is an ordered list of concurrency levels. For each level the [Ramp]
// runs a fresh [Level] controller which:
//   - resets the shared [metrics.Window]
//   - spawns one [Worker] per unit of concurrency
//   - waits for the warm-up [Detector] to reach [PhaseLive]
//   - measures for the configured duration, then freezes a snapshot
//   - stops every worker and waits for its in-flight request to drain
//
// # Basic Usage
//
//	ramp := runner.NewRamp(runner.Options{
//		Requester:   myRequester,
//		Window:      metrics.NewWindow(metrics.DefaultWindowSize),
//		WarmupDelay: 5 * time.Second,
//	})
//	results, err := ramp.Run(ctx, []int{1, 2, 4, 8}, 15*time.Second)
//
// # Requester Interface
//
// Workers execute a [Requester] and time each call themselves. A nil error is
// a success; any error is recorded as a failure sample and the worker
// immediately issues the next request:
//
//	type Requester interface {
//		Do(ctx context.Context) error
//	}
//
// # Warm-up
//
// The detector moves AwaitingInitial -> Warming once every worker has completed
// its first request, and Warming -> Live after the warm-up delay. The window is
// reset on both transitions, so nothing measured before Live is reported.
//
// # Cancellation
//
// Stopping a worker is cooperative: it finishes the request in flight and then
// exits. Cancelling the context passed to Run aborts the ramp; in-flight
// requests see the cancelled context.
package runner
