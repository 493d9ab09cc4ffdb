// Package metrics holds the latency samples gathered while a concurrency level runs.
//
// A [Window] is a bounded, FIFO-evicting store of [Sample] values. Every worker
// of the active level records into the same window, while the periodic reporter
// and the level controller read it through [Window.Snapshot]:
//
//	w := metrics.NewWindow(metrics.DefaultWindowSize)
//	w.Record(metrics.Sample{Latency: 12 * time.Millisecond})
//	w.Record(metrics.Sample{Err: err})
//	snap := w.Snapshot()
//
// # Statistics
//
// A [Snapshot] reports the sample count, the failure count and rate and, when at
// least one successful sample exists, min/max/mean, P50, P90 and the population
// standard deviation of successful latencies. Percentiles interpolate linearly
// between ranks. [Snapshot.Overall] additionally covers every sample recorded
// since the last reset, including samples already evicted from the window, and
// reports an HDR-histogram P99.
//
// # Thread Safety
//
// Record, Snapshot and Reset are serialized by a single mutex.
package metrics
