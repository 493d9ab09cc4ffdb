// Package telemetry exposes benchmark progress as Prometheus metrics so a
// long ramp can be watched from a dashboard while it runs.
package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/torosent/rampfire/internal/metrics"
	"github.com/torosent/rampfire/internal/runner"
)

const namespace = "rampfire"

// Exporter implements runner.Observer and keeps its collectors in a private
// registry.
type Exporter struct {
	registry *prometheus.Registry
	window   atomic.Pointer[metrics.Window]

	requests     *prometheus.CounterVec
	latency      prometheus.Histogram
	phase        prometheus.Gauge
	concurrency  prometheus.Gauge
	levelsDone   prometheus.Counter
	levelLatency *prometheus.GaugeVec
	levelFailure *prometheus.GaugeVec
	levelSamples *prometheus.GaugeVec
}

// NewExporter creates an exporter with every collector registered.
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Completed requests by outcome, warm-up included",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Latency of successful requests",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		phase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "Phase of the running level: 0 awaiting initial responses, 1 warming up, 2 live",
		}),
		concurrency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "concurrency",
			Help:      "Worker count of the running level",
		}),
		levelsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "levels_completed_total",
			Help:      "Levels that finished their measurement period",
		}),
		levelLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "level_latency_seconds",
			Help:      "Latency percentiles of completed levels",
		}, []string{"concurrency", "quantile"}),
		levelFailure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "level_failure_ratio",
			Help:      "Failed share of measured samples of completed levels",
		}, []string{"concurrency"}),
		levelSamples: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "level_samples",
			Help:      "Measured samples of completed levels",
		}, []string{"concurrency"}),
	}

	windowSamples := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "window_samples",
		Help:      "Samples currently held by the sample window",
	}, func() float64 {
		if w := e.window.Load(); w != nil {
			return float64(w.Len())
		}
		return 0
	})

	e.registry.MustRegister(
		e.requests,
		e.latency,
		e.phase,
		e.concurrency,
		e.levelsDone,
		e.levelLatency,
		e.levelFailure,
		e.levelSamples,
		windowSamples,
	)
	return e
}

// WatchWindow makes the window_samples gauge report w.
func (e *Exporter) WatchWindow(w *metrics.Window) {
	e.window.Store(w)
}

// Registry returns the registry holding the exporter's collectors.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// RequestCompleted implements runner.Observer.
func (e *Exporter) RequestCompleted(_ int, s metrics.Sample) {
	if s.Failed() {
		e.requests.WithLabelValues("failure").Inc()
		return
	}
	e.requests.WithLabelValues("success").Inc()
	e.latency.Observe(s.Latency.Seconds())
}

// PhaseChanged implements runner.Observer.
func (e *Exporter) PhaseChanged(concurrency int, phase runner.Phase) {
	e.concurrency.Set(float64(concurrency))
	e.phase.Set(float64(phase))
}

// LevelCompleted implements runner.Observer.
func (e *Exporter) LevelCompleted(result runner.LevelResult) {
	label := strconv.Itoa(result.Concurrency)
	snap := result.Snapshot

	e.levelsDone.Inc()
	e.levelSamples.WithLabelValues(label).Set(float64(snap.Count))
	e.levelFailure.WithLabelValues(label).Set(snap.FailureRate / 100)
	if snap.Latency != nil {
		e.levelLatency.WithLabelValues(label, "0.5").Set(snap.Latency.P50.Seconds())
		e.levelLatency.WithLabelValues(label, "0.9").Set(snap.Latency.P90.Seconds())
	}
	if snap.Overall.P99 > 0 {
		e.levelLatency.WithLabelValues(label, "0.99").Set(snap.Overall.P99.Seconds())
	}
}

// Handler serves the exporter's registry in the Prometheus exposition format.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Server is a running /metrics endpoint.
type Server struct {
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

// Serve starts an HTTP server exposing /metrics on addr in a background
// goroutine. The server stops when ctx is cancelled or Shutdown is called.
func (e *Exporter) Serve(ctx context.Context, addr string, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	s := &Server{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.srv.Shutdown(shutdownCtx)
		case <-s.done:
		}
	}()

	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Shutdown stops the server and waits for it to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
