// Package metrics exposes loop counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/yarlson/coralph/internal/loop"
	"github.com/yarlson/coralph/internal/prompt"
)

const namespace = "coralph"

// Iteration result label values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Recorder counts loop activity. It implements loop.Observer.
type Recorder struct {
	loop.NopObserver

	registry *prometheus.Registry

	iterations       *prometheus.CounterVec
	terminalSignals  *prometheus.CounterVec
	completeIgnored  prometheus.Counter
	iterationSeconds prometheus.Histogram
	warnings         prometheus.Counter
	running          prometheus.Gauge
}

var _ loop.Observer = (*Recorder)(nil)

// NewRecorder registers the loop metrics on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		iterations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_total",
			Help:      "Assistant turns by result",
		}, []string{"result"}),
		terminalSignals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminal_signals_total",
			Help:      "Terminal signals that stopped the loop",
		}, []string{"signal"}),
		completeIgnored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "complete_overrides_total",
			Help:      "COMPLETE signals ignored because backlog tasks remained open",
		}),
		iterationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iteration_duration_seconds",
			Help:      "Duration of assistant turns in seconds",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200, 1800, 3600},
		}),
		warnings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Non-fatal problems reported by the loop",
		}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "loop_running",
			Help:      "1 while the loop is running",
		}),
	}
}

// Registry returns the registry holding the loop metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) LoopStarted(int) {
	r.running.Set(1)
}

func (r *Recorder) IterationFinished(turn loop.Turn) {
	result := ResultSuccess
	if !turn.Success() {
		result = ResultError
	}
	r.iterations.WithLabelValues(result).Inc()
	r.iterationSeconds.Observe(turn.Duration.Seconds())
}

func (r *Recorder) CompleteIgnored(int) {
	r.completeIgnored.Inc()
}

func (r *Recorder) SignalDetected(_ int, signal prompt.Signal) {
	r.terminalSignals.WithLabelValues(string(signal)).Inc()
}

func (r *Recorder) Warning(string) {
	r.warnings.Inc()
}

func (r *Recorder) LoopStopped(result loop.RunResult) {
	r.running.Set(0)
	// NO_OPEN_ISSUES at startup stops the loop without a SignalDetected call.
	if result.Outcome == loop.RunOutcomeTerminalSignal && result.IterationsRun == 0 && result.Signal != "" {
		r.terminalSignals.WithLabelValues(string(result.Signal)).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done. It returns once the
// listener is bound; serving continues in the background.
func (r *Recorder) Serve(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", ln.Addr().String()).Msg("metrics server listening")
	return ln.Addr(), nil
}
