// Package metrics exposes translation counters and latencies to Prometheus.
//
// Metrics:
//   - codetran_attempts_total{mode,outcome} - translation attempts per unit mode
//   - codetran_chunks_total{outcome} - chunk translations
//   - codetran_units_total{status} - finished units
//   - codetran_translate_duration_seconds{mode} - wall time per unit
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the collectors of one registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	AttemptsTotal     *prometheus.CounterVec
	ChunksTotal       *prometheus.CounterVec
	UnitsTotal        *prometheus.CounterVec
	TranslateDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codetran_attempts_total",
				Help: "Total number of translation attempts",
			},
			[]string{"mode", "outcome"}, // single|chunked, succeeded|failed
		),
		ChunksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codetran_chunks_total",
				Help: "Total number of chunk translations",
			},
			[]string{"outcome"},
		),
		UnitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "codetran_units_total",
				Help: "Total number of finished units",
			},
			[]string{"status"},
		),
		TranslateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "codetran_translate_duration_seconds",
				Help:    "Wall time spent translating a unit",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"mode"},
		),
	}
	reg.MustRegister(
		m.AttemptsTotal,
		m.ChunksTotal,
		m.UnitsTotal,
		m.TranslateDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveAttempt(mode string, succeeded bool) {
	if m == nil {
		return
	}
	m.AttemptsTotal.WithLabelValues(mode, outcome(succeeded)).Inc()
}

func (m *Metrics) ObserveChunk(succeeded bool) {
	if m == nil {
		return
	}
	m.ChunksTotal.WithLabelValues(outcome(succeeded)).Inc()
}

func (m *Metrics) ObserveUnit(mode string, succeeded bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UnitsTotal.WithLabelValues(outcome(succeeded)).Inc()
	m.TranslateDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func outcome(succeeded bool) string {
	if succeeded {
		return "succeeded"
	}
	return "failed"
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
