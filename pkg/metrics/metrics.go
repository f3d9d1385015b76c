// Package metrics exposes crawl progress as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/politecrawl/pkg/models"
)

// Metrics holds the crawl collectors. It satisfies crawler.Observer.
type Metrics struct {
	registry *prometheus.Registry

	StepsTotal    *prometheus.CounterVec
	StatusTotal   *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	LastStep      prometheus.Gauge
}

// New registers the collectors on a fresh registry, so several runs in one process
// (and tests) do not collide on the global default registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		StepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "politecrawl_steps_total",
			Help: "Worklist URLs processed, by outcome.",
		}, []string{"outcome"}),
		StatusTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "politecrawl_http_status_total",
			Help: "Fetched URLs by HTTP status class (2xx, 3xx, 4xx, 5xx, error).",
		}, []string{"class"}),
		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "politecrawl_fetch_duration_seconds",
			Help:    "Time spent fetching a URL, including retries and backoff.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		LastStep: factory.NewGauge(prometheus.GaugeOpts{
			Name: "politecrawl_last_step_timestamp_seconds",
			Help: "Unix time of the most recently processed URL.",
		}),
	}
}

// ObserveStep records one processed URL
func (m *Metrics) ObserveStep(_ string, outcome models.Outcome, status int, elapsed time.Duration) {
	m.StepsTotal.WithLabelValues(outcome.String()).Inc()
	m.LastStep.SetToCurrentTime()
	if outcome != models.OutcomeFetched && outcome != models.OutcomeFailed {
		return
	}
	m.StatusTotal.WithLabelValues(StatusClass(status)).Inc()
	m.FetchDuration.Observe(elapsed.Seconds())
}

// StatusClass buckets an HTTP status; 0 (no response) is "error"
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string, log *logrus.Entry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Metrics endpoint listening on %s/metrics", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("Metrics server shutdown: %v", err)
		}
		return nil
	}
}
