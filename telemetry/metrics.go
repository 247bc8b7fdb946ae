// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Polling side
	PollsTotal      *prometheus.CounterVec   // labels: platform
	PollErrorsTotal *prometheus.CounterVec   // labels: platform, kind
	PollDuration    *prometheus.HistogramVec // labels: platform
	EventsTotal     *prometheus.CounterVec   // labels: type
	LiveAccounts    prometheus.Gauge

	// Announcement side
	PostsTotal      *prometheus.CounterVec   // labels: platform, operation
	PostErrorsTotal *prometheus.CounterVec   // labels: platform, operation
	PostDuration    *prometheus.HistogramVec // labels: platform
	EndBatchesTotal prometheus.Counter
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "herald_polls_total", Help: "Status polls issued, by streaming platform"}, []string{"platform"})
		PollErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "herald_poll_errors_total", Help: "Failed status polls, by streaming platform and error kind"}, []string{"platform", "kind"})
		PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "herald_poll_duration_seconds", Help: "Status poll duration seconds", Buckets: prometheus.DefBuckets}, []string{"platform"})
		EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "herald_events_total", Help: "Lifecycle events emitted, by type"}, []string{"type"})
		LiveAccounts = promauto.NewGauge(prometheus.GaugeOpts{Name: "herald_live_accounts", Help: "Monitored accounts currently confirmed live"})
		PostsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "herald_posts_total", Help: "Successful social operations, by platform and operation"}, []string{"platform", "operation"})
		PostErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "herald_post_errors_total", Help: "Failed social operations, by platform and operation"}, []string{"platform", "operation"})
		PostDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "herald_post_duration_seconds", Help: "Social operation duration seconds", Buckets: prometheus.DefBuckets}, []string{"platform"})
		EndBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "herald_end_batches_total", Help: "Completed single-when-all-end summary batches"})
	})
}

// SetLiveAccounts records the current count of live accounts.
func SetLiveAccounts(n int) {
	if LiveAccounts != nil {
		LiveAccounts.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records it in obs if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger carrying the corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
