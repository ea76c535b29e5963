// Package metricsreg exposes the migration run's counters as
// process-local Prometheus metrics, ambient observability the teacher
// also carries for its own services.
package metricsreg

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hrygo/tgmigrate/internal/model"
)

// Registry holds the run's Prometheus collectors. Callers either
// register it against prometheus.DefaultRegisterer for scraping, or
// read Gather() once at exit and dump it alongside the JSON report.
type Registry struct {
	registry *prometheus.Registry

	migratedMessages   prometheus.Counter
	failedMessages     prometheus.Counter
	floodWaitCount     prometheus.Counter
	floodWaitSeconds   prometheus.Counter
	completedDialogs   prometheus.Counter
	failedDialogs      prometheus.Counter
	activeListeners    prometheus.Gauge
	batchDelaySeconds  prometheus.Gauge
}

// New builds a Registry with a private prometheus.Registry so running
// the tool twice in one process (tests) never collides on the default
// registerer.
func New() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}

	r.migratedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tgmigrate_migrated_messages_total",
		Help: "Total messages forwarded to a destination supergroup.",
	})
	r.failedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tgmigrate_failed_messages_total",
		Help: "Total messages that failed to forward.",
	})
	r.floodWaitCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tgmigrate_flood_wait_events_total",
		Help: "Total FLOOD_WAIT events observed.",
	})
	r.floodWaitSeconds = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tgmigrate_flood_wait_seconds_total",
		Help: "Total seconds spent waiting out FLOOD_WAIT responses.",
	})
	r.completedDialogs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tgmigrate_completed_dialogs_total",
		Help: "Total conversations fully migrated.",
	})
	r.failedDialogs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tgmigrate_failed_dialogs_total",
		Help: "Total conversations that ended Failed.",
	})
	r.activeListeners = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tgmigrate_active_listeners",
		Help: "Current count of registered tail-sync listeners.",
	})
	r.batchDelaySeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "tgmigrate_batch_delay_seconds",
		Help: "Current rate limiter inter-request delay, in seconds.",
	})

	r.registry.MustRegister(
		r.migratedMessages, r.failedMessages,
		r.floodWaitCount, r.floodWaitSeconds,
		r.completedDialogs, r.failedDialogs,
		r.activeListeners, r.batchDelaySeconds,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for an HTTP
// /metrics handler or a one-shot dump at exit.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.registry }

// ObserveBatch records one successfully forwarded batch.
func (r *Registry) ObserveBatch(migrated, failed int) {
	r.migratedMessages.Add(float64(migrated))
	r.failedMessages.Add(float64(failed))
}

// ObserveFloodWait records one floodwait event.
func (r *Registry) ObserveFloodWait(seconds int) {
	r.floodWaitCount.Inc()
	r.floodWaitSeconds.Add(float64(seconds))
}

// SetActiveListeners records the realtime manager's current listener count.
func (r *Registry) SetActiveListeners(n int) {
	r.activeListeners.Set(float64(n))
}

// SetBatchDelaySeconds records the rate limiter's current inter-request delay.
func (r *Registry) SetBatchDelaySeconds(seconds float64) {
	r.batchDelaySeconds.Set(seconds)
}

// ObserveConversationOutcome bumps the completed/failed dialog counters.
func (r *Registry) ObserveConversationOutcome(status model.Status) {
	switch status {
	case model.StatusCompleted:
		r.completedDialogs.Inc()
	case model.StatusFailed:
		r.failedDialogs.Inc()
	}
}
