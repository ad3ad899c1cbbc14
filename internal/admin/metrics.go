package admin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics, named and grouped the way
// MOHCentral-opm-stats-api's worker pool registers its own — package
// level promauto vars, no registry plumbing needed beyond the default
// one promhttp.Handler serves.
var (
	activeSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dicehall_active_sessions",
		Help: "Current number of live multiplayer sessions",
	})

	activeParticipantsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dicehall_active_participants",
		Help: "Current number of seated human participants across all sessions",
	})

	conductStrikesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dicehall_conduct_strikes_total",
		Help: "Total number of room_channel messages blocked for a banned term",
	})

	filterTimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dicehall_filter_timeouts_total",
		Help: "Total number of filter executions that exceeded their timeout",
	}, []string{"filter_id"})

	filterErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dicehall_filter_errors_total",
		Help: "Total number of filter executions that returned an error",
	}, []string{"filter_id"})

	persistQueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dicehall_persist_queue_depth",
		Help: "Approximate depth of the store controller's persist queue",
	})
)

// RecordConductStrike increments the conduct-strike counter. The
// conduct engine stays metrics-agnostic and does not call it, and
// cmd/server registers no hook that does.
func RecordConductStrike() { conductStrikesTotal.Inc() }

// RecordFilterOutcome increments the timeout/error counters by filter
// id, given one filters.Diagnostic's status.
func RecordFilterOutcome(filterID, status string) {
	switch status {
	case "timeout":
		filterTimeoutsTotal.WithLabelValues(filterID).Inc()
	case "error":
		filterErrorsTotal.WithLabelValues(filterID).Inc()
	}
}

// RefreshGauges samples the current overview into the gauge metrics;
// called on a short interval (see cmd/server) since prometheus gauges
// have no "compute on scrape" hook without a custom Collector.
func (e *Engine) RefreshGauges() {
	ov := e.Overview()
	activeSessionsGauge.Set(float64(ov.ActiveSessions))
	activeParticipantsGauge.Set(float64(ov.ActiveParticipants))
}

// SetPersistQueueDepth is sampled by main from the store controller.
func SetPersistQueueDepth(depth int) { persistQueueDepthGauge.Set(float64(depth)) }
