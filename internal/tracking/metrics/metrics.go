package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the tracking pipeline: observations,
// breaches, dispatch outcomes and live sessions.
type Metrics struct {
	Observations      prometheus.Counter
	ObservationErrors *prometheus.CounterVec
	BreachesDetected  *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	DispatchQueued    prometheus.Gauge
	DispatchRetries   prometheus.Counter
	DispatchFailures  prometheus.Counter
	AlertFailures     prometheus.Counter
}

// New creates and registers the tracking metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Observations: f.NewCounter(prometheus.CounterOpts{
			Name: "terraguard_observations_total",
			Help: "Position samples evaluated against a zone",
		}),
		ObservationErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "terraguard_observation_errors_total",
			Help: "Observations rejected, by error code",
		}, []string{"code"}),
		BreachesDetected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "terraguard_breaches_detected_total",
			Help: "INSIDE to OUTSIDE transitions, by zone",
		}, []string{"zone_id"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "terraguard_tracking_sessions_active",
			Help: "Tracking sessions currently running",
		}),
		DispatchQueued: f.NewGauge(prometheus.GaugeOpts{
			Name: "terraguard_dispatch_queued",
			Help: "Breach events waiting to be recorded",
		}),
		DispatchRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "terraguard_dispatch_retries_total",
			Help: "Retried violation recordings",
		}),
		DispatchFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "terraguard_dispatch_failures_total",
			Help: "Breach events that could not be recorded after retries",
		}),
		AlertFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "terraguard_alert_failures_total",
			Help: "Alert sink notifications that failed",
		}),
	}
}

func (m *Metrics) IncObservation() {
	if m == nil {
		return
	}
	m.Observations.Inc()
}

func (m *Metrics) IncObservationError(code string) {
	if m == nil {
		return
	}
	m.ObservationErrors.WithLabelValues(code).Inc()
}

func (m *Metrics) IncBreach(zoneID string) {
	if m == nil {
		return
	}
	m.BreachesDetected.WithLabelValues(zoneID).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionStopped() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

func (m *Metrics) Queued(delta float64) {
	if m == nil {
		return
	}
	m.DispatchQueued.Add(delta)
}

func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.DispatchRetries.Inc()
}

func (m *Metrics) IncDispatchFailure() {
	if m == nil {
		return
	}
	m.DispatchFailures.Inc()
}

func (m *Metrics) IncAlertFailure() {
	if m == nil {
		return
	}
	m.AlertFailures.Inc()
}
