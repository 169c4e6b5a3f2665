package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks violation recording.
type Metrics struct {
	Recorded       prometheus.Counter
	RecordFailures *prometheus.CounterVec
	AppendLatency  prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Recorded: f.NewCounter(prometheus.CounterOpts{
			Name: "terraguard_violations_recorded_total",
			Help: "Violations durably recorded",
		}),
		RecordFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "terraguard_violation_record_failures_total",
			Help: "Violation recordings that failed, by error code",
		}, []string{"code"}),
		AppendLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "terraguard_violation_append_duration_seconds",
			Help:    "Time spent appending a violation to the store",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}
}

func (m *Metrics) IncRecorded() {
	if m == nil {
		return
	}
	m.Recorded.Inc()
}

func (m *Metrics) IncFailure(code string) {
	if m == nil {
		return
	}
	m.RecordFailures.WithLabelValues(code).Inc()
}

func (m *Metrics) ObserveAppend(start time.Time) {
	if m == nil {
		return
	}
	m.AppendLatency.Observe(time.Since(start).Seconds())
}
