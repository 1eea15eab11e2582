package recommend

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	generations       *prometheus.CounterVec
	modelCallDuration *prometheus.HistogramVec
	duplicatesSkipped prometheus.Counter
	timelineRows      prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cinememory",
			Subsystem: "recommend",
			Name:      "generations_total",
			Help:      "Recommendation and analysis results by operation and source.",
		}, []string{"operation", "source"}),
		modelCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cinememory",
			Subsystem: "recommend",
			Name:      "model_call_duration_seconds",
			Help:      "Latency of language model calls.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"operation", "outcome"}),
		duplicatesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cinememory",
			Subsystem: "recommend",
			Name:      "duplicate_movies_skipped_total",
			Help:      "Recommended movies dropped because the set already held them.",
		}),
		timelineRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cinememory",
			Subsystem: "recommend",
			Name:      "timeline_rows_created_total",
			Help:      "Personalized timeline rows written.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.generations, m.modelCallDuration, m.duplicatesSkipped, m.timelineRows)
	}
	return m
}

func (m *Metrics) observeGeneration(operation string, source Source) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(operation, string(source)).Inc()
}

func (m *Metrics) observeModelCall(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.modelCallDuration.WithLabelValues(operation, outcome).Observe(time.Since(started).Seconds())
}

func (m *Metrics) observeDuplicate() {
	if m == nil {
		return
	}
	m.duplicatesSkipped.Inc()
}

func (m *Metrics) observeTimelineRows(n int) {
	if m == nil {
		return
	}
	m.timelineRows.Add(float64(n))
}
