package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Passes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classattend_passes_total",
		Help: "Attendance passes by outcome.",
	}, []string{"outcome"})

	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "classattend_pass_duration_seconds",
		Help:    "Wall time of one attendance pass.",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})

	Faces = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classattend_faces_total",
		Help: "Faces seen by attendance passes, by result.",
	}, []string{"result"})

	Overrides = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classattend_overrides_total",
		Help: "Manual Present overrides by source.",
	}, []string{"source"})

	Enrollments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classattend_enrollments_total",
		Help: "Students enrolled.",
	})

	Retrains = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classattend_retrains_total",
		Help: "Classifier retrains by outcome.",
	}, []string{"outcome"})

	ModelVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classattend_model_version",
		Help: "Version of the classifier model currently in use.",
	})
)

// Outcome labels a result as "ok" or the error's kind.
func Outcome(kind string) string {
	if kind == "" {
		return "ok"
	}
	return kind
}
