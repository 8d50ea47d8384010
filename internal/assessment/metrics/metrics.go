package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the assessment module.
type Metrics struct {
	AssessmentsCreated    prometheus.Counter
	StepTransitions       *prometheus.CounterVec
	RejectedTransitions   prometheus.Counter
	GetAssessmentDuration prometheus.Histogram
}

// New creates a Metrics instance with all assessment module metrics registered.
func New() *Metrics {
	return &Metrics{
		AssessmentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assessor_assessments_created_total",
			Help: "Total number of assessments created",
		}),
		StepTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assessor_step_transitions_total",
			Help: "Pipeline step transitions applied, labeled by target step",
		}, []string{"to"}),
		RejectedTransitions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assessor_step_transitions_rejected_total",
			Help: "Pipeline step transitions rejected by the state machine",
		}),
		GetAssessmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "assessor_get_assessment_duration_seconds",
			Help:    "Duration of full-tree assessment reads",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// ObserveGetAssessment records the duration of a full-tree read.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveGetAssessment(start time.Time) {
	m.GetAssessmentDuration.Observe(time.Since(start).Seconds())
}

// IncrementStepTransition records an applied pipeline transition.
func (m *Metrics) IncrementStepTransition(to string) {
	m.StepTransitions.WithLabelValues(to).Inc()
}
