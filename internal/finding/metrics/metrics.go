package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the finding module.
type Metrics struct {
	FindingsLoaded  prometheus.Counter
	EdgesLoaded     prometheus.Counter
	HiddenToggles   prometheus.Counter
	CommentMutations *prometheus.CounterVec
}

// New creates a Metrics instance with all finding module metrics registered.
func New() *Metrics {
	return &Metrics{
		FindingsLoaded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assessor_findings_loaded_total",
			Help: "Findings upserted from scan runs",
		}),
		EdgesLoaded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assessor_finding_edges_loaded_total",
			Help: "Finding to best-practice association edges upserted",
		}),
		HiddenToggles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "assessor_finding_hidden_toggles_total",
			Help: "Reviewer hidden-flag changes applied to findings",
		}),
		CommentMutations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "assessor_finding_comment_mutations_total",
			Help: "Comment writes, labeled by operation",
		}, []string{"op"}),
	}
}
