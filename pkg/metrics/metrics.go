// Package metrics exposes engine counters in Prometheus format. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace    = "livecollab"
	outcomeLabel = "outcome"
	triggerLabel = "trigger"
)

// Poll outcomes.
const (
	PollTyping   = "typing"
	PollUpToDate = "up_to_date"
	PollSameText = "same_text"
	PollApplied  = "applied"
)

// Commit triggers.
const (
	TriggerTimer  = "debounce"
	TriggerBlur   = "blur"
	TriggerClose  = "close"
	TriggerImport = "import"
	TriggerClear  = "clear"
)

// Metrics manages the metric information the engine records.
type Metrics struct {
	registry *prometheus.Registry

	commitsTotal          *prometheus.CounterVec
	pollsTotal            *prometheus.CounterVec
	openSessions          prometheus.Gauge
	importFailuresTotal   prometheus.Counter
	archivedSnapshotTotal prometheus.Counter
}

// New creates a Metrics with its own registry.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("register process collector: %w", err)
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("register go collector: %w", err)
	}

	return &Metrics{
		registry: reg,
		commitsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "commits_total",
			Help:      "The total number of commits, by what triggered them.",
		}, []string{triggerLabel}),
		pollsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "polls_total",
			Help:      "The total number of polls, by outcome.",
		}, []string{outcomeLabel}),
		openSessions: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "open",
			Help:      "The number of open sync sessions.",
		}),
		importFailuresTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "document",
			Name:      "import_failures_total",
			Help:      "The total number of rejected imports.",
		}),
		archivedSnapshotTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "snapshots_total",
			Help:      "The total number of snapshots written to the archive.",
		}),
	}, nil
}

// AddCommit records a commit caused by trigger.
func (m *Metrics) AddCommit(trigger string) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(trigger).Inc()
}

// AddPoll records a poll with the given outcome.
func (m *Metrics) AddPoll(outcome string) {
	if m == nil {
		return
	}
	m.pollsTotal.WithLabelValues(outcome).Inc()
}

// SetOpenSessions sets the open session gauge.
func (m *Metrics) SetOpenSessions(n int) {
	if m == nil {
		return
	}
	m.openSessions.Set(float64(n))
}

// AddImportFailure records a rejected import.
func (m *Metrics) AddImportFailure() {
	if m == nil {
		return
	}
	m.importFailuresTotal.Inc()
}

// AddArchivedSnapshots records n archived snapshots.
func (m *Metrics) AddArchivedSnapshots(n int) {
	if m == nil {
		return
	}
	m.archivedSnapshotTotal.Add(float64(n))
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
