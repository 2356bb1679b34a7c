package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/eventbus"
	"github.com/mescon/Archivarr/internal/logger"
)

// MetricsService counts run events. A run is a finite batch, so metrics are
// exported once at the end with WriteTextfile (node exporter textfile collector)
// instead of being served.
type MetricsService struct {
	eventBus eventbus.Publisher
	registry *prometheus.Registry

	// Counters
	candidates        prometheus.Counter
	containerFailures prometheus.Counter
	classifications   *prometheus.CounterVec
	remediationSteps  *prometheus.CounterVec
	migrationSteps    *prometheus.CounterVec
	apiErrors         prometheus.Counter
	bytesCopied       prometheus.Counter

	// Gauges
	lastRunTimestamp prometheus.Gauge
	lastRunDuration  prometheus.Gauge
}

// NewMetricsService creates the metrics on a private registry.
func NewMetricsService(eb eventbus.Publisher) *MetricsService {
	m := &MetricsService{
		eventBus: eb,
		registry: prometheus.NewRegistry(),

		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archivarr_candidates_total",
			Help: "Candidate items found by the container scan",
		}),
		containerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archivarr_container_failures_total",
			Help: "Container subtrees abandoned after a listing failure",
		}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archivarr_classifications_total",
			Help: "Classified items by action",
		}, []string{"action"}),
		remediationSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archivarr_remediation_steps_total",
			Help: "Remediation sub-steps by step and outcome",
		}, []string{"step", "outcome"}),
		migrationSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archivarr_migration_steps_total",
			Help: "Migration workflow steps by step and outcome",
		}, []string{"step", "outcome"}),
		apiErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archivarr_api_errors_total",
			Help: "Remote API requests that finally failed",
		}),
		bytesCopied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archivarr_bytes_copied_total",
			Help: "Bytes copied to destination mounts",
		}),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archivarr_last_run_timestamp_seconds",
			Help: "Unix time the last run completed",
		}),
		lastRunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archivarr_last_run_duration_seconds",
			Help: "Wall time of the last run",
		}),
	}

	m.registry.MustRegister(
		m.candidates,
		m.containerFailures,
		m.classifications,
		m.remediationSteps,
		m.migrationSteps,
		m.apiErrors,
		m.bytesCopied,
		m.lastRunTimestamp,
		m.lastRunDuration,
	)

	return m
}

// Start subscribes to events and updates metrics
func (m *MetricsService) Start() {
	m.eventBus.Subscribe(domain.CandidateFound, m.handleCandidateFound)
	m.eventBus.Subscribe(domain.ContainerFailed, m.handleContainerFailed)
	m.eventBus.Subscribe(domain.ItemClassified, m.handleItemClassified)
	m.eventBus.Subscribe(domain.RemediationStep, m.handleRemediationStep)
	m.eventBus.Subscribe(domain.MigrationStepDone, m.handleMigrationStep)
	m.eventBus.Subscribe(domain.RunCompleted, m.handleRunCompleted)

	logger.Debugf("Metrics service started")
}

// Registry returns the registry holding every archivarr metric.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAPIError counts one failed API request.
func (m *MetricsService) RecordAPIError() {
	m.apiErrors.Inc()
}

// WriteTextfile writes all metrics in the text exposition format.
// Call it after the event bus has been shut down so every event is counted.
func (m *MetricsService) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}

// Event handlers

func (m *MetricsService) handleCandidateFound(_ domain.Event) {
	m.candidates.Inc()
}

func (m *MetricsService) handleContainerFailed(_ domain.Event) {
	m.containerFailures.Inc()
}

func (m *MetricsService) handleItemClassified(event domain.Event) {
	data, ok := event.ParseClassifiedEventData()
	if !ok {
		return
	}
	m.classifications.WithLabelValues(string(data.Action)).Inc()
}

func (m *MetricsService) handleRemediationStep(event domain.Event) {
	data, ok := event.ParseStepEventData()
	if !ok {
		return
	}
	m.remediationSteps.WithLabelValues(data.Step, data.Outcome).Inc()
}

func (m *MetricsService) handleMigrationStep(event domain.Event) {
	data, ok := event.ParseStepEventData()
	if !ok {
		return
	}
	m.migrationSteps.WithLabelValues(data.Step, data.Outcome).Inc()
	if data.Bytes > 0 {
		m.bytesCopied.Add(float64(data.Bytes))
	}
}

func (m *MetricsService) handleRunCompleted(event domain.Event) {
	m.lastRunTimestamp.Set(float64(event.CreatedAt.Unix()))
	if seconds, ok := event.EventData["duration_seconds"].(float64); ok {
		m.lastRunDuration.Set(seconds)
	}
}
