package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/Archivarr/internal/domain"
	"github.com/mescon/Archivarr/internal/eventbus"
)

// =============================================================================
// Test helpers
// =============================================================================

// publishAll sends events through a fresh bus and drains it before returning.
func publishAll(t *testing.T, events ...domain.Event) *MetricsService {
	t.Helper()
	eb := eventbus.NewEventBus()
	m := NewMetricsService(eb)
	m.Start()
	for _, e := range events {
		require.NoError(t, eb.Publish(e))
	}
	eb.Shutdown()
	return m
}

func stepEvent(eventType domain.EventType, step, outcome string, bytes int64) domain.Event {
	data := map[string]interface{}{"step": step, "outcome": outcome}
	if bytes > 0 {
		data["bytes"] = bytes
	}
	return domain.Event{EventType: eventType, AggregateID: "a1", EventData: data}
}

// =============================================================================
// Event handler tests
// =============================================================================

func TestMetrics_CandidatesAndContainers(t *testing.T) {
	m := publishAll(t,
		domain.Event{EventType: domain.CandidateFound},
		domain.Event{EventType: domain.CandidateFound},
		domain.Event{EventType: domain.ContainerFailed},
	)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.candidates))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.containerFailures))
}

func TestMetrics_ClassificationsByAction(t *testing.T) {
	m := publishAll(t,
		domain.Event{EventType: domain.ItemClassified, EventData: map[string]interface{}{"action": "fix_metadata"}},
		domain.Event{EventType: domain.ItemClassified, EventData: map[string]interface{}{"action": "fix_metadata"}},
		domain.Event{EventType: domain.ItemClassified, EventData: map[string]interface{}{"action": "stale_cache"}},
		domain.Event{EventType: domain.ItemClassified}, // no action, ignored
	)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.classifications.WithLabelValues("fix_metadata")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.classifications.WithLabelValues("stale_cache")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.classifications))
}

func TestMetrics_StepsAndBytes(t *testing.T) {
	m := publishAll(t,
		stepEvent(domain.RemediationStep, "asset_status", "done", 0),
		stepEvent(domain.RemediationStep, "placement_status", "failed", 0),
		stepEvent(domain.MigrationStepDone, "ensure_copy", "done", 4096),
		stepEvent(domain.MigrationStepDone, "ensure_copy", "already_done", 0),
		stepEvent(domain.MigrationStepDone, "ensure_copy", "done", 1024),
	)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.remediationSteps.WithLabelValues("asset_status", "done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remediationSteps.WithLabelValues("placement_status", "failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.migrationSteps.WithLabelValues("ensure_copy", "done")))
	assert.Equal(t, 5120.0, testutil.ToFloat64(m.bytesCopied))
}

func TestMetrics_RunCompleted(t *testing.T) {
	at := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	m := publishAll(t, domain.Event{
		EventType: domain.RunCompleted,
		CreatedAt: at,
		EventData: map[string]interface{}{"duration_seconds": 12.5},
	})

	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(m.lastRunTimestamp))
	assert.Equal(t, 12.5, testutil.ToFloat64(m.lastRunDuration))
}

func TestMetrics_RecordAPIError(t *testing.T) {
	m := NewMetricsService(eventbus.NewEventBus())
	m.RecordAPIError()
	m.RecordAPIError()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.apiErrors))
}

// =============================================================================
// Export tests
// =============================================================================

func TestMetrics_WriteTextfile(t *testing.T) {
	m := publishAll(t,
		domain.Event{EventType: domain.CandidateFound},
		domain.Event{EventType: domain.ItemClassified, EventData: map[string]interface{}{"action": "reset_failed"}},
	)
	path := filepath.Join(t.TempDir(), "archivarr.prom")

	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "archivarr_candidates_total 1")
	assert.Contains(t, text, `archivarr_classifications_total{action="reset_failed"} 1`)
	assert.True(t, strings.Contains(text, "# HELP archivarr_bytes_copied_total"))
}

func TestMetrics_WriteTextfile_BadPath(t *testing.T) {
	m := NewMetricsService(eventbus.NewEventBus())
	err := m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom"))
	assert.Error(t, err)
}
