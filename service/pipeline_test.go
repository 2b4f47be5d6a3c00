package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"argus/analysis"
	"argus/core"
	"argus/correlate"
	"argus/ingest"
	"argus/ml"
	"argus/notify"
	"argus/respond"
	"argus/storage"
	"argus/threat"
)

type noopChannel struct{}

func (noopChannel) Name() string                                  { return "noop" }
func (noopChannel) Send(_ context.Context, _ *notify.Alert) error { return nil }

type noopFirewall struct{}

func (noopFirewall) ApplyPolicy(_ context.Context, _ string, _ respond.FirewallPolicy) (bool, error) {
	return true, nil
}

func newTestPipeline(t *testing.T) (*Pipeline, *storage.SQLite) {
	t.Helper()
	logger := zap.NewNop().Sugar()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "argus.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	index := threat.NewIndex(store, nil, logger)
	notifier := notify.NewNotifier([]notify.Channel{noopChannel{}}, 0, logger)
	pipeline := NewPipeline(
		store,
		ingest.NewIngestor(),
		correlate.NewEngine(nil, nil, logger),
		analysis.NewEngine(ml.NewIQRDetector(nil), threat.NewEnricher(index, logger), logger),
		respond.NewExecutor(store, nil, noopFirewall{}, notifier, logger),
		respond.NewIncidentManager(store, nil, logger),
		0,
		logger,
	)
	return pipeline, store
}

func seedPipelineDevice(t *testing.T, store *storage.SQLite, trust float64) {
	t.Helper()
	require.NoError(t, store.UpsertDevice(context.Background(), &core.Device{
		DeviceRef:  "device-1",
		DeviceName: "nurse-station",
		TrustScore: trust,
		LastSeen:   time.Now().UTC(),
	}))
}

func cleanTelemetry(deviceRef string) *ingest.TelemetryPayload {
	return &ingest.TelemetryPayload{
		DeviceRef:   deviceRef,
		CPUUsage:    25,
		MemoryUsage: 40,
		DiskUsage:   55,
		Compliance: core.ComplianceStatus{
			AntivirusRunning: true, FirewallEnabled: true, OSUpToDate: true, DiskEncrypted: true,
		},
	}
}

func TestCleanTelemetryProducesQuietResult(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	result, err := pipeline.ProcessTelemetry(context.Background(), cleanTelemetry("device-1"))
	require.NoError(t, err)
	assert.Zero(t, result.RiskScore)
	assert.Zero(t, result.ActionsExecuted)
	assert.False(t, result.IncidentCreated)
	assert.Empty(t, result.Degraded)
}

func TestMalwareTelemetryTriggersContainmentAndIncident(t *testing.T) {
	pipeline, store := newTestPipeline(t)
	seedPipelineDevice(t, store, 0.9)
	ctx := context.Background()

	payload := cleanTelemetry("device-1")
	payload.SecurityEvents = []ingest.EmbeddedEventPayload{
		{Type: core.EventTypeMalwareDetection, Severity: "critical", Confidence: 0.95, Description: "mimikatz detected"},
	}

	result, err := pipeline.ProcessTelemetry(ctx, payload)
	require.NoError(t, err)

	// critical severity alerts and opens an incident even below the risk
	// containment thresholds
	assert.True(t, result.IncidentCreated)
	assert.NotEmpty(t, result.IncidentID)
	assert.Greater(t, result.ActionsExecuted, 0)
	assert.Zero(t, result.ActionsFailed)

	incident, err := store.GetIncident(ctx, result.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, core.ThreatLevelCritical, incident.Severity)
	assert.Equal(t, core.RoleCISO, incident.AssignedTo)
}

func TestReconnaissanceCorrelationAcrossSubmissions(t *testing.T) {
	pipeline, _ := newTestPipeline(t)
	ctx := context.Background()

	first := cleanTelemetry("device-1")
	first.SecurityEvents = []ingest.EmbeddedEventPayload{
		{Type: core.EventTypeSuspiciousNetwork, Severity: "medium", Confidence: 0.6, Description: "port scan"},
	}
	_, err := pipeline.ProcessTelemetry(ctx, first)
	require.NoError(t, err)

	second := cleanTelemetry("device-1")
	second.SecurityEvents = []ingest.EmbeddedEventPayload{
		{Type: core.EventTypeUnusualListeningPort, Severity: "medium", Confidence: 0.7, Description: "unexpected listener"},
	}
	result, err := pipeline.ProcessTelemetry(ctx, second)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.CorrelationCount, 1)
	// correlations alone satisfy the incident OR-gate
	assert.True(t, result.IncidentCreated)
}

func TestDirectEventWithIntelMatchQuarantines(t *testing.T) {
	pipeline, store := newTestPipeline(t)
	seedPipelineDevice(t, store, 0.9)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.UpsertIOC(ctx, &core.IOC{
		Type: core.IOCTypeIP, Value: "192.168.100.1", ThreatType: "malware_c2",
		Confidence: 0.9, Source: "feed", FirstSeen: now, LastSeen: now, IsActive: true,
	}))

	result, err := pipeline.ProcessEvent(ctx, &ingest.EventPayload{
		EventType:       core.EventTypeSuspiciousNetwork,
		DeviceRef:       "device-1",
		ThreatLevel:     "medium",
		ConfidenceScore: 0.6,
		Description:     "c2 beacon",
		RawData:         map[string]interface{}{core.RawKeyRemoteAddress: "192.168.100.1"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ThreatMatchCount)
	device, err := store.GetDevice(ctx, "device-1")
	require.NoError(t, err)
	assert.True(t, device.IsQuarantined)

	// enrichment bump persisted on the stored event
	event, err := store.GetEvent(ctx, result.EventIDs[0])
	require.NoError(t, err)
	assert.True(t, event.HasThreatIntel())
	assert.InDelta(t, 0.8, event.ConfidenceScore, 0.0001)
}

func TestInvalidPayloadRejected(t *testing.T) {
	pipeline, _ := newTestPipeline(t)

	_, err := pipeline.ProcessTelemetry(context.Background(), &ingest.TelemetryPayload{CPUUsage: 300})
	assert.True(t, core.IsValidation(err))

	_, err = pipeline.ProcessEvent(context.Background(), &ingest.EventPayload{ThreatLevel: "high"})
	assert.True(t, core.IsValidation(err))
}

func TestPipelineReportsFailedActions(t *testing.T) {
	// no device record exists, so quarantine fails but the pipeline still
	// completes with the failure in the summary
	pipeline, store := newTestPipeline(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, store.UpsertIOC(ctx, &core.IOC{
		Type: core.IOCTypeIP, Value: "192.168.100.1", ThreatType: "malware_c2",
		Confidence: 0.9, Source: "feed", FirstSeen: now, LastSeen: now, IsActive: true,
	}))

	result, err := pipeline.ProcessEvent(ctx, &ingest.EventPayload{
		EventType:       core.EventTypeSuspiciousNetwork,
		DeviceRef:       "ghost-device",
		ThreatLevel:     "medium",
		ConfidenceScore: 0.6,
		RawData:         map[string]interface{}{core.RawKeyRemoteAddress: "192.168.100.1"},
	})
	require.NoError(t, err)
	assert.Greater(t, result.ActionsFailed, 0)
}
