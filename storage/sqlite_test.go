package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"argus/core"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "argus.db"), zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEventInsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	event := core.NewSecurityEvent(core.EventTypeSuspiciousProcess, "device-1", core.ThreatLevelHigh, 0.8, "suspicious process detected")
	event.RawData = map[string]interface{}{core.RawKeyProcessName: "mimikatz.exe"}
	require.NoError(t, s.InsertEvent(ctx, event))

	got, err := s.GetEvent(ctx, event.EventID)
	require.NoError(t, err)
	assert.Equal(t, event.EventType, got.EventType)
	assert.Equal(t, "device-1", got.DeviceRef)
	assert.Equal(t, core.ThreatLevelHigh, got.ThreatLevel)
	assert.InDelta(t, 0.8, got.ConfidenceScore, 0.0001)
	assert.Equal(t, "mimikatz.exe", got.RawData[core.RawKeyProcessName])
	assert.False(t, got.IsResolved)
}

func TestEventGetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetEvent(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestFindUnresolvedEventsSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := core.NewSecurityEvent(core.EventTypeSuspiciousNetwork, "device-1", core.ThreatLevelMedium, 0.5, "old")
	old.CreatedAt = now.Add(-2 * time.Hour)
	recent := core.NewSecurityEvent(core.EventTypeSuspiciousNetwork, "device-2", core.ThreatLevelMedium, 0.5, "recent")
	recent.CreatedAt = now.Add(-5 * time.Minute)
	resolved := core.NewSecurityEvent(core.EventTypeSuspiciousNetwork, "device-3", core.ThreatLevelMedium, 0.5, "resolved")
	resolved.CreatedAt = now.Add(-5 * time.Minute)

	for _, e := range []*core.SecurityEvent{old, recent, resolved} {
		require.NoError(t, s.InsertEvent(ctx, e))
	}
	require.NoError(t, s.ResolveEvent(ctx, resolved.EventID))

	events, err := s.FindUnresolvedEventsSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, recent.EventID, events[0].EventID)
}

func TestUpdateEventEnrichment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	event := core.NewSecurityEvent(core.EventTypeSuspiciousNetwork, "device-1", core.ThreatLevelMedium, 0.5, "outbound connection")
	require.NoError(t, s.InsertEvent(ctx, event))

	enriched := map[string]interface{}{
		core.RawKeyRemoteAddress: "192.168.100.1",
		core.RawKeyThreatIntel:   map[string]interface{}{"threat_type": "malware_c2"},
	}
	require.NoError(t, s.UpdateEventEnrichment(ctx, event.EventID, enriched, 0.7))

	got, err := s.GetEvent(ctx, event.EventID)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, got.ConfidenceScore, 0.0001)
	assert.True(t, got.HasThreatIntel())

	err = s.UpdateEventEnrichment(ctx, "missing", enriched, 0.7)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestDeviceUpdateFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	device := &core.Device{
		DeviceRef:   "device-1",
		DeviceName:  "ward-workstation",
		DeviceType:  "workstation",
		IPAddress:   "10.0.0.5",
		TrustScore:  0.9,
		IsCompliant: true,
		LastSeen:    time.Now().UTC(),
	}
	require.NoError(t, s.UpsertDevice(ctx, device))

	trust := 0.6
	quarantined := true
	require.NoError(t, s.UpdateDevice(ctx, "device-1", DeviceFields{
		TrustScore:    &trust,
		IsQuarantined: &quarantined,
	}))

	got, err := s.GetDevice(ctx, "device-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, got.TrustScore, 0.0001)
	assert.True(t, got.IsQuarantined)
	// untouched fields survive partial updates
	assert.True(t, got.IsCompliant)
	assert.Equal(t, "ward-workstation", got.DeviceName)

	assert.ErrorIs(t, s.UpdateDevice(ctx, "missing", DeviceFields{TrustScore: &trust}), ErrDeviceNotFound)
	assert.NoError(t, s.UpdateDevice(ctx, "device-1", DeviceFields{}))
}

func TestUserSessionDeactivation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	user := &core.User{UserRef: "user-1", Username: "jdoe", Role: "nurse", IsActive: true}
	require.NoError(t, s.UpsertUser(ctx, user))

	for _, id := range []string{"sess-1", "sess-2"} {
		require.NoError(t, s.InsertSession(ctx, &core.UserSession{
			SessionID: id,
			UserRef:   "user-1",
			DeviceRef: "device-1",
			IsActive:  true,
			CreatedAt: now,
			ExpiresAt: now.Add(8 * time.Hour),
		}))
	}
	require.NoError(t, s.InsertSession(ctx, &core.UserSession{
		SessionID: "sess-3",
		UserRef:   "user-1",
		IsActive:  false,
		CreatedAt: now,
		ExpiresAt: now.Add(8 * time.Hour),
	}))

	n, err := s.DeactivateUserSessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// second call finds nothing active
	n, err = s.DeactivateUserSessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.DeactivateUser(ctx, "user-1"))
	got, err := s.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestIOCUpsertIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	ioc := &core.IOC{
		Type:       core.IOCTypeIP,
		Value:      "192.168.100.1",
		ThreatType: "malware_c2",
		Confidence: 0.9,
		Source:     "internal",
		FirstSeen:  now.Add(-24 * time.Hour),
		LastSeen:   now.Add(-24 * time.Hour),
		IsActive:   true,
	}
	require.NoError(t, s.UpsertIOC(ctx, ioc))

	// re-seen with higher confidence
	ioc.Confidence = 0.95
	ioc.LastSeen = now
	require.NoError(t, s.UpsertIOC(ctx, ioc))

	got, err := s.LookupIOC(ctx, core.IOCTypeIP, "192.168.100.1")
	require.NoError(t, err)
	assert.InDelta(t, 0.95, got.Confidence, 0.0001)
	assert.Equal(t, "malware_c2", got.ThreatType)

	_, err = s.LookupIOC(ctx, core.IOCTypeIP, "10.9.9.9")
	assert.ErrorIs(t, err, ErrIOCNotFound)
}

func TestIOCLookupNormalizesValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.UpsertIOC(ctx, &core.IOC{
		Type:       core.IOCTypeDomain,
		Value:      "Malicious.Example.COM",
		ThreatType: "phishing",
		Confidence: 0.85,
		Source:     "feed",
		FirstSeen:  now,
		LastSeen:   now,
		IsActive:   true,
	}))

	got, err := s.LookupIOC(ctx, core.IOCTypeDomain, "malicious.example.com")
	require.NoError(t, err)
	assert.Equal(t, "malicious.example.com", got.Value)
}

func TestActionStatusLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	action := core.NewResponseAction("event-1", core.ActionTypeQuarantine, "quarantine device-1")
	require.NoError(t, s.InsertAction(ctx, action))

	now := time.Now().UTC()
	require.NoError(t, s.UpdateActionStatus(ctx, action.ActionID, core.ActionStatusCompleted, "", &now))

	actions, err := s.GetActionsByEvent(ctx, "event-1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, core.ActionStatusCompleted, actions[0].Status)
	require.NotNil(t, actions[0].ExecutedAt)

	assert.ErrorIs(t, s.UpdateActionStatus(ctx, "missing", core.ActionStatusFailed, "boom", &now), ErrActionNotFound)
}

func TestIncidentRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	incident := &core.Incident{
		IncidentID:   core.NewIncidentID(now),
		Title:        "Suspicious Process - mimikatz detected",
		Severity:     core.ThreatLevelCritical,
		Status:       core.IncidentStatusOpen,
		Priority:     5,
		AssignedTo:   core.RoleCISO,
		DeviceRef:    "device-1",
		SourceEvents: []string{"event-1"},
		Timeline: []core.TimelineEntry{
			{Timestamp: now, Action: "incident_created", Description: "created", Actor: "system"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, s.SaveIncident(ctx, incident))

	got, err := s.GetIncident(ctx, incident.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, core.ThreatLevelCritical, got.Severity)
	assert.Equal(t, []string{"event-1"}, got.SourceEvents)
	require.Len(t, got.Timeline, 1)
	assert.Equal(t, "incident_created", got.Timeline[0].Action)
	assert.Nil(t, got.ClosedAt)

	// update in place via upsert
	incident.AppendTimeline("escalated", "escalated to level 1", "system")
	incident.EscalationLevel = 1
	require.NoError(t, s.SaveIncident(ctx, incident))

	got, err = s.GetIncident(ctx, incident.IncidentID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.EscalationLevel)
	assert.Len(t, got.Timeline, 2)
}

func TestListOpenIncidentsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mk := func(id string, priority int, status core.IncidentStatus) *core.Incident {
		return &core.Incident{
			IncidentID: id,
			Severity:   core.ThreatLevelHigh,
			Status:     status,
			Priority:   priority,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	require.NoError(t, s.SaveIncident(ctx, mk("INC-1", 2, core.IncidentStatusOpen)))
	require.NoError(t, s.SaveIncident(ctx, mk("INC-2", 5, core.IncidentStatusOpen)))
	require.NoError(t, s.SaveIncident(ctx, mk("INC-3", 4, core.IncidentStatusClosed)))

	open, err := s.ListOpenIncidents(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "INC-2", open[0].IncidentID)
	assert.Equal(t, "INC-1", open[1].IncidentID)
}
