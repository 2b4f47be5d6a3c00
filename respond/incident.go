package respond

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"argus/core"
	"argus/correlate"
	"argus/metrics"
	"argus/storage"
)

// IncidentRiskThreshold is the risk score above which an incident is opened
// regardless of severity.
const IncidentRiskThreshold = 0.6

// incidentCacheTTL bounds the Redis snapshot of each incident.
const incidentCacheTTL = 24 * time.Hour

// ShouldCreateIncident is the creation OR-gate: any one condition suffices.
func ShouldCreateIncident(threatLevel core.ThreatLevel, riskScore float64, correlationCount int) bool {
	if threatLevel == core.ThreatLevelHigh || threatLevel == core.ThreatLevelCritical {
		return true
	}
	if riskScore > IncidentRiskThreshold {
		return true
	}
	return correlationCount > 0
}

// IncidentManager owns the incident lifecycle: open → (escalated)* →
// closed. Mutations on one incident serialize through per-incident locks so
// concurrent escalations keep the timeline ordered.
type IncidentManager struct {
	store  storage.IncidentStore
	cache  *core.RedisCache
	locks  *core.KeyedMutex
	logger *zap.SugaredLogger
}

// NewIncidentManager builds the manager. cache may be nil to skip
// snapshots.
func NewIncidentManager(store storage.IncidentStore, cache *core.RedisCache, logger *zap.SugaredLogger) *IncidentManager {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &IncidentManager{
		store:  store,
		cache:  cache,
		locks:  core.NewKeyedMutex(),
		logger: logger,
	}
}

// Create opens an incident for the event. Severity is the worst of the
// event's level and any correlation severities; priority and assignment
// follow from severity.
func (m *IncidentManager) Create(ctx context.Context, event *core.SecurityEvent, riskScore float64, correlations []*correlate.Correlation, actionIDs []string) (*core.Incident, error) {
	now := time.Now().UTC()

	var (
		correlationIDs []string
		severities     []core.ThreatLevel
	)
	for _, c := range correlations {
		correlationIDs = append(correlationIDs, c.CorrelationID)
		severities = append(severities, c.Severity)
	}

	severity := core.DeriveIncidentSeverity(event, severities)
	incident := &core.Incident{
		IncidentID:      core.NewIncidentID(now),
		Title:           core.IncidentTitle(event),
		Description:     event.Description,
		Severity:        severity,
		Status:          core.IncidentStatusOpen,
		Priority:        core.IncidentPriority(severity, event),
		AssignedTo:      core.AssigneeForSeverity(severity),
		DeviceRef:       event.DeviceRef,
		UserRef:         event.UserRef,
		SourceEvents:    []string{event.EventID},
		Correlations:    correlationIDs,
		ResponseActions: actionIDs,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	incident.AppendTimeline("incident_created",
		fmt.Sprintf("Incident created from event %s (risk %.2f)", event.EventID, riskScore),
		"system")

	if err := m.store.SaveIncident(ctx, incident); err != nil {
		return nil, fmt.Errorf("failed to save incident: %w", err)
	}
	m.snapshot(ctx, incident)

	metrics.IncidentsCreated.WithLabelValues(string(severity)).Inc()
	m.logger.Infow("incident created",
		"incident_id", incident.IncidentID,
		"severity", severity,
		"priority", incident.Priority,
		"assigned_to", incident.AssignedTo,
		"event_id", event.EventID)
	return incident, nil
}

// Escalate raises the incident one level, reassigns it and bumps priority.
// Escalating a closed incident is rejected.
func (m *IncidentManager) Escalate(ctx context.Context, incidentID, reason string) (*core.Incident, error) {
	var incident *core.Incident
	err := m.locks.WithLock("incident:"+incidentID, func() error {
		var err error
		incident, err = m.store.GetIncident(ctx, incidentID)
		if err != nil {
			return err
		}
		if incident.Status == core.IncidentStatusClosed {
			return core.NewValidationError("status", "cannot escalate a closed incident")
		}
		incident.Escalate(reason)
		return m.store.SaveIncident(ctx, incident)
	})
	if err != nil {
		return nil, err
	}
	m.snapshot(ctx, incident)

	metrics.IncidentsEscalated.Inc()
	m.logger.Warnw("incident escalated",
		"incident_id", incidentID,
		"level", incident.EscalationLevel,
		"assigned_to", incident.AssignedTo,
		"reason", reason)
	return incident, nil
}

// Close transitions the incident to its terminal state. Closing an already
// closed incident is a no-op returning the existing terminal state.
func (m *IncidentManager) Close(ctx context.Context, incidentID, resolution, actor string) (*core.Incident, error) {
	var incident *core.Incident
	err := m.locks.WithLock("incident:"+incidentID, func() error {
		var err error
		incident, err = m.store.GetIncident(ctx, incidentID)
		if err != nil {
			return err
		}
		if incident.Status == core.IncidentStatusClosed {
			return nil
		}
		incident.Close(resolution, actor)
		return m.store.SaveIncident(ctx, incident)
	})
	if err != nil {
		return nil, err
	}
	m.snapshot(ctx, incident)

	m.logger.Infow("incident closed",
		"incident_id", incidentID, "resolution", resolution, "actor", actor)
	return incident, nil
}

// Get returns one incident.
func (m *IncidentManager) Get(ctx context.Context, incidentID string) (*core.Incident, error) {
	return m.store.GetIncident(ctx, incidentID)
}

// ListOpen returns open incidents, highest priority first.
func (m *IncidentManager) ListOpen(ctx context.Context) ([]*core.Incident, error) {
	return m.store.ListOpenIncidents(ctx)
}

func (m *IncidentManager) snapshot(ctx context.Context, incident *core.Incident) {
	if m.cache == nil {
		return
	}
	if err := m.cache.Set(ctx, core.GetIncidentCacheKey(incident.IncidentID), incident, incidentCacheTTL); err != nil {
		m.logger.Warnw("failed to snapshot incident",
			"incident_id", incident.IncidentID, "error", err)
	}
}
