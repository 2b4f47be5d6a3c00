package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"argus/core"
)

// SaveIncident inserts or replaces an incident. List-valued fields are stored
// as JSON columns; the timeline column preserves append order.
func (s *SQLite) SaveIncident(ctx context.Context, incident *core.Incident) error {
	sourceEvents, err := json.Marshal(incident.SourceEvents)
	if err != nil {
		return fmt.Errorf("failed to marshal source events: %w", err)
	}
	correlations, err := json.Marshal(incident.Correlations)
	if err != nil {
		return fmt.Errorf("failed to marshal correlations: %w", err)
	}
	actions, err := json.Marshal(incident.ResponseActions)
	if err != nil {
		return fmt.Errorf("failed to marshal response actions: %w", err)
	}
	timeline, err := json.Marshal(incident.Timeline)
	if err != nil {
		return fmt.Errorf("failed to marshal timeline: %w", err)
	}

	var closedAt interface{}
	if incident.ClosedAt != nil {
		closedAt = incident.ClosedAt.UTC()
	}

	_, err = s.WriteDB.ExecContext(ctx, `
		INSERT INTO incidents
			(incident_id, title, description, severity, status, priority,
			 assigned_to, escalation_level, device_ref, user_ref,
			 source_events, correlations, response_actions, timeline,
			 resolution, created_at, updated_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(incident_id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			severity = excluded.severity,
			status = excluded.status,
			priority = excluded.priority,
			assigned_to = excluded.assigned_to,
			escalation_level = excluded.escalation_level,
			device_ref = excluded.device_ref,
			user_ref = excluded.user_ref,
			source_events = excluded.source_events,
			correlations = excluded.correlations,
			response_actions = excluded.response_actions,
			timeline = excluded.timeline,
			resolution = excluded.resolution,
			updated_at = excluded.updated_at,
			closed_at = excluded.closed_at`,
		incident.IncidentID, incident.Title, incident.Description,
		string(incident.Severity), string(incident.Status), incident.Priority,
		incident.AssignedTo, incident.EscalationLevel, incident.DeviceRef,
		incident.UserRef, string(sourceEvents), string(correlations),
		string(actions), string(timeline), incident.Resolution,
		incident.CreatedAt.UTC(), incident.UpdatedAt.UTC(), closedAt)
	if err != nil {
		return ClassifyError("save incident", err)
	}
	return nil
}

const incidentColumns = `incident_id, title, description, severity, status,
	priority, assigned_to, escalation_level, device_ref, user_ref,
	source_events, correlations, response_actions, timeline, resolution,
	created_at, updated_at, closed_at`

func scanIncident(row interface{ Scan(...interface{}) error }) (*core.Incident, error) {
	var (
		incident     core.Incident
		severity     string
		status       string
		deviceRef    sql.NullString
		userRef      sql.NullString
		sourceEvents sql.NullString
		correlations sql.NullString
		actions      sql.NullString
		timeline     sql.NullString
		resolution   sql.NullString
		closedAt     sql.NullTime
	)
	err := row.Scan(&incident.IncidentID, &incident.Title,
		&incident.Description, &severity, &status, &incident.Priority,
		&incident.AssignedTo, &incident.EscalationLevel, &deviceRef, &userRef,
		&sourceEvents, &correlations, &actions, &timeline, &resolution,
		&incident.CreatedAt, &incident.UpdatedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	incident.Severity = core.ThreatLevel(severity)
	incident.Status = core.IncidentStatus(status)
	incident.DeviceRef = deviceRef.String
	incident.UserRef = userRef.String
	incident.Resolution = resolution.String
	if closedAt.Valid {
		t := closedAt.Time
		incident.ClosedAt = &t
	}

	for _, field := range []struct {
		col sql.NullString
		dst interface{}
	}{
		{sourceEvents, &incident.SourceEvents},
		{correlations, &incident.Correlations},
		{actions, &incident.ResponseActions},
		{timeline, &incident.Timeline},
	} {
		if field.col.Valid && field.col.String != "" {
			if err := json.Unmarshal([]byte(field.col.String), field.dst); err != nil {
				return nil, fmt.Errorf("failed to unmarshal incident field: %w", err)
			}
		}
	}
	return &incident, nil
}

// GetIncident fetches one incident by ID.
func (s *SQLite) GetIncident(ctx context.Context, incidentID string) (*core.Incident, error) {
	row := s.ReadDB.QueryRowContext(ctx,
		`SELECT `+incidentColumns+` FROM incidents WHERE incident_id = ?`, incidentID)
	incident, err := scanIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIncidentNotFound
	}
	if err != nil {
		return nil, ClassifyError("get incident", err)
	}
	return incident, nil
}

// ListOpenIncidents returns every open incident, highest priority first.
func (s *SQLite) ListOpenIncidents(ctx context.Context) ([]*core.Incident, error) {
	rows, err := s.ReadDB.QueryContext(ctx, `
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE status = ?
		ORDER BY priority DESC, created_at ASC`, string(core.IncidentStatusOpen))
	if err != nil {
		return nil, ClassifyError("query open incidents", err)
	}
	defer rows.Close()

	var incidents []*core.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, ClassifyError("scan incident", err)
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}
