package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"argus/core"
)

// InsertEvent persists a security event. RawData is stored as JSON.
func (s *SQLite) InsertEvent(ctx context.Context, event *core.SecurityEvent) error {
	rawJSON, err := json.Marshal(event.RawData)
	if err != nil {
		return fmt.Errorf("failed to marshal event raw data: %w", err)
	}

	_, err = s.WriteDB.ExecContext(ctx, `
		INSERT INTO security_events
			(event_id, event_type, device_ref, user_ref, threat_level,
			 confidence_score, description, raw_data, is_resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.EventID, event.EventType, event.DeviceRef, event.UserRef,
		string(event.ThreatLevel), event.ConfidenceScore, event.Description,
		string(rawJSON), event.IsResolved, event.CreatedAt.UTC())
	if err != nil {
		return ClassifyError("insert event", err)
	}
	return nil
}

func scanEvent(row interface{ Scan(...interface{}) error }) (*core.SecurityEvent, error) {
	var (
		event     core.SecurityEvent
		threat    string
		rawJSON   sql.NullString
		deviceRef sql.NullString
		userRef   sql.NullString
	)
	err := row.Scan(&event.EventID, &event.EventType, &deviceRef, &userRef,
		&threat, &event.ConfidenceScore, &event.Description, &rawJSON,
		&event.IsResolved, &event.CreatedAt)
	if err != nil {
		return nil, err
	}
	event.DeviceRef = deviceRef.String
	event.UserRef = userRef.String
	event.ThreatLevel = core.ThreatLevel(threat)
	if rawJSON.Valid && rawJSON.String != "" {
		if err := json.Unmarshal([]byte(rawJSON.String), &event.RawData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event raw data: %w", err)
		}
	}
	return &event, nil
}

const eventColumns = `event_id, event_type, device_ref, user_ref, threat_level,
	confidence_score, description, raw_data, is_resolved, created_at`

// GetEvent fetches one event by ID.
func (s *SQLite) GetEvent(ctx context.Context, eventID string) (*core.SecurityEvent, error) {
	row := s.ReadDB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM security_events WHERE event_id = ?`, eventID)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, ClassifyError("get event", err)
	}
	return event, nil
}

// FindUnresolvedEventsSince returns unresolved events created at or after the
// cutoff, oldest first. This is the correlation engine's working set.
func (s *SQLite) FindUnresolvedEventsSince(ctx context.Context, since time.Time) ([]*core.SecurityEvent, error) {
	rows, err := s.ReadDB.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM security_events
		WHERE is_resolved = 0 AND created_at >= ?
		ORDER BY created_at ASC`, since.UTC())
	if err != nil {
		return nil, ClassifyError("query unresolved events", err)
	}
	defer rows.Close()

	var events []*core.SecurityEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, ClassifyError("scan event", err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// UpdateEventEnrichment replaces the event's raw data and confidence after
// threat intelligence enrichment.
func (s *SQLite) UpdateEventEnrichment(ctx context.Context, eventID string, rawData map[string]interface{}, confidence float64) error {
	rawJSON, err := json.Marshal(rawData)
	if err != nil {
		return fmt.Errorf("failed to marshal enriched raw data: %w", err)
	}
	res, err := s.WriteDB.ExecContext(ctx, `
		UPDATE security_events SET raw_data = ?, confidence_score = ?
		WHERE event_id = ?`, string(rawJSON), confidence, eventID)
	if err != nil {
		return ClassifyError("update event enrichment", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// ResolveEvent marks an event resolved so later correlation passes skip it.
func (s *SQLite) ResolveEvent(ctx context.Context, eventID string) error {
	res, err := s.WriteDB.ExecContext(ctx,
		`UPDATE security_events SET is_resolved = 1 WHERE event_id = ?`, eventID)
	if err != nil {
		return ClassifyError("resolve event", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrEventNotFound
	}
	return nil
}
