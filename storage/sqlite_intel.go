package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"argus/core"
)

// UpsertIOC inserts a new indicator or refreshes an existing one. The key is
// (type, normalized value); re-seen indicators keep their FirstSeen and take
// the new confidence, threat type and LastSeen.
func (s *SQLite) UpsertIOC(ctx context.Context, ioc *core.IOC) error {
	value := core.NormalizeIOCValue(ioc.Type, ioc.Value)
	_, err := s.WriteDB.ExecContext(ctx, `
		INSERT INTO threat_intel
			(ioc_type, ioc_value, threat_type, confidence, source, description,
			 first_seen, last_seen, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ioc_type, ioc_value) DO UPDATE SET
			threat_type = excluded.threat_type,
			confidence = excluded.confidence,
			source = excluded.source,
			description = excluded.description,
			last_seen = excluded.last_seen,
			is_active = excluded.is_active`,
		string(ioc.Type), value, ioc.ThreatType, ioc.Confidence, ioc.Source,
		ioc.Description, ioc.FirstSeen.UTC(), ioc.LastSeen.UTC(), ioc.IsActive)
	if err != nil {
		return ClassifyError("upsert IOC", err)
	}
	return nil
}

// LookupIOC fetches an active indicator by type and value. Misses return
// ErrIOCNotFound so the caller can cache the negative result briefly.
func (s *SQLite) LookupIOC(ctx context.Context, iocType core.IOCType, value string) (*core.IOC, error) {
	normalized := core.NormalizeIOCValue(iocType, value)

	var (
		ioc     core.IOC
		typeStr string
	)
	err := s.ReadDB.QueryRowContext(ctx, `
		SELECT ioc_type, ioc_value, threat_type, confidence, source,
		       description, first_seen, last_seen, is_active
		FROM threat_intel
		WHERE ioc_type = ? AND ioc_value = ? AND is_active = 1`,
		string(iocType), normalized).
		Scan(&typeStr, &ioc.Value, &ioc.ThreatType, &ioc.Confidence,
			&ioc.Source, &ioc.Description, &ioc.FirstSeen, &ioc.LastSeen,
			&ioc.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrIOCNotFound
	}
	if err != nil {
		return nil, ClassifyError("lookup IOC", err)
	}
	ioc.Type = core.IOCType(typeStr)
	return &ioc, nil
}

// InsertAction persists a response action execution record.
func (s *SQLite) InsertAction(ctx context.Context, action *core.ResponseAction) error {
	var executedAt interface{}
	if action.ExecutedAt != nil {
		executedAt = action.ExecutedAt.UTC()
	}
	_, err := s.WriteDB.ExecContext(ctx, `
		INSERT INTO response_actions
			(action_id, event_id, action_type, description, status,
			 is_automated, fail_reason, created_at, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action.ActionID, action.EventID, string(action.ActionType),
		action.Description, string(action.Status), action.IsAutomated,
		action.FailReason, action.CreatedAt.UTC(), executedAt)
	if err != nil {
		return ClassifyError("insert action", err)
	}
	return nil
}

// UpdateActionStatus records a status transition made by the executor.
func (s *SQLite) UpdateActionStatus(ctx context.Context, actionID string, status core.ActionStatus, failReason string, executedAt *time.Time) error {
	var executed interface{}
	if executedAt != nil {
		executed = executedAt.UTC()
	}
	res, err := s.WriteDB.ExecContext(ctx, `
		UPDATE response_actions SET status = ?, fail_reason = ?, executed_at = ?
		WHERE action_id = ?`,
		string(status), failReason, executed, actionID)
	if err != nil {
		return ClassifyError("update action status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrActionNotFound
	}
	return nil
}

// GetActionsByEvent returns every action executed for an event, oldest first.
func (s *SQLite) GetActionsByEvent(ctx context.Context, eventID string) ([]*core.ResponseAction, error) {
	rows, err := s.ReadDB.QueryContext(ctx, `
		SELECT action_id, event_id, action_type, description, status,
		       is_automated, fail_reason, created_at, executed_at
		FROM response_actions
		WHERE event_id = ?
		ORDER BY created_at ASC`, eventID)
	if err != nil {
		return nil, ClassifyError("query actions", err)
	}
	defer rows.Close()

	var actions []*core.ResponseAction
	for rows.Next() {
		var (
			action     core.ResponseAction
			actionType string
			status     string
			failReason sql.NullString
			executedAt sql.NullTime
		)
		if err := rows.Scan(&action.ActionID, &action.EventID, &actionType,
			&action.Description, &status, &action.IsAutomated, &failReason,
			&action.CreatedAt, &executedAt); err != nil {
			return nil, ClassifyError("scan action", err)
		}
		action.ActionType = core.ActionType(actionType)
		action.Status = core.ActionStatus(status)
		action.FailReason = failReason.String
		if executedAt.Valid {
			t := executedAt.Time
			action.ExecutedAt = &t
		}
		actions = append(actions, &action)
	}
	return actions, rows.Err()
}
