package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"argus/core"
)

// GetDevice fetches a device by its stable reference.
func (s *SQLite) GetDevice(ctx context.Context, deviceRef string) (*core.Device, error) {
	var (
		device core.Device
		ip     sql.NullString
		owner  sql.NullString
		seen   sql.NullTime
	)
	err := s.ReadDB.QueryRowContext(ctx, `
		SELECT device_ref, device_name, device_type, ip_address, owner_ref,
		       trust_score, is_compliant, is_quarantined, last_seen
		FROM devices WHERE device_ref = ?`, deviceRef).
		Scan(&device.DeviceRef, &device.DeviceName, &device.DeviceType, &ip,
			&owner, &device.TrustScore, &device.IsCompliant,
			&device.IsQuarantined, &seen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, ClassifyError("get device", err)
	}
	device.IPAddress = ip.String
	device.OwnerRef = owner.String
	if seen.Valid {
		device.LastSeen = seen.Time
	}
	return &device, nil
}

// UpdateDevice applies the non-nil fields. Containment actions use this so
// a trust change never clobbers unrelated columns.
func (s *SQLite) UpdateDevice(ctx context.Context, deviceRef string, fields DeviceFields) error {
	var (
		sets []string
		args []interface{}
	)
	if fields.TrustScore != nil {
		sets = append(sets, "trust_score = ?")
		args = append(args, *fields.TrustScore)
	}
	if fields.IsQuarantined != nil {
		sets = append(sets, "is_quarantined = ?")
		args = append(args, *fields.IsQuarantined)
	}
	if fields.IsCompliant != nil {
		sets = append(sets, "is_compliant = ?")
		args = append(args, *fields.IsCompliant)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, deviceRef)

	res, err := s.WriteDB.ExecContext(ctx,
		"UPDATE devices SET "+strings.Join(sets, ", ")+" WHERE device_ref = ?", args...)
	if err != nil {
		return ClassifyError("update device", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// UpsertDevice inserts or replaces a device record.
func (s *SQLite) UpsertDevice(ctx context.Context, device *core.Device) error {
	_, err := s.WriteDB.ExecContext(ctx, `
		INSERT INTO devices
			(device_ref, device_name, device_type, ip_address, owner_ref,
			 trust_score, is_compliant, is_quarantined, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_ref) DO UPDATE SET
			device_name = excluded.device_name,
			device_type = excluded.device_type,
			ip_address = excluded.ip_address,
			owner_ref = excluded.owner_ref,
			trust_score = excluded.trust_score,
			is_compliant = excluded.is_compliant,
			is_quarantined = excluded.is_quarantined,
			last_seen = excluded.last_seen`,
		device.DeviceRef, device.DeviceName, device.DeviceType,
		device.IPAddress, device.OwnerRef, device.TrustScore,
		device.IsCompliant, device.IsQuarantined, device.LastSeen.UTC())
	if err != nil {
		return ClassifyError("upsert device", err)
	}
	return nil
}

// GetUser fetches a user by reference.
func (s *SQLite) GetUser(ctx context.Context, userRef string) (*core.User, error) {
	var user core.User
	err := s.ReadDB.QueryRowContext(ctx, `
		SELECT user_ref, username, full_name, role, is_active
		FROM users WHERE user_ref = ?`, userRef).
		Scan(&user.UserRef, &user.Username, &user.FullName, &user.Role, &user.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, ClassifyError("get user", err)
	}
	return &user, nil
}

// DeactivateUser disables the user account.
func (s *SQLite) DeactivateUser(ctx context.Context, userRef string) error {
	res, err := s.WriteDB.ExecContext(ctx,
		`UPDATE users SET is_active = 0 WHERE user_ref = ?`, userRef)
	if err != nil {
		return ClassifyError("deactivate user", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// DeactivateUserSessions terminates every active session for the user and
// returns how many were terminated.
func (s *SQLite) DeactivateUserSessions(ctx context.Context, userRef string) (int, error) {
	res, err := s.WriteDB.ExecContext(ctx,
		`UPDATE user_sessions SET is_active = 0 WHERE user_ref = ? AND is_active = 1`,
		userRef)
	if err != nil {
		return 0, ClassifyError("deactivate user sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, ClassifyError("count deactivated sessions", err)
	}
	return int(n), nil
}

// UpsertUser inserts or replaces a user record.
func (s *SQLite) UpsertUser(ctx context.Context, user *core.User) error {
	_, err := s.WriteDB.ExecContext(ctx, `
		INSERT INTO users (user_ref, username, full_name, role, is_active)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_ref) DO UPDATE SET
			username = excluded.username,
			full_name = excluded.full_name,
			role = excluded.role,
			is_active = excluded.is_active`,
		user.UserRef, user.Username, user.FullName, user.Role, user.IsActive)
	if err != nil {
		return ClassifyError("upsert user", err)
	}
	return nil
}

// InsertSession records a new authenticated session.
func (s *SQLite) InsertSession(ctx context.Context, session *core.UserSession) error {
	_, err := s.WriteDB.ExecContext(ctx, `
		INSERT INTO user_sessions
			(session_id, user_ref, device_ref, is_active, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.UserRef, session.DeviceRef,
		session.IsActive, session.CreatedAt.UTC(), session.ExpiresAt.UTC())
	if err != nil {
		return ClassifyError("insert session", err)
	}
	return nil
}
