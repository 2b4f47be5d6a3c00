package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"argus/core"
)

// Storage error constants
var (
	// ErrEventNotFound is returned when a security event is not found
	ErrEventNotFound = errors.New("security event not found")

	// ErrDeviceNotFound is returned when a device is not found
	ErrDeviceNotFound = errors.New("device not found")

	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")

	// ErrIOCNotFound is returned when a threat intel indicator is not found
	ErrIOCNotFound = errors.New("indicator not found")

	// ErrIncidentNotFound is returned when an incident is not found
	ErrIncidentNotFound = errors.New("incident not found")

	// ErrActionNotFound is returned when a response action record is not found
	ErrActionNotFound = errors.New("response action not found")

	// ErrDatabaseClosed is returned when using a closed database connection
	ErrDatabaseClosed = errors.New("database is closed")

	// ErrConstraintViolation is returned when a database constraint is violated
	ErrConstraintViolation = errors.New("constraint violation")
)

// ClassifyError wraps a database failure for the executor's retry logic.
// Busy, locked, closed-connection and timeout failures become
// core.TransientError and get a bounded retry with backoff; everything else
// is terminal on first sight.
func ClassifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, ErrDatabaseClosed) {
		return core.NewTransientError(op, err)
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "table is locked") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded") {
		return core.NewTransientError(op, err)
	}

	return fmt.Errorf("%s: %w", op, err)
}
