package storage

import (
	"context"
	"time"

	"argus/core"
)

// EventStore defines the persistence operations the pipeline needs for
// security events.
type EventStore interface {
	InsertEvent(ctx context.Context, event *core.SecurityEvent) error
	GetEvent(ctx context.Context, eventID string) (*core.SecurityEvent, error)
	// FindUnresolvedEventsSince returns unresolved events created at or after
	// the given timestamp, ordered by creation time.
	FindUnresolvedEventsSince(ctx context.Context, since time.Time) ([]*core.SecurityEvent, error)
	UpdateEventEnrichment(ctx context.Context, eventID string, rawData map[string]interface{}, confidence float64) error
	ResolveEvent(ctx context.Context, eventID string) error
}

// DeviceFields carries the mutable device fields a response action may
// update. Nil pointers leave the field unchanged.
type DeviceFields struct {
	TrustScore    *float64
	IsQuarantined *bool
	IsCompliant   *bool
}

// DeviceStore defines device read/update operations. The pipeline never
// creates or deletes devices.
type DeviceStore interface {
	GetDevice(ctx context.Context, deviceRef string) (*core.Device, error)
	UpdateDevice(ctx context.Context, deviceRef string, fields DeviceFields) error
	UpsertDevice(ctx context.Context, device *core.Device) error
}

// UserStore defines the user and session operations needed by revoke_access.
type UserStore interface {
	GetUser(ctx context.Context, userRef string) (*core.User, error)
	DeactivateUser(ctx context.Context, userRef string) error
	// DeactivateUserSessions terminates every active session for the user and
	// returns the number of sessions terminated.
	DeactivateUserSessions(ctx context.Context, userRef string) (int, error)
	UpsertUser(ctx context.Context, user *core.User) error
	InsertSession(ctx context.Context, session *core.UserSession) error
}

// IOCStore defines durable threat intelligence persistence. UpsertIOC keys
// on (type, normalized value): existing indicators get confidence and
// last_seen updated, new ones are inserted.
type IOCStore interface {
	UpsertIOC(ctx context.Context, ioc *core.IOC) error
	LookupIOC(ctx context.Context, iocType core.IOCType, value string) (*core.IOC, error)
}

// ActionStore defines persistence of response action execution records.
type ActionStore interface {
	InsertAction(ctx context.Context, action *core.ResponseAction) error
	UpdateActionStatus(ctx context.Context, actionID string, status core.ActionStatus, failReason string, executedAt *time.Time) error
	GetActionsByEvent(ctx context.Context, eventID string) ([]*core.ResponseAction, error)
}

// IncidentStore defines durable incident persistence.
type IncidentStore interface {
	SaveIncident(ctx context.Context, incident *core.Incident) error
	GetIncident(ctx context.Context, incidentID string) (*core.Incident, error)
	ListOpenIncidents(ctx context.Context) ([]*core.Incident, error)
}

// Store aggregates all persistence boundaries backed by one database.
type Store interface {
	EventStore
	DeviceStore
	UserStore
	IOCStore
	ActionStore
	IncidentStore
}
