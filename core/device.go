package core

import "time"

// Trust score bounds enforced by containment actions. A quarantined device
// keeps a residual trust floor so it stays distinguishable from a fully
// isolated one.
const (
	TrustScoreFloor          = 0.1
	QuarantineTrustReduction = 0.3
)

// Device is the external device entity the pipeline references. The pipeline
// mutates TrustScore and IsQuarantined as side effects of response actions;
// identity and registration belong to the device-management collaborator.
type Device struct {
	DeviceRef     string    `json:"device_ref"`
	DeviceName    string    `json:"device_name"`
	DeviceType    string    `json:"device_type"`
	IPAddress     string    `json:"ip_address,omitempty"`
	OwnerRef      string    `json:"owner_ref,omitempty"`
	TrustScore    float64   `json:"trust_score"`
	IsCompliant   bool      `json:"is_compliant"`
	IsQuarantined bool      `json:"is_quarantined"`
	LastSeen      time.Time `json:"last_seen"`
}

// User is the external user entity referenced by revoke_access actions.
type User struct {
	UserRef  string `json:"user_ref"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role,omitempty"`
	IsActive bool   `json:"is_active"`
}

// UserSession is one authenticated session; revoke_access terminates all of
// a user's active sessions.
type UserSession struct {
	SessionID string    `json:"session_id"`
	UserRef   string    `json:"user_ref"`
	DeviceRef string    `json:"device_ref,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
