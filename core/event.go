package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ThreatLevel represents the severity classification of a security event.
type ThreatLevel string

const (
	ThreatLevelLow      ThreatLevel = "low"
	ThreatLevelMedium   ThreatLevel = "medium"
	ThreatLevelHigh     ThreatLevel = "high"
	ThreatLevelCritical ThreatLevel = "critical"
)

// AllThreatLevels returns all valid threat levels for validation.
var AllThreatLevels = []ThreatLevel{
	ThreatLevelLow, ThreatLevelMedium, ThreatLevelHigh, ThreatLevelCritical,
}

// IsValid checks if the threat level is valid.
func (t ThreatLevel) IsValid() bool {
	for _, valid := range AllThreatLevels {
		if t == valid {
			return true
		}
	}
	return false
}

// SeverityWeight returns the risk contribution weight for a threat level.
// Unknown levels weigh the same as low.
func (t ThreatLevel) SeverityWeight() float64 {
	switch t {
	case ThreatLevelCritical:
		return 1.0
	case ThreatLevelHigh:
		return 0.6
	case ThreatLevelMedium:
		return 0.3
	default:
		return 0.1
	}
}

// Rank orders threat levels for comparison (higher is more severe).
func (t ThreatLevel) Rank() int {
	switch t {
	case ThreatLevelCritical:
		return 4
	case ThreatLevelHigh:
		return 3
	case ThreatLevelMedium:
		return 2
	case ThreatLevelLow:
		return 1
	default:
		return 0
	}
}

// Well-known event types emitted by endpoint agents. The set is open: the
// pipeline treats event_type as an opaque string everywhere except the
// correlation pattern table.
const (
	EventTypeSuspiciousProcess    = "suspicious_process"
	EventTypeSuspiciousNetwork    = "suspicious_network"
	EventTypeUnusualListeningPort = "unusual_listening_port"
	EventTypeHighResourceUsage    = "high_resource_usage"
	EventTypeMalwareDetection     = "malware_detection"
)

// Known raw_data keys. RawData is an opaque key-value bag; these are the keys
// the enrichment and correlation paths understand.
const (
	RawKeyRemoteAddress = "remote_address"
	RawKeyProcessName   = "name"
	RawKeyDomain        = "domain"
	RawKeyFileHash      = "file_hash"
	RawKeyThreatIntel   = "threat_intel"
)

// SecurityEvent is the durable record of a single security observation.
// Immutable once created except IsResolved and enrichment additions to
// RawData.
type SecurityEvent struct {
	EventID         string                 `json:"event_id"`
	EventType       string                 `json:"event_type"`
	DeviceRef       string                 `json:"device_ref,omitempty"`
	UserRef         string                 `json:"user_ref,omitempty"`
	ThreatLevel     ThreatLevel            `json:"threat_level"`
	ConfidenceScore float64                `json:"confidence_score"`
	Description     string                 `json:"description"`
	RawData         map[string]interface{} `json:"raw_data,omitempty"`
	IsResolved      bool                   `json:"is_resolved"`
	CreatedAt       time.Time              `json:"created_at"`
}

// NewSecurityEvent creates a security event with a generated ID and creation
// timestamp. Validation is the caller's responsibility (see Validate).
func NewSecurityEvent(eventType, deviceRef string, level ThreatLevel, confidence float64, description string) *SecurityEvent {
	return &SecurityEvent{
		EventID:         uuid.New().String(),
		EventType:       eventType,
		DeviceRef:       deviceRef,
		ThreatLevel:     level,
		ConfidenceScore: confidence,
		Description:     description,
		RawData:         make(map[string]interface{}),
		CreatedAt:       time.Now().UTC(),
	}
}

// Validate checks the invariants the ingestion boundary must enforce before
// an event enters the pipeline.
func (e *SecurityEvent) Validate() error {
	if e.EventType == "" {
		return NewValidationError("event_type", "event type is required")
	}
	if !e.ThreatLevel.IsValid() {
		return NewValidationError("threat_level", fmt.Sprintf("invalid threat level %q", e.ThreatLevel))
	}
	if e.ConfidenceScore < 0 || e.ConfidenceScore > 1 {
		return NewValidationError("confidence_score", fmt.Sprintf("confidence %v outside [0,1]", e.ConfidenceScore))
	}
	return nil
}

// HasThreatIntel reports whether the event already carries a threat_intel
// annotation. Enrichment uses this as the applied-once marker: the confidence
// bump is never applied twice for the same event.
func (e *SecurityEvent) HasThreatIntel() bool {
	if e.RawData == nil {
		return false
	}
	_, ok := e.RawData[RawKeyThreatIntel]
	return ok
}
