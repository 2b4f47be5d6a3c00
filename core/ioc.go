package core

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
)

// IOCType represents the type of indicator of compromise.
type IOCType string

const (
	IOCTypeIP     IOCType = "ip"
	IOCTypeDomain IOCType = "domain"
	IOCTypeHash   IOCType = "hash" // MD5, SHA1, SHA256, SHA512
)

// AllIOCTypes returns all valid IOC types for validation.
var AllIOCTypes = []IOCType{IOCTypeIP, IOCTypeDomain, IOCTypeHash}

// IsValid checks if the IOC type is valid.
func (t IOCType) IsValid() bool {
	for _, valid := range AllIOCTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// Validation patterns - compiled once at package init.
var (
	// Domain pattern - ReDoS-safe
	domainPattern = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,}$`)
	// Hash pattern - MD5(32), SHA1(40), SHA256(64), SHA512(128)
	hashPattern = regexp.MustCompile(`^[a-fA-F0-9]{32}$|^[a-fA-F0-9]{40}$|^[a-fA-F0-9]{64}$|^[a-fA-F0-9]{128}$`)
)

// MaxIOCValueLength bounds indicator values before validation.
const MaxIOCValueLength = 4096

// IOC is a persistent indicator of compromise, keyed by (Type, Value).
// Upsert semantics: a re-seen indicator updates LastSeen and Confidence
// rather than duplicating.
type IOC struct {
	Type        IOCType   `json:"ioc_type"`
	Value       string    `json:"ioc_value"`
	ThreatType  string    `json:"threat_type"`
	Confidence  float64   `json:"confidence"` // 0-1
	Source      string    `json:"source"`
	Description string    `json:"description,omitempty"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	IsActive    bool      `json:"is_active"`
}

// Key returns the canonical lookup key for the indicator.
func (ioc *IOC) Key() string {
	return IOCKey(ioc.Type, ioc.Value)
}

// IOCKey builds the canonical (type, value) key used by both the cache and
// the durable store.
func IOCKey(iocType IOCType, value string) string {
	return fmt.Sprintf("%s:%s", iocType, NormalizeIOCValue(iocType, value))
}

// ValidateIOCValue validates an IOC value based on its type.
func ValidateIOCValue(iocType IOCType, value string) error {
	if value == "" {
		return NewValidationError("ioc_value", "IOC value cannot be empty")
	}
	if len(value) > MaxIOCValueLength {
		return NewValidationError("ioc_value", fmt.Sprintf("IOC value exceeds maximum length of %d characters", MaxIOCValueLength))
	}

	normalized := strings.TrimSpace(value)

	switch iocType {
	case IOCTypeIP:
		if net.ParseIP(normalized) == nil {
			return NewValidationError("ioc_value", "invalid IP address format")
		}
	case IOCTypeDomain:
		if !domainPattern.MatchString(strings.ToLower(normalized)) {
			return NewValidationError("ioc_value", "invalid domain format")
		}
	case IOCTypeHash:
		if !hashPattern.MatchString(normalized) {
			return NewValidationError("ioc_value", "invalid hash format (must be MD5/SHA1/SHA256/SHA512)")
		}
	default:
		return NewValidationError("ioc_type", fmt.Sprintf("unknown IOC type: %s", iocType))
	}

	return nil
}

// NormalizeIOCValue normalizes an IOC value for consistent storage and
// matching. IPs, domains and hex hashes are case-insensitive.
func NormalizeIOCValue(iocType IOCType, value string) string {
	normalized := strings.TrimSpace(value)
	switch iocType {
	case IOCTypeIP, IOCTypeDomain, IOCTypeHash:
		return strings.ToLower(normalized)
	default:
		return normalized
	}
}

// Validate performs full validation on an IOC.
func (ioc *IOC) Validate() error {
	if !ioc.Type.IsValid() {
		return NewValidationError("ioc_type", fmt.Sprintf("invalid IOC type: %s", ioc.Type))
	}
	if err := ValidateIOCValue(ioc.Type, ioc.Value); err != nil {
		return err
	}
	if ioc.Confidence < 0 || ioc.Confidence > 1 {
		return NewValidationError("confidence", "confidence must be between 0 and 1")
	}
	if ioc.ThreatType == "" {
		return NewValidationError("threat_type", "threat type is required")
	}
	return nil
}

// ThreatMatch is one threat-intelligence hit against an event or telemetry
// sample. MatchedField names where the indicator was found.
type ThreatMatch struct {
	IOC          IOC       `json:"ioc"`
	MatchedField string    `json:"matched_field"`
	MatchedValue string    `json:"matched_value"`
	DetectedAt   time.Time `json:"detected_at"`
}
