package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// IncidentStatus represents the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentStatusOpen   IncidentStatus = "open"
	IncidentStatusClosed IncidentStatus = "closed"
)

// Incident priority bounds (5 is highest).
const (
	IncidentPriorityMin = 1
	IncidentPriorityMax = 5
)

// Assignment roles. Escalation walks up this chain; creation assigns by
// severity.
const (
	RoleSecurityTeam  = "security_team"
	RoleSecurityAdmin = "security_admin"
	RoleCISO          = "ciso"
	RoleEmergencyTeam = "emergency_team"
)

// TimelineEntry is one append-only record of an incident state change.
// Entries are never edited or removed.
type TimelineEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	Actor       string    `json:"actor"`
}

// Incident aggregates events and correlations into a tracked response unit.
// Relationships are one-directional: the incident holds event and correlation
// identifiers; events do not reference incidents.
type Incident struct {
	IncidentID      string          `json:"incident_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Severity        ThreatLevel     `json:"severity"`
	Status          IncidentStatus  `json:"status"`
	Priority        int             `json:"priority"`
	AssignedTo      string          `json:"assigned_to"`
	EscalationLevel int             `json:"escalation_level"`
	DeviceRef       string          `json:"device_ref,omitempty"`
	UserRef         string          `json:"user_ref,omitempty"`
	SourceEvents    []string        `json:"source_events"`
	Correlations    []string        `json:"correlations,omitempty"`
	ResponseActions []string        `json:"response_actions,omitempty"`
	Timeline        []TimelineEntry `json:"timeline"`
	Resolution      string          `json:"resolution,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	ClosedAt        *time.Time      `json:"closed_at,omitempty"`
}

// NewIncidentID builds a dated, human-scannable incident identifier.
func NewIncidentID(now time.Time) string {
	return fmt.Sprintf("INC-%s-%s", now.UTC().Format("20060102"), uuid.New().String()[:8])
}

// IncidentTitle derives a short title from the triggering event.
func IncidentTitle(event *SecurityEvent) string {
	words := strings.Split(event.EventType, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	desc := event.Description
	if len(desc) > 50 {
		desc = desc[:50] + "..."
	}
	return fmt.Sprintf("%s - %s", strings.Join(words, " "), desc)
}

// DeriveIncidentSeverity escalates the triggering event's threat level when a
// correlation of higher severity is present.
func DeriveIncidentSeverity(event *SecurityEvent, correlationSeverities []ThreatLevel) ThreatLevel {
	severity := event.ThreatLevel
	for _, cs := range correlationSeverities {
		if cs.Rank() > severity.Rank() {
			severity = cs
		}
	}
	return severity
}

// IncidentPriority maps severity to a 1-5 priority, bumped by one when the
// triggering event's confidence exceeds 0.8. Capped at IncidentPriorityMax.
func IncidentPriority(severity ThreatLevel, event *SecurityEvent) int {
	var priority int
	switch severity {
	case ThreatLevelCritical:
		priority = 5
	case ThreatLevelHigh:
		priority = 4
	case ThreatLevelMedium:
		priority = 2
	default:
		priority = 1
	}
	if event.ConfidenceScore > 0.8 {
		priority++
	}
	if priority > IncidentPriorityMax {
		priority = IncidentPriorityMax
	}
	return priority
}

// AssigneeForSeverity auto-assigns a new incident by severity.
func AssigneeForSeverity(severity ThreatLevel) string {
	switch severity {
	case ThreatLevelCritical:
		return RoleCISO
	case ThreatLevelHigh:
		return RoleSecurityAdmin
	default:
		return RoleSecurityTeam
	}
}

// AssigneeForEscalationLevel maps an escalation level to the responsible
// role. Levels past the table bottom out at the emergency team.
func AssigneeForEscalationLevel(level int) string {
	switch level {
	case 1:
		return RoleSecurityAdmin
	case 2:
		return RoleCISO
	default:
		return RoleEmergencyTeam
	}
}

// AppendTimeline appends one entry to the incident timeline and touches
// UpdatedAt. The timeline is append-only; existing entries are never
// rewritten.
func (i *Incident) AppendTimeline(action, description, actor string) {
	now := time.Now().UTC()
	i.Timeline = append(i.Timeline, TimelineEntry{
		Timestamp:   now,
		Action:      action,
		Description: description,
		Actor:       actor,
	})
	i.UpdatedAt = now
}

// Escalate raises the escalation level by one, reassigns per the level table
// and bumps priority. EscalationLevel only ever increases.
func (i *Incident) Escalate(reason string) {
	i.EscalationLevel++
	i.AssignedTo = AssigneeForEscalationLevel(i.EscalationLevel)
	if i.Priority < IncidentPriorityMax {
		i.Priority++
	}
	i.AppendTimeline("escalated",
		fmt.Sprintf("Incident escalated to level %d: %s", i.EscalationLevel, reason),
		"system")
}

// Close transitions the incident to its terminal state. Closing an already
// closed incident is a no-op: the terminal state is unchanged and no
// duplicate timeline entry is appended.
func (i *Incident) Close(resolution, actor string) {
	if i.Status == IncidentStatusClosed {
		return
	}
	now := time.Now().UTC()
	i.Status = IncidentStatusClosed
	i.Resolution = resolution
	i.ClosedAt = &now
	i.AppendTimeline("closed", fmt.Sprintf("Incident closed: %s", resolution), actor)
}
