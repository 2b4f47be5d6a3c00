// Package ingest validates externally submitted payloads and converts them
// into core types. Malformed input is rejected with a ValidationError
// before it reaches the pipeline.
package ingest

import (
	"time"

	"github.com/go-playground/validator/v10"

	"argus/core"
	"argus/metrics"
)

// EventPayload is a directly submitted security event.
type EventPayload struct {
	EventType       string                 `json:"event_type" validate:"required"`
	DeviceRef       string                 `json:"device_ref,omitempty"`
	UserRef         string                 `json:"user_ref,omitempty"`
	ThreatLevel     string                 `json:"threat_level" validate:"required,oneof=low medium high critical"`
	ConfidenceScore float64                `json:"confidence_score" validate:"gte=0,lte=1"`
	Description     string                 `json:"description"`
	RawData         map[string]interface{} `json:"raw_data,omitempty"`
}

// TelemetryPayload is one monitoring submission from a device agent.
type TelemetryPayload struct {
	DeviceRef          string                   `json:"device_ref" validate:"required"`
	Timestamp          time.Time                `json:"timestamp"`
	CPUUsage           float64                  `json:"cpu_usage" validate:"gte=0,lte=100"`
	MemoryUsage        float64                  `json:"memory_usage" validate:"gte=0,lte=100"`
	DiskUsage          float64                  `json:"disk_usage" validate:"gte=0,lte=100"`
	NetworkConnections []core.NetworkConnection `json:"network_connections,omitempty"`
	RunningProcesses   []core.ProcessInfo       `json:"running_processes,omitempty"`
	Compliance         core.ComplianceStatus    `json:"compliance"`
	SecurityEvents     []EmbeddedEventPayload   `json:"security_events,omitempty" validate:"dive"`
}

// EmbeddedEventPayload is a security observation riding inside a telemetry
// submission.
type EmbeddedEventPayload struct {
	Type        string                 `json:"type" validate:"required"`
	Severity    string                 `json:"severity" validate:"required,oneof=low medium high critical"`
	Confidence  float64                `json:"confidence" validate:"gte=0,lte=1"`
	Description string                 `json:"description,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// Ingestor validates and converts submissions.
type Ingestor struct {
	validate *validator.Validate
}

// NewIngestor builds an ingestor with struct-tag validation.
func NewIngestor() *Ingestor {
	return &Ingestor{validate: validator.New()}
}

// ParseEvent validates a direct event submission and converts it.
func (i *Ingestor) ParseEvent(payload *EventPayload) (*core.SecurityEvent, error) {
	if err := i.validate.Struct(payload); err != nil {
		return nil, core.NewValidationError("event", err.Error())
	}

	event := core.NewSecurityEvent(payload.EventType, payload.DeviceRef,
		core.ThreatLevel(payload.ThreatLevel), payload.ConfidenceScore, payload.Description)
	event.UserRef = payload.UserRef
	event.RawData = payload.RawData

	if err := event.Validate(); err != nil {
		return nil, err
	}
	metrics.EventsIngested.WithLabelValues("direct").Inc()
	return event, nil
}

// ParseTelemetry validates a telemetry submission and converts it. A zero
// timestamp takes the receive time.
func (i *Ingestor) ParseTelemetry(payload *TelemetryPayload) (*core.TelemetrySample, error) {
	if err := i.validate.Struct(payload); err != nil {
		return nil, core.NewValidationError("telemetry", err.Error())
	}

	sample := &core.TelemetrySample{
		DeviceRef:          payload.DeviceRef,
		Timestamp:          payload.Timestamp,
		CPUUsage:           payload.CPUUsage,
		MemoryUsage:        payload.MemoryUsage,
		DiskUsage:          payload.DiskUsage,
		NetworkConnections: payload.NetworkConnections,
		RunningProcesses:   payload.RunningProcesses,
		Compliance:         payload.Compliance,
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}
	for _, embedded := range payload.SecurityEvents {
		sample.SecurityEvents = append(sample.SecurityEvents, core.EmbeddedEvent{
			Type:        embedded.Type,
			Severity:    core.ThreatLevel(embedded.Severity),
			Confidence:  embedded.Confidence,
			Description: embedded.Description,
			Details:     embedded.Details,
		})
	}
	metrics.TelemetrySamples.Inc()
	return sample, nil
}

// EventsFromSample promotes the sample's embedded observations to durable
// security events attributed to the sample's device.
func EventsFromSample(sample *core.TelemetrySample) []*core.SecurityEvent {
	var events []*core.SecurityEvent
	for _, embedded := range sample.SecurityEvents {
		event := core.NewSecurityEvent(embedded.Type, sample.DeviceRef,
			embedded.Severity, embedded.Confidence, embedded.Description)
		event.RawData = embedded.Details
		event.CreatedAt = sample.Timestamp
		events = append(events, event)
		metrics.EventsIngested.WithLabelValues("telemetry").Inc()
	}
	return events
}
