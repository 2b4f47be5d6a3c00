// Package correlate detects multi-event attack patterns across the
// unresolved event stream. Each pattern names the event types that must all
// appear inside a sliding time window, on a minimum number of distinct
// devices, before a correlation fires.
package correlate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"argus/core"
)

// Pattern is one correlation rule.
type Pattern struct {
	Name       string           `yaml:"name"`
	EventTypes []string         `yaml:"event_types"`
	Window     time.Duration    `yaml:"window"`
	MinDevices int              `yaml:"min_devices"`
	Severity   core.ThreatLevel `yaml:"severity"`
}

// Validate checks the pattern is well formed.
func (p *Pattern) Validate() error {
	if p.Name == "" {
		return core.NewValidationError("name", "pattern name cannot be empty")
	}
	if len(p.EventTypes) == 0 {
		return core.NewValidationError("event_types", "pattern needs at least one event type")
	}
	if p.Window <= 0 {
		return core.NewValidationError("window", "pattern window must be positive")
	}
	if p.MinDevices < 1 {
		return core.NewValidationError("min_devices", "min_devices must be at least 1")
	}
	if !p.Severity.IsValid() {
		return core.NewValidationError("severity", fmt.Sprintf("invalid severity: %s", p.Severity))
	}
	return nil
}

// DefaultPatterns returns the built-in rule set. Window and device thresholds
// are tuned for endpoint telemetry arriving every few seconds.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:       "lateral_movement",
			EventTypes: []string{core.EventTypeSuspiciousNetwork, core.EventTypeSuspiciousProcess},
			Window:     10 * time.Minute,
			MinDevices: 2,
			Severity:   core.ThreatLevelHigh,
		},
		{
			Name:       "data_exfiltration",
			EventTypes: []string{core.EventTypeUnusualListeningPort, core.EventTypeHighResourceUsage},
			Window:     15 * time.Minute,
			MinDevices: 1,
			Severity:   core.ThreatLevelCritical,
		},
		{
			Name:       "malware_outbreak",
			EventTypes: []string{core.EventTypeSuspiciousProcess, core.EventTypeHighResourceUsage},
			Window:     30 * time.Minute,
			MinDevices: 3,
			Severity:   core.ThreatLevelCritical,
		},
		{
			Name:       "reconnaissance",
			EventTypes: []string{core.EventTypeSuspiciousNetwork, core.EventTypeUnusualListeningPort},
			Window:     5 * time.Minute,
			MinDevices: 1,
			Severity:   core.ThreatLevelMedium,
		},
	}
}

type patternFile struct {
	Patterns []Pattern `yaml:"patterns"`
}

// LoadPatterns reads a pattern rule set from a YAML file. An empty path
// returns the built-in defaults.
func LoadPatterns(path string) ([]Pattern, error) {
	if path == "" {
		return DefaultPatterns(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern file: %w", err)
	}

	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pattern file: %w", err)
	}
	if len(file.Patterns) == 0 {
		return nil, fmt.Errorf("pattern file %s defines no patterns", path)
	}
	for i := range file.Patterns {
		if err := file.Patterns[i].Validate(); err != nil {
			return nil, fmt.Errorf("pattern %q: %w", file.Patterns[i].Name, err)
		}
	}
	return file.Patterns, nil
}
