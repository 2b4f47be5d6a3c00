package core

import "time"

// NetworkConnection is one active connection reported by an endpoint agent.
type NetworkConnection struct {
	LocalAddress  string `json:"local_address"`
	LocalPort     int    `json:"local_port"`
	RemoteAddress string `json:"remote_address,omitempty"`
	RemotePort    int    `json:"remote_port,omitempty"`
	Status        string `json:"status"`
	PID           int    `json:"pid,omitempty"`
}

// ProcessInfo is one running process reported by an endpoint agent.
type ProcessInfo struct {
	PID        int     `json:"pid"`
	Name       string  `json:"name"`
	Username   string  `json:"username,omitempty"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`
}

// ComplianceStatus carries the boolean posture checks an agent self-reports.
type ComplianceStatus struct {
	AntivirusRunning bool `json:"antivirus_running"`
	FirewallEnabled  bool `json:"firewall_enabled"`
	OSUpToDate       bool `json:"os_up_to_date"`
	DiskEncrypted    bool `json:"disk_encrypted"`
}

// Flags returns the posture checks as a slice for mean-based scoring.
func (c ComplianceStatus) Flags() []bool {
	return []bool{c.AntivirusRunning, c.FirewallEnabled, c.OSUpToDate, c.DiskEncrypted}
}

// Score returns the fraction of passing posture checks in [0,1].
func (c ComplianceStatus) Score() float64 {
	flags := c.Flags()
	passed := 0
	for _, f := range flags {
		if f {
			passed++
		}
	}
	return float64(passed) / float64(len(flags))
}

// EmbeddedEvent is a raw security observation embedded in a telemetry sample,
// extracted into full SecurityEvents by the ingestion boundary.
type EmbeddedEvent struct {
	Type        string                 `json:"type"`
	Severity    ThreatLevel            `json:"severity"`
	Confidence  float64                `json:"confidence"`
	Description string                 `json:"description,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// TelemetrySample is one monitoring submission from a device agent.
type TelemetrySample struct {
	DeviceRef          string              `json:"device_ref"`
	Timestamp          time.Time           `json:"timestamp"`
	CPUUsage           float64             `json:"cpu_usage"`
	MemoryUsage        float64             `json:"memory_usage"`
	DiskUsage          float64             `json:"disk_usage"`
	NetworkConnections []NetworkConnection `json:"network_connections,omitempty"`
	RunningProcesses   []ProcessInfo       `json:"running_processes,omitempty"`
	Compliance         ComplianceStatus    `json:"compliance"`
	SecurityEvents     []EmbeddedEvent     `json:"security_events,omitempty"`
}

// CountEmbeddedType counts embedded events of a given type. Used by feature
// extraction for the anomaly detector.
func (t *TelemetrySample) CountEmbeddedType(eventType string) int {
	n := 0
	for _, ev := range t.SecurityEvents {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}
