// Package ml provides the pluggable anomaly detection capability behind the
// risk scorer. Any detector returning (is_anomaly, confidence) from the
// fixed telemetry feature vector satisfies the contract; the default is an
// IQR outlier detector trained online on historical samples.
package ml

import (
	"strings"

	"argus/core"
)

// Feature names in the fixed vector.
const (
	FeatureCPU                 = "cpu"
	FeatureMemory              = "memory"
	FeatureDisk                = "disk"
	FeatureConnectionCount     = "connection_count"
	FeatureProcessCount        = "process_count"
	FeatureSuspiciousProcesses = "suspicious_process_count"
	FeatureUnusualPorts        = "unusual_port_count"
)

// FeatureVector is the fixed input to anomaly detection, one per telemetry
// sample.
type FeatureVector struct {
	CPU                 float64
	Memory              float64
	Disk                float64
	ConnectionCount     float64
	ProcessCount        float64
	SuspiciousProcesses float64
	UnusualPorts        float64
}

// Features returns the vector as a name→value map for detectors that learn
// per-feature distributions.
func (fv *FeatureVector) Features() map[string]float64 {
	return map[string]float64{
		FeatureCPU:                 fv.CPU,
		FeatureMemory:              fv.Memory,
		FeatureDisk:                fv.Disk,
		FeatureConnectionCount:     fv.ConnectionCount,
		FeatureProcessCount:        fv.ProcessCount,
		FeatureSuspiciousProcesses: fv.SuspiciousProcesses,
		FeatureUnusualPorts:        fv.UnusualPorts,
	}
}

// suspiciousProcessNames are binaries flagged by name regardless of other
// signals. Matching is case-insensitive substring, mirroring how these tools
// show up renamed or wrapped in telemetry.
var suspiciousProcessNames = []string{"mimikatz", "psexec", "nc.exe"}

// IsSuspiciousProcessName reports whether a process name matches the
// known-bad list.
func IsSuspiciousProcessName(name string) bool {
	lower := strings.ToLower(name)
	for _, bad := range suspiciousProcessNames {
		if strings.Contains(lower, bad) {
			return true
		}
	}
	return false
}

// unusualPortCutoff: listening ports at or above this are counted as
// unusual (ephemeral/high range rarely hosts legitimate services on managed
// endpoints).
const unusualPortCutoff = 8000

// ExtractFeatures converts a telemetry sample into the detector's fixed
// feature vector.
func ExtractFeatures(sample *core.TelemetrySample) *FeatureVector {
	fv := &FeatureVector{
		CPU:             sample.CPUUsage,
		Memory:          sample.MemoryUsage,
		Disk:            sample.DiskUsage,
		ConnectionCount: float64(len(sample.NetworkConnections)),
		ProcessCount:    float64(len(sample.RunningProcesses)),
	}
	for _, proc := range sample.RunningProcesses {
		if IsSuspiciousProcessName(proc.Name) {
			fv.SuspiciousProcesses++
		}
	}
	for _, conn := range sample.NetworkConnections {
		if strings.EqualFold(conn.Status, "LISTEN") && conn.LocalPort >= unusualPortCutoff {
			fv.UnusualPorts++
		}
	}
	return fv
}
