package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"argus/core"
)

func normalVector(cpu float64) *FeatureVector {
	return &FeatureVector{
		CPU:             cpu,
		Memory:          40,
		Disk:            55,
		ConnectionCount: 12,
		ProcessCount:    80,
	}
}

func trainBaseline(d *IQRDetector) {
	// steady workstation profile
	for i := 0; i < 50; i++ {
		d.Train(normalVector(20 + float64(i%5)))
	}
}

func TestDetectorNeedsTrainingHistory(t *testing.T) {
	d := NewIQRDetector(nil)

	anomaly, confidence := d.Detect(normalVector(99))
	assert.False(t, anomaly)
	assert.Zero(t, confidence)
}

func TestDetectorFlagsOutlier(t *testing.T) {
	d := NewIQRDetector(nil)
	trainBaseline(d)

	anomaly, confidence := d.Detect(normalVector(98))
	assert.True(t, anomaly)
	assert.Greater(t, confidence, 0.0)
	assert.LessOrEqual(t, confidence, 1.0)
}

func TestDetectorPassesNormalSample(t *testing.T) {
	d := NewIQRDetector(nil)
	trainBaseline(d)

	anomaly, _ := d.Detect(normalVector(22))
	assert.False(t, anomaly)
}

func TestDetectorDegenerateDistribution(t *testing.T) {
	d := NewIQRDetector(nil)
	for i := 0; i < 20; i++ {
		d.Train(normalVector(20))
	}

	anomaly, confidence := d.Detect(normalVector(21))
	assert.True(t, anomaly)
	assert.Greater(t, confidence, 0.0)
}

func TestDetectorNilVector(t *testing.T) {
	d := NewIQRDetector(nil)
	d.Train(nil)
	anomaly, confidence := d.Detect(nil)
	assert.False(t, anomaly)
	assert.Zero(t, confidence)
}

func TestExtractFeatures(t *testing.T) {
	sample := &core.TelemetrySample{
		DeviceRef:   "device-1",
		CPUUsage:    35,
		MemoryUsage: 60,
		DiskUsage:   70,
		NetworkConnections: []core.NetworkConnection{
			{LocalPort: 443, Status: "ESTABLISHED"},
			{LocalPort: 9001, Status: "LISTEN"},
			{LocalPort: 80, Status: "LISTEN"},
		},
		RunningProcesses: []core.ProcessInfo{
			{Name: "chrome.exe"},
			{Name: "Mimikatz.exe"},
			{Name: "svchost.exe"},
		},
	}

	fv := ExtractFeatures(sample)
	assert.Equal(t, 35.0, fv.CPU)
	assert.Equal(t, 3.0, fv.ConnectionCount)
	assert.Equal(t, 3.0, fv.ProcessCount)
	assert.Equal(t, 1.0, fv.SuspiciousProcesses)
	assert.Equal(t, 1.0, fv.UnusualPorts)
}

func TestIsSuspiciousProcessName(t *testing.T) {
	assert.True(t, IsSuspiciousProcessName("mimikatz.exe"))
	assert.True(t, IsSuspiciousProcessName("PsExec64.exe"))
	assert.False(t, IsSuspiciousProcessName("notepad.exe"))
}

func TestQuantileInterpolation(t *testing.T) {
	sorted := []float64{1, 2, 3, 4}
	assert.InDelta(t, 1.75, quantile(sorted, 0.25), 0.0001)
	assert.InDelta(t, 2.5, quantile(sorted, 0.5), 0.0001)
	assert.InDelta(t, 3.25, quantile(sorted, 0.75), 0.0001)
}
