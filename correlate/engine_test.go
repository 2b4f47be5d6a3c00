package correlate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"argus/core"
)

func testEvent(eventType, deviceRef string, confidence float64, createdAt time.Time) *core.SecurityEvent {
	event := core.NewSecurityEvent(eventType, deviceRef, core.ThreatLevelMedium, confidence, "test event")
	event.CreatedAt = createdAt
	return event
}

func TestReconnaissancePattern(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	now := time.Now().UTC()

	events := []*core.SecurityEvent{
		testEvent(core.EventTypeSuspiciousNetwork, "device-1", 0.6, now.Add(-2*time.Minute)),
		testEvent(core.EventTypeUnusualListeningPort, "device-1", 0.7, now.Add(-1*time.Minute)),
	}

	correlations := engine.Correlate(context.Background(), events, now)
	require.Len(t, correlations, 1)

	c := correlations[0]
	assert.Equal(t, "reconnaissance", c.PatternName)
	assert.Equal(t, core.ThreatLevelMedium, c.Severity)
	assert.ElementsMatch(t, []string{"device-1"}, c.AffectedDevices)
	assert.Len(t, c.EventIDs, 2)
	// avg 0.65 + 2*0.1 bonus - ~0.017 span penalty
	assert.InDelta(t, 0.833, c.ConfidenceScore, 0.01)
}

func TestLateralMovementNeedsTwoDevices(t *testing.T) {
	engine := NewEngine([]Pattern{DefaultPatterns()[0]}, nil, nil)
	now := time.Now().UTC()

	// both event types on a single device: below min_devices
	events := []*core.SecurityEvent{
		testEvent(core.EventTypeSuspiciousNetwork, "device-1", 0.8, now.Add(-3*time.Minute)),
		testEvent(core.EventTypeSuspiciousProcess, "device-1", 0.8, now.Add(-2*time.Minute)),
	}
	assert.Empty(t, engine.Correlate(context.Background(), events, now))

	// second device completes the pattern
	events = append(events, testEvent(core.EventTypeSuspiciousProcess, "device-2", 0.8, now.Add(-time.Minute)))
	correlations := engine.Correlate(context.Background(), events, now)
	require.Len(t, correlations, 1)
	assert.Equal(t, "lateral_movement", correlations[0].PatternName)
	assert.Equal(t, core.ThreatLevelHigh, correlations[0].Severity)
	assert.ElementsMatch(t, []string{"device-1", "device-2"}, correlations[0].AffectedDevices)
}

func TestAllEventTypesRequired(t *testing.T) {
	engine := NewEngine([]Pattern{DefaultPatterns()[0]}, nil, nil)
	now := time.Now().UTC()

	// suspicious_network alone on two devices is not lateral movement
	events := []*core.SecurityEvent{
		testEvent(core.EventTypeSuspiciousNetwork, "device-1", 0.9, now.Add(-time.Minute)),
		testEvent(core.EventTypeSuspiciousNetwork, "device-2", 0.9, now.Add(-time.Minute)),
	}
	assert.Empty(t, engine.Correlate(context.Background(), events, now))
}

func TestWindowExcludesOldEvents(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	now := time.Now().UTC()

	// one leg of reconnaissance fell out of the 5 minute window
	events := []*core.SecurityEvent{
		testEvent(core.EventTypeSuspiciousNetwork, "device-1", 0.6, now.Add(-20*time.Minute)),
		testEvent(core.EventTypeUnusualListeningPort, "device-1", 0.7, now.Add(-1*time.Minute)),
	}
	assert.Empty(t, engine.Correlate(context.Background(), events, now))
}

func TestEventsWithoutDeviceDoNotMeetThreshold(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	now := time.Now().UTC()

	// both reconnaissance legs present but no event carries a device:
	// type coverage is satisfied, the device threshold is not
	events := []*core.SecurityEvent{
		testEvent(core.EventTypeSuspiciousNetwork, "", 0.9, now.Add(-time.Minute)),
		testEvent(core.EventTypeUnusualListeningPort, "", 0.7, now.Add(-time.Minute)),
	}
	assert.Empty(t, engine.Correlate(context.Background(), events, now))

	// one deviced event meets reconnaissance's threshold of 1; the deviceless
	// event still counts toward type coverage and is included in the match
	events[1] = testEvent(core.EventTypeUnusualListeningPort, "device-1", 0.7, now.Add(-time.Minute))
	correlations := engine.Correlate(context.Background(), events, now)
	require.Len(t, correlations, 1)
	assert.Equal(t, "reconnaissance", correlations[0].PatternName)
	assert.ElementsMatch(t, []string{"device-1"}, correlations[0].AffectedDevices)
	assert.Len(t, correlations[0].EventIDs, 2)
}

func TestWindowsAnchorOnEventsNotOnNow(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	now := time.Now().UTC()

	// a tight reconnaissance cluster 20 minutes old: outside [now-5m, now]
	// but well inside the window anchored at its first event
	events := []*core.SecurityEvent{
		testEvent(core.EventTypeSuspiciousNetwork, "device-1", 0.6, now.Add(-20*time.Minute)),
		testEvent(core.EventTypeUnusualListeningPort, "device-1", 0.7, now.Add(-19*time.Minute)),
	}

	var recon *Correlation
	for _, c := range engine.Correlate(context.Background(), events, now) {
		if c.PatternName == "reconnaissance" {
			recon = c
		}
	}
	require.NotNil(t, recon)
	assert.Len(t, recon.EventIDs, 2)
	assert.InDelta(t, 60.0, recon.TimeSpanSeconds, 0.001)
}

func TestOverlappingWindowsUnionWithoutDuplicates(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	now := time.Now().UTC()

	// three events 2 minutes apart: the windows anchored at the first two
	// overlap, but each event appears once in the union
	events := []*core.SecurityEvent{
		testEvent(core.EventTypeSuspiciousNetwork, "device-1", 0.6, now.Add(-5*time.Minute)),
		testEvent(core.EventTypeUnusualListeningPort, "device-1", 0.6, now.Add(-3*time.Minute)),
		testEvent(core.EventTypeSuspiciousNetwork, "device-2", 0.6, now.Add(-1*time.Minute)),
	}

	var recon *Correlation
	for _, c := range engine.Correlate(context.Background(), events, now) {
		if c.PatternName == "reconnaissance" {
			recon = c
		}
	}
	require.NotNil(t, recon)
	require.Len(t, recon.EventIDs, 3)
	unique := map[string]struct{}{}
	for _, id := range recon.EventIDs {
		unique[id] = struct{}{}
	}
	assert.Len(t, unique, 3)
}

func TestAffectedDevicesSubsetOfEventDevices(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	now := time.Now().UTC()

	events := []*core.SecurityEvent{
		testEvent(core.EventTypeSuspiciousNetwork, "device-1", 0.6, now.Add(-2*time.Minute)),
		testEvent(core.EventTypeSuspiciousProcess, "device-2", 0.6, now.Add(-2*time.Minute)),
		testEvent(core.EventTypeUnusualListeningPort, "device-3", 0.6, now.Add(-2*time.Minute)),
		testEvent(core.EventTypeHighResourceUsage, "device-4", 0.6, now.Add(-2*time.Minute)),
	}

	eventDevices := map[string]string{}
	for _, e := range events {
		eventDevices[e.EventID] = e.DeviceRef
	}

	for _, c := range engine.Correlate(context.Background(), events, now) {
		fromEvents := map[string]struct{}{}
		for _, id := range c.EventIDs {
			fromEvents[eventDevices[id]] = struct{}{}
		}
		for _, d := range c.AffectedDevices {
			assert.Contains(t, fromEvents, d, "pattern %s", c.PatternName)
		}
	}
}

func TestOneCorrelationPerPatternPerPass(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	now := time.Now().UTC()

	// many overlapping reconnaissance pairs still yield a single correlation
	var events []*core.SecurityEvent
	for i := 0; i < 5; i++ {
		events = append(events,
			testEvent(core.EventTypeSuspiciousNetwork, "device-1", 0.6, now.Add(-time.Minute)),
			testEvent(core.EventTypeUnusualListeningPort, "device-1", 0.6, now.Add(-time.Minute)),
		)
	}

	var recon int
	for _, c := range engine.Correlate(context.Background(), events, now) {
		if c.PatternName == "reconnaissance" {
			recon++
		}
	}
	assert.Equal(t, 1, recon)
}

func TestConfidenceClamped(t *testing.T) {
	assert.Equal(t, 1.0, correlationConfidence(0.95, 10, time.Minute))
	assert.Equal(t, 0.0, correlationConfidence(0.0, 0, 5*time.Hour))
	// span penalty caps at 0.2
	assert.InDelta(t, 0.5+0.2-0.2, correlationConfidence(0.5, 2, 10*time.Hour), 0.0001)
}

func TestLoadPatternsFromYAML(t *testing.T) {
	patterns, err := LoadPatterns("")
	require.NoError(t, err)
	assert.Len(t, patterns, 4)

	_, err = LoadPatterns("/nonexistent/patterns.yaml")
	assert.Error(t, err)
}

func TestPatternValidate(t *testing.T) {
	p := Pattern{Name: "x", EventTypes: []string{core.EventTypeSuspiciousProcess}, Window: time.Minute, MinDevices: 1, Severity: core.ThreatLevelHigh}
	assert.NoError(t, p.Validate())

	bad := p
	bad.MinDevices = 0
	assert.Error(t, bad.Validate())

	bad = p
	bad.Severity = "extreme"
	assert.Error(t, bad.Validate())
}
