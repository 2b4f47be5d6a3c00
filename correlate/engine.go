package correlate

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"argus/core"
	"argus/metrics"
)

// Correlation is one detected pattern instance. AffectedDevices is always
// the set of device references present on the matched events.
type Correlation struct {
	CorrelationID   string           `json:"correlation_id"`
	PatternName     string           `json:"pattern_name"`
	Severity        core.ThreatLevel `json:"severity"`
	ConfidenceScore float64          `json:"confidence_score"`
	AffectedDevices []string         `json:"affected_devices"`
	EventIDs        []string         `json:"event_ids"`
	TimeSpanSeconds float64          `json:"time_span_seconds"`
	DetectedAt      time.Time        `json:"detected_at"`
}

// Engine evaluates the pattern rule set against a batch of unresolved
// events. Correlation is best effort: a malformed event is skipped, an
// internal failure yields an empty result, and the caller's pipeline pass
// always continues.
type Engine struct {
	patterns []Pattern
	cache    *core.RedisCache
	logger   *zap.SugaredLogger
}

// NewEngine builds a correlation engine. cache may be nil; detected
// correlations are then not snapshotted.
func NewEngine(patterns []Pattern, cache *core.RedisCache, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	return &Engine{patterns: patterns, cache: cache, logger: logger}
}

// correlationCacheTTL bounds how long a correlation snapshot stays in Redis
// for dashboards and forensics.
const correlationCacheTTL = 24 * time.Hour

// Correlate runs every pattern against the batch and returns at most one
// correlation per pattern. Events without a device reference still count
// toward event-type coverage but never toward the device threshold.
func (e *Engine) Correlate(ctx context.Context, events []*core.SecurityEvent, now time.Time) []*Correlation {
	var correlations []*Correlation

	for i := range e.patterns {
		c := e.matchPattern(&e.patterns[i], events, now)
		if c == nil {
			continue
		}
		metrics.CorrelationsFound.WithLabelValues(c.PatternName).Inc()
		e.logger.Infow("correlation detected",
			"pattern", c.PatternName,
			"severity", c.Severity,
			"confidence", c.ConfidenceScore,
			"devices", len(c.AffectedDevices),
			"events", len(c.EventIDs))

		if e.cache != nil {
			key := core.GetCorrelationCacheKey(c.CorrelationID)
			if err := e.cache.Set(ctx, key, c, correlationCacheTTL); err != nil {
				e.logger.Warnw("failed to cache correlation", "correlation_id", c.CorrelationID, "error", err)
			}
		}
		correlations = append(correlations, c)
	}
	return correlations
}

func (e *Engine) matchPattern(pattern *Pattern, events []*core.SecurityEvent, now time.Time) *Correlation {
	wanted := make(map[string]struct{}, len(pattern.EventTypes))
	for _, t := range pattern.EventTypes {
		wanted[t] = struct{}{}
	}

	var relevant []*core.SecurityEvent
	for _, event := range events {
		if _, ok := wanted[event.EventType]; ok {
			relevant = append(relevant, event)
		}
	}
	if len(relevant) == 0 {
		return nil
	}

	// Each relevant event anchors a window [created_at, created_at+window].
	// A window matches when it meets the distinct-device threshold and covers
	// every required event type; matched events from overlapping windows are
	// unioned into one correlation per pattern.
	matchedIDs := make(map[string]struct{})
	for _, anchor := range relevant {
		windowEnd := anchor.CreatedAt.Add(pattern.Window)

		var windowEvents []*core.SecurityEvent
		for _, event := range relevant {
			if event.CreatedAt.Before(anchor.CreatedAt) || event.CreatedAt.After(windowEnd) {
				continue
			}
			windowEvents = append(windowEvents, event)
		}

		deviceSet := make(map[string]struct{})
		typeSet := make(map[string]struct{})
		for _, event := range windowEvents {
			if event.DeviceRef != "" {
				deviceSet[event.DeviceRef] = struct{}{}
			}
			typeSet[event.EventType] = struct{}{}
		}
		if len(deviceSet) < pattern.MinDevices {
			continue
		}
		covered := true
		for t := range wanted {
			if _, ok := typeSet[t]; !ok {
				covered = false
				break
			}
		}
		if !covered {
			continue
		}

		for _, event := range windowEvents {
			matchedIDs[event.EventID] = struct{}{}
		}
	}
	if len(matchedIDs) == 0 {
		return nil
	}

	var (
		matched    []*core.SecurityEvent
		deviceSet  = make(map[string]struct{})
		confidence float64
	)
	for _, event := range relevant {
		if _, ok := matchedIDs[event.EventID]; !ok {
			continue
		}
		delete(matchedIDs, event.EventID)
		matched = append(matched, event)
		confidence += event.ConfidenceScore
		if event.DeviceRef != "" {
			deviceSet[event.DeviceRef] = struct{}{}
		}
	}

	var (
		earliest = matched[0].CreatedAt
		latest   = matched[0].CreatedAt
		eventIDs = make([]string, 0, len(matched))
	)
	for _, event := range matched {
		eventIDs = append(eventIDs, event.EventID)
		if event.CreatedAt.Before(earliest) {
			earliest = event.CreatedAt
		}
		if event.CreatedAt.After(latest) {
			latest = event.CreatedAt
		}
	}

	devices := make([]string, 0, len(deviceSet))
	for d := range deviceSet {
		devices = append(devices, d)
	}

	span := latest.Sub(earliest)
	return &Correlation{
		CorrelationID:   uuid.New().String(),
		PatternName:     pattern.Name,
		Severity:        pattern.Severity,
		ConfidenceScore: correlationConfidence(confidence/float64(len(matched)), len(matched), span),
		AffectedDevices: devices,
		EventIDs:        eventIDs,
		TimeSpanSeconds: span.Seconds(),
		DetectedAt:      now.UTC(),
	}
}

// correlationConfidence blends the mean event confidence with a bonus for
// more corroborating events (0.1 each, capped at 0.3) and a penalty for a
// wider time span (per hour, capped at 0.2). Clamped to [0, 1].
func correlationConfidence(avgConfidence float64, eventCount int, span time.Duration) float64 {
	bonus := 0.1 * float64(eventCount)
	if bonus > 0.3 {
		bonus = 0.3
	}
	penalty := span.Hours()
	if penalty > 0.2 {
		penalty = 0.2
	}
	confidence := avgConfidence + bonus - penalty
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
