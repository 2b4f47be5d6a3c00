package threat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"argus/core"
	"argus/ml"
)

// EnrichmentConfidenceBonus is added to an event's confidence when an
// indicator matches. Applied at most once per event.
const EnrichmentConfidenceBonus = 0.2

// badProcessConfidence is the intelligence confidence assigned to a
// known-bad process name match. File hashes would be checked instead when
// agents report them; a name match alone is weaker than a hash hit.
const badProcessConfidence = 0.8

// iocFields maps event raw data keys to the IOC type they are matched
// against.
var iocFields = []struct {
	rawKey  string
	iocType core.IOCType
}{
	{core.RawKeyRemoteAddress, core.IOCTypeIP},
	{core.RawKeyDomain, core.IOCTypeDomain},
	{core.RawKeyFileHash, core.IOCTypeHash},
}

// Enricher cross-references event raw data against the IOC index.
type Enricher struct {
	index  *Index
	logger *zap.SugaredLogger
}

// NewEnricher builds an enricher over the given index.
func NewEnricher(index *Index, logger *zap.SugaredLogger) *Enricher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Enricher{index: index, logger: logger}
}

// Enrich looks up every recognized indicator field in the event's raw data.
// On the first match it records the intelligence under the threat_intel key
// and bumps the event's confidence by EnrichmentConfidenceBonus, capped at
// 1.0. An already enriched event is returned unchanged so repeated passes
// cannot stack the bonus. Lookup failures are logged and treated as no
// match.
func (e *Enricher) Enrich(ctx context.Context, event *core.SecurityEvent) (*core.ThreatMatch, bool) {
	if event.HasThreatIntel() {
		return nil, false
	}

	for _, field := range iocFields {
		raw, ok := event.RawData[field.rawKey]
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok || value == "" {
			continue
		}

		ioc, err := e.index.Lookup(ctx, field.iocType, value)
		if err != nil {
			e.logger.Warnw("IOC lookup failed during enrichment",
				"event_id", event.EventID, "field", field.rawKey, "error", err)
			continue
		}
		if ioc == nil {
			continue
		}

		match := &core.ThreatMatch{
			IOC:          *ioc,
			MatchedField: field.rawKey,
			MatchedValue: value,
			DetectedAt:   time.Now().UTC(),
		}
		e.apply(event, match)
		return match, true
	}

	if match, ok := e.matchProcessName(event); ok {
		e.apply(event, match)
		return match, true
	}
	return nil, false
}

// matchProcessName flags events whose raw process name contains a known-bad
// tool name. The match is synthesized locally rather than looked up: the
// built-in list stands in for hash-based lookups until agents report file
// hashes.
func (e *Enricher) matchProcessName(event *core.SecurityEvent) (*core.ThreatMatch, bool) {
	raw, ok := event.RawData[core.RawKeyProcessName]
	if !ok {
		return nil, false
	}
	name, ok := raw.(string)
	if !ok || name == "" || !ml.IsSuspiciousProcessName(name) {
		return nil, false
	}

	return &core.ThreatMatch{
		IOC: core.IOC{
			Type:        "process",
			Value:       strings.ToLower(name),
			ThreatType:  "malware_tool",
			Confidence:  badProcessConfidence,
			Source:      "builtin",
			Description: fmt.Sprintf("Known malicious process: %s", name),
		},
		MatchedField: core.RawKeyProcessName,
		MatchedValue: name,
		DetectedAt:   time.Now().UTC(),
	}, true
}

func (e *Enricher) apply(event *core.SecurityEvent, match *core.ThreatMatch) {
	if event.RawData == nil {
		event.RawData = make(map[string]interface{})
	}
	event.RawData[core.RawKeyThreatIntel] = map[string]interface{}{
		"ioc_type":      string(match.IOC.Type),
		"ioc_value":     match.IOC.Value,
		"threat_type":   match.IOC.ThreatType,
		"confidence":    match.IOC.Confidence,
		"source":        match.IOC.Source,
		"matched_field": match.MatchedField,
	}

	event.ConfidenceScore += EnrichmentConfidenceBonus
	if event.ConfidenceScore > 1.0 {
		event.ConfidenceScore = 1.0
	}

	e.logger.Infow("event enriched with threat intelligence",
		"event_id", event.EventID,
		"ioc_type", match.IOC.Type,
		"threat_type", match.IOC.ThreatType,
		"confidence", event.ConfidenceScore)
}
