package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"argus/core"
	"argus/metrics"
	"argus/ml"
	"argus/threat"
)

// maxRecommendations caps the advice list per assessment.
const maxRecommendations = 5

// Assessment is the per-sample output of the analysis engine. It is the
// risk context the response policy engine decides on.
type Assessment struct {
	DeviceRef         string             `json:"device_ref"`
	AnomalyFlag       bool               `json:"anomaly_flag"`
	AnomalyConfidence float64            `json:"anomaly_confidence"`
	RiskScore         float64            `json:"risk_score"`
	ThreatMatches     []core.ThreatMatch `json:"threat_matches,omitempty"`
	Recommendations   []string           `json:"recommendations,omitempty"`
	AnalyzedAt        time.Time          `json:"analyzed_at"`
}

// Engine runs anomaly detection, threat enrichment and risk scoring over a
// telemetry sample and its extracted events. Analysis is best effort: a
// failing sub-component degrades its own signal to zero and the assessment
// is still produced.
type Engine struct {
	detector ml.AnomalyDetector
	enricher *threat.Enricher
	logger   *zap.SugaredLogger
}

// NewEngine builds the analysis engine.
func NewEngine(detector ml.AnomalyDetector, enricher *threat.Enricher, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{detector: detector, enricher: enricher, logger: logger}
}

// Analyze assesses one telemetry sample. events are the security events
// extracted from the sample; they are enriched in place against the IOC
// index before scoring.
func (e *Engine) Analyze(ctx context.Context, sample *core.TelemetrySample, events []*core.SecurityEvent) *Assessment {
	assessment := &Assessment{
		DeviceRef:  sample.DeviceRef,
		AnalyzedAt: time.Now().UTC(),
	}

	features := ml.ExtractFeatures(sample)
	assessment.AnomalyFlag, assessment.AnomalyConfidence = e.detector.Detect(features)
	if assessment.AnomalyFlag {
		metrics.AnomaliesDetected.Inc()
	}
	// the sample joins the training window after detection so a burst of
	// anomalous samples cannot immediately normalize itself
	e.detector.Train(features)

	if e.enricher != nil {
		for _, event := range events {
			if match, ok := e.enricher.Enrich(ctx, event); ok {
				assessment.ThreatMatches = append(assessment.ThreatMatches, *match)
			}
		}
	}

	assessment.RiskScore = RiskScore(RiskInput{
		AnomalyFlag:       assessment.AnomalyFlag,
		AnomalyConfidence: assessment.AnomalyConfidence,
		Events:            sample.SecurityEvents,
		ThreatMatches:     assessment.ThreatMatches,
		Compliance:        sample.Compliance,
	})
	metrics.RiskScore.Observe(assessment.RiskScore)

	assessment.Recommendations = recommendations(sample, assessment)

	e.logger.Debugw("telemetry analyzed",
		"device_ref", sample.DeviceRef,
		"risk_score", assessment.RiskScore,
		"anomaly", assessment.AnomalyFlag,
		"threat_matches", len(assessment.ThreatMatches))
	return assessment
}

// recommendations derives operator advice from the assessment, capped at
// maxRecommendations with the higher-signal items first.
func recommendations(sample *core.TelemetrySample, assessment *Assessment) []string {
	var recs []string

	if assessment.AnomalyFlag {
		recs = append(recs, "Investigate unusual system behavior flagged by anomaly detection")
	}

	eventTypes := make(map[string]struct{}, len(sample.SecurityEvents))
	for _, event := range sample.SecurityEvents {
		eventTypes[event.Type] = struct{}{}
	}
	if _, ok := eventTypes[core.EventTypeSuspiciousProcess]; ok {
		recs = append(recs, "Review and terminate suspicious processes")
	}
	if _, ok := eventTypes[core.EventTypeSuspiciousNetwork]; ok {
		recs = append(recs, "Investigate unusual network connections")
	}
	if _, ok := eventTypes[core.EventTypeHighResourceUsage]; ok {
		recs = append(recs, "Monitor system performance and check for resource abuse")
	}

	if len(assessment.ThreatMatches) > 0 {
		recs = append(recs,
			"Block communication with known malicious indicators",
			"Consider quarantining device due to threat intelligence matches")
	}

	if !sample.Compliance.AntivirusRunning {
		recs = append(recs, "Enable and update antivirus software")
	}
	if !sample.Compliance.FirewallEnabled {
		recs = append(recs, "Enable host-based firewall")
	}
	if !sample.Compliance.OSUpToDate {
		recs = append(recs, "Install operating system updates")
	}

	switch {
	case assessment.RiskScore > 0.8:
		recs = append(recs, "Consider immediate quarantine due to high risk score")
	case assessment.RiskScore > 0.6:
		recs = append(recs, "Increase monitoring frequency for this device")
	}

	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}
