// Package analysis fuses the anomaly signal, event severity, threat
// intelligence and compliance posture into a single risk score per telemetry
// sample, and derives operator recommendations from the result.
package analysis

import (
	"argus/core"
)

// Risk weight of each contribution. Each term is clamped before summation
// so the total can never exceed 1.
const (
	weightAnomaly    = 0.3
	weightEvents     = 0.4
	weightIntel      = 0.2
	weightCompliance = 0.1
)

// RiskInput carries the independent signals the scorer fuses.
type RiskInput struct {
	AnomalyFlag       bool
	AnomalyConfidence float64
	Events            []core.EmbeddedEvent
	ThreatMatches     []core.ThreatMatch
	Compliance        core.ComplianceStatus
}

// RiskScore computes the weighted risk in [0,1]. The scorer is total: any
// input, including empty or adversarial values, produces a bounded score.
//
// The anomaly term uses (1 - confidence): a flagged anomaly the detector is
// unsure about represents unexplained deviation and scores higher than one
// it can fully characterize.
func RiskScore(input RiskInput) float64 {
	var score float64

	if input.AnomalyFlag {
		score += weightAnomaly * (1 - clamp01(input.AnomalyConfidence))
	}

	if len(input.Events) > 0 {
		var total float64
		for _, event := range input.Events {
			total += event.Severity.SeverityWeight()
		}
		mean := total / float64(len(input.Events))
		if mean > 1 {
			mean = 1
		}
		score += weightEvents * mean
	}

	if len(input.ThreatMatches) > 0 {
		var total float64
		for _, match := range input.ThreatMatches {
			total += clamp01(match.IOC.Confidence)
		}
		score += weightIntel * (total / float64(len(input.ThreatMatches)))
	}

	score += weightCompliance * (1 - input.Compliance.Score())

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
