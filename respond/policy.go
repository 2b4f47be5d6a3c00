// Package respond turns risk assessments into enforced containment. The
// policy engine is a pure decision function; the executor applies each
// chosen action against device and user state under per-entity locks; the
// incident manager tracks the resulting incidents through escalation and
// closure.
package respond

import (
	"argus/core"
)

// Risk thresholds for automatic containment.
const (
	IsolateRiskThreshold    = 0.9
	QuarantineRiskThreshold = 0.7
)

// Decision carries the policy engine's inputs.
type Decision struct {
	ThreatLevel   core.ThreatLevel
	RiskScore     float64
	ThreatMatches int
	AnomalyFlag   bool
	HasUser       bool
}

// Decide maps a risk context to the set of response actions, evaluated in
// fixed precedence: risk thresholds first, then threat intelligence, then
// anomaly and severity alerting. The result is deduplicated and ordered
// with containment before alerting.
func Decide(d Decision) []core.ActionType {
	chosen := make(map[core.ActionType]bool)

	switch {
	case d.RiskScore > IsolateRiskThreshold:
		chosen[core.ActionTypeIsolateDevice] = true
		chosen[core.ActionTypeAlertAdmin] = true
	case d.RiskScore > QuarantineRiskThreshold:
		chosen[core.ActionTypeQuarantine] = true
		chosen[core.ActionTypeAlertAdmin] = true
	}

	if d.ThreatMatches > 0 {
		if !chosen[core.ActionTypeIsolateDevice] {
			chosen[core.ActionTypeQuarantine] = true
		}
		if d.HasUser {
			chosen[core.ActionTypeRevokeAccess] = true
		}
	}

	if d.AnomalyFlag {
		chosen[core.ActionTypeAlertAdmin] = true
	}

	if d.ThreatLevel == core.ThreatLevelHigh || d.ThreatLevel == core.ThreatLevelCritical {
		chosen[core.ActionTypeAlertAdmin] = true
	}

	// stable ordering: containment executes before alerting
	var actions []core.ActionType
	for _, a := range []core.ActionType{
		core.ActionTypeIsolateDevice,
		core.ActionTypeQuarantine,
		core.ActionTypeRevokeAccess,
		core.ActionTypeAlertAdmin,
	} {
		if chosen[a] {
			actions = append(actions, a)
		}
	}
	return actions
}

// FallbackActions is the decision when policy evaluation itself fails: a
// human is always notified, never a silent drop.
func FallbackActions() []core.ActionType {
	return []core.ActionType{core.ActionTypeAlertAdmin}
}
