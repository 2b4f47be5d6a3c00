package respond

import (
	"context"
	"time"

	"go.uber.org/zap"

	"argus/core"
)

// FirewallMode selects the policy shape applied to a device.
type FirewallMode string

const (
	FirewallModeDenyAll   FirewallMode = "deny_all"
	FirewallModeAllowList FirewallMode = "allow_list"
)

// QuarantineAllowedPorts are the outbound ports a quarantined device keeps:
// DNS plus HTTP/HTTPS for remediation downloads.
var QuarantineAllowedPorts = []int{53, 80, 443}

// FirewallPolicy is the requested enforcement state for one device.
type FirewallPolicy struct {
	Mode         FirewallMode `json:"mode"`
	AllowedPorts []int        `json:"allowed_ports,omitempty"`
	Direction    string       `json:"direction"`
	Reason       string       `json:"reason,omitempty"`
	AppliedAt    time.Time    `json:"applied_at"`
}

// DenyAllPolicy blocks all traffic in both directions.
func DenyAllPolicy(reason string) FirewallPolicy {
	return FirewallPolicy{
		Mode:      FirewallModeDenyAll,
		Direction: "both",
		Reason:    reason,
		AppliedAt: time.Now().UTC(),
	}
}

// QuarantinePolicy allows only the quarantine port list outbound.
func QuarantinePolicy(reason string) FirewallPolicy {
	return FirewallPolicy{
		Mode:         FirewallModeAllowList,
		AllowedPorts: QuarantineAllowedPorts,
		Direction:    "outbound",
		Reason:       reason,
		AppliedAt:    time.Now().UTC(),
	}
}

// Firewall is the network enforcement boundary. The pipeline's job ends at
// selecting and requesting a policy; packet filtering belongs to the
// enforcement collaborator.
type Firewall interface {
	ApplyPolicy(ctx context.Context, deviceRef string, policy FirewallPolicy) (bool, error)
}

// firewallPolicyTTL bounds how long a recorded policy request stays visible.
const firewallPolicyTTL = 24 * time.Hour

// CacheFirewall records requested policies in Redis where the enforcement
// collaborator and dashboards pick them up.
type CacheFirewall struct {
	cache  *core.RedisCache
	logger *zap.SugaredLogger
}

// NewCacheFirewall builds the Redis-backed firewall boundary.
func NewCacheFirewall(cache *core.RedisCache, logger *zap.SugaredLogger) *CacheFirewall {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CacheFirewall{cache: cache, logger: logger}
}

func (f *CacheFirewall) ApplyPolicy(ctx context.Context, deviceRef string, policy FirewallPolicy) (bool, error) {
	if f.cache == nil {
		// no enforcement backend configured; log-only deployment
		f.logger.Infow("firewall policy requested",
			"device_ref", deviceRef, "mode", policy.Mode, "ports", policy.AllowedPorts)
		return true, nil
	}
	if err := f.cache.Set(ctx, core.GetFirewallPolicyKey(deviceRef), policy, firewallPolicyTTL); err != nil {
		return false, core.NewTransientError("apply_firewall_policy", err)
	}
	f.logger.Infow("firewall policy applied",
		"device_ref", deviceRef, "mode", policy.Mode, "ports", policy.AllowedPorts)
	return true, nil
}
