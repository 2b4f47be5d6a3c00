package respond

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"argus/core"
	"argus/metrics"
	"argus/notify"
	"argus/storage"
)

// containmentReasonTTL bounds the Redis audit record of why a device or
// user was contained.
const containmentReasonTTL = 24 * time.Hour

// ExecutionContext is the risk context an action executes under. It feeds
// the audit records and the admin alert summary.
type ExecutionContext struct {
	Event            *core.SecurityEvent
	RiskScore        float64
	AnomalyFlag      bool
	ThreatMatchCount int
}

// Executor applies response actions against device and user state. Each
// execution is recorded as a ResponseAction walking pending → executing →
// completed/failed; the record is never left in executing after Execute
// returns. Actions on the same device or user serialize through per-entity
// locks scoped to the single state transition.
type Executor struct {
	store    storage.Store
	cache    *core.RedisCache
	firewall Firewall
	notifier *notify.Notifier
	locks    *core.KeyedMutex
	retry    RetryConfig
	logger   *zap.SugaredLogger
}

// NewExecutor builds the executor. cache may be nil; containment reason
// records are then skipped.
func NewExecutor(store storage.Store, cache *core.RedisCache, firewall Firewall, notifier *notify.Notifier, logger *zap.SugaredLogger) *Executor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Executor{
		store:    store,
		cache:    cache,
		firewall: firewall,
		notifier: notifier,
		locks:    core.NewKeyedMutex(),
		retry:    DefaultRetryConfig(),
		logger:   logger,
	}
}

// Execute runs one action type against the event's device/user and returns
// the terminal ResponseAction record. Execute never returns an error: a
// failed handler yields a failed action with its reason, and execution of
// subsequent actions is the caller's concern.
func (x *Executor) Execute(ctx context.Context, actionType core.ActionType, ec *ExecutionContext) *core.ResponseAction {
	action := core.NewResponseAction(ec.Event.EventID, actionType,
		fmt.Sprintf("%s for event %s", actionType, ec.Event.EventID))

	if err := x.store.InsertAction(ctx, action); err != nil {
		x.logger.Errorw("failed to record response action",
			"action_type", actionType, "event_id", ec.Event.EventID, "error", err)
		// still execute: losing the audit row must not block containment
	}

	x.transition(ctx, action, core.ActionStatusExecuting, "")

	// the record must leave executing on every exit path, including panics
	// inside a handler
	defer func() {
		if r := recover(); r != nil {
			x.logger.Errorw("response handler panicked",
				"action_type", actionType, "action_id", action.ActionID, "panic", r)
		}
		if !action.Status.IsTerminal() {
			x.transition(ctx, action, core.ActionStatusFailed, "handler did not complete")
		}
		metrics.ActionsExecuted.WithLabelValues(string(actionType), string(action.Status)).Inc()
	}()

	var err error
	switch actionType {
	case core.ActionTypeIsolateDevice:
		err = x.isolateDevice(ctx, ec)
	case core.ActionTypeQuarantine:
		err = x.quarantineDevice(ctx, ec)
	case core.ActionTypeRevokeAccess:
		err = x.revokeAccess(ctx, ec)
	case core.ActionTypeAlertAdmin:
		err = x.alertAdmin(ctx, ec)
	default:
		err = core.NewValidationError("action_type", fmt.Sprintf("unknown action type: %s", actionType))
	}

	if err != nil {
		x.transition(ctx, action, core.ActionStatusFailed, err.Error())
		x.logger.Warnw("response action failed",
			"action_type", actionType, "action_id", action.ActionID,
			"event_id", ec.Event.EventID, "error", err)
	} else {
		x.transition(ctx, action, core.ActionStatusCompleted, "")
		x.logger.Infow("response action completed",
			"action_type", actionType, "action_id", action.ActionID,
			"event_id", ec.Event.EventID)
	}
	return action
}

// transition advances the in-memory state machine and mirrors it to the
// store. A storage failure here is logged, never propagated: the in-memory
// record stays authoritative for the pipeline result.
func (x *Executor) transition(ctx context.Context, action *core.ResponseAction, next core.ActionStatus, failReason string) {
	action.FailReason = failReason
	if err := action.Transition(next); err != nil {
		x.logger.Errorw("invalid action transition",
			"action_id", action.ActionID, "from", action.Status, "to", next, "error", err)
		return
	}
	if err := x.store.UpdateActionStatus(ctx, action.ActionID, action.Status, action.FailReason, action.ExecutedAt); err != nil {
		x.logger.Errorw("failed to persist action status",
			"action_id", action.ActionID, "status", action.Status, "error", err)
	}
}

func (x *Executor) isolateDevice(ctx context.Context, ec *ExecutionContext) error {
	deviceRef := ec.Event.DeviceRef
	if deviceRef == "" {
		return core.NewValidationError("device_ref", "isolate_device requires a device")
	}

	err := x.locks.WithLock("device:"+deviceRef, func() error {
		return withRetry(ctx, x.retry, func() error {
			if _, err := x.store.GetDevice(ctx, deviceRef); err != nil {
				return err
			}
			trust := 0.0
			quarantined := true
			return x.store.UpdateDevice(ctx, deviceRef, storage.DeviceFields{
				TrustScore:    &trust,
				IsQuarantined: &quarantined,
			})
		})
	})
	if err != nil {
		return err
	}

	reason := fmt.Sprintf("isolated due to event %s", ec.Event.EventID)
	if ok, err := x.firewall.ApplyPolicy(ctx, deviceRef, DenyAllPolicy(reason)); err != nil || !ok {
		x.logger.Warnw("firewall isolation request not confirmed",
			"device_ref", deviceRef, "error", err)
	}

	x.recordContainment(ctx, core.CacheKeyIsolationPrefix, deviceRef, ec)
	x.notifyContainment(ctx, "Device Isolated", deviceRef, ec)
	return nil
}

func (x *Executor) quarantineDevice(ctx context.Context, ec *ExecutionContext) error {
	deviceRef := ec.Event.DeviceRef
	if deviceRef == "" {
		return core.NewValidationError("device_ref", "quarantine requires a device")
	}

	err := x.locks.WithLock("device:"+deviceRef, func() error {
		return withRetry(ctx, x.retry, func() error {
			device, err := x.store.GetDevice(ctx, deviceRef)
			if err != nil {
				return err
			}
			trust := device.TrustScore - core.QuarantineTrustReduction
			if trust < core.TrustScoreFloor {
				trust = core.TrustScoreFloor
			}
			quarantined := true
			return x.store.UpdateDevice(ctx, deviceRef, storage.DeviceFields{
				TrustScore:    &trust,
				IsQuarantined: &quarantined,
			})
		})
	})
	if err != nil {
		return err
	}

	reason := fmt.Sprintf("quarantined due to event %s", ec.Event.EventID)
	if ok, err := x.firewall.ApplyPolicy(ctx, deviceRef, QuarantinePolicy(reason)); err != nil || !ok {
		x.logger.Warnw("firewall quarantine request not confirmed",
			"device_ref", deviceRef, "error", err)
	}

	x.recordContainment(ctx, core.CacheKeyQuarantinePrefix, deviceRef, ec)
	x.notifyContainment(ctx, "Device Quarantined", deviceRef, ec)
	return nil
}

func (x *Executor) revokeAccess(ctx context.Context, ec *ExecutionContext) error {
	userRef := ec.Event.UserRef
	if userRef == "" {
		return fmt.Errorf("no user associated")
	}

	var sessions int
	err := x.locks.WithLock("user:"+userRef, func() error {
		return withRetry(ctx, x.retry, func() error {
			if _, err := x.store.GetUser(ctx, userRef); err != nil {
				return err
			}
			if err := x.store.DeactivateUser(ctx, userRef); err != nil {
				return err
			}
			n, err := x.store.DeactivateUserSessions(ctx, userRef)
			if err != nil {
				return err
			}
			sessions = n
			return nil
		})
	})
	if err != nil {
		return err
	}

	x.recordContainment(ctx, core.CacheKeyRevocationPrefix, userRef, ec)
	x.logger.Infow("user access revoked",
		"user_ref", userRef, "sessions_terminated", sessions, "event_id", ec.Event.EventID)

	if x.notifier != nil {
		x.notifier.Send(ctx, &notify.Alert{
			Title:    "User Access Revoked",
			Message:  fmt.Sprintf("Access revoked for user %s, %d sessions terminated", userRef, sessions),
			Severity: ec.Event.ThreatLevel,
			UserRef:  userRef,
			Context:  x.alertContext(ec),
		})
	}
	return nil
}

func (x *Executor) alertAdmin(ctx context.Context, ec *ExecutionContext) error {
	if x.notifier == nil {
		return core.NewTransientError("alert_admin", fmt.Errorf("no notifier configured"))
	}

	alert := &notify.Alert{
		Title: fmt.Sprintf("Security Alert: %s", ec.Event.EventType),
		Message: fmt.Sprintf("%s (risk %.2f, anomaly %t, %d threat intel matches)",
			ec.Event.Description, ec.RiskScore, ec.AnomalyFlag, ec.ThreatMatchCount),
		Severity:  ec.Event.ThreatLevel,
		DeviceRef: ec.Event.DeviceRef,
		UserRef:   ec.Event.UserRef,
		Context:   x.alertContext(ec),
	}
	if !x.notifier.Send(ctx, alert) {
		return core.NewTransientError("alert_admin", fmt.Errorf("no notification channel accepted the alert"))
	}
	return nil
}

func (x *Executor) alertContext(ec *ExecutionContext) map[string]interface{} {
	return map[string]interface{}{
		"event_id":       ec.Event.EventID,
		"event_type":     ec.Event.EventType,
		"threat_level":   string(ec.Event.ThreatLevel),
		"risk_score":     ec.RiskScore,
		"anomaly":        ec.AnomalyFlag,
		"threat_matches": ec.ThreatMatchCount,
	}
}

// recordContainment writes the audit reason record to Redis so dashboards
// and the enforcement collaborator can answer "why is this contained".
func (x *Executor) recordContainment(ctx context.Context, prefix, ref string, ec *ExecutionContext) {
	if x.cache == nil {
		return
	}
	record := map[string]interface{}{
		"event_id":   ec.Event.EventID,
		"event_type": ec.Event.EventType,
		"risk_score": ec.RiskScore,
		"reason":     ec.Event.Description,
		"applied_at": time.Now().UTC(),
	}
	key := core.GetContainmentReasonKey(prefix, ref)
	if err := x.cache.Set(ctx, key, record, containmentReasonTTL); err != nil {
		x.logger.Warnw("failed to record containment reason",
			"key", key, "error", err)
	}
}

func (x *Executor) notifyContainment(ctx context.Context, title, deviceRef string, ec *ExecutionContext) {
	if x.notifier == nil {
		return
	}
	x.notifier.Send(ctx, &notify.Alert{
		Title:     title,
		Message:   fmt.Sprintf("%s: device %s, triggered by event %s", title, deviceRef, ec.Event.EventID),
		Severity:  ec.Event.ThreatLevel,
		DeviceRef: deviceRef,
		Context:   x.alertContext(ec),
	})
}
