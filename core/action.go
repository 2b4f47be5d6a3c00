package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActionType represents an automated containment action.
type ActionType string

const (
	ActionTypeIsolateDevice ActionType = "isolate_device"
	ActionTypeQuarantine    ActionType = "quarantine"
	ActionTypeRevokeAccess  ActionType = "revoke_access"
	ActionTypeAlertAdmin    ActionType = "alert_admin"
)

// AllActionTypes returns all valid action types.
var AllActionTypes = []ActionType{
	ActionTypeIsolateDevice, ActionTypeQuarantine, ActionTypeRevokeAccess, ActionTypeAlertAdmin,
}

// IsValid checks if the action type is valid.
func (a ActionType) IsValid() bool {
	for _, valid := range AllActionTypes {
		if a == valid {
			return true
		}
	}
	return false
}

// ActionStatus represents the execution state of a response action record.
// Transitions: pending -> executing -> {completed, failed}. Cancelled is
// reachable only from pending (an action never starts); completed, failed
// and cancelled are terminal.
type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "pending"
	ActionStatusExecuting ActionStatus = "executing"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
	ActionStatusCancelled ActionStatus = "cancelled"
)

// IsTerminal returns true if the status permits no further transitions.
func (s ActionStatus) IsTerminal() bool {
	return s == ActionStatusCompleted || s == ActionStatusFailed || s == ActionStatusCancelled
}

// CanTransitionTo reports whether the status transition is allowed.
func (s ActionStatus) CanTransitionTo(next ActionStatus) bool {
	switch s {
	case ActionStatusPending:
		return next == ActionStatusExecuting || next == ActionStatusCancelled
	case ActionStatusExecuting:
		return next == ActionStatusCompleted || next == ActionStatusFailed
	default:
		return false
	}
}

// ResponseAction is one execution attempt of a containment action. Immutable
// once completed or failed.
type ResponseAction struct {
	ActionID    string       `json:"action_id"`
	EventID     string       `json:"event_id"`
	ActionType  ActionType   `json:"action_type"`
	Description string       `json:"description"`
	Status      ActionStatus `json:"status"`
	IsAutomated bool         `json:"is_automated"`
	FailReason  string       `json:"fail_reason,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ExecutedAt  *time.Time   `json:"executed_at,omitempty"`
}

// NewResponseAction creates a pending action record for an event.
func NewResponseAction(eventID string, actionType ActionType, description string) *ResponseAction {
	return &ResponseAction{
		ActionID:    uuid.New().String(),
		EventID:     eventID,
		ActionType:  actionType,
		Description: description,
		Status:      ActionStatusPending,
		IsAutomated: true,
		CreatedAt:   time.Now().UTC(),
	}
}

// Transition moves the record to the next status, enforcing the state
// machine. Terminal records reject all transitions.
func (a *ResponseAction) Transition(next ActionStatus) error {
	if !a.Status.CanTransitionTo(next) {
		return fmt.Errorf("invalid action status transition %s -> %s", a.Status, next)
	}
	a.Status = next
	if next.IsTerminal() {
		now := time.Now().UTC()
		a.ExecutedAt = &now
	}
	return nil
}
