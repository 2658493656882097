// internal/errors/errors.go
package appErrors

import (
	"fmt"
	"time"
)

// ErrCampaignNotFound is a sentinel error
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ValidationError blocks every downstream step.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ComplianceBlock is returned when an SMS would lose its opt-out footer.
// There is no override path.
type ComplianceBlock struct {
	Bytes int
	Limit int
}

func (e *ComplianceBlock) Error() string {
	return fmt.Sprintf("SMS send blocked: reject-number line would be corrupted (%d/%d bytes)", e.Bytes, e.Limit)
}

// AdvisoryPrompt needs a user decision before the send can resume.
type AdvisoryPrompt struct {
	Outcome          string
	Bytes            int
	Limit            int
	SuggestedChannel string
	CostDelta        int64
}

func (e *AdvisoryPrompt) Error() string {
	return fmt.Sprintf("user decision required: %s (%d/%d bytes)", e.Outcome, e.Bytes, e.Limit)
}

type InsufficientBalance struct {
	Required  int64
	Balance   int64
	Shortfall int64
}

func (e *InsufficientBalance) Error() string {
	return fmt.Sprintf("insufficient balance: required %d, available %d, short by %d", e.Required, e.Balance, e.Shortfall)
}

// ScheduleLockViolation means the campaign is too close to its send time
// to be cancelled, rescheduled or edited.
type ScheduleLockViolation struct {
	CampaignID  int
	ScheduledAt time.Time
	Window      time.Duration
}

func (e *ScheduleLockViolation) Error() string {
	return fmt.Sprintf("campaign %d is locked: scheduled at %s is within %s", e.CampaignID, e.ScheduledAt.Format(time.RFC3339), e.Window)
}

// InvalidState is returned when the campaign status does not allow the action.
type InvalidState struct {
	CampaignID int
	Status     string
	Action     string
}

func (e *InvalidState) Error() string {
	return fmt.Sprintf("cannot %s campaign %d in status %s", e.Action, e.CampaignID, e.Status)
}

// TransportFailure means a collaborator could not be reached; the commit
// is not confirmed.
type TransportFailure struct {
	Op  string
	Err error `json:"-"`
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("%s: commit not confirmed: %v", e.Op, e.Err)
}

// Public is the message shown to clients, without the underlying cause.
func (e *TransportFailure) Public() string {
	return e.Op + ": commit not confirmed"
}

func (e *TransportFailure) Unwrap() error { return e.Err }

func NewTransportFailure(op string, err error) error {
	return &TransportFailure{Op: op, Err: err}
}

type DuplicateDispatch struct {
	Key string
}

func (e *DuplicateDispatch) Error() string {
	return fmt.Sprintf("dispatch %s already submitted, wait for the cooldown", e.Key)
}
