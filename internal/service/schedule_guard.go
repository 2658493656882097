package service

import (
	"time"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
)

const DefaultLockWindow = 15 * time.Minute

type ScheduleState string

const (
	StateUnscheduled ScheduleState = "unscheduled"
	StateScheduled   ScheduleState = "scheduled"
	StateLocked      ScheduleState = "locked"
	StateCancelled   ScheduleState = "cancelled"
	StateExecuting   ScheduleState = "executing"
)

// ScheduleGuard decides what may happen to a scheduled campaign. Locking is
// purely time based: a scheduled campaign inside the window is locked.
type ScheduleGuard struct {
	LockWindow time.Duration
}

func NewScheduleGuard(window time.Duration) ScheduleGuard {
	if window <= 0 {
		window = DefaultLockWindow
	}
	return ScheduleGuard{LockWindow: window}
}

func (g ScheduleGuard) StateOf(c *model.Campaign, now time.Time) ScheduleState {
	switch c.Status {
	case model.StatusCancelled:
		return StateCancelled
	case model.StatusSending, model.StatusCompleted, model.StatusFailed:
		return StateExecuting
	case model.StatusScheduled:
		if c.ScheduledAt == nil {
			return StateUnscheduled
		}
		if c.ScheduledAt.Sub(now) < g.LockWindow {
			return StateLocked
		}
		return StateScheduled
	}
	return StateUnscheduled
}

// ValidateScheduleTime rejects a send time that is not in the future.
func (g ScheduleGuard) ValidateScheduleTime(at, now time.Time) error {
	if !at.After(now) {
		return appErrors.NewValidation("scheduled_at", "must be in the future")
	}
	return nil
}

func (g ScheduleGuard) CanCancel(c *model.Campaign, now time.Time) error {
	return g.checkMutable(c, now, "cancel")
}

func (g ScheduleGuard) CanEditMessage(c *model.Campaign, now time.Time) error {
	return g.checkMutable(c, now, "edit")
}

// CanReschedule also requires the new time to lie beyond the lock window,
// otherwise the campaign would be born locked.
func (g ScheduleGuard) CanReschedule(c *model.Campaign, at, now time.Time) error {
	if err := g.checkMutable(c, now, "reschedule"); err != nil {
		return err
	}
	if at.Sub(now) < g.LockWindow {
		return appErrors.NewValidation("scheduled_at", "must be at least "+g.LockWindow.String()+" from now")
	}
	return nil
}

func (g ScheduleGuard) checkMutable(c *model.Campaign, now time.Time, action string) error {
	switch g.StateOf(c, now) {
	case StateScheduled:
		return nil
	case StateLocked:
		return &appErrors.ScheduleLockViolation{CampaignID: c.ID, ScheduledAt: *c.ScheduledAt, Window: g.LockWindow}
	}
	return &appErrors.InvalidState{CampaignID: c.ID, Status: c.Status, Action: action}
}
