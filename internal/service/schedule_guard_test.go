package service

import (
	"errors"
	"testing"
	"time"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
)

var guardNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func scheduledIn(d time.Duration) *model.Campaign {
	at := guardNow.Add(d)
	return &model.Campaign{ID: 7, Status: model.StatusScheduled, ScheduledAt: &at}
}

func TestScheduleGuardStateOf(t *testing.T) {
	g := NewScheduleGuard(0)
	if g.LockWindow != DefaultLockWindow {
		t.Fatalf("expected default window, got %s", g.LockWindow)
	}
	cases := []struct {
		c    *model.Campaign
		want ScheduleState
	}{
		{scheduledIn(20 * time.Minute), StateScheduled},
		{scheduledIn(15 * time.Minute), StateScheduled},
		{scheduledIn(10 * time.Minute), StateLocked},
		{scheduledIn(-time.Minute), StateLocked},
		{&model.Campaign{Status: model.StatusCancelled}, StateCancelled},
		{&model.Campaign{Status: model.StatusSending}, StateExecuting},
		{&model.Campaign{Status: model.StatusCompleted}, StateExecuting},
		{&model.Campaign{Status: model.StatusScheduled}, StateUnscheduled},
	}
	for i, tc := range cases {
		if got := g.StateOf(tc.c, guardNow); got != tc.want {
			t.Errorf("case %d: got %s, want %s", i, got, tc.want)
		}
	}
}

func TestScheduleGuardCancelInsideWindow(t *testing.T) {
	g := NewScheduleGuard(15 * time.Minute)

	err := g.CanCancel(scheduledIn(10*time.Minute), guardNow)
	var lv *appErrors.ScheduleLockViolation
	if !errors.As(err, &lv) {
		t.Fatalf("expected ScheduleLockViolation, got %v", err)
	}
	if err := g.CanCancel(scheduledIn(20*time.Minute), guardNow); err != nil {
		t.Errorf("expected cancel to be allowed, got %v", err)
	}
	if err := g.CanEditMessage(scheduledIn(10*time.Minute), guardNow); !errors.As(err, &lv) {
		t.Errorf("expected edit to be locked, got %v", err)
	}
}

func TestScheduleGuardInvalidState(t *testing.T) {
	g := NewScheduleGuard(15 * time.Minute)
	err := g.CanCancel(&model.Campaign{ID: 3, Status: model.StatusCancelled}, guardNow)
	var is *appErrors.InvalidState
	if !errors.As(err, &is) || is.Action != "cancel" {
		t.Errorf("expected InvalidState, got %v", err)
	}
}

func TestScheduleGuardReschedule(t *testing.T) {
	g := NewScheduleGuard(15 * time.Minute)
	c := scheduledIn(time.Hour)

	var ve *appErrors.ValidationError
	if err := g.CanReschedule(c, guardNow.Add(5*time.Minute), guardNow); !errors.As(err, &ve) {
		t.Errorf("expected ValidationError for a time inside the window, got %v", err)
	}
	if err := g.CanReschedule(c, guardNow.Add(2*time.Hour), guardNow); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestValidateScheduleTime(t *testing.T) {
	g := NewScheduleGuard(15 * time.Minute)
	var ve *appErrors.ValidationError
	if err := g.ValidateScheduleTime(guardNow, guardNow); !errors.As(err, &ve) {
		t.Errorf("expected now to be rejected, got %v", err)
	}
	if err := g.ValidateScheduleTime(guardNow.Add(-time.Hour), guardNow); !errors.As(err, &ve) {
		t.Errorf("expected past to be rejected, got %v", err)
	}
	if err := g.ValidateScheduleTime(guardNow.Add(time.Minute), guardNow); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}
