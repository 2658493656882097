package service

import (
	"context"
	"testing"
	"time"

	"github.com/unclebandit/targetup-dispatch/internal/model"
	"github.com/unclebandit/targetup-dispatch/internal/repository"
	"github.com/unclebandit/targetup-dispatch/pkg/logger"
)

type mockClaimer struct {
	due             []*model.Campaign
	claimed         []int
	lastNow         time.Time
	stalled         []*model.Campaign
	lastStaleBefore time.Time
}

func (m *mockClaimer) ClaimStalledSending(ctx context.Context, now, staleBefore time.Time, handoff repository.Handoff) ([]int, error) {
	m.lastStaleBefore = staleBefore
	var ids []int
	for _, c := range m.stalled {
		if c.UpdatedAt == nil || !c.UpdatedAt.Before(staleBefore) {
			continue
		}
		if err := handoff(ctx, c); err != nil {
			continue
		}
		at := now
		c.UpdatedAt = &at
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (m *mockClaimer) ClaimDueScheduled(ctx context.Context, now time.Time, handoff repository.Handoff) ([]int, error) {
	m.lastNow = now
	var ids []int
	var rest []*model.Campaign
	for _, c := range m.due {
		if c.ScheduledAt.After(now) {
			rest = append(rest, c)
			continue
		}
		if err := handoff(ctx, c); err != nil {
			rest = append(rest, c)
			continue
		}
		c.Status = model.StatusSending
		ids = append(ids, c.ID)
	}
	m.due = rest
	m.claimed = append(m.claimed, ids...)
	return ids, nil
}

func TestSchedulerTick(t *testing.T) {
	past := fixedNow.Add(-time.Minute)
	future := fixedNow.Add(time.Hour)
	claimer := &mockClaimer{due: []*model.Campaign{
		{ID: 1, Status: model.StatusScheduled, ScheduledAt: &past},
		{ID: 2, Status: model.StatusScheduled, ScheduledAt: &future},
	}}
	gateway := &fakeGateway{}
	s := &Scheduler{
		Campaigns: claimer,
		Gateway:   gateway,
		Clock:     fixedClock(),
		Logger:    logger.Nop(),
	}

	ids, err := s.Tick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("expected campaign 1 claimed, got %v", ids)
	}
	if gateway.count() != 1 || gateway.submitted[0] != 1 {
		t.Errorf("expected campaign 1 submitted, got %v", gateway.submitted)
	}
	if !claimer.lastNow.Equal(fixedNow) {
		t.Errorf("expected clock time, got %s", claimer.lastNow)
	}
}

func TestSchedulerGatewayDownKeepsScheduled(t *testing.T) {
	past := fixedNow.Add(-time.Minute)
	claimer := &mockClaimer{due: []*model.Campaign{{ID: 1, Status: model.StatusScheduled, ScheduledAt: &past}}}
	gateway := &fakeGateway{err: errUnavailable}
	s := &Scheduler{Campaigns: claimer, Gateway: gateway, Clock: fixedClock(), Logger: logger.Nop()}

	if ids, _ := s.Tick(context.Background()); len(ids) != 0 {
		t.Errorf("nothing should be claimed, got %v", ids)
	}
	if len(claimer.due) != 1 || claimer.due[0].Status != model.StatusScheduled {
		t.Error("campaign should stay scheduled for the next tick")
	}

	gateway.err = nil
	if ids, _ := s.Tick(context.Background()); len(ids) != 1 {
		t.Errorf("expected the campaign on the next tick, got %v", ids)
	}
}

func TestSchedulerRunStopsOnCancel(t *testing.T) {
	claimer := &mockClaimer{}
	s := &Scheduler{Campaigns: claimer, Gateway: &fakeGateway{}, Interval: time.Millisecond, Logger: logger.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestSchedulerResubmitsStalledSending(t *testing.T) {
	stale := fixedNow.Add(-time.Hour)
	recent := fixedNow.Add(-time.Minute)
	claimer := &mockClaimer{stalled: []*model.Campaign{
		{ID: 7, Status: model.StatusSending, UpdatedAt: &stale},
		{ID: 8, Status: model.StatusSending, UpdatedAt: &recent},
	}}
	gateway := &fakeGateway{}
	s := &Scheduler{Campaigns: claimer, Gateway: gateway, StallAfter: 10 * time.Minute, Clock: fixedClock(), Logger: logger.Nop()}

	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gateway.count() != 1 || gateway.submitted[0] != 7 {
		t.Errorf("expected only campaign 7 resubmitted, got %v", gateway.submitted)
	}
	if want := fixedNow.Add(-10 * time.Minute); !claimer.lastStaleBefore.Equal(want) {
		t.Errorf("stale cutoff: got %s, want %s", claimer.lastStaleBefore, want)
	}

	// the claim stamps the campaign, so the next tick leaves it alone
	if _, err := s.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gateway.count() != 1 {
		t.Errorf("campaign resubmitted twice: %v", gateway.submitted)
	}
}
