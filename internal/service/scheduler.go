package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/unclebandit/targetup-dispatch/internal/model"
	"github.com/unclebandit/targetup-dispatch/internal/repository"
)

const DefaultStallAfter = 10 * time.Minute

type DueClaimer interface {
	ClaimDueScheduled(ctx context.Context, now time.Time, handoff repository.Handoff) ([]int, error)
	ClaimStalledSending(ctx context.Context, now, staleBefore time.Time, handoff repository.Handoff) ([]int, error)
}

// Scheduler moves due scheduled campaigns to sending and submits them. It
// also resubmits sending campaigns that have made no progress for
// StallAfter. Claiming uses row locks, so several schedulers may run side
// by side.
type Scheduler struct {
	Campaigns  DueClaimer
	Gateway    MessagingGateway
	Interval   time.Duration
	StallAfter time.Duration
	Clock      Clock
	Logger     *slog.Logger
}

func (s *Scheduler) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Tick(ctx); err != nil {
			s.Logger.Error("scheduler tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) Tick(ctx context.Context) ([]int, error) {
	now := time.Now()
	if s.Clock != nil {
		now = s.Clock.Now()
	}
	submit := func(ctx context.Context, c *model.Campaign) error {
		return s.Gateway.Submit(ctx, c)
	}
	ids, err := s.Campaigns.ClaimDueScheduled(ctx, now, submit)
	if len(ids) > 0 {
		s.Logger.Info("scheduled campaigns started", "count", len(ids), "campaign_ids", ids)
	}
	if err != nil {
		return ids, err
	}

	stallAfter := s.StallAfter
	if stallAfter <= 0 {
		stallAfter = DefaultStallAfter
	}
	resubmitted, err := s.Campaigns.ClaimStalledSending(ctx, now, now.Add(-stallAfter), submit)
	if len(resubmitted) > 0 {
		s.Logger.Warn("stalled campaigns resubmitted", "count", len(resubmitted), "campaign_ids", resubmitted)
	}
	return ids, err
}
