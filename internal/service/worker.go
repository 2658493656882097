package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	appErrors "github.com/unclebandit/targetup-dispatch/internal/errors"
	"github.com/unclebandit/targetup-dispatch/internal/model"
	"github.com/unclebandit/targetup-dispatch/pkg/metrics"
	"github.com/unclebandit/targetup-dispatch/pkg/retry"
)

// OutboundRepository defines the methods the worker needs
type OutboundRepository interface {
	GetByID(ctx context.Context, id int) (*model.OutboundMessage, error)
	Update(ctx context.Context, msg *model.OutboundMessage) error
	ListPending(ctx context.Context, campaignID int) ([]*model.OutboundMessage, error)
}

// CampaignTracker loads and closes out campaigns for the worker.
type CampaignTracker interface {
	FindByID(ctx context.Context, id int) (*model.Campaign, error)
	FinishCampaign(ctx context.Context, id int) error
}

// Sender hands one finalized message to the carrier.
type Sender interface {
	Send(ctx context.Context, c *model.Campaign, msg *model.OutboundMessage) error
}

type SenderFunc func(ctx context.Context, c *model.Campaign, msg *model.OutboundMessage) error

func (f SenderFunc) Send(ctx context.Context, c *model.Campaign, msg *model.OutboundMessage) error {
	return f(ctx, c, msg)
}

// MockSender simulates a carrier with the given success rate.
type MockSender struct {
	SuccessRate float64
	mu          sync.Mutex
	rng         *rand.Rand
}

func NewMockSender(successRate float64, seed int64) *MockSender {
	return &MockSender{SuccessRate: successRate, rng: rand.New(rand.NewSource(seed))}
}

func (m *MockSender) Send(_ context.Context, _ *model.Campaign, msg *model.OutboundMessage) error {
	m.mu.Lock()
	r := m.rng.Float64()
	m.mu.Unlock()
	if r < m.SuccessRate {
		return nil
	}
	return fmt.Errorf("mock sending failed for %s", msg.Phone)
}

// Worker delivers the pending messages of a campaign
type Worker struct {
	OutboundRepo OutboundRepository
	Campaigns    CampaignTracker
	Sender       Sender
	Concurrency  int
	Retry        retry.Config
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Constructor
func NewWorker(outbound OutboundRepository, campaigns CampaignTracker, sender Sender, concurrency int, logger *slog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		OutboundRepo: outbound,
		Campaigns:    campaigns,
		Sender:       sender,
		Concurrency:  concurrency,
		Retry:        retry.Config{MaxAttempts: 1},
		Logger:       logger,
		Metrics:      metrics.New(),
	}
}

// ProcessCampaign sends every pending message and then tallies the
// campaign. A campaign that is not visible yet is reported as an error so
// the queue retries the job.
func (w *Worker) ProcessCampaign(ctx context.Context, campaignID int) error {
	c, err := w.Campaigns.FindByID(ctx, campaignID)
	if err != nil {
		var nf *appErrors.ErrCampaignNotFound
		if errors.As(err, &nf) {
			return fmt.Errorf("campaign %d not committed yet: %w", campaignID, err)
		}
		return err
	}
	if c.Status != model.StatusSending {
		w.Logger.Info("skipping campaign", "campaign_id", campaignID, "status", c.Status)
		return nil
	}

	pending, err := w.OutboundRepo.ListPending(ctx, campaignID)
	if err != nil {
		return err
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < w.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Start(ctx, c, jobs)
		}()
	}
	for _, m := range pending {
		select {
		case jobs <- m.ID:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.Campaigns.FinishCampaign(ctx, campaignID); err != nil {
		return err
	}
	w.Logger.Info("campaign processed", "campaign_id", campaignID, "messages", len(pending))
	return nil
}

// Start processes message ids until jobs is closed
func (w *Worker) Start(ctx context.Context, c *model.Campaign, jobs <-chan int) {
	for jobID := range jobs {
		if ctx.Err() != nil {
			continue
		}
		msg, err := w.OutboundRepo.GetByID(ctx, jobID)
		if err != nil {
			w.Logger.Error("failed to get message", "message_id", jobID, "error", err)
			continue
		}
		if msg.Status != model.MessagePending {
			continue
		}

		attempts := 0
		err = retry.Do(ctx, w.Retry, func() error {
			attempts++
			return w.Sender.Send(ctx, c, msg)
		})
		if err == nil {
			msg.Status = model.MessageSent
			msg.LastError = ""
			w.Metrics.IncDelivered()
		} else {
			msg.Status = model.MessageFailed
			msg.LastError = err.Error()
			w.Metrics.IncFailed()
		}
		msg.RetryCount += attempts - 1

		if err := w.OutboundRepo.Update(ctx, msg); err != nil {
			w.Logger.Error("failed to update message", "message_id", msg.ID, "error", err)
		}
	}
}
