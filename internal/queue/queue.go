package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/unclebandit/targetup-dispatch/internal/model"
	"github.com/unclebandit/targetup-dispatch/pkg/retry"
)

const CampaignSendsTopic = "campaign_sends"

// CampaignJob asks a worker to deliver the pending messages of a campaign.
type CampaignJob struct {
	CampaignID int    `json:"campaign_id"`
	CompanyID  string `json:"company_id"`
}

type Handler func(ctx context.Context, job CampaignJob) error

// Queue interface
type Queue interface {
	Publish(ctx context.Context, topic string, job CampaignJob) error
	Subscribe(topic string, handler Handler) error
}

// InMemoryQueue delivers jobs to in-process subscribers with retry. It is
// used in development and tests; production runs on RabbitMQ.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	retry    retry.Config
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(cfg retry.Config, logger *slog.Logger) *InMemoryQueue {
	if cfg.MaxAttempts <= 0 {
		cfg = retry.Config{MaxAttempts: 4, InitialBackoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryQueue{
		handlers: make(map[string][]Handler),
		retry:    cfg,
		logger:   logger,
	}
}

// Publish hands the job to every subscriber of topic.
func (q *InMemoryQueue) Publish(ctx context.Context, topic string, job CampaignJob) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(context.WithoutCancel(ctx), handler, job)
	}
	return nil
}

func (q *InMemoryQueue) processJob(ctx context.Context, handler Handler, job CampaignJob) {
	defer q.wg.Done()
	attempt := 0
	err := retry.Do(ctx, q.retry, func() error {
		attempt++
		err := handler(ctx, job)
		if err != nil {
			q.logger.Warn("job failed", "campaign_id", job.CampaignID, "attempt", attempt, "error", err)
		}
		return err
	})
	if errors.Is(err, ErrSkipJob) {
		return
	}
	if err != nil {
		q.logger.Error("job permanently failed", "campaign_id", job.CampaignID, "attempts", attempt, "error", err)
		return
	}
	q.logger.Debug("job processed", "campaign_id", job.CampaignID)
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every published job has finished.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

// Gateway submits committed campaigns to the queue.
type Gateway struct {
	Queue Queue
	Topic string
}

func NewGateway(q Queue, topic string) *Gateway {
	if topic == "" {
		topic = CampaignSendsTopic
	}
	return &Gateway{Queue: q, Topic: topic}
}

func (g *Gateway) Submit(ctx context.Context, c *model.Campaign) error {
	return g.Queue.Publish(ctx, g.Topic, CampaignJob{CampaignID: c.ID, CompanyID: c.CompanyID})
}

// CampaignProcessor delivers a campaign's pending messages.
type CampaignProcessor interface {
	ProcessCampaign(ctx context.Context, campaignID int) error
}

// ErrSkipJob acknowledges a job without processing it.
var ErrSkipJob = errors.New("skip job")

// StartCampaignSendSubscriber wires the processor to the topic.
func StartCampaignSendSubscriber(q Queue, topic string, processor CampaignProcessor, logger *slog.Logger) error {
	if topic == "" {
		topic = CampaignSendsTopic
	}
	return q.Subscribe(topic, func(ctx context.Context, job CampaignJob) error {
		if job.CampaignID <= 0 {
			logger.Warn("invalid campaign job", "job", job)
			return retry.Stop(ErrSkipJob)
		}
		logger.Info("processing campaign", "campaign_id", job.CampaignID, "company_id", job.CompanyID)
		return processor.ProcessCampaign(ctx, job.CampaignID)
	})
}
