package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unclebandit/targetup-dispatch/internal/config"
	"github.com/unclebandit/targetup-dispatch/internal/db"
	"github.com/unclebandit/targetup-dispatch/internal/queue"
	"github.com/unclebandit/targetup-dispatch/internal/repository"
	"github.com/unclebandit/targetup-dispatch/internal/service"
	"github.com/unclebandit/targetup-dispatch/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.RabbitURL == "" {
		log.Fatal("RABBITMQ_URL is required for the worker")
	}
	appLogger := logger.New(cfg.LogLevel).With("app", cfg.AppName, "component", "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL, appLogger)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer database.Close()

	campaignRepo := &repository.CampaignRepository{DB: database}
	outboundRepo := &repository.OutboundMessageRepository{DB: database}

	q, err := queue.DialAMQP(cfg.RabbitURL, queue.AMQPOptions{
		Retry:   cfg.RetryConfig(),
		Workers: 1,
	}, appLogger)
	if err != nil {
		log.Fatalf("rabbitmq: %v", err)
	}
	defer q.Close()

	worker := service.NewWorker(outboundRepo, campaignRepo, service.NewMockSender(0.9, time.Now().UnixNano()), cfg.WorkerCount, appLogger)
	worker.Retry = cfg.RetryConfig()
	if err := queue.StartCampaignSendSubscriber(q, cfg.CampaignQueue, worker, appLogger); err != nil {
		log.Fatalf("subscriber: %v", err)
	}

	scheduler := &service.Scheduler{
		Campaigns:  campaignRepo,
		Gateway:    queue.NewGateway(q, cfg.CampaignQueue),
		Interval:   cfg.SchedulerInterval,
		StallAfter: cfg.StallAfter,
		Clock:      service.SystemClock,
		Logger:     appLogger,
	}
	go scheduler.Run(ctx)

	appLogger.Info("worker running, waiting for campaigns", "queue", cfg.CampaignQueue)
	<-ctx.Done()
	appLogger.Info("worker shutting down")
}
