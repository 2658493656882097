// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"

	"github.com/unclebandit/targetup-dispatch/internal/config"
	"github.com/unclebandit/targetup-dispatch/internal/controller"
	"github.com/unclebandit/targetup-dispatch/internal/db"
	"github.com/unclebandit/targetup-dispatch/internal/handler"
	"github.com/unclebandit/targetup-dispatch/internal/queue"
	"github.com/unclebandit/targetup-dispatch/internal/repository"
	"github.com/unclebandit/targetup-dispatch/internal/service"
	"github.com/unclebandit/targetup-dispatch/pkg/logger"
	"github.com/unclebandit/targetup-dispatch/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	appLogger := logger.New(cfg.LogLevel).With("app", cfg.AppName, "component", "server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL, appLogger)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer database.Close()
	if err := db.Migrate(ctx, database); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	m := metrics.New()

	campaignRepo := &repository.CampaignRepository{DB: database}
	outboundRepo := &repository.OutboundMessageRepository{DB: database}
	customerRepo := &repository.CustomerRepository{DB: database}
	catalogRepo := &repository.FieldCatalogRepository{DB: database}
	unsubscribeRepo := &repository.UnsubscribeRepository{DB: database}
	balanceRepo := &repository.BalanceRepository{DB: database}
	testContactRepo := &repository.TestContactRepository{DB: database}

	var guard service.IdempotencyGuard
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		redisRepo := repository.NewRedisRepository(client, cfg.DispatchCooldown)
		defer redisRepo.Close()
		guard = redisRepo
	} else {
		appLogger.Warn("REDIS_URL not set, dispatch guard is process local")
		guard = repository.NewMemoryIdempotencyStore()
	}

	// Without RabbitMQ the server delivers in process.
	var q queue.Queue
	if cfg.RabbitURL != "" {
		amqpQueue, err := queue.DialAMQP(cfg.RabbitURL, queue.AMQPOptions{Retry: cfg.RetryConfig()}, appLogger)
		if err != nil {
			log.Fatalf("rabbitmq: %v", err)
		}
		defer amqpQueue.Close()
		q = amqpQueue
	} else {
		appLogger.Warn("RABBITMQ_URL not set, using in-memory queue")
		memQueue := queue.NewInMemoryQueue(cfg.RetryConfig(), appLogger)
		worker := service.NewWorker(outboundRepo, campaignRepo, service.NewMockSender(0.9, time.Now().UnixNano()), cfg.WorkerCount, appLogger)
		worker.Metrics = m
		if err := queue.StartCampaignSendSubscriber(memQueue, cfg.CampaignQueue, worker, appLogger); err != nil {
			log.Fatalf("subscriber: %v", err)
		}
		q = memQueue
	}
	gateway := queue.NewGateway(q, cfg.CampaignQueue)

	clock := service.SystemClock
	guardRules := service.NewScheduleGuard(cfg.LockWindow)

	targetService := &service.TargetService{
		Catalog:   catalogRepo,
		Customers: customerRepo,
		Logger:    appLogger,
	}
	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		Targets:      targetService,
		Unsubscribes: unsubscribeRepo,
		Ledger:       balanceRepo,
		Gateway:      gateway,
		Guard:        guard,
		Schedule:     guardRules,
		Cooldown:     cfg.DispatchCooldown,
		TestContacts: testContactRepo,
		TestSender:   service.NewMockSender(1, time.Now().UnixNano()),
		TestCooldown: cfg.TestSendCooldown,
		Clock:        clock,
		Logger:       appLogger,
		Metrics:      m,
	}
	scheduleService := &service.ScheduleService{
		CampaignRepo: campaignRepo,
		Messages:     outboundRepo,
		Ledger:       balanceRepo,
		Guard:        guardRules,
		Clock:        clock,
		Logger:       appLogger,
		Metrics:      m,
	}

	if cfg.RabbitURL == "" {
		scheduler := &service.Scheduler{
			Campaigns:  campaignRepo,
			Gateway:    gateway,
			Interval:   cfg.SchedulerInterval,
			StallAfter: cfg.StallAfter,
			Clock:      clock,
			Logger:     appLogger,
		}
		go scheduler.Run(ctx)
	}

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
		ScheduleService: scheduleService,
	}
	targetController := &controller.TargetController{TargetService: targetService}
	campaignHandler := handler.NewCampaignHandler(campaignService, appLogger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/sessions", campaignController.NewSession)
	r.Post("/sessions/events", campaignController.ApplyEvents)

	r.Get("/targets/fields", targetController.Fields)
	r.Post("/targets/count", targetController.Count)
	r.Post("/targets/extract", targetController.Extract)

	r.Get("/test-contacts", campaignController.ListTestContacts)
	r.Post("/test-contacts", campaignController.AddTestContact)

	r.Route("/campaigns", func(r chi.Router) {
		r.Get("/", campaignHandler.ListCampaignsHandler)
		r.Get("/scheduled", campaignHandler.ListScheduledHandler)
		r.Post("/preview", campaignController.Preview)
		r.Post("/dispatch", campaignController.Dispatch)
		r.Post("/test-send", campaignController.TestSend)
		r.Get("/{id}", campaignHandler.GetCampaignHandlerWithStats)
		r.Post("/{id}/cancel", campaignController.Cancel)
		r.Put("/{id}/schedule", campaignController.Reschedule)
		r.Put("/{id}/message", campaignController.EditMessage)
	})
	r.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("shutdown failed", slog.Any("error", err))
		}
	}()

	appLogger.Info("server running", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server: %v", err)
	}
}
