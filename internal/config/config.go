package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/unclebandit/targetup-dispatch/pkg/retry"
)

// Config holds dispatch service configuration loaded from the environment.
type Config struct {
	AppName             string
	LogLevel            string
	HTTPPort            string
	DatabaseURL         string
	RabbitURL           string
	CampaignQueue       string
	RedisURL            string
	DispatchCooldown    time.Duration
	TestSendCooldown    time.Duration
	LockWindow          time.Duration
	SchedulerInterval   time.Duration
	StallAfter          time.Duration
	WorkerCount         int
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on OS environment variables")
	}

	cfg := &Config{
		AppName:             getEnv("APP_NAME", "targetup-dispatch"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		DatabaseURL:         getEnv("DATABASE_URL", databaseURLFromParts()),
		RabbitURL:           getEnv("RABBITMQ_URL", ""),
		CampaignQueue:       getEnv("CAMPAIGN_QUEUE", "campaign_sends"),
		RedisURL:            getEnv("REDIS_URL", ""),
		DispatchCooldown:    getEnvAsDuration("DISPATCH_COOLDOWN", 30*time.Second),
		TestSendCooldown:    getEnvAsDuration("TEST_SEND_COOLDOWN", 10*time.Second),
		LockWindow:          getEnvAsDuration("SCHEDULE_LOCK_WINDOW", 15*time.Minute),
		SchedulerInterval:   getEnvAsDuration("SCHEDULER_INTERVAL", 30*time.Second),
		StallAfter:          getEnvAsDuration("SENDING_STALL_AFTER", 10*time.Minute),
		WorkerCount:         getEnvAsInt("WORKER_COUNT", 5),
		RetryMaxAttempts:    getEnvAsInt("RETRY_MAX_ATTEMPTS", 4),
		RetryInitialBackoff: getEnvAsDuration("RETRY_INITIAL_BACKOFF", 500*time.Millisecond),
		RetryMaxBackoff:     getEnvAsDuration("RETRY_MAX_BACKOFF", 10*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	if c.LockWindow <= 0 {
		return fmt.Errorf("SCHEDULE_LOCK_WINDOW must be positive, got %s", c.LockWindow)
	}
	return nil
}

// databaseURLFromParts keeps the DB_* variables of older deployments working.
func databaseURLFromParts() string {
	user := os.Getenv("DB_USER")
	name := os.Getenv("DB_NAME")
	if user == "" || name == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		user, os.Getenv("DB_PASSWORD"), getEnv("DB_HOST", "localhost"), getEnv("DB_PORT", "5432"), name,
	)
}

func getEnv(key, def string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return value
}

func getEnvAsInt(key string, def int) int {
	if value, ok := os.LookupEnv(key); ok {
		i, err := strconv.Atoi(value)
		if err != nil {
			log.Printf("invalid int for %s, using default %d: %v", key, def, err)
			return def
		}
		return i
	}
	return def
}

func getEnvAsDuration(key string, def time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			log.Printf("invalid duration for %s, using default %s: %v", key, def, err)
			return def
		}
		return d
	}
	return def
}

// RetryConfig is the backoff used for broker publishes and message sends.
func (c *Config) RetryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:    c.RetryMaxAttempts,
		InitialBackoff: c.RetryInitialBackoff,
		MaxBackoff:     c.RetryMaxBackoff,
	}
}
