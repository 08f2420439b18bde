package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/smiledesk/patient-portal/cmd/mainconfig"
	"github.com/smiledesk/patient-portal/internal/clinic"
	appconfig "github.com/smiledesk/patient-portal/internal/config"
	"github.com/smiledesk/patient-portal/internal/conversation"
	"github.com/smiledesk/patient-portal/internal/http/handlers"
	"github.com/smiledesk/patient-portal/internal/http/router"
	"github.com/smiledesk/patient-portal/internal/notify"
	"github.com/smiledesk/patient-portal/internal/observability/metrics"
	"github.com/smiledesk/patient-portal/internal/redislock"
	"github.com/smiledesk/patient-portal/internal/scheduling"
	"github.com/smiledesk/patient-portal/internal/waitlist"
	"github.com/smiledesk/patient-portal/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting patient-portal API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres: pgx pool for the transactional core, database/sql for the
	// conversation stores.
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open sql connection", "error", err)
		os.Exit(1)
	}
	defer func() { _ = sqlDB.Close() }()

	// Redis backs the waitlist scan lock. Optional in development.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		defer func() { _ = redisClient.Close() }()
	}

	// Clinic calendar configuration
	loc, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Error("invalid clinic timezone", "timezone", cfg.ClinicTimezone, "error", err)
		os.Exit(1)
	}

	hours := clinic.DefaultBusinessHours()
	if cfg.BusinessHoursJSON != "" {
		hours, err = clinic.ParseBusinessHours(cfg.BusinessHoursJSON)
		if err != nil {
			logger.Error("invalid BUSINESS_HOURS_JSON", "error", err)
			os.Exit(1)
		}
	}

	// Booking transaction core and availability engine
	catalog := clinic.NewPgCatalog(pool)
	schedRepo := scheduling.NewPgRepository(pool)
	engine := scheduling.NewEngine(hours, schedRepo).
		WithInterval(cfg.SlotIntervalMinutes).
		WithLocation(loc)

	schedMetrics := metrics.NewSchedulingMetrics(prometheus.DefaultRegisterer)
	scheduler := scheduling.NewService(pool, schedRepo, engine, catalog, logger).
		WithDefaultDuration(cfg.DefaultDurationMins).
		WithMetrics(schedMetrics).
		WithLocation(loc)

	// LLM resolution chain: Bedrock primary, Gemini fallback. With neither
	// configured the resolver runs on the deterministic parser alone.
	llm := buildLLMClient(ctx, cfg, logger)

	resolverMetrics := metrics.NewResolverMetrics(prometheus.DefaultRegisterer)
	resolver := conversation.NewResolver(llm, cfg.BedrockModelID, logger).
		WithMetrics(resolverMetrics).
		WithLocation(loc)

	states := conversation.NewPgStateStore(sqlDB)
	messageLog := conversation.NewPgMessageLog(sqlDB)
	driver := conversation.NewDriver(resolver, states, messageLog, scheduler, engine, logger).
		WithCatalog(catalog).
		WithLocation(loc)

	// Notification fan-out
	notifier := notify.NewService(
		buildEmailSender(ctx, cfg, logger),
		buildSMSSender(cfg, logger),
		notify.NewPgPreferenceStore(pool),
		cfg.ClinicName,
		logger,
	)

	// Waitlist reconciler runs in-process alongside the API.
	waitlistRepo := waitlist.NewPgRepository(pool)
	waitlistMetrics := metrics.NewWaitlistMetrics(prometheus.DefaultRegisterer)
	reconciler := waitlist.NewReconciler(waitlistRepo, engine, scheduler, notifier, logger).
		WithInterval(cfg.WaitlistScanInterval).
		WithBatchSize(cfg.WaitlistBatchSize).
		WithMetrics(waitlistMetrics).
		WithLocation(loc)
	if redisClient != nil {
		reconciler = reconciler.WithLocker(redislock.New(redisClient, cfg.WaitlistLockTTL))
	}
	go reconciler.Run(ctx)

	// Setup router
	routerCfg := &router.Config{
		Logger:         logger,
		Chat:           handlers.NewChatHandler(driver, logger),
		Appointments:   handlers.NewAppointmentsHandler(scheduler, engine),
		Waitlist:       handlers.NewWaitlistHandler(waitlistRepo).WithLocation(loc),
		Health:         handlers.NewHealthHandler(pool),
		MetricsHandler: promhttp.Handler(),
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildLLMClient assembles the Bedrock/Gemini chain from configuration.
// Returns nil when no provider is configured.
func buildLLMClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) conversation.LLMClient {
	var bedrock conversation.LLMClient
	if cfg.BedrockModelID != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		bedrock = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
	}

	var gemini conversation.LLMClient
	if cfg.GeminiAPIKey != "" {
		client, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
			os.Exit(1)
		}
		gemini = client
	}

	switch {
	case bedrock != nil && gemini != nil:
		return conversation.NewFallbackLLMClient(bedrock, gemini, logger)
	case bedrock != nil:
		return bedrock
	case gemini != nil:
		return gemini
	default:
		logger.Warn("no LLM provider configured, resolver will run deterministically")
		return nil
	}
}

func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "ses":
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config for SES", "error", err)
			os.Exit(1)
		}
		return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	case "stub":
		return notify.NewStubEmailSender(logger)
	default:
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender == nil {
			logger.Warn("sendgrid not configured, using stub email sender")
			return notify.NewStubEmailSender(logger)
		}
		return sender
	}
}

func buildSMSSender(cfg *appconfig.Config, logger *logging.Logger) notify.SMSSender {
	if cfg.SMSProvider == "stub" {
		return notify.NewStubSMSSender(logger)
	}
	sender := notify.NewTelnyxSender(cfg.TelnyxAPIKey, cfg.SMSFromNumber, cfg.TelnyxMessagingProfileID, logger)
	if sender == nil {
		logger.Warn("telnyx not configured, using stub sms sender")
		return notify.NewStubSMSSender(logger)
	}
	return sender
}
