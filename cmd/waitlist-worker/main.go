package main

import (
	"context"
	"crypto/tls"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/smiledesk/patient-portal/cmd/mainconfig"
	"github.com/smiledesk/patient-portal/internal/clinic"
	"github.com/smiledesk/patient-portal/internal/config"
	"github.com/smiledesk/patient-portal/internal/notify"
	"github.com/smiledesk/patient-portal/internal/redislock"
	"github.com/smiledesk/patient-portal/internal/scheduling"
	"github.com/smiledesk/patient-portal/internal/waitlist"
	"github.com/smiledesk/patient-portal/pkg/logging"
)

// Standalone waitlist reconciler. Runs the same scan loop as the API
// binary, for deployments that want the worker separated from request
// serving. The Redis lock keeps the two from double-scanning.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("waitlist worker requires DATABASE_URL")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

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

	catalog := clinic.NewPgCatalog(pool)
	schedRepo := scheduling.NewPgRepository(pool)
	engine := scheduling.NewEngine(hours, schedRepo).
		WithInterval(cfg.SlotIntervalMinutes).
		WithLocation(loc)
	scheduler := scheduling.NewService(pool, schedRepo, engine, catalog, logger).
		WithDefaultDuration(cfg.DefaultDurationMins).
		WithLocation(loc)

	notifier := notify.NewService(
		buildEmailSender(ctx, cfg, logger),
		buildSMSSender(cfg, logger),
		notify.NewPgPreferenceStore(pool),
		cfg.ClinicName,
		logger,
	)

	reconciler := waitlist.NewReconciler(waitlist.NewPgRepository(pool), engine, scheduler, notifier, logger).
		WithInterval(cfg.WaitlistScanInterval).
		WithBatchSize(cfg.WaitlistBatchSize).
		WithLocation(loc)

	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient := redis.NewClient(opts)
		defer func() { _ = redisClient.Close() }()
		reconciler = reconciler.WithLocker(redislock.New(redisClient, cfg.WaitlistLockTTL))
	} else {
		logger.Warn("REDIS_ADDR not set, waitlist scans run without a cross-process lock")
	}

	go reconciler.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("waitlist worker shutting down")
	cancel()
}

func buildEmailSender(ctx context.Context, cfg *config.Config, logger *logging.Logger) notify.EmailSender {
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

func buildSMSSender(cfg *config.Config, logger *logging.Logger) notify.SMSSender {
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
