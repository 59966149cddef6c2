package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/server"
	"github.com/Ramsey-B/fern/pkg/auth"
	"github.com/Ramsey-B/fern/pkg/health"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/providers"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/tracing/exporters"
	"github.com/Ramsey-B/fern/pkg/vault"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("fern: %v", err)
	}
}

func newLogger(cfg *config.Config) (ectologger.Logger, func(), error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	zl, err := zcfg.Build()
	if err != nil {
		return nil, nil, err
	}
	zl = zl.With(zap.String("service", cfg.AppName), zap.String("version", version))

	return zapadapter.NewZapEctoLogger(zl, nil), func() { _ = zl.Sync() }, nil
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, syncLogs, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer syncLogs()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName: cfg.AppName,
		OTLPEnabled: cfg.OTLPEnabled,
		OTLP: exporters.OTLPConfig{
			Endpoint:  cfg.OTLPEndpoint,
			Protocol:  cfg.OTLPProtocol,
			Insecure:  cfg.OTLPInsecure,
			Headers:   cfg.OTLPHeaders,
			Timeout:   cfg.OTLPTimeout,
			UserAgent: cfg.AppName + "/" + version,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("tracing setup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	redisClient := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)

	checker := health.NewChecker(version)
	checker.AddCheck("redis", true, redisClient.Ping)

	var publisher auth.EventPublisher
	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.Config{
			Brokers:     cfg.KafkaBrokers,
			EventsTopic: cfg.KafkaEventsTopic,
			ItemsTopic:  cfg.KafkaItemsTopic,
		}, logger)
		publisher = producer
	}

	var verifier *oidc.IDTokenVerifier
	if cfg.AuthEnabled {
		verifier, err = middleware.NewVerifier(ctx, cfg.AuthIssuerURL, cfg.AuthClientID)
		if err != nil {
			return err
		}
	}

	client := httpclient.NewClient(httpclient.DefaultConfig(), logger)
	registry := providers.NewDefaultRegistry(server.ProviderSettings(cfg), client, logger)
	manager := auth.NewManager(registry, vault.New(redisClient, cfg.VaultTTL, logger), publisher, logger)

	e := server.New(cfg, manager, checker, verifier, logger)
	addr := fmt.Sprintf(":%d", cfg.Port)
	serveErr := make(chan error, 1)

	s := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	s.AddDependency(&startup.Dependency{
		Name:    "redis",
		StartFn: redisClient.Connect,
		StopFn:  func(context.Context) error { return redisClient.Close() },
	})
	if producer != nil {
		s.AddDependency(&startup.Dependency{
			Name:   "kafka",
			StopFn: func(context.Context) error { return producer.Close() },
		})
	}
	s.AddDependency(&startup.Dependency{
		Name:     "http",
		Requires: []string{"redis"},
		StartFn: func(context.Context) error {
			go func() {
				logger.Infof("HTTP server listening on %s", addr)
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
			}()
			return nil
		},
		StopFn: e.Shutdown,
	})

	if err := s.Start(ctx); err != nil {
		return err
	}
	checker.SetReady(true)

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serveErr:
		logger.WithError(err).Error("HTTP server stopped unexpectedly")
	}

	checker.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return s.Stop(shutdownCtx)
}
