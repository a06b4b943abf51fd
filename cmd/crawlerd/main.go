// Command crawlerd runs the dataset crawler service: the HTTP API, the crawl
// orchestrator, and the progress pipeline.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/opendatahub/dataset-crawler/internal/api"
	"github.com/opendatahub/dataset-crawler/internal/clock/system"
	"github.com/opendatahub/dataset-crawler/internal/config"
	"github.com/opendatahub/dataset-crawler/internal/gateway"
	"github.com/opendatahub/dataset-crawler/internal/id/uuid"
	"github.com/opendatahub/dataset-crawler/internal/job"
	"github.com/opendatahub/dataset-crawler/internal/logging"
	"github.com/opendatahub/dataset-crawler/internal/progress"
	"github.com/opendatahub/dataset-crawler/internal/progress/sinks"
	pubsubpub "github.com/opendatahub/dataset-crawler/internal/publisher/pubsub"
	"github.com/opendatahub/dataset-crawler/internal/service"
	"github.com/opendatahub/dataset-crawler/internal/sites"
	"github.com/opendatahub/dataset-crawler/internal/storage/memory"
	"github.com/opendatahub/dataset-crawler/internal/storage/postgres"
	"github.com/opendatahub/dataset-crawler/internal/walker"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	registry, err := sites.Load(cfg.SitesPath)
	if err != nil {
		return fmt.Errorf("load site configs: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobStore, datasetStore, closeStores, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	promReg := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(promReg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, sinks.NewLogSink(logger), promSink)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("close progress hub", zap.Error(err))
		}
	}()

	pub, closePub, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer closePub()

	svc, err := service.New(
		service.Config{
			SideFileDir: cfg.SideFileDir,
			BatchSize:   cfg.Crawler.BatchSize,
			Walker: walker.Config{
				Parallelism: cfg.Crawler.Parallelism,
				Delay:       cfg.Crawler.Delay,
				RandomDelay: cfg.Crawler.RandomDelay,
				Timeout:     cfg.Crawler.Timeout,
				UserAgent:   cfg.Crawler.UserAgent,
				MaxTags:     cfg.Crawler.MaxTags,
			},
		},
		registry, jobStore, datasetStore, pub, hub,
		uuid.New(), system.New(), logger,
	)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	server := api.NewServer(svc, promReg, api.Config{
		Auth:           api.AuthConfig{Enabled: cfg.Auth.Enabled, APIKey: cfg.Auth.APIKey},
		RequestTimeout: cfg.Server.RequestTimeout,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("service shutdown", zap.Error(err))
	}
	return nil
}

// buildStores selects Postgres when a DSN is configured, in-memory stores
// otherwise.
func buildStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (job.Store, gateway.Store, func(), error) {
	if cfg.Database.DSN == "" {
		logger.Info("using in-memory stores")
		return memory.NewJobStore(), memory.NewDatasetStore(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:             cfg.Database.DSN,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open postgres pool: %w", err)
	}
	jobStore, err := postgres.NewJobStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	datasetStore, err := postgres.NewDatasetStore(pool)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	logger.Info("using postgres stores")
	return jobStore, datasetStore, pool.Close, nil
}

// buildPublisher returns a nil publisher when pubsub is disabled.
func buildPublisher(ctx context.Context, cfg config.Config) (gateway.Publisher, func(), error) {
	if !cfg.PubSub.Enabled {
		return nil, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(cfg.PubSub.TopicID)
	closeFn := func() {
		topic.Stop()
		_ = client.Close()
	}
	return pubsubpub.New(topic), closeFn, nil
}
