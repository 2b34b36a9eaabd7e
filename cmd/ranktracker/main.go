// Package main wires together the rank tracking service binary.
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
	"go.uber.org/zap"

	"github.com/serplens/ranktracker/internal/api"
	"github.com/serplens/ranktracker/internal/audit"
	"github.com/serplens/ranktracker/internal/clock/system"
	"github.com/serplens/ranktracker/internal/config"
	"github.com/serplens/ranktracker/internal/id/uuid"
	"github.com/serplens/ranktracker/internal/logging"
	"github.com/serplens/ranktracker/internal/manager"
	"github.com/serplens/ranktracker/internal/metrics"
	"github.com/serplens/ranktracker/internal/provider/dataforseo"
	memorypublisher "github.com/serplens/ranktracker/internal/publisher/memory"
	pubsubpublisher "github.com/serplens/ranktracker/internal/publisher/pubsub"
	"github.com/serplens/ranktracker/internal/rank"
	filestorage "github.com/serplens/ranktracker/internal/storage/file"
	"github.com/serplens/ranktracker/internal/storage/gcs"
	localstorage "github.com/serplens/ranktracker/internal/storage/local"
	memorystorage "github.com/serplens/ranktracker/internal/storage/memory"
	"github.com/serplens/ranktracker/internal/storage/postgres"
	"github.com/serplens/ranktracker/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var jobStore rank.JobStore
	switch cfg.Jobs.Backend {
	case "file":
		fs, err := filestorage.New(filestorage.Config{BaseDir: cfg.Jobs.BaseDir})
		if err != nil {
			return fmt.Errorf("init file job store: %w", err)
		}
		jobStore = fs
	default:
		jobStore = memorystorage.NewJobStore()
	}

	var (
		results rank.ResultStore
		cache   rank.MetricsCache
	)
	if cfg.DB.DSN != "" {
		keywordStore, err := postgres.NewKeywordStore(ctx, postgres.KeywordStoreConfig{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.KeywordTable,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("init keyword store: %w", err)
		}
		defer keywordStore.Close()
		metricsStore, err := postgres.NewMetricsStore(ctx, postgres.MetricsStoreConfig{
			DSN:             cfg.DB.DSN,
			Table:           cfg.DB.MetricsTable,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("init metrics cache: %w", err)
		}
		defer metricsStore.Close()
		results = keywordStore
		cache = metricsStore
	} else {
		results = memorystorage.NewResultStore()
		cache = memorystorage.NewMetricsCache()
	}

	var artifacts rank.ArtifactStore
	switch cfg.Artifacts.Backend {
	case "gcs":
		gcsStore, err := gcs.New(ctx, gcs.Config{Bucket: cfg.Artifacts.GCSBucket})
		if err != nil {
			return fmt.Errorf("init gcs artifact store: %w", err)
		}
		defer func() {
			if closeErr := gcsStore.Close(); closeErr != nil {
				logger.Warn("gcs close failed", zap.Error(closeErr))
			}
		}()
		artifacts = gcsStore
	default:
		localStore, err := localstorage.New(localstorage.Config{BaseDir: cfg.Artifacts.BaseDir})
		if err != nil {
			return fmt.Errorf("init local artifact store: %w", err)
		}
		artifacts = localStore
	}

	var publisher rank.Publisher
	if cfg.PubSub.ProjectID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("init pubsub client: %w", err)
		}
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				logger.Warn("pubsub close failed", zap.Error(closeErr))
			}
		}()
		publisher = pubsubpublisher.New(client)
	} else {
		publisher = memorypublisher.New()
	}

	registry := memorystorage.NewClientRegistry()
	for code, client := range cfg.Clients {
		registry.SetClient(code, client.ApprovedKeywords, client.Domains)
	}

	tasks, err := dataforseo.New(cfg.Provider, logger.Named("provider"))
	if err != nil {
		return fmt.Errorf("init provider client: %w", err)
	}

	clock := system.New()
	idGen := uuid.NewUUIDGenerator()
	mgr := manager.New(jobStore, clock, idGen, logger.Named("manager"))
	recorder := audit.NewRecorder(artifacts)

	workerCfg := cfg.Worker
	workerCfg.CompletionTopic = cfg.PubSub.TopicName
	w, err := worker.New(workerCfg, worker.Deps{
		Jobs:      mgr,
		Tasks:     tasks,
		Registry:  registry,
		Results:   results,
		Cache:     cache,
		Audit:     recorder,
		Publisher: publisher,
		Clock:     clock,
		Logger:    logger.Named("worker"),
	})
	if err != nil {
		return fmt.Errorf("init worker: %w", err)
	}

	start := func(jobID string) {
		go w.Run(ctx, jobID)
	}
	apiServer := api.NewServer(mgr, start, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}
