package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clipforge/exportd/internal/api"
	"github.com/clipforge/exportd/internal/assets"
	"github.com/clipforge/exportd/internal/config"
	"github.com/clipforge/exportd/internal/db"
	"github.com/clipforge/exportd/internal/export"
	"github.com/clipforge/exportd/internal/filtergraph"
	"github.com/clipforge/exportd/internal/fonts"
	"github.com/clipforge/exportd/internal/logging"
	"github.com/clipforge/exportd/internal/render"
	"github.com/clipforge/exportd/internal/storage"
	"github.com/clipforge/exportd/internal/timeline"
)

var Version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.TempDir(), 0755); err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting exportd", "version", Version, "data_dir", cfg.DataDir(), "store", cfg.Store())

	// the service is useless without its render engine, so probe before
	// accepting any jobs
	engineVersion, err := render.Probe(context.Background(), cfg.FFmpegPath(), cfg.FFprobePath())
	if err != nil {
		return fmt.Errorf("render engine unavailable: %w", err)
	}
	logger.Info("render engine detected", "version", engineVersion)

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	defer closeStore()

	objectStore, err := openStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to configure storage: %w", err)
	}

	downloader := assets.NewDownloader(logging.WithComponent(logger, "assets"))
	resolver := assets.NewResolver(objectStore, downloader, logging.WithComponent(logger, "assets"))

	fontResolver := fonts.NewResolver(logging.WithComponent(logger, "fonts"))
	builder := filtergraph.NewBuilder(fontResolver, logging.WithComponent(logger, "filtergraph"))

	invoker, err := render.NewInvoker(render.Config{
		FFmpegPath: cfg.FFmpegPath(),
		Timeout:    cfg.RenderTimeout(),
		Logger:     logging.WithComponent(logger, "render"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialise render invoker: %w", err)
	}

	publisher := export.NewPublisher(objectStore, cfg.DownloadURLTTL(), logging.WithComponent(logger, "publisher"))

	limits := timeline.DefaultLimits
	limits.MaxElements = cfg.MaxElements()
	limits.MaxTracks = cfg.MaxTracks()

	orchestrator := export.NewOrchestrator(store, resolver, builder, invoker, publisher, export.Config{
		Workers:       cfg.Workers(),
		TempDir:       cfg.TempDir(),
		Limits:        limits,
		JobRetention:  cfg.JobRetention(),
		SweepInterval: cfg.SweepInterval(),
		Logger:        logging.WithComponent(logger, "orchestrator"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orchDone := make(chan struct{})
	go func() {
		orchestrator.Run(ctx)
		close(orchDone)
	}()

	apiServer := api.NewServer(api.ServerConfig{
		Port:         cfg.Port(),
		Orchestrator: orchestrator,
		Logger:       logging.WithComponent(logger, "api"),
		StartTime:    startTime,
		Version:      Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	select {
	case <-orchDone:
	case <-shutdownCtx.Done():
		logger.Warn("shutdown deadline reached with jobs still in flight")
	}

	logger.Info("shutdown complete")
	return nil
}

// openStore selects the job store backend. SQLite is the default; redis is
// for deployments sharing job state across instances; memory keeps nothing
// across restarts.
func openStore(cfg config.Config, logger *slog.Logger) (export.Store, func(), error) {
	switch cfg.Store() {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword(),
			DB:       cfg.RedisDB(),
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis unreachable at %s: %w", cfg.RedisAddr(), err)
		}
		store := export.NewRedisStore(client)
		logger.Info("job store ready", "backend", "redis", "addr", cfg.RedisAddr())
		return store, func() { store.Close() }, nil

	case config.StoreMemory:
		logger.Info("job store ready", "backend", "memory")
		return export.NewMemoryStore(), func() {}, nil

	default:
		database, err := db.New(cfg.DBPath(), logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("job store ready", "backend", "sqlite", "path", cfg.DBPath())
		return export.NewSQLiteStore(database.Conn()), func() { database.Close() }, nil
	}
}

// openStorage wires object storage: S3 when a bucket is configured,
// otherwise a local directory for development.
func openStorage(cfg config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Bucket() != "" {
		return storage.NewS3Storage(storage.S3Config{
			Bucket:       cfg.S3Bucket(),
			Region:       cfg.S3Region(),
			AccessKey:    cfg.S3AccessKey(),
			SecretKey:    cfg.S3SecretKey(),
			Endpoint:     cfg.S3Endpoint(),
			UsePathStyle: cfg.S3UsePathStyle(),
			AssetPrefix:  "assets/",
		}, logging.WithComponent(logger, "storage"))
	}
	logger.Info("no S3 bucket configured, using local storage")
	return storage.NewLocalStorage(cfg.DataDir())
}
