package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sheetsync/internal/api"
	"sheetsync/internal/config"
	"sheetsync/internal/database"
	"sheetsync/internal/domain"
	"sheetsync/internal/events"
	"sheetsync/internal/google"
	"sheetsync/internal/logging"
	"sheetsync/internal/metrics"
	"sheetsync/internal/models"
	"sheetsync/internal/repository"
	"sheetsync/internal/service"
	"sheetsync/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := initGoogleSheets(ctx, cfg, &logger)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewEventBus()
	bus.OnError(func(event *events.Event, err error) {
		logger.Warn().Err(err).Str("event", event.Type).Msg("event handler failed")
	})

	engine := worker.NewEngine(store, bus, &logger)
	defer engine.Close()

	syncCfg, err := cfg.SyncConfig()
	if err != nil {
		return err
	}
	if err := engine.Configure(models.PatchFrom(syncCfg)); err != nil {
		return fmt.Errorf("configure engine: %w", err)
	}

	service.NewArchiver(db, &logger).Subscribe(bus)

	mirror := service.NewStateMirror(engine, initSnapshotStore(cfg, redisClient, &logger), &logger)
	mirror.Subscribe(bus)
	mirrorDone := make(chan struct{})
	go func() {
		defer close(mirrorDone)
		mirror.Run(ctx)
	}()
	mirror.MarkDirty()

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, engine, db, &logger)
	err = serve(ctx, httpServer, cfg, &logger)

	stop()
	<-mirrorDone
	return err
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "sheetsyncd").Logger()

	return cfg, logger, closer, nil
}

// initRedis returns nil when Redis is not configured or unreachable; the
// snapshot mirror then runs on the in-memory store only.
func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

func initSnapshotStore(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.SnapshotStore {
	memory := repository.NewMemorySnapshotStore()
	if client == nil {
		return memory
	}
	ttl := time.Duration(cfg.Redis.SnapshotTTL) * time.Second
	primary := repository.NewRedisSnapshotStore(client, cfg.Redis.SnapshotKey, ttl)
	return repository.NewFailoverSnapshotStore(primary, memory, logger)
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*google.SheetsStore, error) {
	store, err := google.NewSheetsStore(ctx, google.StoreOptions{
		CredentialsFile: cfg.Google.CredentialsFile,
		RequestsPerSec:  cfg.Google.RateLimit.RPS,
		Burst:           cfg.Google.RateLimit.Burst,
	}, logger)
	if err != nil {
		logger.Error().Err(err).Msg("google sheets init failed")
		return nil, err
	}

	if email, err := google.ServiceAccountEmail(cfg.Google.CredentialsFile); err == nil {
		logger.Info().Str("service_account", email).Msg("google sheets client ready")
	}
	return store, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	if cfg.API.HTTP.Enabled {
		go func() {
			errCh <- httpServer.Start()
		}()
		logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("sync daemon started")
	} else {
		logger.Info().Msg("sync daemon started without HTTP API")
	}

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("sync daemon stopped")
	return serveErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
