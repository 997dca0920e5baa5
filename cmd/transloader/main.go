package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/transloader/internal/cleanup"
	"github.com/italolelis/transloader/internal/config"
	"github.com/italolelis/transloader/internal/engine/aria2"
	"github.com/italolelis/transloader/internal/http/rest"
	"github.com/italolelis/transloader/internal/logctx"
	"github.com/italolelis/transloader/internal/notifier"
	"github.com/italolelis/transloader/internal/storage"
	redisledger "github.com/italolelis/transloader/internal/storage/redis"
	"github.com/italolelis/transloader/internal/telemetry"
	"github.com/italolelis/transloader/internal/transfer"
	"github.com/italolelis/transloader/internal/uploader/webdav"
	"github.com/italolelis/transloader/internal/worker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("transloader starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && err != context.Canceled {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Status Ledger
	ledger, err := redisledger.NewLedger(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to the status ledger: %w", err)
	}
	defer ledger.Close()

	tracker := storage.NewTracker(ledger)

	// =========================================================================
	// Start Download Engine Client
	engineClient := aria2.NewClient(cfg.Aria2.RPCURL, cfg.Aria2.RPCSecret)

	if version, err := engineClient.Version(ctx); err != nil {
		logger.Warn("download engine unreachable at startup", "err", err)
	} else {
		logger.Info("download engine connected", "version", version)
	}

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	// =========================================================================
	// Start Worker Pool
	orchestrator := worker.NewOrchestrator(
		tracker,
		transfer.NewDirectStrategy(engineClient, tracker, cfg),
		transfer.NewTorrentStrategy(engineClient, tracker, cfg),
		webdav.NewClient(cfg.WebDAV.URL, cfg.WebDAV.Username, cfg.WebDAV.Password, cfg.WebDAV.Timeout),
		tel,
		cfg.StoragePath,
	)

	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL}
	}

	const queueSize = 100

	pool := worker.NewPool(orchestrator, tracker, tel, notif, cfg.MaxRetries, queueSize)

	poolErrors := make(chan error, 1)

	go func() {
		poolErrors <- pool.Start(ctx, cfg.WorkerCount)
	}()

	// =========================================================================
	// Start Cleanup
	setupCleanup(ctx, ledger, cfg)

	// =========================================================================
	// Start API Service
	serverErrors := make(chan error, 1)
	server := setupServer(ctx, ledger, engineClient, pool, tel, cfg)

	go func() {
		logger.Info("initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("waiting for jobs...",
		"workers", cfg.WorkerCount,
		"storage_path", cfg.StoragePath,
		"fallback_enabled", cfg.Aria2.EnableFallback,
	)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case err := <-poolErrors:
		if err != nil {
			return fmt.Errorf("worker pool error: %w", err)
		}

		return nil
	case <-ctx.Done():
		logger.Info("start shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return ctx.Err()
	}
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(
	ctx context.Context,
	ledger *redisledger.Ledger,
	engineClient *aria2.Client,
	pool *worker.Pool,
	tel *telemetry.Telemetry,
	cfg *config.Config,
) *http.Server {
	jobsHandler := rest.NewJobsHandler(ledger, pool, cfg.APIKey)
	healthHandler := rest.NewHealthHandler(ledger, engineClient)

	r := chi.NewRouter()
	r.Route("/api/v1", func(api chi.Router) {
		// Health stays outside the jobs router and its API-key middleware.
		api.Get("/health", healthHandler.HandleHealth)
		api.Mount("/", jobsHandler.Routes())
	})
	r.Handle("/metrics", tel.MetricsHandler())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "transloader"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func setupCleanup(ctx context.Context, ledger storage.Ledger, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	go func() {
		ticker := time.NewTicker(cfg.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("cleanup goroutine shutting down")

				return
			case <-ticker.C:
				if err := cleanup.RemoveOrphanedWorkDirs(ctx, ledger, cfg.StoragePath, cfg.JobRetention); err != nil {
					logger.Error("failed to clean orphaned work dirs", "err", err)
				}
			}
		}
	}()
}
