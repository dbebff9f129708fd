// @title Edit Count API
// @version 1.0.0
// @description Tracks RAW photo editing progress per album and serves a live dashboard.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jmagar/editcount/internal/api"
	"github.com/jmagar/editcount/internal/api/middleware"
	"github.com/jmagar/editcount/internal/config"
	"github.com/jmagar/editcount/internal/database"
	"github.com/jmagar/editcount/internal/logging"
	"github.com/jmagar/editcount/internal/models"
	"github.com/jmagar/editcount/internal/scanner"
	"github.com/jmagar/editcount/internal/services"
	"go.uber.org/zap"
)

const (
	jobRetention    = time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	var (
		configFile = flag.String("config", "", "Config file (default: $EDITCOUNT_CONFIG or ./config.yaml)")
		issueToken = flag.String("issue-token", "", "Print a scan control token for the given subject and exit")
		tokenTTL   = flag.Duration("token-ttl", 30*24*time.Hour, "Lifetime of tokens printed by -issue-token")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		token, err := middleware.GenerateToken(*issueToken, cfg.Server.JWTSecret, *tokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error issuing token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logger, err := logging.New(cfg.Log.Level, cfg.IsProduction())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Initialize(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	store := database.NewStore(db)
	photoScanner := scanner.New(
		cfg.Photos.SourceDir,
		cfg.Photos.DestDir,
		scanner.RawPattern(cfg.Photos.RawExtensions),
		store,
		logger.Named("scanner"),
	)

	jobManager := models.NewJobManager()
	broadcaster := services.NewBroadcaster()
	scanService := services.NewScanService(photoScanner, store, jobManager, broadcaster, logger.Named("scan"))

	if _, err := scanService.RunScan(ctx, models.TriggerStartup); err != nil {
		// The server still starts; the dashboard shows "Not scanned yet" until a scan succeeds
		logger.Error("Initial scan failed", zap.Error(err))
	}

	if cfg.Watch.Enabled {
		watcher := services.NewWatchService(
			[]string{cfg.Photos.SourceDir, cfg.Photos.DestDir},
			cfg.Watch.Frequency,
			scanService,
			logger.Named("watcher"),
		)
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer watcher.Stop()
	}

	go cleanupJobs(ctx, jobManager, logger)

	router, cleanup := api.NewRouter(api.RouterConfig{
		ScanService:   scanService,
		Broadcaster:   broadcaster,
		Logger:        logger.Named("http"),
		Title:         cfg.Dashboard.Title,
		JWTSecret:     cfg.Server.JWTSecret,
		ScanRateLimit: cfg.Server.ScanRateLimit,
		Production:    cfg.IsProduction(),
	})
	defer cleanup()

	srv := &http.Server{
		Addr:        ":" + strconv.Itoa(cfg.Server.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: /api/v1/events holds the response open
		IdleTimeout: 60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("environment", cfg.Server.Environment),
			zap.Bool("auth", cfg.Server.JWTSecret != ""))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server startup failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// cleanupJobs evicts finished scan jobs once they are older than jobRetention
func cleanupJobs(ctx context.Context, jobManager *models.JobManager, logger *zap.Logger) {
	ticker := time.NewTicker(jobRetention / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := jobManager.CleanupOldJobs(jobRetention); n > 0 {
				logger.Debug("Cleaned up old jobs", zap.Int("count", n))
			}
		}
	}
}
