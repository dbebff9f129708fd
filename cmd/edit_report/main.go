package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jmagar/editcount/internal/config"
	"github.com/jmagar/editcount/internal/database"
	"github.com/jmagar/editcount/internal/logging"
	"github.com/jmagar/editcount/internal/models"
	"github.com/jmagar/editcount/internal/report"
	"github.com/jmagar/editcount/internal/scanner"
	"github.com/jmagar/editcount/internal/services"
	"go.uber.org/zap"
)

func main() {
	var (
		configFile = flag.String("config", "", "Config file (default: $EDITCOUNT_CONFIG or ./config.yaml)")
		format     = flag.String("format", report.FormatTerminal, "Output format: "+strings.Join(report.Formats, ", "))
		sortBy     = flag.String("sort", report.SortNone, "Sort by: "+strings.Join(report.SortModes, ", "))
		output     = flag.String("output", "", "Output file (default: stdout)")
		noHistory  = flag.Bool("no-history", false, "Do not read or update the RAW history database")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr so stdout stays clean for the report
	logger, err := logging.New(cfg.Log.Level, cfg.IsProduction())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshot, err := scan(ctx, cfg, logger, *noHistory)
	if err != nil {
		logger.Error("Scan failed", zap.Error(err))
		os.Exit(1)
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, snapshot, report.Options{
		Format: *format,
		Sort:   *sortBy,
		Title:  cfg.Dashboard.Title,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	if *output == "" {
		os.Stdout.Write(buf.Bytes())
		return
	}

	if err := os.WriteFile(*output, buf.Bytes(), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
		os.Exit(1)
	}
	logger.Info("Report written",
		zap.String("file", *output),
		zap.String("format", *format),
		zap.Int("albums", snapshot.AlbumCount()))
}

func scan(ctx context.Context, cfg *config.Config, logger *zap.Logger, noHistory bool) (models.Snapshot, error) {
	var history scanner.History
	var store services.ScanStore
	if !noHistory {
		db, err := database.Initialize(cfg.Database.Path, logger)
		if err != nil {
			return models.Snapshot{}, fmt.Errorf("failed to initialize database: %w", err)
		}
		defer db.Close()

		s := database.NewStore(db)
		history, store = s, s
	}

	photoScanner := scanner.New(
		cfg.Photos.SourceDir,
		cfg.Photos.DestDir,
		scanner.RawPattern(cfg.Photos.RawExtensions),
		history,
		logger.Named("scanner"),
	)

	svc := services.NewScanService(photoScanner, store, models.NewJobManager(), services.NewBroadcaster(), logger.Named("scan"))
	return svc.RunScan(ctx, models.TriggerCLI)
}
