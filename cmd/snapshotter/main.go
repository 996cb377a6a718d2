package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/volumewatch/volume-data/internal/config"
	"github.com/volumewatch/volume-data/internal/database"
	"github.com/volumewatch/volume-data/internal/marketdata"
	"github.com/volumewatch/volume-data/internal/model"
	"github.com/volumewatch/volume-data/internal/pipeline"
	"github.com/volumewatch/volume-data/internal/publish"
	"github.com/volumewatch/volume-data/internal/universe"
	"github.com/volumewatch/volume-data/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/snapshotter.yaml", "path to config file")
	tickersFile := flag.String("tickers-file", "", "override for the tickers file")
	limit := flag.Int("limit", 0, "process only the first N tickers (for testing)")
	dryRun := flag.Bool("dry-run", false, "fetch data but do not publish")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(*logLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("starting snapshotter",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Optional .env for local development; secrets reach the config file
	// through ${VAR} expansion.
	if err := godotenv.Load(); err == nil {
		logger.Debug("loaded .env")
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *tickersFile != "" {
		cfg.Run.TickersFile = *tickersFile
	}
	if *limit > 0 {
		cfg.Run.Limit = *limit
	}
	if *dryRun {
		cfg.Run.DryRun = true
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"source_url", cfg.Source.BaseURL,
		"store_backend", cfg.Store.Backend,
		"tickers_file", cfg.Run.TickersFile,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A shutdown signal aborts the run; the orchestrator flushes whatever
	// it has already computed before exiting.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	tickers, err := universe.Load(cfg.Run.TickersFile)
	if err != nil {
		logger.Error("failed to load ticker universe", "error", err)
		os.Exit(1)
	}
	logger.Info("loaded tickers", "count", len(tickers))

	client := marketdata.NewClient(
		cfg.Source.BaseURL,
		marketdata.WithLogger(logger),
		marketdata.WithTimeout(cfg.Source.Timeout.Std()),
		marketdata.WithRetries(cfg.Source.MaxRetries, time.Second),
		marketdata.WithRateLimit(cfg.Source.RequestsPerSec),
	)
	fetcher := marketdata.NewSessionFetcher(client, marketdata.Windows{
		ShortDays: cfg.Source.ShortWindowDays,
		RangeDays: cfg.Source.RangeWindowDays,
		LongDays:  cfg.Source.LongWindowDays,
	}, logger)

	var pub publish.Publisher
	if !cfg.Run.DryRun {
		pub, err = buildPublisher(ctx, cfg, logger)
		if err != nil {
			logger.Error("failed to set up publisher", "error", err)
			os.Exit(1)
		}
	}

	backoff := make([]time.Duration, len(cfg.Run.RetryBackoff))
	for i, d := range cfg.Run.RetryBackoff {
		backoff[i] = d.Std()
	}

	runner := pipeline.NewRunner(pipeline.Config{
		ChunkSize:       cfg.Run.ChunkSize,
		ChunkPause:      cfg.Run.ChunkPause.Std(),
		RetryBackoff:    backoff,
		MaxChunkRetries: cfg.Run.MaxChunkRetries,
		Workers:         cfg.Run.Workers,
		Limit:           cfg.Run.Limit,
		DryRun:          cfg.Run.DryRun,
	}, fetcher, pub, logger)

	report, err := runner.Run(ctx, tickers)
	if err != nil {
		logger.Error("run failed", "batch_id", report.BatchID, "error", err)
		os.Exit(1)
	}

	switch report.Status {
	case model.StatusPartial:
		logger.Warn("run degraded to partial batch",
			"batch_id", report.BatchID,
			"snapshots", report.Snapshots,
			"tickers_total", report.TickersTotal,
		)
	case model.StatusAborted:
		logger.Warn("run aborted, flushed completed work",
			"batch_id", report.BatchID,
			"snapshots", report.Snapshots,
			"published", report.Published,
			"tickers_processed", report.TickersProcessed,
			"tickers_total", report.TickersTotal,
		)
		os.Exit(1)
	}
}

// buildPublisher wires the configured store backend. REST talks to the
// managed store; postgres connects directly and needs a reachable database.
func buildPublisher(ctx context.Context, cfg *config.SnapshotterConfig, logger *slog.Logger) (publish.Publisher, error) {
	switch cfg.Store.Backend {
	case config.BackendPostgres:
		pool, err := database.Connect(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, err
		}
		return publish.NewPGPublisher(pool, logger), nil
	default:
		return publish.NewRESTPublisher(publish.RESTConfig{
			URL:            cfg.Store.REST.URL,
			ServiceRoleKey: cfg.Store.REST.ServiceRoleKey,
			Table:          cfg.Store.REST.Table,
			Timeout:        cfg.Store.REST.Timeout.Std(),
			ChunkSize:      cfg.Store.REST.UploadChunkSize,
		}, logger), nil
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
