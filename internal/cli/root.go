package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/vhoang/ingest/internal/core/config"
	"github.com/vhoang/ingest/internal/health"
	"github.com/vhoang/ingest/internal/infra/ratelimit"
	"github.com/vhoang/ingest/internal/infra/retry"
	"github.com/vhoang/ingest/internal/infra/storage/memory"
	"github.com/vhoang/ingest/internal/ingest/pipeline"
	"github.com/vhoang/ingest/internal/ingest/policy"
	"github.com/vhoang/ingest/internal/ingest/source"
	"github.com/vhoang/ingest/internal/ingest/validate"
)

// Exit codes per the process contract: 0 clean run, 1 fatal failure,
// 2 completed with accumulated errors or skips.
const (
	exitOK     = 0
	exitFatal  = 1
	exitErrors = 2
)

var (
	cfgPath        string
	inputPath      string
	idempotencyKey string
	failFast       bool
	isDebug        bool
	metricsPort    int
)

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest service",
	Long:  `Ingest validates, filters and persists user records from a CSV batch with retry and idempotent replay suppression.`,
	Run:   runIngest,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitFatal)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.Flags().StringVar(&inputPath, "input", "", "input CSV file (overrides config)")
	rootCmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "replay-detection key for this batch")
	rootCmd.Flags().BoolVar(&failFast, "fail-fast", false, "abort on first validation failure")
	rootCmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "serve /health and /metrics on this port (0 = off)")
}

func runIngest(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		setupLogger(slog.LevelInfo)
		slog.Error("Failed to load config", "error", err)
		os.Exit(exitFatal)
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	setupLogger(slogLevel)

	if inputPath != "" {
		cfg.Input.Path = inputPath
	}
	if cfg.Input.Path == "" {
		slog.Error("No input file: set --input or input.path in config")
		os.Exit(exitFatal)
	}
	if failFast {
		cfg.Pipeline.FailFast = true
	}
	if metricsPort != 0 {
		cfg.Server.MetricsPort = metricsPort
	}

	os.Exit(run(cfg))
}

func run(cfg *config.AppConfig) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var state atomic.Value
	state.Store("idle")

	if cfg.Server.MetricsPort != 0 {
		srv := health.NewServer(func() health.Snapshot {
			return health.Snapshot{State: state.Load().(string)}
		}, cfg.Server.MetricsPort)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				slog.Warn("health server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	src, err := source.OpenCSV(cfg.Input.Path)
	if err != nil {
		slog.Error("Failed to open input", "path", cfg.Input.Path, "error", err)
		return exitFatal
	}
	defer src.Close()

	store := memory.New(memory.Config{
		IdempotencyTTL: cfg.Store.IdempotencyTTL,
		MaxRecords:     cfg.Store.MaxRecords,
	})

	var eval pipeline.Evaluator
	if len(cfg.Pipeline.DenyList) > 0 {
		eval = policy.NewWithDenyList(store, cfg.Pipeline.DenyList)
	} else {
		eval = policy.New(store)
	}

	orch := pipeline.New(pipeline.Config{
		Store:     store,
		Validator: validate.New(),
		Policy:    eval,
		Limiter:   ratelimit.New(cfg.Pipeline.Concurrency),
		Retry: retry.New(retry.Config{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			Factor:      cfg.Retry.Factor,
		}, slog.Default()),
		Logger:         slog.Default(),
		BulkFailFast:   cfg.Pipeline.BulkFailFast,
		TopDomains:     cfg.Pipeline.TopDomains,
		MaxListedItems: cfg.Pipeline.MaxListedItems,
	})

	state.Store("running")
	res, err := orch.Run(ctx, src, pipeline.RunOptions{
		IdempotencyKey: idempotencyKey,
		FailFast:       cfg.Pipeline.FailFast,
	})
	state.Store("done")

	if err != nil {
		slog.Error("Run failed", "error", err)
		return exitFatal
	}

	fmt.Print(res.Report)

	if len(res.Errors) > 0 || len(res.Skipped) > 0 {
		return exitErrors
	}
	return exitOK
}

func loadConfig() (*config.AppConfig, error) {
	if cfgPath == "" {
		return config.Default(), nil
	}
	return config.Load(cfgPath)
}

func setupLogger(level slog.Level) {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		}),
	))
}
