package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/use-agent/auctionscrape/cache"
	"github.com/use-agent/auctionscrape/config"
	"github.com/use-agent/auctionscrape/export"
	"github.com/use-agent/auctionscrape/history"
	"github.com/use-agent/auctionscrape/models"
	"github.com/use-agent/auctionscrape/pipeline"
	"github.com/use-agent/auctionscrape/scraper"
)

func main() {
	// ── 1. Load configuration (.env is optional) ────────────────────
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("auctionscrape starting",
		"fetchMode", cfg.Run.FetchMode,
		"urlsFile", cfg.Run.URLsFile,
		"output", cfg.Run.OutputCSV,
		"failFast", cfg.Run.FailFast,
	)

	// ── 3. Cancel the run on SIGINT/SIGTERM ─────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, cfg)
	stop()

	if err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
	slog.Info("auctionscrape finished")
}

// run owns every resource of the process so that deferred cleanup, the
// browser shutdown in particular, happens on all exit paths before main
// decides the exit code.
func run(ctx context.Context, cfg *config.Config) error {
	urls, err := pipeline.LoadURLs(cfg.Run.URLsFile, cfg.Run.DefaultURL)
	if err != nil {
		return err
	}
	slog.Info("urls loaded", "count", len(urls))

	state, err := scraper.LoadState(cfg.Run.StateFile)
	if err != nil {
		slog.Warn("ignoring unreadable session state, starting fresh", "path", cfg.Run.StateFile, "error", err)
		state = nil
	}

	opts := pipeline.Options{
		OutputCSV: cfg.Run.OutputCSV,
		FailFast:  cfg.Run.FailFast,
	}
	if cfg.History.DBPath != "" {
		arc, err := history.Open(cfg.History.DBPath)
		if err != nil {
			slog.Warn("history archive disabled", "path", cfg.History.DBPath, "error", err)
		} else {
			defer arc.Close()
			opts.History = arc
		}
	}

	switch cfg.Run.FetchMode {
	case "http":
		f, err := scraper.NewHTTPFetcher(cfg, state)
		if err != nil {
			return err
		}
		defer f.Close()

		records, err := pipeline.Run(ctx, withCache(f, cfg.Cache), urls, opts)
		printSummary(records)
		return err

	case "browser", "":
		sess, err := scraper.NewSession(cfg, state)
		if err != nil {
			return err
		}
		defer sess.Close()

		sess.WarmUp(ctx, cfg.Run.HomepageURL)

		records, runErr := pipeline.Run(ctx, withCache(sess, cfg.Cache), urls, opts)
		printSummary(records)
		if !shouldPersistState(runErr) {
			slog.Info("run aborted, session state not saved", "path", cfg.Run.StateFile)
			return runErr
		}
		if err := sess.PersistState(cfg.Run.StateFile); err != nil {
			slog.Warn("failed to save session state", "path", cfg.Run.StateFile, "error", err)
		}
		return runErr

	default:
		return models.NewScrapeError(models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown fetch mode %q (want \"browser\" or \"http\")", cfg.Run.FetchMode), nil)
	}
}

// shouldPersistState reports whether the browser session is saved after a
// run. A fail-fast abort leaves the previous state file alone.
func shouldPersistState(runErr error) bool {
	return !errors.Is(runErr, pipeline.ErrAborted)
}

// withCache wraps f in a page cache unless the cache is disabled.
func withCache(f cache.Fetcher, cfg config.CacheConfig) pipeline.Fetcher {
	if cfg.MaxEntries <= 0 {
		return f
	}
	return cache.Wrap(f, cache.New(cfg.MaxEntries, cfg.MaxAge))
}

// printSummary shows the run's records when stdout is a terminal.
func printSummary(records []models.VehicleRecord) {
	if len(records) == 0 || !isatty.IsTerminal(os.Stdout.Fd()) {
		return
	}
	export.WriteSummary(os.Stdout, records)
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
		})
	}
	slog.SetDefault(slog.New(handler))
}
