// Command powerlog maintains the local Belgian energy-data archive and its
// SQLite store.
//
// Usage:
//
//	powerlog update              # fetch new data, refresh the zip archives
//	powerlog load                # ingest the archive tree into the store
//	powerlog run                 # update then load, the scheduled entry
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/powerlog-be/powerlog/config"
	"github.com/powerlog-be/powerlog/pipeline"
	"github.com/powerlog-be/powerlog/store"
)

var (
	flagConfig   string
	flagLogLevel string
	flagKind     string
	flagFrom     int
	flagTo       int

	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	// Optional .env for overriding the config path on deploy targets.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		report().Warn("powerlog: interrupted, partial run kept")
	default:
		// A failed refresh is retried on the next scheduled run; exiting
		// non-zero would only trip the scheduler's alerting.
		report().Error("powerlog: run failed", "error", err)
	}
}

// report returns the configured logger, or a stderr fallback when the
// failure happened before logging was set up.
func report() *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "powerlog",
		Short:         "Harvest and store Belgian wind/solar forecasts and Belpex prices",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
	}
	root.PersistentFlags().StringVar(&flagConfig, "config",
		envOr("POWERLOG_CONFIG", "powerlog.yaml"), "path to the YAML config file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info",
		"log level: debug, info, warn, error")

	update := &cobra.Command{
		Use:   "update",
		Short: "Fetch new data and refresh the zip archives",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd.Context())
		},
	}
	load := &cobra.Command{
		Use:   "load",
		Short: "Ingest the archive tree into the SQLite store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoad(cmd.Context())
		},
	}
	run := &cobra.Command{
		Use:   "run",
		Short: "Update then load",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runUpdate(cmd.Context()); err != nil {
				return err
			}
			return runLoad(cmd.Context())
		},
	}
	for _, c := range []*cobra.Command{update, load, run} {
		c.Flags().StringVar(&flagKind, "kind", "all", "dataset: wind, solar, belpex or all")
	}
	for _, c := range []*cobra.Command{update, run} {
		c.Flags().IntVar(&flagFrom, "from", 0, "first year to fetch (default: previous year)")
		c.Flags().IntVar(&flagTo, "to", 0, "last year to fetch (default: current year)")
	}

	root.AddCommand(update, load, run)
	return root
}

func setup() error {
	var err error
	cfg, err = config.LoadFile(flagConfig)
	if err != nil {
		return err
	}
	logger, err = setupLogging(cfg.LogDir, flagLogLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	return nil
}

// setupLogging writes every record to stdout and to one log file per day.
func setupLogging(logDir, level string) (*slog.Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	name := filepath.Join(logDir, "log_"+time.Now().Format("2006-01-02")+".txt")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, f), &slog.HandlerOptions{Level: lvl})
	return slog.New(h), nil
}

func selection() ([]pipeline.Kind, error) {
	return pipeline.ParseSelection(flagKind)
}

// yearRange resolves the --from/--to flags; unset means previous year
// through the current one.
func yearRange() (from, to int) {
	now := time.Now()
	from, to = flagFrom, flagTo
	if from == 0 {
		from = now.Year() - 1
	}
	if to == 0 {
		to = now.Year()
	}
	return from, to
}

func runUpdate(ctx context.Context) error {
	kinds, err := selection()
	if err != nil {
		return err
	}
	from, to := yearRange()

	o := pipeline.NewOrchestrator(cfg, pipeline.WithLogger(logger))
	return o.Update(ctx, from, to, kinds)
}

func runLoad(ctx context.Context) error {
	kinds, err := selection()
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	o := pipeline.NewOrchestrator(cfg, pipeline.WithLogger(logger))
	return o.Load(ctx, db, kinds)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
