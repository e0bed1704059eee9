package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osmwrangle/internal/config"
	"github.com/wegman-software/osmwrangle/internal/logger"
	"github.com/wegman-software/osmwrangle/internal/metrics"
	"github.com/wegman-software/osmwrangle/internal/rules"
)

var (
	cfg     = config.DefaultConfig()
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "osmwrangle",
	Short: "Stream OSM extracts into clean relational tables",
	Long: `osmwrangle reads an OpenStreetMap extract one element at a time and writes
five normalized tables (nodes, node tags, ways, way node refs, way tags).

Features:
  - Streaming XML (plain, gzip, bzip2) and PBF input with flat memory use
  - Tag key classification and address/phone value cleanup
  - CSV or Parquet output, bulk loading into PostgreSQL with COPY
  - Data quality audit reports and an optional Lua tag hook`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(logger.Options{Debug: cfg.Verbose, File: cfg.LogFile})

		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				exitWithError("failed to load env file", err)
			}
		} else {
			_ = godotenv.Load()
		}

		explicit := func(flag string) bool {
			f := cmd.Flags().Lookup(flag)
			return f != nil && f.Changed
		}
		if err := cfg.ApplyEnv(os.LookupEnv, explicit); err != nil {
			exitWithError("invalid database environment", err)
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&cfg.OutputDir, "output-dir", "o", cfg.OutputDir, "Directory for the output tables")
	rootCmd.PersistentFlags().StringVarP(&cfg.Format, "format", "f", cfg.Format, "Output table format: csv or parquet")
	rootCmd.PersistentFlags().StringVarP(&cfg.RulesFile, "rules", "r", "", "YAML file overriding the built-in cleaning rules")
	rootCmd.PersistentFlags().IntVarP(&cfg.Workers, "workers", "j", cfg.Workers, "Number of parallel COPY connections used by load")

	// Logging and metrics flags
	rootCmd.PersistentFlags().StringVar(&cfg.LogFile, "log-file", "", "Path to log file for persistent logging (JSON format)")
	rootCmd.PersistentFlags().DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "Interval for resource usage logging, 0 to disable (e.g., 10s, 1m)")

	// Database flags (persistent so they're available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load PG* environment variables from this file (default .env if present)")
	rootCmd.PersistentFlags().StringVar(&cfg.DBHost, "db-host", cfg.DBHost, "PostgreSQL host (PGHOST)")
	rootCmd.PersistentFlags().IntVar(&cfg.DBPort, "db-port", cfg.DBPort, "PostgreSQL port (PGPORT)")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBName, "db-name", "d", cfg.DBName, "PostgreSQL database name (PGDATABASE)")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBUser, "db-user", "U", cfg.DBUser, "PostgreSQL user (PGUSER)")
	rootCmd.PersistentFlags().StringVarP(&cfg.DBPassword, "db-password", "W", cfg.DBPassword, "PostgreSQL password (PGPASSWORD)")
	rootCmd.PersistentFlags().StringVar(&cfg.DBSchema, "db-schema", cfg.DBSchema, "PostgreSQL schema holding the target tables")
}

// loadRules returns the rules file contents layered over the defaults
func loadRules() *rules.Rules {
	if cfg.RulesFile == "" {
		return rules.Default()
	}
	r, err := rules.Load(cfg.RulesFile)
	if err != nil {
		exitWithError("failed to load rules", err)
	}
	return r
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Get().Info("Received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// startCollector samples resource usage in the background until ctx ends.
// The collector is returned even when periodic sampling is disabled so the
// caller can still take a final sample.
func startCollector(ctx context.Context, interval time.Duration) *metrics.Collector {
	log := logger.Get()
	collector := metrics.NewCollector(interval, log)
	if interval > 0 {
		go collector.Start(ctx)
		log.Info("Resource metrics collection started", zap.Duration("interval", interval))
	}
	return collector
}

func exitWithError(msg string, err error) {
	log := logger.Get()
	if err != nil {
		log.Error(msg, zap.Error(err))
	} else {
		log.Error(msg)
	}
	logger.Sync()
	os.Exit(1)
}
