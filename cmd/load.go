package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osmwrangle/internal/loader"
	"github.com/wegman-software/osmwrangle/internal/logger"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Bulk load shaped tables into PostgreSQL",
	Long: `Copy the five shaped tables from --output-dir into existing PostgreSQL tables.

This stage:
  1. Loads nodes and ways first
  2. Then loads nodes_tags, ways_nodes and ways_tags
  3. Uses one COPY per table inside its own transaction

The target tables must already exist with the same column names.`,
	Args: cobra.NoArgs,
	Run:  runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) {
	log := logger.Get()

	if err := cfg.ValidateOutput(); err != nil {
		exitWithError("invalid configuration", err)
	}

	log.Info("Starting PostgreSQL load",
		zap.String("input_dir", cfg.OutputDir),
		zap.String("format", cfg.Format),
		zap.String("database", cfg.DBName),
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("user", cfg.DBUser),
		zap.String("schema", cfg.DBSchema),
	)

	ctx, cancel := signalContext()
	defer cancel()

	start := time.Now()

	ldr, err := loader.NewLoader(ctx, cfg)
	if err != nil {
		exitWithError("failed to create loader", err)
	}
	defer ldr.Close()

	stats, err := ldr.Run(ctx)
	if err != nil {
		exitWithError("load failed", err)
	}

	elapsed := time.Since(start)
	for table, n := range stats.Rows {
		log.Info("Loaded table", zap.String("table", table), zap.Int64("rows", n))
	}
	log.Info("Load complete",
		zap.Duration("duration", elapsed.Round(time.Second)),
		zap.Int64("rows", stats.Total()),
		zap.Float64("throughput_rows_s", float64(stats.Total())/elapsed.Seconds()),
	)
}
