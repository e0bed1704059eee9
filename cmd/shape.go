package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osmwrangle/internal/config"
	"github.com/wegman-software/osmwrangle/internal/logger"
	"github.com/wegman-software/osmwrangle/internal/metrics"
	"github.com/wegman-software/osmwrangle/internal/nodeset"
	"github.com/wegman-software/osmwrangle/internal/pipeline"
	"github.com/wegman-software/osmwrangle/internal/rules"
	"github.com/wegman-software/osmwrangle/internal/script"
	"github.com/wegman-software/osmwrangle/internal/sink"
	"github.com/wegman-software/osmwrangle/internal/source"
)

var shapeCmd = &cobra.Command{
	Use:   "shape <input.osm|input.osm.gz|input.osm.bz2|input.osm.pbf>",
	Short: "Stream an OSM extract into the five output tables",
	Long: `Read nodes and ways one at a time, clean their tags and write:

  nodes.<fmt>       id, lat, lon, user, uid, version, changeset, timestamp
  nodes_tags.<fmt>  id, key, value, type
  ways.<fmt>        id, user, uid, version, changeset, timestamp
  ways_nodes.<fmt>  id, node_id, position
  ways_tags.<fmt>   id, key, value, type

Elements missing a required attribute are skipped and counted. Relations
are passed over. Memory use does not grow with the input size.`,
	Args: cobra.ExactArgs(1),
	Run:  runShape,
}

func init() {
	rootCmd.AddCommand(shapeCmd)

	shapeCmd.Flags().IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Rows per Parquet row group")
	shapeCmd.Flags().StringVar(&cfg.ScriptFile, "script", "", "Lua file defining transform_tag(namespace, key, value)")
	shapeCmd.Flags().BoolVar(&cfg.CheckRefs, "check-refs", false, "Count way node refs that point at no emitted node")
	shapeCmd.Flags().StringVar(&cfg.RefsDir, "refs-dir", "", "Directory for the file-backed node id bitset (default: anonymous memory)")
	shapeCmd.Flags().Int64Var(&cfg.MaxNodeID, "max-node-id", cfg.MaxNodeID, "Largest node id tracked by --check-refs")
	shapeCmd.Flags().StringVar(&cfg.MetricsFile, "metrics-file", "", "Write Prometheus text-format counters to this file when done")
	shapeCmd.Flags().Int64Var(&cfg.ProgressEvery, "progress-every", cfg.ProgressEvery, "Elements between progress log lines")
}

func runShape(cmd *cobra.Command, args []string) {
	log := logger.Get()
	cfg.InputFile = args[0]

	if err := cfg.Validate(); err != nil {
		exitWithError("invalid configuration", err)
	}
	r := loadRules()

	ctx, cancel := signalContext()
	defer cancel()

	collector := startCollector(ctx, cfg.MetricsInterval)
	counters := metrics.NewCounters()

	stats, err := shapeFile(ctx, cfg, r, counters)
	if err != nil {
		if stats != nil {
			log.Warn("Output tables hold the rows written before the failure",
				zap.Int64("rows", stats.TotalRows()))
		}
		exitWithError("shape failed", err)
	}

	if cfg.MetricsFile != "" {
		if err := counters.WriteFile(cfg.MetricsFile); err != nil {
			exitWithError("failed to write metrics file", err)
		}
		log.Info("Wrote metrics", zap.String("path", cfg.MetricsFile))
	}

	pipeline.LogSummary(log, stats)
	collector.Sample()
	log.Info("Resource summary",
		zap.String("peak_rss", metrics.FormatBytes(collector.PeakRSS())),
		zap.String("read", metrics.FormatBytes(uint64(stats.BytesRead))),
		zap.Duration("duration", stats.Duration.Round(time.Second)),
	)
}

// shapeFile runs one input through the driver. Every resource it opens is
// released before it returns, including on failure, so callers may exit
// right away. Stats are returned with an error once the driver has started.
func shapeFile(ctx context.Context, c *config.Config, r *rules.Rules, counters *metrics.Counters) (*pipeline.Stats, error) {
	log := logger.Get()
	format, err := sink.ParseFormat(c.Format)
	if err != nil {
		return nil, err
	}

	in, err := source.Open(ctx, c.InputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer in.Close()

	log.Info("Starting shape",
		zap.String("input", c.InputFile),
		zap.String("input_format", string(in.Format)),
		zap.String("input_size", metrics.FormatBytes(uint64(in.Size))),
		zap.String("output_dir", c.OutputDir),
		zap.String("format", string(format)),
	)

	opts := pipeline.Options{
		Rules:         r,
		Counters:      counters,
		TotalBytes:    in.Size,
		BytesRead:     in.BytesRead,
		ProgressEvery: c.ProgressEvery,
	}

	if c.ScriptFile != "" {
		rt := script.NewRuntime()
		defer rt.Close()
		if err := rt.LoadFile(c.ScriptFile); err != nil {
			return nil, fmt.Errorf("failed to load script: %w", err)
		}
		opts.Hook = rt
		log.Info("Loaded tag hook", zap.String("script", c.ScriptFile))
	}

	if c.CheckRefs {
		refs, err := nodeset.New(c.RefsDir, c.MaxNodeID)
		if err != nil {
			return nil, fmt.Errorf("failed to create node id set: %w", err)
		}
		defer func() {
			if err := refs.Close(); err != nil {
				log.Warn("Failed to remove node id set", zap.Error(err))
			}
		}()
		opts.Refs = refs
	}

	sinks, err := sink.Open(c.OutputDir, format, c.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open output tables: %w", err)
	}
	opts.Sinks = sinks

	stats, runErr := pipeline.NewDriver(in, opts).Run(ctx)

	// Rows written before a failure are kept on disk
	closeErr := sinks.Close()
	if runErr != nil {
		return stats, runErr
	}
	if closeErr != nil {
		return stats, fmt.Errorf("failed to close output tables: %w", closeErr)
	}
	return stats, nil
}
