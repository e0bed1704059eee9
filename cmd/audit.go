package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wegman-software/osmwrangle/internal/audit"
	"github.com/wegman-software/osmwrangle/internal/logger"
	"github.com/wegman-software/osmwrangle/internal/source"
)

var auditCmd = &cobra.Command{
	Use:   "audit <input>",
	Short: "Report tag key classes and suspicious values without writing tables",
	Long: `Scan an OSM extract and write a YAML data quality report:

  - element counts by type
  - tag key class counts (lower, lower_colon, problemchars, alldigits,
    allletters, other)
  - street types outside the expected list, with sample names
  - state, country, postcode and phone values that fail the cleaning rules`,
	Args: cobra.ExactArgs(1),
	Run:  runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&cfg.AuditOutput, "output", "", "Report file (default: stdout)")
}

func runAudit(cmd *cobra.Command, args []string) {
	log := logger.Get()
	cfg.InputFile = args[0]
	r := loadRules()

	ctx, cancel := signalContext()
	defer cancel()

	in, err := source.Open(ctx, cfg.InputFile)
	if err != nil {
		exitWithError("failed to open input", err)
	}
	defer in.Close()

	log.Info("Starting audit", zap.String("input", cfg.InputFile))

	report, err := audit.New(r).Run(ctx, in)
	if err != nil {
		exitWithError("audit failed", err)
	}

	out := os.Stdout
	if cfg.AuditOutput != "" {
		f, err := os.Create(cfg.AuditOutput)
		if err != nil {
			exitWithError("failed to create report file", err)
		}
		defer f.Close()
		out = f
	}

	if err := report.Write(out); err != nil {
		exitWithError("failed to write report", err)
	}
	if cfg.AuditOutput != "" {
		log.Info("Wrote audit report", zap.String("path", cfg.AuditOutput))
	}
}
