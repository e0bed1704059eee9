package config

import (
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/wegman-software/osmwrangle/internal/nodeset"
	"github.com/wegman-software/osmwrangle/internal/sink"
)

// Config holds the settings shared by all commands
type Config struct {
	// Input settings
	InputFile string

	// Output settings
	OutputDir string
	Format    string // csv or parquet
	BatchSize int    // Parquet rows per row group

	// Shaping
	RulesFile  string // YAML rules, built-in defaults when empty
	ScriptFile string // Lua tag hook
	CheckRefs  bool   // count way node refs to nodes that were not emitted
	RefsDir    string // backing directory for the ref bitset, anonymous memory when empty
	MaxNodeID  int64

	// Audit
	AuditOutput string // report path, stdout when empty

	// Database settings
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSchema   string
	Workers    int

	// Logging and metrics
	Verbose         bool
	LogFile         string        // Path to log file (empty = no file logging)
	MetricsInterval time.Duration // Interval for resource sampling, 0 disables
	MetricsFile     string        // Prometheus text file written at the end of a run
	ProgressEvery   int64         // Elements between progress lines
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		OutputDir:       "./osm_data",
		Format:          string(sink.FormatCSV),
		BatchSize:       100000,
		MaxNodeID:       nodeset.DefaultMaxID,
		DBHost:          "localhost",
		DBPort:          5432,
		DBName:          "osm",
		DBUser:          "postgres",
		DBSchema:        "public",
		Workers:         runtime.NumCPU(),
		MetricsInterval: 30 * time.Second,
		ProgressEvery:   1_000_000,
	}
}

// ConnectionString returns a PostgreSQL connection string
func (c *Config) ConnectionString() string {
	connStr := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser,
	)
	if c.DBPassword != "" {
		connStr += fmt.Sprintf(" password=%s", c.DBPassword)
	}
	return connStr
}

// EnvFlags maps the libpq environment variables onto the flags they feed
var EnvFlags = map[string]string{
	"PGHOST":     "db-host",
	"PGPORT":     "db-port",
	"PGDATABASE": "db-name",
	"PGUSER":     "db-user",
	"PGPASSWORD": "db-password",
}

// ApplyEnv fills database settings from the libpq environment variables.
// Settings whose flag was given explicitly are left alone.
func (c *Config) ApplyEnv(lookup func(string) (string, bool), explicit func(flag string) bool) error {
	for env, flag := range EnvFlags {
		if explicit != nil && explicit(flag) {
			continue
		}
		v, ok := lookup(env)
		if !ok || v == "" {
			continue
		}
		switch env {
		case "PGHOST":
			c.DBHost = v
		case "PGPORT":
			port, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid PGPORT %q: %w", v, err)
			}
			c.DBPort = port
		case "PGDATABASE":
			c.DBName = v
		case "PGUSER":
			c.DBUser = v
		case "PGPASSWORD":
			c.DBPassword = v
		}
	}
	return nil
}

// Validate checks the settings used by shape and audit
func (c *Config) Validate() error {
	if c.InputFile == "" {
		return fmt.Errorf("input file is required")
	}
	return c.ValidateOutput()
}

// ValidateOutput checks the output settings, which load also depends on
func (c *Config) ValidateOutput() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if _, err := sink.ParseFormat(c.Format); err != nil {
		return err
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1")
	}
	if c.MaxNodeID < 1 {
		return fmt.Errorf("max node id must be positive")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	return nil
}
