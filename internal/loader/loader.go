// Package loader bulk-loads shaped output files into existing PostgreSQL
// tables.
package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmwrangle/internal/config"
	"github.com/wegman-software/osmwrangle/internal/logger"
	"github.com/wegman-software/osmwrangle/internal/sink"
)

// Stats holds rows loaded per table
type Stats struct {
	mu   sync.Mutex
	Rows map[string]int64
}

func (s *Stats) add(table string, n int64) {
	s.mu.Lock()
	s.Rows[table] += n
	s.mu.Unlock()
}

// Total is the number of rows loaded across all tables
func (s *Stats) Total() int64 {
	var n int64
	for _, c := range s.Rows {
		n += c
	}
	return n
}

// Stages returns the load order: tables in one stage load concurrently and
// a stage only starts once the previous one committed. Parents come first
// so foreign keys on the child tables can be satisfied.
func Stages() [][]sink.Table {
	return [][]sink.Table{
		{sink.NodesTable, sink.WaysTable},
		{sink.NodeTagsTable, sink.WayNodesTable, sink.WayTagsTable},
	}
}

// Loader copies output files into PostgreSQL
type Loader struct {
	cfg    *config.Config
	format sink.Format
	pool   *pgxpool.Pool
}

// NewLoader connects a pool sized for the widest load stage
func NewLoader(ctx context.Context, cfg *config.Config) (*Loader, error) {
	format, err := sink.ParseFormat(cfg.Format)
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = int32(max(cfg.Workers, len(Stages()[1])))

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	return &Loader{cfg: cfg, format: format, pool: pool}, nil
}

// Close closes the pool
func (l *Loader) Close() error {
	l.pool.Close()
	return nil
}

// Run loads every table. Each table is copied in its own transaction.
func (l *Loader) Run(ctx context.Context) (*Stats, error) {
	log := logger.Get()
	stats := &Stats{Rows: make(map[string]int64)}

	if err := l.pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach PostgreSQL: %w", err)
	}

	for _, stage := range Stages() {
		g, gctx := errgroup.WithContext(ctx)
		for _, table := range stage {
			g.Go(func() error {
				log.Info("Loading table", zap.String("table", table.Name))
				n, err := l.loadTable(gctx, table)
				if err != nil {
					return fmt.Errorf("failed to load %s: %w", table.Name, err)
				}
				stats.add(table.Name, n)
				log.Info("Table loaded", zap.String("table", table.Name), zap.Int64("rows", n))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func (l *Loader) loadTable(ctx context.Context, table sink.Table) (int64, error) {
	src, err := openSource(ctx, l.cfg.OutputDir, l.format, table)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	n, err := tx.CopyFrom(ctx, l.identifier(table), table.ColumnNames(), src)
	if err != nil {
		return 0, fmt.Errorf("COPY failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return n, nil
}

func (l *Loader) identifier(table sink.Table) pgx.Identifier {
	if l.cfg.DBSchema == "" {
		return pgx.Identifier{table.Name}
	}
	return pgx.Identifier{l.cfg.DBSchema, table.Name}
}
