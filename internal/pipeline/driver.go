// Package pipeline drives one input stream through the shaper into the
// output tables.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/paulmach/osm"
	"go.uber.org/zap"

	"github.com/wegman-software/osmwrangle/internal/logger"
	"github.com/wegman-software/osmwrangle/internal/metrics"
	"github.com/wegman-software/osmwrangle/internal/nodeset"
	"github.com/wegman-software/osmwrangle/internal/rules"
	"github.com/wegman-software/osmwrangle/internal/shape"
	"github.com/wegman-software/osmwrangle/internal/sink"
	"github.com/wegman-software/osmwrangle/internal/source"
)

const defaultProgressEvery = 1_000_000

// Options configures a Driver. Rules and Sinks are required.
type Options struct {
	Rules *rules.Rules
	Sinks *sink.Set
	// Hook runs after normalization for every accepted tag
	Hook shape.TagHook
	// Counters receives run totals; a private set is created when nil
	Counters *metrics.Counters
	// Refs enables the dangling reference check
	Refs *nodeset.Set

	// TotalBytes and BytesRead feed progress percentages when set
	TotalBytes    int64
	BytesRead     func() int64
	ProgressEvery int64
}

// Driver pulls elements from a scanner one at a time and writes their rows.
// It owns the sinks for the duration of Run.
type Driver struct {
	scanner  source.Scanner
	shaper   *shape.Shaper
	sinks    *sink.Set
	counters *metrics.Counters
	refs     *nodeset.Set
	opts     Options
	log      *zap.Logger
}

// NewDriver creates a driver over scanner
func NewDriver(scanner source.Scanner, opts Options) *Driver {
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = defaultProgressEvery
	}
	counters := opts.Counters
	if counters == nil {
		counters = metrics.NewCounters()
	}
	return &Driver{
		scanner:  scanner,
		shaper:   shape.New(opts.Rules, opts.Hook),
		sinks:    opts.Sinks,
		counters: counters,
		refs:     opts.Refs,
		opts:     opts,
		log:      logger.Get(),
	}
}

// Run consumes the whole input. Rows written before an error stay in the
// sinks; the caller closes them.
func (d *Driver) Run(ctx context.Context) (*Stats, error) {
	stats := newStats()
	start := time.Now()
	tracker := NewProgressTracker(d.opts.TotalBytes)

	defer func() {
		stats.Duration = time.Since(start)
		stats.Relations = d.scanner.Relations()
		if d.opts.BytesRead != nil {
			stats.BytesRead = d.opts.BytesRead()
		}
	}()

	for d.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		raw := d.scanner.Element()
		stats.Elements[raw.Type]++

		out, err := d.shaper.Shape(raw)
		if err != nil {
			return stats, err
		}

		if !out.IsEmitted() {
			stats.Skipped[out.Reason]++
			d.counters.Elements.WithLabelValues(string(raw.Type), string(out.Reason)).Inc()
			if ce := d.log.Check(zap.DebugLevel, "Skipped element"); ce != nil {
				id, _ := raw.Attr("id")
				ce.Write(
					zap.String("type", string(raw.Type)),
					zap.String("id", id),
					zap.String("reason", string(out.Reason)),
					zap.String("field", out.Field),
				)
			}
		} else {
			if err := d.write(out.Element, stats); err != nil {
				return stats, err
			}
			stats.Emitted[raw.Type]++
			d.counters.Elements.WithLabelValues(string(raw.Type), "emitted").Inc()
		}

		if n := stats.TotalElements(); n%d.opts.ProgressEvery == 0 {
			d.logProgress(tracker, n)
		}
	}

	if err := d.scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read input: %w", err)
	}
	return stats, nil
}

func (d *Driver) write(el *shape.Element, stats *Stats) error {
	p := &el.Primary

	switch p.Type {
	case osm.TypeNode:
		if err := d.append(stats, d.sinks.Nodes, sink.NodesTable,
			p.ID, p.Lat, p.Lon, p.User, p.UID, p.Version, p.Changeset, p.Timestamp); err != nil {
			return err
		}
		if d.refs != nil {
			d.refs.Add(p.ID)
		}
		if err := d.writeTags(el, d.sinks.NodeTags, sink.NodeTagsTable, stats); err != nil {
			return err
		}

	case osm.TypeWay:
		if err := d.append(stats, d.sinks.Ways, sink.WaysTable,
			p.ID, p.User, p.UID, p.Version, p.Changeset, p.Timestamp); err != nil {
			return err
		}
		if err := d.writeTags(el, d.sinks.WayTags, sink.WayTagsTable, stats); err != nil {
			return err
		}
		for _, wn := range el.WayNodes {
			if err := d.append(stats, d.sinks.WayNodes, sink.WayNodesTable,
				wn.WayID, wn.NodeID, wn.Position); err != nil {
				return err
			}
			d.checkRef(wn.NodeID, stats)
		}
	}

	for _, r := range el.Rejected {
		stats.RejectedTags[r.Reason]++
		d.counters.Tags.WithLabelValues(string(r.Reason)).Inc()
	}
	for _, rule := range el.Unrecognized {
		stats.Unrecognized[rule]++
		d.counters.Unrecognized.WithLabelValues(string(rule)).Inc()
	}
	return nil
}

func (d *Driver) writeTags(el *shape.Element, s sink.Sink, table sink.Table, stats *Stats) error {
	for _, t := range el.Tags {
		if err := d.append(stats, s, table, t.OwnerID, t.Key, t.Value, t.Namespace); err != nil {
			return err
		}
	}
	stats.TagsWritten += int64(len(el.Tags))
	d.counters.Tags.WithLabelValues("written").Add(float64(len(el.Tags)))
	return nil
}

func (d *Driver) append(stats *Stats, s sink.Sink, table sink.Table, values ...any) error {
	if err := s.Append(values...); err != nil {
		return fmt.Errorf("failed to write %s row: %w", table.Name, err)
	}
	stats.Rows[table.Name]++
	d.counters.Rows.WithLabelValues(table.Name).Inc()
	return nil
}

// checkRef counts refs to nodes that were not emitted earlier in the input
func (d *Driver) checkRef(nodeID int64, stats *Stats) {
	if d.refs == nil {
		return
	}
	if !d.refs.InRange(nodeID) {
		stats.OutOfRangeRefs++
		return
	}
	if !d.refs.Has(nodeID) {
		stats.DanglingRefs++
		d.counters.DanglingRefs.Inc()
	}
}

func (d *Driver) logProgress(tracker *ProgressTracker, elements int64) {
	var bytesRead int64
	if d.opts.BytesRead != nil {
		bytesRead = d.opts.BytesRead()
	}
	p := tracker.Calculate(elements, bytesRead)
	d.log.Info("Progress",
		zap.Int64("elements", p.Elements),
		zap.String("pct", fmt.Sprintf("%.1f%%", p.Percentage)),
		zap.String("rate", FormatThroughput(p.Throughput)),
		zap.Duration("elapsed", p.Elapsed),
		zap.String("eta", FormatETA(p.ETA)),
	)
}

// LogSummary writes the run totals at info level
func LogSummary(log *zap.Logger, stats *Stats) {
	log.Info("Shaping complete",
		zap.Int64("nodes", stats.Emitted[osm.TypeNode]),
		zap.Int64("ways", stats.Emitted[osm.TypeWay]),
		zap.Int64("skipped", stats.TotalSkipped()),
		zap.Int64("relations_ignored", stats.Relations),
		zap.Int64("tags", stats.TagsWritten),
		zap.Int64("rows", stats.TotalRows()),
		zap.Duration("duration", stats.Duration.Round(time.Millisecond)),
	)
	for reason, n := range stats.Skipped {
		log.Info("Skipped elements", zap.String("reason", string(reason)), zap.Int64("count", n))
	}
	for reason, n := range stats.RejectedTags {
		log.Info("Rejected tags", zap.String("reason", string(reason)), zap.Int64("count", n))
	}
	for rule, n := range stats.Unrecognized {
		log.Info("Unrecognized values", zap.String("rule", string(rule)), zap.Int64("count", n))
	}
	if stats.DanglingRefs > 0 || stats.OutOfRangeRefs > 0 {
		log.Warn("Way node references without an emitted node",
			zap.Int64("dangling", stats.DanglingRefs),
			zap.Int64("out_of_range", stats.OutOfRangeRefs))
	}
}
