package sink

import (
	"fmt"
	"os"
)

// Sink is an append-only table writer
type Sink interface {
	Append(values ...any) error
	Close() error
}

// Set holds one sink per output table
type Set struct {
	Nodes    Sink
	NodeTags Sink
	Ways     Sink
	WayNodes Sink
	WayTags  Sink
}

// Open creates dir if needed and opens all five tables in format.
// batchSize only applies to Parquet.
func Open(dir string, format Format, batchSize int) (*Set, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	opened := make([]Sink, 0, len(Tables))
	for _, t := range Tables {
		var (
			s   Sink
			err error
		)
		switch format {
		case FormatParquet:
			s, err = NewParquetSink(dir, t, batchSize)
		default:
			s, err = NewCSVSink(dir, t)
		}
		if err != nil {
			for _, o := range opened {
				o.Close()
			}
			return nil, err
		}
		opened = append(opened, s)
	}

	return &Set{
		Nodes:    opened[0],
		NodeTags: opened[1],
		Ways:     opened[2],
		WayNodes: opened[3],
		WayTags:  opened[4],
	}, nil
}

// All returns the sinks in table order
func (s *Set) All() []Sink {
	return []Sink{s.Nodes, s.NodeTags, s.Ways, s.WayNodes, s.WayTags}
}

// Close closes every sink and returns the first error
func (s *Set) Close() error {
	var firstErr error
	for _, sk := range s.All() {
		if sk == nil {
			continue
		}
		if err := sk.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
