package pipeline

import (
	"time"

	"github.com/paulmach/osm"

	"github.com/wegman-software/osmwrangle/internal/normalize"
	"github.com/wegman-software/osmwrangle/internal/shape"
)

// Stats summarizes one run
type Stats struct {
	Elements     map[osm.Type]int64
	Emitted      map[osm.Type]int64
	Skipped      map[shape.SkipReason]int64
	RejectedTags map[shape.RejectReason]int64
	Unrecognized map[normalize.Rule]int64
	// Rows by table name
	Rows        map[string]int64
	TagsWritten int64
	// Relations passed over by the scanner
	Relations int64

	// Only counted with reference checking enabled
	DanglingRefs   int64
	OutOfRangeRefs int64

	BytesRead int64
	Duration  time.Duration
}

func newStats() *Stats {
	return &Stats{
		Elements:     make(map[osm.Type]int64),
		Emitted:      make(map[osm.Type]int64),
		Skipped:      make(map[shape.SkipReason]int64),
		RejectedTags: make(map[shape.RejectReason]int64),
		Unrecognized: make(map[normalize.Rule]int64),
		Rows:         make(map[string]int64),
	}
}

// TotalElements is the number of nodes and ways seen
func (s *Stats) TotalElements() int64 {
	var n int64
	for _, c := range s.Elements {
		n += c
	}
	return n
}

// TotalSkipped is the number of elements that produced no rows
func (s *Stats) TotalSkipped() int64 {
	var n int64
	for _, c := range s.Skipped {
		n += c
	}
	return n
}

// TotalRows is the number of rows written across all tables
func (s *Stats) TotalRows() int64 {
	var n int64
	for _, c := range s.Rows {
		n += c
	}
	return n
}
