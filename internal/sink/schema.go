// Package sink writes shaped rows to the five output tables.
package sink

import (
	"fmt"
	"strconv"
)

// ColumnType is the value type stored in a column
type ColumnType int

const (
	Int64 ColumnType = iota
	Float64
	Text
)

func (t ColumnType) String() string {
	switch t {
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	default:
		return "text"
	}
}

// Column is one named, typed output column
type Column struct {
	Name string
	Type ColumnType
}

// Parse converts a text field back into the column's Go type
func (c Column) Parse(s string) (any, error) {
	switch c.Type {
	case Int64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		return v, nil
	case Float64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		return v, nil
	default:
		return s, nil
	}
}

// Table describes one output table
type Table struct {
	Name    string
	Columns []Column
}

// File returns the table's file name for format
func (t Table) File(format Format) string {
	return t.Name + "." + string(format)
}

// ColumnNames returns the header row
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

var tagColumns = []Column{
	{"id", Int64},
	{"key", Text},
	{"value", Text},
	{"type", Text},
}

var (
	NodesTable = Table{Name: "nodes", Columns: []Column{
		{"id", Int64},
		{"lat", Float64},
		{"lon", Float64},
		{"user", Text},
		{"uid", Int64},
		{"version", Text},
		{"changeset", Int64},
		{"timestamp", Text},
	}}
	NodeTagsTable = Table{Name: "nodes_tags", Columns: tagColumns}
	WaysTable     = Table{Name: "ways", Columns: []Column{
		{"id", Int64},
		{"user", Text},
		{"uid", Int64},
		{"version", Text},
		{"changeset", Int64},
		{"timestamp", Text},
	}}
	WayNodesTable = Table{Name: "ways_nodes", Columns: []Column{
		{"id", Int64},
		{"node_id", Int64},
		{"position", Int64},
	}}
	WayTagsTable = Table{Name: "ways_tags", Columns: tagColumns}
)

// Tables lists every output table in file order. loader.Stages gives the
// parent-first load order.
var Tables = []Table{NodesTable, NodeTagsTable, WaysTable, WayNodesTable, WayTagsTable}

// Format selects the file encoding
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format name
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatParquet:
		return Format(s), nil
	}
	return "", fmt.Errorf("unknown output format %q (want csv or parquet)", s)
}
