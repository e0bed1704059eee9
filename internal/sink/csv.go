package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// CSVSink appends rows to a delimited text file. Every row is flushed to
// the file before Append returns.
type CSVSink struct {
	table  Table
	file   *os.File
	w      *csv.Writer
	record []string
}

// NewCSVSink creates the table's file in dir and writes the header
func NewCSVSink(dir string, table Table) (*CSVSink, error) {
	f, err := os.Create(filepath.Join(dir, table.File(FormatCSV)))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", table.Name, err)
	}

	s := &CSVSink{
		table:  table,
		file:   f,
		w:      csv.NewWriter(f),
		record: make([]string, len(table.Columns)),
	}
	if err := s.write(table.ColumnNames()); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Append writes one row. values must match the table's columns.
func (s *CSVSink) Append(values ...any) error {
	if len(values) != len(s.table.Columns) {
		return fmt.Errorf("%s: got %d values for %d columns", s.table.Name, len(values), len(s.table.Columns))
	}
	for i, v := range values {
		text, err := formatValue(v)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", s.table.Name, s.table.Columns[i].Name, err)
		}
		s.record[i] = text
	}
	return s.write(s.record)
}

func (s *CSVSink) write(record []string) error {
	if err := s.w.Write(record); err != nil {
		return fmt.Errorf("failed to write %s row: %w", s.table.Name, err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", s.table.Name, err)
	}
	return nil
}

// Close closes the underlying file
func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

func formatValue(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	}
	return "", fmt.Errorf("unsupported value type %T", v)
}
