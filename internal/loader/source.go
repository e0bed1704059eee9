package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/jackc/pgx/v5"

	"github.com/wegman-software/osmwrangle/internal/sink"
)

// tableSource streams typed rows of one output file into CopyFrom
type tableSource interface {
	pgx.CopyFromSource
	Close() error
}

func openSource(ctx context.Context, dir string, format sink.Format, table sink.Table) (tableSource, error) {
	path := filepath.Join(dir, table.File(format))
	if format == sink.FormatParquet {
		return newParquetSource(ctx, path, table)
	}
	return newCSVSource(path, table)
}

// csvSource parses a CSV file written by the CSV sink, converting each field
// with its column type
type csvSource struct {
	file   *os.File
	r      *csv.Reader
	table  sink.Table
	values []any
	line   int
	err    error
}

func newCSVSource(path string, table sink.Table) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(table.Columns)
	r.ReuseRecord = true

	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read header of %s: %w", path, err)
	}
	if !slices.Equal(header, table.ColumnNames()) {
		f.Close()
		return nil, fmt.Errorf("unexpected header in %s: got %v, want %v", path, header, table.ColumnNames())
	}

	return &csvSource{
		file:   f,
		r:      r,
		table:  table,
		values: make([]any, len(table.Columns)),
		line:   1,
	}, nil
}

func (s *csvSource) Next() bool {
	if s.err != nil {
		return false
	}
	record, err := s.r.Read()
	if errors.Is(err, io.EOF) {
		return false
	}
	s.line++
	if err != nil {
		s.err = fmt.Errorf("%s line %d: %w", s.table.Name, s.line, err)
		return false
	}
	for i, col := range s.table.Columns {
		v, err := col.Parse(record[i])
		if err != nil {
			s.err = fmt.Errorf("%s line %d: %w", s.table.Name, s.line, err)
			return false
		}
		s.values[i] = v
	}
	return true
}

func (s *csvSource) Values() ([]any, error) {
	return s.values, nil
}

func (s *csvSource) Err() error {
	return s.err
}

func (s *csvSource) Close() error {
	return s.file.Close()
}

// parquetSource walks the record batches of a Parquet file written by the
// Parquet sink
type parquetSource struct {
	pf     *file.Reader
	rr     pqarrow.RecordReader
	table  sink.Table
	rec    arrow.Record
	row    int
	values []any
	err    error
}

func newParquetSource(ctx context.Context, path string, table sink.Table) (*parquetSource, error) {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: 64 * 1024}, memory.DefaultAllocator)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("failed to create arrow reader for %s: %w", path, err)
	}

	schema, err := fr.Schema()
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("failed to read schema of %s: %w", path, err)
	}
	names := make([]string, schema.NumFields())
	for i, f := range schema.Fields() {
		names[i] = f.Name
	}
	if !slices.Equal(names, table.ColumnNames()) {
		pf.Close()
		return nil, fmt.Errorf("unexpected columns in %s: got %v, want %v", path, names, table.ColumnNames())
	}

	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("failed to create record reader for %s: %w", path, err)
	}

	return &parquetSource{
		pf:     pf,
		rr:     rr,
		table:  table,
		values: make([]any, len(table.Columns)),
	}, nil
}

func (s *parquetSource) Next() bool {
	if s.err != nil {
		return false
	}
	for s.rec == nil || s.row >= int(s.rec.NumRows()) {
		if !s.rr.Next() {
			if err := s.rr.Err(); err != nil && !errors.Is(err, io.EOF) {
				s.err = fmt.Errorf("%s: %w", s.table.Name, err)
			}
			return false
		}
		s.rec = s.rr.Record()
		s.row = 0
	}

	for i := range s.table.Columns {
		switch col := s.rec.Column(i).(type) {
		case *array.Int64:
			s.values[i] = col.Value(s.row)
		case *array.Float64:
			s.values[i] = col.Value(s.row)
		case *array.String:
			s.values[i] = col.Value(s.row)
		default:
			s.err = fmt.Errorf("%s.%s: unsupported arrow type %s", s.table.Name, s.table.Columns[i].Name, col.DataType())
			return false
		}
	}
	s.row++
	return true
}

func (s *parquetSource) Values() ([]any, error) {
	return s.values, nil
}

func (s *parquetSource) Err() error {
	return s.err
}

func (s *parquetSource) Close() error {
	s.rr.Release()
	return s.pf.Close()
}
