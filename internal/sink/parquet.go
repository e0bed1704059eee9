package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
)

// ParquetSink appends rows to a Zstd-compressed Parquet file, one row group
// per batch. Rows still in the builder are lost if the process dies.
type ParquetSink struct {
	table     Table
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
}

// NewParquetSink creates the table's file in dir
func NewParquetSink(dir string, table Table, batchSize int) (*ParquetSink, error) {
	fields := make([]arrow.Field, len(table.Columns))
	for i, c := range table.Columns {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Type), Nullable: false}
	}
	schema := arrow.NewSchema(fields, nil)

	f, err := os.Create(filepath.Join(dir, table.File(FormatParquet)))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", table.Name, err)
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create parquet writer for %s: %w", table.Name, err)
	}

	if batchSize < 1 {
		batchSize = 1
	}
	return &ParquetSink{
		table:     table,
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, schema),
		batchSize: batchSize,
	}, nil
}

func arrowType(t ColumnType) arrow.DataType {
	switch t {
	case Int64:
		return arrow.PrimitiveTypes.Int64
	case Float64:
		return arrow.PrimitiveTypes.Float64
	default:
		return arrow.BinaryTypes.String
	}
}

// Append buffers one row and writes a row group when the batch is full
func (s *ParquetSink) Append(values ...any) error {
	if len(values) != len(s.table.Columns) {
		return fmt.Errorf("%s: got %d values for %d columns", s.table.Name, len(values), len(s.table.Columns))
	}

	// validate the whole row first so a bad value never leaves ragged columns
	for i, v := range values {
		if !accepts(s.table.Columns[i].Type, v) {
			return fmt.Errorf("%s.%s: unsupported value type %T", s.table.Name, s.table.Columns[i].Name, v)
		}
	}

	for i, v := range values {
		switch b := s.builder.Field(i).(type) {
		case *array.Int64Builder:
			switch v := v.(type) {
			case int64:
				b.Append(v)
			case int:
				b.Append(int64(v))
			}
		case *array.Float64Builder:
			b.Append(v.(float64))
		case *array.StringBuilder:
			b.Append(v.(string))
		}
	}

	s.count++
	if s.count >= s.batchSize {
		return s.flush()
	}
	return nil
}

func accepts(t ColumnType, v any) bool {
	switch v.(type) {
	case int64, int:
		return t == Int64
	case float64:
		return t == Float64
	case string:
		return t == Text
	}
	return false
}

func (s *ParquetSink) flush() error {
	if s.count == 0 {
		return nil
	}
	rec := s.builder.NewRecord()
	defer rec.Release()
	s.count = 0
	if err := s.writer.Write(rec); err != nil {
		return fmt.Errorf("failed to write %s row group: %w", s.table.Name, err)
	}
	return nil
}

// Close writes buffered rows and the file footer
func (s *ParquetSink) Close() error {
	defer s.builder.Release()
	if err := s.flush(); err != nil {
		s.writer.Close()
		return err
	}
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", s.table.Name, err)
	}
	if err := s.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
