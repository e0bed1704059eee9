package source

import (
	"compress/bzip2"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
)

// Format identifies how an input file is decoded
type Format string

const (
	FormatXML      Format = "xml"
	FormatXMLGzip  Format = "xml.gz"
	FormatXMLBzip2 Format = "xml.bz2"
	FormatPBF      Format = "pbf"
)

// DetectFormat picks a format from the file name
func DetectFormat(path string) (Format, error) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".pbf"):
		return FormatPBF, nil
	case strings.HasSuffix(lower, ".gz"):
		return FormatXMLGzip, nil
	case strings.HasSuffix(lower, ".bz2"):
		return FormatXMLBzip2, nil
	case strings.HasSuffix(lower, ".osm"), strings.HasSuffix(lower, ".xml"):
		return FormatXML, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedInput, path)
}

// Input is an opened input file together with its element scanner
type Input struct {
	Scanner
	Path   string
	Format Format
	Size   int64

	file    *os.File
	counter *countingReader
	closers []io.Closer
}

// Open opens path and returns a scanner suited to its format
func Open(ctx context.Context, path string) (*Input, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat input file: %w", err)
	}

	in := &Input{
		Path:    path,
		Format:  format,
		Size:    info.Size(),
		file:    f,
		counter: &countingReader{r: f},
	}

	switch format {
	case FormatPBF:
		in.Scanner = NewPBFScanner(ctx, in.counter, runtime.NumCPU())
	case FormatXMLGzip:
		gz, err := gzip.NewReader(in.counter)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: failed to create gzip reader: %w", ErrMalformedInput, err)
		}
		in.closers = append(in.closers, gz)
		in.Scanner = NewXMLScanner(gz)
	case FormatXMLBzip2:
		in.Scanner = NewXMLScanner(bzip2.NewReader(in.counter))
	default:
		in.Scanner = NewXMLScanner(in.counter)
	}

	return in, nil
}

// BytesRead returns how many bytes of the file have been consumed
func (in *Input) BytesRead() int64 {
	return in.counter.n.Load()
}

// Close releases the scanner, decompressors and the file
func (in *Input) Close() error {
	var firstErr error
	if in.Scanner != nil {
		firstErr = in.Scanner.Close()
	}
	for _, c := range in.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := in.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// countingReader tracks bytes read for progress reporting. The PBF decoder
// reads from its own goroutine, so the counter is atomic.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
