package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"

	"staypermit/internal/records"
)

// ErrEmpty is returned instead of writing an artifact that holds no rows.
var ErrEmpty = errors.New("refusing to write an empty record set")

// Sink persists rows in a fixed column order.
type Sink interface {
	Name() string
	Write(ctx context.Context, columns []string, rows iter.Seq[[]string]) (int, error)
}

// WriteAll hands the record set to every sink in turn and stops at the first
// failure.
func WriteAll(ctx context.Context, set records.RecordSet, sinks ...Sink) error {
	if set.Len() == 0 {
		return ErrEmpty
	}
	for _, s := range sinks {
		n, err := s.Write(ctx, records.Header(), set.Rows())
		if err != nil {
			return fmt.Errorf("%s: %w", s.Name(), err)
		}
		if n != set.Len() {
			return fmt.Errorf("%s: wrote %d of %d rows", s.Name(), n, set.Len())
		}
	}
	return nil
}

func writeCSV(ctx context.Context, w io.Writer, columns []string, rows iter.Seq[[]string]) (int, error) {
	cw := csv.NewWriter(w)
	err := cw.Write(columns)
	if err != nil {
		return 0, err
	}
	n := 0
	for row := range rows {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if len(row) != len(columns) {
			return n, fmt.Errorf("row %d has %d values, expected %d", n, len(row), len(columns))
		}
		err = cw.Write(row)
		if err != nil {
			return n, err
		}
		n++
	}
	cw.Flush()
	return n, cw.Error()
}

// CSVFile writes a UTF-8 csv with a header row and no index column. The file
// is replaced atomically, a failed write leaves the previous one in place.
type CSVFile struct {
	Path string
}

func (f CSVFile) Name() string {
	return "csv " + f.Path
}

func (f CSVFile) Write(ctx context.Context, columns []string, rows iter.Seq[[]string]) (int, error) {
	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*")
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	n, err := writeCSV(ctx, tmp, columns, rows)
	if err != nil {
		return n, err
	}
	// CreateTemp makes the file owner only, readers of the artifact need more
	err = tmp.Chmod(0o644)
	if err != nil {
		return n, err
	}
	err = tmp.Sync()
	if err != nil {
		return n, err
	}
	err = tmp.Close()
	if err != nil {
		return n, err
	}
	err = os.Rename(tmp.Name(), f.Path)
	if err != nil {
		return n, err
	}
	committed = true
	return n, nil
}

// CSVWriter streams the csv to an already open writer such as stdout.
type CSVWriter struct {
	W io.Writer
}

func (w CSVWriter) Name() string {
	return "csv stream"
}

func (w CSVWriter) Write(ctx context.Context, columns []string, rows iter.Seq[[]string]) (int, error) {
	return writeCSV(ctx, w.W, columns, rows)
}
