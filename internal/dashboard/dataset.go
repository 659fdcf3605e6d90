package dashboard

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"staypermit/internal/records"
)

// Entry is one application read back from the csv artifact.
type Entry struct {
	Values  []string
	Applied time.Time
}

func (e Entry) Get(col int) string {
	return e.Values[col]
}

type Dataset struct {
	Entries []Entry
	// Dropped counts rows without a usable application date.
	Dropped int
}

// Load reads the csv artifact. Columns are matched by header name so a
// reordered file still loads, rows whose application date cannot be parsed
// are counted and left out.
func Load(r io.Reader, loc *time.Location) (Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Dataset{}, fmt.Errorf("empty file")
	}
	if err != nil {
		return Dataset{}, err
	}

	positions := make([]int, len(records.Schema))
	for i := range positions {
		positions[i] = -1
	}
	for pos, name := range header {
		idx, ok := records.ColumnIndex(name)
		if ok {
			positions[idx] = pos
		}
	}
	for _, required := range []int{records.ColApplicationNumber, records.ColApplicationDate} {
		if positions[required] < 0 {
			return Dataset{}, fmt.Errorf("missing column %q", records.Schema[required].Name)
		}
	}

	var ds Dataset
	for {
		line, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, err
		}

		values := make([]string, len(records.Schema))
		for idx, pos := range positions {
			if pos >= 0 && pos < len(line) {
				values[idx] = line[pos]
			}
		}
		applied, err := ParseDate(values[records.ColApplicationDate], loc)
		if err != nil {
			ds.Dropped++
			continue
		}
		ds.Entries = append(ds.Entries, Entry{Values: values, Applied: applied})
	}
	return ds, nil
}

func LoadFile(path string, loc *time.Location) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, err
	}
	defer f.Close()
	return Load(f, loc)
}

// Earliest returns the earliest application date, ok is false for an empty
// dataset.
func (d Dataset) Earliest() (time.Time, bool) {
	if len(d.Entries) == 0 {
		return time.Time{}, false
	}
	earliest := d.Entries[0].Applied
	for _, e := range d.Entries[1:] {
		if e.Applied.Before(earliest) {
			earliest = e.Applied
		}
	}
	return earliest, true
}

// Distinct returns the distinct values of a column in order of first
// appearance.
func (d Dataset) Distinct(col int) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range d.Entries {
		v := e.Values[col]
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
