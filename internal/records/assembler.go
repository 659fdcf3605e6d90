package records

import (
	"errors"
	"fmt"
	"iter"
	"strings"
)

// RawRow is the ordered cell text of one rendered table row.
type RawRow []string

// NonEmpty counts the cells holding any non whitespace text.
func (r RawRow) NonEmpty() int {
	n := 0
	for _, cell := range r {
		if strings.TrimSpace(cell) != "" {
			n++
		}
	}
	return n
}

// IsData reports whether the row carries data, loading placeholders and "no
// data" rows span a single cell.
func (r RawRow) IsData() bool {
	return r.NonEmpty() >= 2
}

// Record is one application normalized onto Schema.
type Record struct {
	values []string
}

func (r Record) Key() string {
	return r.values[KeyColumn]
}

// Get returns the value of a column by name or key.
func (r Record) Get(column string) string {
	idx, ok := ColumnIndex(column)
	if !ok {
		return ""
	}
	return r.values[idx]
}

// Values returns a copy of the values in schema order.
func (r Record) Values() []string {
	out := make([]string, len(r.values))
	copy(out, r.values)
	return out
}

// MalformedRowError is returned for a row that cannot be mapped onto Schema.
type MalformedRowError struct {
	Cells  int
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row (%d cells): %s", e.Cells, e.Reason)
}

// ErrMissingKey is returned for a well formed row without an application
// number, it cannot be deduplicated.
var ErrMissingKey = errors.New("row has no " + Schema[KeyColumn].Name)

// Stats are the assembler's observability counters. Malformed counts rows
// with the wrong number of cells, Keyless the rows without a business key.
type Stats struct {
	Observed   int
	Duplicates int
	Malformed  int
	Keyless    int
}

type entry struct {
	record Record
	alive  bool
}

// Assembler maps raw rows onto Schema and deduplicates by business key, the
// most recently added occurrence of a key wins and takes the later position.
type Assembler struct {
	schema  []Column
	entries []entry
	index   map[string]int
	stats   Stats
}

func NewAssembler() *Assembler {
	return &Assembler{
		schema: Schema,
		index:  map[string]int{},
	}
}

// Add maps one row. A malformed or keyless row is counted and returned as an
// error, it never disturbs records already added.
func (a *Assembler) Add(row RawRow) error {
	a.stats.Observed++

	if len(row) != len(a.schema) {
		a.stats.Malformed++
		return &MalformedRowError{
			Cells:  len(row),
			Reason: fmt.Sprintf("expected %d cells", len(a.schema)),
		}
	}
	values := make([]string, len(row))
	for i, cell := range row {
		values[i] = strings.TrimSpace(cell)
	}
	record := Record{values: values}
	key := record.Key()
	if key == "" {
		a.stats.Keyless++
		return ErrMissingKey
	}

	if previous, ok := a.index[key]; ok {
		a.entries[previous].alive = false
		a.stats.Duplicates++
	}
	a.entries = append(a.entries, entry{record: record, alive: true})
	a.index[key] = len(a.entries) - 1
	return nil
}

func (a *Assembler) Stats() Stats {
	return a.stats
}

// RecordSet snapshots the surviving records in order.
func (a *Assembler) RecordSet() RecordSet {
	records := make([]Record, 0, len(a.index))
	for _, e := range a.entries {
		if e.alive {
			records = append(records, e.record)
		}
	}
	return RecordSet{records: records}
}

// Assemble maps a whole corpus in one go, malformed rows are skipped and
// reflected in the returned Stats.
func Assemble(rows []RawRow) (RecordSet, Stats) {
	a := NewAssembler()
	for _, row := range rows {
		_ = a.Add(row)
	}
	return a.RecordSet(), a.Stats()
}

// RecordSet is a deduplicated, ordered collection of records.
type RecordSet struct {
	records []Record
}

func (s RecordSet) Len() int {
	return len(s.records)
}

func (s RecordSet) Records() []Record {
	return s.records
}

// Lookup finds a record by business key.
func (s RecordSet) Lookup(key string) (Record, bool) {
	for _, r := range s.records {
		if r.Key() == key {
			return r, true
		}
	}
	return Record{}, false
}

// Rows yields the values of each record in schema order.
func (s RecordSet) Rows() iter.Seq[[]string] {
	return func(yield func([]string) bool) {
		for _, r := range s.records {
			if !yield(r.Values()) {
				return
			}
		}
	}
}
