// Package dataset holds the in-memory table passed between pipeline stages.
package dataset

import (
	"encoding/csv"
	"errors"
	"io"

	"golang.org/x/xerrors"
)

var (
	// ErrNoHeader is returned when a source has no header row.
	ErrNoHeader = errors.New("no header row")

	errRaggedRow = errors.New("row width differs from header")
)

// Dataset is a table of rows with named columns. Values are kept as
// strings; typing is left to the destination warehouse.
type Dataset struct {
	Header []string
	Rows   [][]string
}

// New builds a dataset and checks that every row matches the header width.
func New(header []string, rows [][]string) (*Dataset, error) {
	for i, r := range rows {
		if len(r) != len(header) {
			return nil, xerrors.Errorf("row %d has %d fields, header has %d: %w", i, len(r), len(header), errRaggedRow)
		}
	}

	return &Dataset{Header: header, Rows: rows}, nil
}

// Empty returns a dataset without columns or rows.
func Empty() *Dataset {
	return &Dataset{Header: []string{}, Rows: [][]string{}}
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// IsEmpty reports whether the dataset has no rows.
func (d *Dataset) IsEmpty() bool {
	return d.Len() == 0
}

// Index returns the position of the named column or -1.
func (d *Dataset) Index(name string) int {
	for i, h := range d.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the values of the named column.
func (d *Dataset) Column(name string) ([]string, bool) {
	i := d.Index(name)
	if i < 0 {
		return nil, false
	}

	col := make([]string, len(d.Rows))
	for j, r := range d.Rows {
		col[j] = r[i]
	}

	return col, true
}

// Filter returns a new dataset with the rows for which keep returns true.
func (d *Dataset) Filter(keep func([]string) bool) *Dataset {
	out := &Dataset{Header: append([]string{}, d.Header...), Rows: [][]string{}}
	for _, r := range d.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, append([]string{}, r...))
		}
	}
	return out
}

// Clone returns a deep copy.
func (d *Dataset) Clone() *Dataset {
	return d.Filter(func([]string) bool { return true })
}

// Append adds the rows of other, which must have the same header.
func (d *Dataset) Append(other *Dataset) error {
	if other.IsEmpty() {
		return nil
	}
	if len(d.Header) == 0 && d.IsEmpty() {
		d.Header = append([]string{}, other.Header...)
	}
	if !sameHeader(d.Header, other.Header) {
		return xerrors.Errorf("cannot append %v to %v: header mismatch", other.Header, d.Header)
	}
	for _, r := range other.Rows {
		d.Rows = append(d.Rows, append([]string{}, r...))
	}
	return nil
}

func sameHeader(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ReadCSV parses CSV whose first record is the header.
func ReadCSV(r io.Reader) (*Dataset, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, xerrors.Errorf("failed to read csv: %w", err)
	}

	return FromRecords(records)
}

// FromRecords treats the first record as the header.
func FromRecords(records [][]string) (*Dataset, error) {
	if len(records) == 0 {
		return nil, ErrNoHeader
	}

	return New(records[0], records[1:])
}

// WriteCSV writes the header followed by every row.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.Header); err != nil {
		return xerrors.Errorf("failed to write header: %w", err)
	}
	if err := cw.WriteAll(d.Rows); err != nil {
		return xerrors.Errorf("failed to write rows: %w", err)
	}
	return nil
}
