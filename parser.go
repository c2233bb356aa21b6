package reviewloader

import (
	"context"
	"errors"
	"io"

	"github.com/extrame/xls"
	"gitlab.com/osaki-lab/iowrapper"
	"golang.org/x/xerrors"

	"go.nownabe.dev/reviewloader/dataset"
)

var (
	// ErrMalformedSource marks source files that cannot be parsed.
	ErrMalformedSource = errors.New("malformed source")

	errNoSheet = errors.New("no sheet found")
)

// Parser parses files from storage into a dataset. The first record is the
// header.
type Parser func(context.Context, io.Reader) (*dataset.Dataset, error)

// CSVParser provides a parser to parse CSV files with a header row.
func CSVParser() Parser {
	return func(_ context.Context, r io.Reader) (*dataset.Dataset, error) {
		ds, err := dataset.ReadCSV(r)
		if err != nil {
			return nil, xerrors.Errorf("%v: %w", err, ErrMalformedSource)
		}
		return ds, nil
	}
}

// XLSParser provides a parser for the first sheet of legacy Excel exports.
// Rows shorter than the header are padded with empty values.
func XLSParser() Parser {
	getRow := func(sheet *xls.WorkSheet, i int) (r *xls.Row, ok bool) {
		defer func() {
			if recover() != nil {
				r, ok = nil, false
			}
		}()

		return sheet.Row(i), true
	}

	open := func(r io.Reader) (wb *xls.WorkBook, err error) {
		defer func() {
			if p := recover(); p != nil {
				wb, err = nil, xerrors.Errorf("xls reader panicked: %v", p)
			}
		}()

		return xls.OpenReader(iowrapper.NewSeeker(r), "utf-8")
	}

	return func(_ context.Context, r io.Reader) (*dataset.Dataset, error) {
		wb, err := open(r)
		if err != nil {
			return nil, xerrors.Errorf("failed to open xls file: %v: %w", err, ErrMalformedSource)
		}

		sheet := wb.GetSheet(0)
		if sheet == nil {
			return nil, xerrors.Errorf("%v: %w", errNoSheet, ErrMalformedSource)
		}

		records := [][]string{}
		for i := 0; i <= int(sheet.MaxRow); i++ {
			row, ok := getRow(sheet, i)
			if !ok || row == nil {
				continue
			}

			record := []string{}
			for col := row.FirstCol(); col < row.LastCol(); col++ {
				record = append(record, row.Col(col))
			}
			records = append(records, record)
		}

		if len(records) == 0 {
			return nil, xerrors.Errorf("%v: %w", dataset.ErrNoHeader, ErrMalformedSource)
		}

		width := len(records[0])
		for i, rec := range records[1:] {
			for len(rec) < width {
				rec = append(rec, "")
			}
			records[i+1] = rec[:width]
		}

		ds, err := dataset.FromRecords(records)
		if err != nil {
			return nil, xerrors.Errorf("%v: %w", err, ErrMalformedSource)
		}
		return ds, nil
	}
}

func parserFor(format string) Parser {
	if format == "xls" {
		return XLSParser()
	}
	return CSVParser()
}
