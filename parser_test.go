package reviewloader

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestCSVParser(t *testing.T) {
	src := "a,b\n1,foo\n2,\"bar, baz\"\n"

	ds, err := CSVParser()(context.Background(), strings.NewReader(src))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if ds.Len() != 2 {
		t.Fatalf("Size of rows should be 2, but %d", ds.Len())
	}
	if ds.Rows[1][1] != "bar, baz" {
		t.Errorf(`rows[1][1] should be "bar, baz", but "%s"`, ds.Rows[1][1])
	}
}

func TestCSVParser_malformed(t *testing.T) {
	cases := map[string]string{
		"empty":  "",
		"ragged": "a,b\n1,2,3\n",
		"quote":  "a,b\n\"1,2\n",
	}

	for name, src := range cases {
		src := src
		t.Run(name, func(t *testing.T) {
			_, err := CSVParser()(context.Background(), strings.NewReader(src))
			if !errors.Is(err, ErrMalformedSource) {
				t.Errorf("error should be ErrMalformedSource, but %v", err)
			}
		})
	}
}

func TestXLSParser_malformed(t *testing.T) {
	_, err := XLSParser()(context.Background(), strings.NewReader("not an excel file"))
	if !errors.Is(err, ErrMalformedSource) {
		t.Errorf("error should be ErrMalformedSource, but %v", err)
	}
}
