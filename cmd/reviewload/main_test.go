package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.nownabe.dev/reviewloader/dataset"
	"go.nownabe.dev/reviewloader/validate"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.yaml")

	out, err := execute(t, "validate",
		"--file", "../../testdata/reviews.csv",
		"--visualization", filepath.Join(dir, "v.png"),
		"--write-schema", schemaPath,
	)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out, "no anomalies found") {
		t.Errorf("output should report no anomalies, but:\n%s", out)
	}

	schema, err := validate.LoadSchema(schemaPath)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	f, ok := schema.Feature("rating")
	if !ok {
		t.Fatal("rating should be in the written schema")
	}
	if f.Type != validate.KindInt {
		t.Errorf("rating should be %s, but %s", validate.KindInt, f.Type)
	}
	if !f.Required {
		t.Error("rating should be required")
	}
}

func TestValidateCommand_schema(t *testing.T) {
	dir := t.TempDir()

	out, err := execute(t, "validate",
		"--file", "../../testdata/reviews.csv",
		"--schema", "../../validate/testdata/reviews_schema.yaml",
		"--visualization", filepath.Join(dir, "v.png"),
		"--write-schema", "",
	)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(out, "SCHEMA_NEW_COLUMN") {
		t.Errorf("output should report the new column, but:\n%s", out)
	}
	if strings.Contains(out, "OUT_OF_RANGE") {
		t.Errorf("output should not report OUT_OF_RANGE, but:\n%s", out)
	}
}

func TestValidateCommand_missingFile(t *testing.T) {
	if _, err := execute(t, "validate", "--file", "no-such-file.csv"); err == nil {
		t.Error("expected error but no error occurred")
	}
}

func TestLoadCommand_invalidConfig(t *testing.T) {
	t.Setenv("SOURCE_BUCKET", "")
	t.Setenv("SOURCE_OBJECT", "")

	if _, err := execute(t, "load", "--bucket", "", "--object", ""); err == nil {
		t.Error("expected error but no error occurred")
	}
}

func TestMergeReviews_noMatches(t *testing.T) {
	header := []string{"parent_asin", "rating"}

	merged, err := mergeReviews(header, []string{"B00X", "B00Y"}, []*dataset.Dataset{dataset.Empty(), dataset.Empty()})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	path := filepath.Join(t.TempDir(), "out.csv")
	if err := writeReviews(&bytes.Buffer{}, path, merged); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "parent_asin,rating\n" {
		t.Errorf(`output should be the header only, but %q`, b)
	}
}

func TestMergeReviews(t *testing.T) {
	header := []string{"parent_asin", "rating"}
	a, _ := dataset.New(header, [][]string{{"B00A", "5"}})
	c, _ := dataset.New(header, [][]string{{"B00C", "1"}, {"B00C", "2"}})

	merged, err := mergeReviews(header, []string{"B00A", "B00B", "B00C"}, []*dataset.Dataset{a, dataset.Empty(), c})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	out := &bytes.Buffer{}
	if err := writeReviews(out, "", merged); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	expected := "parent_asin,rating\nB00A,5\nB00C,1\nB00C,2\n"
	if out.String() != expected {
		t.Errorf("output should be %q, but %q", expected, out.String())
	}
}

func TestWriteReviews_createError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "out.csv")

	if err := writeReviews(&bytes.Buffer{}, path, dataset.Empty()); err == nil {
		t.Error("expected error but no error occurred")
	}
}
