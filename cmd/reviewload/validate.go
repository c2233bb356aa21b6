package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"

	"go.nownabe.dev/reviewloader"
	"go.nownabe.dev/reviewloader/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a local CSV or XLS file without touching the cloud",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

var validateFlags struct {
	file          string
	schema        string
	visualization string
	writeSchema   string
}

func init() {
	validateCmd.Flags().StringVarP(&validateFlags.file, "file", "f", "", "Local file to validate")
	validateCmd.Flags().StringVar(&validateFlags.schema, "schema", "", "Schema file (defaults to a schema inferred from the file)")
	validateCmd.Flags().StringVar(&validateFlags.visualization, "visualization", "", "Where to render the statistics chart")
	validateCmd.Flags().StringVar(&validateFlags.writeSchema, "write-schema", "", "Write the inferred schema to this path")
	_ = validateCmd.MarkFlagRequired("file")
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if validateFlags.schema != "" {
		cfg.Validation.SchemaFile = validateFlags.schema
	}
	if validateFlags.visualization != "" {
		cfg.Validation.VisualizationPath = validateFlags.visualization
	}

	p, err := newPipeline(cfg, "validate")
	if err != nil {
		return err
	}

	f, err := os.Open(validateFlags.file)
	if err != nil {
		return xerrors.Errorf("failed to open %s: %w", validateFlags.file, err)
	}
	defer f.Close()

	parser := reviewloader.CSVParser()
	if strings.EqualFold(filepath.Ext(validateFlags.file), ".xls") {
		parser = reviewloader.XLSParser()
	}

	ds, err := parser(cmd.Context(), f)
	if err != nil {
		return xerrors.Errorf("failed to parse %s: %w", validateFlags.file, err)
	}

	report := p.Validate(cmd.Context(), ds)

	out := cmd.OutOrStdout()
	if report.Empty() {
		fmt.Fprintln(out, "no anomalies found")
	}
	for _, a := range report.Anomalies {
		fmt.Fprintf(out, "[%s] %s\n", a.Severity, a)
	}

	if validateFlags.writeSchema != "" {
		schema := validate.InferSchema(validate.ComputeStatistics(ds))
		b, err := schema.Marshal()
		if err != nil {
			return xerrors.Errorf("failed to marshal schema: %w", err)
		}
		if err := os.WriteFile(validateFlags.writeSchema, b, 0o644); err != nil {
			return xerrors.Errorf("failed to write schema: %w", err)
		}
	}

	flushMetrics(cmd, cfg)

	return nil
}
