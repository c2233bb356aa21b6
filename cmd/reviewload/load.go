package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/xerrors"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Fetch an object, validate it and append it to the destination table",
	Args:  cobra.NoArgs,
	RunE:  runLoad,
}

var loadFlags struct {
	bucket         string
	object         string
	skipValidation bool
}

func init() {
	loadCmd.Flags().StringVar(&loadFlags.bucket, "bucket", "", "Source bucket (overrides source.bucket)")
	loadCmd.Flags().StringVar(&loadFlags.object, "object", "", "Source object (overrides source.object)")
	loadCmd.Flags().BoolVar(&loadFlags.skipValidation, "skip-validation", false, "Skip bias inspection and schema validation")
}

func runLoad(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if loadFlags.bucket != "" {
		cfg.Source.Bucket = loadFlags.bucket
	}
	if loadFlags.object != "" {
		cfg.Source.Object = loadFlags.object
	}
	if loadFlags.skipValidation {
		cfg.Validation.Enabled = false
	}

	if err := cfg.ValidateLoad(); err != nil {
		return xerrors.Errorf("invalid configuration: %w", err)
	}

	p, err := newPipeline(cfg, "load")
	if err != nil {
		return err
	}

	res, err := p.Run(cmd.Context(), cfg.Source.Bucket, cfg.Source.Object)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d rows from %s into %s (run %s)\n",
		res.Appended, res.Source, res.Destination, res.RunID)

	return nil
}
