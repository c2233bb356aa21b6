package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"go.nownabe.dev/reviewloader/dataset"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Read the reviews of one or more products from BigQuery as CSV",
	Args:  cobra.NoArgs,
	RunE:  runFetch,
}

var fetchFlags struct {
	asins       []string
	out         string
	concurrency int
}

func init() {
	fetchCmd.Flags().StringArrayVar(&fetchFlags.asins, "asin", nil, "Product key to fetch (repeatable)")
	fetchCmd.Flags().StringVarP(&fetchFlags.out, "out", "o", "", "Output file (defaults to stdout)")
	fetchCmd.Flags().IntVar(&fetchFlags.concurrency, "concurrency", 4, "Number of keys fetched at once")
	_ = fetchCmd.MarkFlagRequired("asin")
}

func runFetch(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.ValidateFetch(); err != nil {
		return xerrors.Errorf("invalid configuration: %w", err)
	}

	p, err := newPipeline(cfg, "fetch")
	if err != nil {
		return err
	}

	results := make([]*dataset.Dataset, len(fetchFlags.asins))

	g, ctx := errgroup.WithContext(cmd.Context())
	if fetchFlags.concurrency > 0 {
		g.SetLimit(fetchFlags.concurrency)
	}
	for i, asin := range fetchFlags.asins {
		i, asin := i, asin
		g.Go(func() error {
			results[i] = p.FetchByKey(ctx, asin)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return xerrors.Errorf("fetch interrupted: %w", err)
	}

	merged, err := mergeReviews(cfg.Query.Columns, fetchFlags.asins, results)
	if err != nil {
		return err
	}

	if err := writeReviews(cmd.OutOrStdout(), fetchFlags.out, merged); err != nil {
		return err
	}

	flushMetrics(cmd, cfg)

	return nil
}

// mergeReviews concatenates results under header, so that a fetch without
// matches still yields the column names.
func mergeReviews(header, keys []string, results []*dataset.Dataset) (*dataset.Dataset, error) {
	merged, err := dataset.New(append([]string{}, header...), [][]string{})
	if err != nil {
		return nil, xerrors.Errorf("failed to build the result set: %w", err)
	}

	for i, ds := range results {
		if err := merged.Append(ds); err != nil {
			return nil, xerrors.Errorf("failed to merge reviews of %s: %w", keys[i], err)
		}
	}

	return merged, nil
}

// writeReviews writes ds to path, or to stdout when path is empty.
func writeReviews(stdout io.Writer, path string, ds *dataset.Dataset) (err error) {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return xerrors.Errorf("failed to create %s: %w", path, err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = xerrors.Errorf("failed to close %s: %w", path, cerr)
			}
		}()
		w = f
	}

	if err := ds.WriteCSV(w); err != nil {
		return xerrors.Errorf("failed to write reviews: %w", err)
	}

	return nil
}
