/*

Package reviewloader loads product review data from Cloud Storage into
BigQuery, running a data-quality validation and a bias inspection on the way.

A run fetches one object, validates it, makes sure the destination dataset
exists and appends the rows to the destination table:

	FETCHED -> VALIDATED -> ENSURED -> APPENDED -> DONE

Each stage retries transient failures with exponential backoff. Appends are
submitted with a job ID derived from the run ID, so a resubmitted load never
writes the same rows twice.

Getting started

Build a pipeline from a configuration file and environment variables and
expose it as a Cloud Functions entrypoint.

	package myfunc

	import (
		"context"
		"regexp"

		"go.nownabe.dev/reviewloader"
		"go.nownabe.dev/reviewloader/config"
	)

	var pipeline *reviewloader.Pipeline

	func init() {
		cfg, err := config.Load("config.yaml")
		if err != nil {
			panic(err)
		}

		pipeline, err = reviewloader.New(cfg,
			reviewloader.WithPattern(regexp.MustCompile(`^reviews/.+\.csv$`)))
		if err != nil {
			panic(err)
		}
	}

	// ReviewLoad is the entrypoint for Cloud Functions.
	func ReviewLoad(ctx context.Context, e reviewloader.Event) error {
		return pipeline.Handle(ctx, e)
	}

Reviews of a single product can be read back by key. The key is always bound
as a query parameter.

	ds := pipeline.FetchByKey(ctx, "B00EXAMPLE")
	if ds.IsEmpty() {
		// nothing found, or the query failed and was logged
	}

*/
package reviewloader
