package reviewloader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	"go.nownabe.dev/reviewloader/dataset"
)

var errLoadJobFailed = errors.New("load job failed")

// warehouse ensures the destination dataset and appends rows to the
// destination table.
type warehouse interface {
	ensureDataset(ctx context.Context) (created bool, err error)
	load(ctx context.Context, ds *dataset.Dataset, jobID string) (int64, error)
}

// datasetHandle is the part of *bigquery.Dataset used to ensure it exists.
type datasetHandle interface {
	Metadata(context.Context) (*bigquery.DatasetMetadata, error)
	Create(context.Context, *bigquery.DatasetMetadata) error
}

type defaultWarehouse struct {
	bq       *bigquery.Client
	dataset  *bigquery.Dataset
	table    *bigquery.Table
	location string
}

func newDefaultWarehouse(bq *bigquery.Client, project, datasetID, tableID, location string) warehouse {
	ds := bq.DatasetInProject(project, datasetID)
	return &defaultWarehouse{
		bq:       bq,
		dataset:  ds,
		table:    ds.Table(tableID),
		location: location,
	}
}

func (w *defaultWarehouse) ensureDataset(ctx context.Context) (bool, error) {
	return ensureDataset(ctx, w.dataset, w.location)
}

// ensureDataset looks the dataset up first and creates it when absent. A
// concurrent creation between the two calls counts as success.
func ensureDataset(ctx context.Context, h datasetHandle, location string) (bool, error) {
	_, err := h.Metadata(ctx)
	if err == nil {
		return false, nil
	}
	if !hasHTTPStatus(err, http.StatusNotFound) {
		return false, xerrors.Errorf("failed to get dataset metadata: %w", err)
	}

	err = h.Create(ctx, &bigquery.DatasetMetadata{Location: location})
	if err == nil {
		return true, nil
	}
	if hasHTTPStatus(err, http.StatusConflict) {
		return false, nil
	}

	return false, xerrors.Errorf("failed to create dataset: %w", err)
}

// load appends ds to the table. jobID must be stable across retries of the
// same run: a resubmission that hits an existing job waits for that job
// instead of loading the rows again.
func (w *defaultWarehouse) load(ctx context.Context, ds *dataset.Dataset, jobID string) (int64, error) {
	l := log.Ctx(ctx)

	buf := &bytes.Buffer{}
	if err := ds.WriteCSV(buf); err != nil {
		return 0, xerrors.Errorf("failed to write csv: %w", err)
	}

	loader := newAppendLoader(w.table, buf, jobID, w.location)

	job, err := loader.Run(ctx)
	if err != nil {
		if !hasHTTPStatus(err, http.StatusConflict) {
			return 0, xerrors.Errorf("failed to run bigquery load job: %w", err)
		}

		l.Info().Str("job_id", jobID).Msg("load job already submitted, waiting for it")
		job, err = w.bq.JobFromIDLocation(ctx, jobID, w.location)
		if err != nil {
			return 0, xerrors.Errorf("failed to get load job %s: %w", jobID, err)
		}
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, xerrors.Errorf("failed to wait job %s: %w", job.ID(), err)
	}

	if status.Err() != nil {
		l.Error().Interface("errors", status.Errors).Str("job_id", job.ID()).Msg("load job failed")
		return 0, xerrors.Errorf("job %s: %v: %w", job.ID(), status.Err(), errLoadJobFailed)
	}

	return outputRows(status, int64(ds.Len())), nil
}

// newAppendLoader configures a CSV load that infers column types from the
// data and only ever appends.
func newAppendLoader(t *bigquery.Table, r io.Reader, jobID, location string) *bigquery.Loader {
	src := bigquery.NewReaderSource(r)
	src.SourceFormat = bigquery.CSV
	src.AutoDetect = true
	src.SkipLeadingRows = 1

	loader := t.LoaderFrom(src)
	loader.WriteDisposition = bigquery.WriteAppend
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.JobID = jobID
	loader.Location = location

	return loader
}

func outputRows(status *bigquery.JobStatus, fallback int64) int64 {
	if status.Statistics == nil {
		return fallback
	}
	if s, ok := status.Statistics.Details.(*bigquery.LoadStatistics); ok {
		return s.OutputRows
	}
	return fallback
}
