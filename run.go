package reviewloader

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/transform"
	"golang.org/x/xerrors"

	"go.nownabe.dev/reviewloader/dataset"
	"go.nownabe.dev/reviewloader/metrics"
	"go.nownabe.dev/reviewloader/validate"
)

const jobIDPrefix = "reviewloader_"

// State is how far a run got.
type State string

const (
	StatePending   State = "PENDING"
	StateFetched   State = "FETCHED"
	StateValidated State = "VALIDATED"
	StateEnsured   State = "ENSURED"
	StateAppended  State = "APPENDED"
	StateDone      State = "DONE"
)

// Result is a result for each run.
type Result struct {
	RunID       string
	Source      string
	Destination string
	State       State
	Fetched     int64
	Appended    int64
	Report      *validate.Report
	Elapsed     time.Duration
	Error       error
}

// run executes stages against one set of clients.
type run struct {
	p  *Pipeline
	c  *clients
	id string
}

func (r *run) execute(ctx context.Context, ev Event, res *Result) error {
	l := log.Ctx(ctx)

	ds, err := r.fetchBlob(ctx, ev)
	if err != nil {
		return xerrors.Errorf("failed to fetch: %w", err)
	}
	res.Fetched = int64(ds.Len())
	r.advance(ctx, res, StateFetched)

	if r.p.cfg.Validation.Enabled {
		res.Report = r.p.check(ctx, ds)
		r.advance(ctx, res, StateValidated)
	}

	if err := r.ensureDataset(ctx); err != nil {
		return xerrors.Errorf("failed to ensure dataset: %w", err)
	}
	r.advance(ctx, res, StateEnsured)

	if ds.IsEmpty() {
		l.Warn().Msg("source has no rows, nothing to append")
	} else {
		n, err := r.append(ctx, ds)
		if err != nil {
			return xerrors.Errorf("failed to append: %w", err)
		}
		res.Appended = n
		r.advance(ctx, res, StateAppended)
	}

	r.advance(ctx, res, StateDone)

	return nil
}

func (r *run) advance(ctx context.Context, res *Result, s State) {
	log.Ctx(ctx).Debug().Str("from", string(res.State)).Str("to", string(s)).Msg("state changed")
	res.State = s
}

// step runs f under the retry policy and records the stage.
func (r *run) step(ctx context.Context, name string, timeout time.Duration, f func(context.Context) error) error {
	start := time.Now()
	err := retry(ctx, name, r.p.cfg.Retry.MaxAttempts, r.p.backoff, timeout, f)
	metrics.RecordStep(r.p.cfg.Metrics.Job, name, err, time.Since(start))
	return err
}

func (r *run) fetchByKey(ctx context.Context, key string) (*dataset.Dataset, error) {
	sql, params := keyQuery(r.p.cfg.Query, key)
	log.Ctx(ctx).Debug().Str("sql", sql).Msg("querying reviews")

	var ds *dataset.Dataset
	err := r.step(ctx, "fetch_by_key", r.p.cfg.Timeout, func(ctx context.Context) error {
		var err error
		ds, err = r.c.querier.query(ctx, sql, params)
		return err
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to query reviews: %w", err)
	}

	log.Ctx(ctx).Info().Int("rows", ds.Len()).Msg("reviews fetched")
	metrics.RecordRows(r.p.cfg.Metrics.Job, "fetched", int64(ds.Len()))

	return ds, nil
}

// fetchBlob reads the whole object inside one attempt so a retry starts
// from a fresh reader.
func (r *run) fetchBlob(ctx context.Context, ev Event) (*dataset.Dataset, error) {
	var ds *dataset.Dataset
	err := r.step(ctx, "fetch_blob", r.p.cfg.Timeout, func(ctx context.Context) error {
		src, closer, err := r.c.extractor.extract(ctx, ev)
		if err != nil {
			return xerrors.Errorf("failed to extract: %w", err)
		}
		defer closer()

		if r.p.encoding != nil {
			src = transform.NewReader(src, r.p.encoding.NewDecoder())
		}

		ds, err = r.p.parser(ctx, src)
		if err != nil {
			return xerrors.Errorf("failed to parse %s: %w", ev.FullPath(), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Ctx(ctx).Info().Str("object", ev.FullPath()).Int("rows", ds.Len()).Msg("object fetched")
	metrics.RecordRows(r.p.cfg.Metrics.Job, "fetched", int64(ds.Len()))

	return ds, nil
}

func (r *run) ensureDataset(ctx context.Context) error {
	var created bool
	err := r.step(ctx, "ensure_dataset", r.p.cfg.Timeout, func(ctx context.Context) error {
		var err error
		created, err = r.c.warehouse.ensureDataset(ctx)
		return err
	})
	if err != nil {
		return err
	}

	l := log.Ctx(ctx)
	if created {
		l.Info().Str("dataset", r.p.cfg.Destination.Dataset).Msg("dataset created")
	} else {
		l.Debug().Str("dataset", r.p.cfg.Destination.Dataset).Msg("dataset exists")
	}

	return nil
}

// append submits one load job per run. Every attempt reuses the job ID so a
// resubmission never appends the rows twice.
func (r *run) append(ctx context.Context, ds *dataset.Dataset) (int64, error) {
	jobID := jobIDPrefix + r.id

	var n int64
	err := r.step(ctx, "append", r.p.cfg.JobTimeout, func(ctx context.Context) error {
		var err error
		n, err = r.c.warehouse.load(ctx, ds, jobID)
		return err
	})
	if err != nil {
		return 0, err
	}

	log.Ctx(ctx).Info().
		Str("job_id", jobID).
		Str("table", r.p.cfg.Destination.FullTable()).
		Int64("rows", n).
		Msg("rows appended")
	metrics.RecordRows(r.p.cfg.Metrics.Job, "appended", n)

	return n, nil
}
