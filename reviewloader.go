package reviewloader

import (
	"context"
	"io"
	"os"
	"regexp"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/functions/metadata"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/xerrors"
	"google.golang.org/api/option"

	"go.nownabe.dev/reviewloader/bias"
	"go.nownabe.dev/reviewloader/config"
	"go.nownabe.dev/reviewloader/dataset"
	"go.nownabe.dev/reviewloader/metrics"
	"go.nownabe.dev/reviewloader/validate"
)

// Pipeline fetches review data, validates it and appends it to BigQuery.
// Every call owns its clients; a Pipeline holds no state between runs and is
// safe for concurrent use.
type Pipeline struct {
	cfg *config.Config

	logger        *zerolog.Logger
	logLevel      zerolog.Level
	prettyLogging bool

	inspector bias.Inspector
	schema    *validate.Schema
	notifier  Notifier
	parser    Parser
	encoding  encoding.Encoding
	backoff   gax.Backoff
	pattern   *regexp.Regexp

	connect  func(context.Context) (*clients, error)
	newRunID func() string
}

// New builds a Pipeline from cfg. A nil cfg means config.Default.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	p := &Pipeline{
		cfg:           cfg,
		logLevel:      zerolog.InfoLevel,
		prettyLogging: cfg.Log.Pretty,
		notifier:      LogNotifier{},
		parser:        parserFor(cfg.Source.Format),
		backoff: gax.Backoff{
			Initial:    cfg.Retry.Initial,
			Max:        cfg.Retry.Max,
			Multiplier: 2,
		},
		newRunID: uuid.NewString,
	}
	p.connect = p.defaultConnect

	if cfg.Log.Level != "" {
		lvl, err := zerolog.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, xerrors.Errorf("failed to parse log level %q: %w", cfg.Log.Level, err)
		}
		p.logLevel = lvl
	}

	if cfg.Source.Encoding != "" {
		enc, err := htmlindex.Get(cfg.Source.Encoding)
		if err != nil {
			return nil, xerrors.Errorf("failed to find encoding %q: %w", cfg.Source.Encoding, err)
		}
		p.encoding = enc
	}

	if cfg.Validation.SchemaFile != "" {
		s, err := validate.LoadSchema(cfg.Validation.SchemaFile)
		if err != nil {
			return nil, xerrors.Errorf("failed to load schema: %w", err)
		}
		p.schema = s
	}

	if cfg.Notify.SlackToken != "" {
		p.notifier = &SlackNotifier{
			Token:    cfg.Notify.SlackToken,
			Channel:  cfg.Notify.SlackChannel,
			Username: "reviewloader",
		}
	}

	if cfg.Bias.Enabled {
		p.inspector = &bias.GroupDisparity{
			GroupColumn:   cfg.Bias.GroupColumn,
			OutcomeColumn: cfg.Bias.OutcomeColumn,
			MaxDisparity:  cfg.Bias.MaxDisparity,
			MinShare:      cfg.Bias.MinShare,
		}
	}

	for _, o := range opts {
		if err := o.apply(p); err != nil {
			return nil, xerrors.Errorf("failed to apply option: %w", err)
		}
	}

	if p.logger == nil {
		var w io.Writer = os.Stdout
		if p.prettyLogging {
			w = zerolog.ConsoleWriter{Out: os.Stdout}
		}
		l := zerolog.New(w).With().Timestamp().Logger().Level(p.logLevel)
		p.logger = &l
	}

	return p, nil
}

// clients are created at the start of a run and closed at its end.
type clients struct {
	extractor extractor
	querier   querier
	warehouse warehouse
	close     func()
}

func (p *Pipeline) defaultConnect(ctx context.Context) (*clients, error) {
	l := log.Ctx(ctx)

	opts := []option.ClientOption{}
	if p.cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(p.cfg.CredentialsFile))
	}

	s, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, xerrors.Errorf("failed to build storage client: %w", err)
	}

	project := p.cfg.QueryProject()
	if project == "" {
		project = bigquery.DetectProjectID
	}

	bq, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		s.Close()
		return nil, xerrors.Errorf("failed to build bigquery client: %w", err)
	}

	d := p.cfg.Destination

	return &clients{
		extractor: newDefaultExtractor(s),
		querier:   &defaultQuerier{bq: bq},
		warehouse: newDefaultWarehouse(bq, d.Project, d.Dataset, d.Table, d.Location),
		close: func() {
			if err := bq.Close(); err != nil {
				l.Warn().Err(err).Msg("failed to close bigquery client")
			}
			if err := s.Close(); err != nil {
				l.Warn().Err(err).Msg("failed to close storage client")
			}
		},
	}, nil
}

// begin starts a new run. The returned context carries the run logger.
func (p *Pipeline) begin(ctx context.Context) context.Context {
	id := p.newRunID()
	ctx = withRunID(withStartedTime(ctx), id)

	lc := p.logger.With().Str("run_id", id)
	if eid, ok := eventIDFrom(ctx); ok {
		lc = lc.Str("event_id", eid)
	}
	l := lc.Logger()

	return l.WithContext(ctx)
}

// session runs f with a fresh set of clients.
func (p *Pipeline) session(ctx context.Context, f func(context.Context, *run) error) error {
	c, err := p.connect(ctx)
	if err != nil {
		return xerrors.Errorf("failed to connect: %w", err)
	}
	defer c.close()

	id, _ := RunIDFrom(ctx)

	return f(ctx, &run{p: p, c: c, id: id})
}

// Handle is the entrypoint for Cloud Storage finalize events.
func (p *Pipeline) Handle(ctx context.Context, e Event) error {
	if md, err := metadata.FromContext(ctx); err == nil {
		ctx = withEventID(ctx, md.EventID)
	}

	if p.pattern != nil && !p.pattern.MatchString(e.Name) {
		p.logger.Debug().Str("object", e.FullPath()).Msg("object does not match the pattern")
		return nil
	}

	_, err := p.Run(ctx, e.Bucket, e.Name)
	return err
}

// Run fetches the object, validates it when enabled, ensures the destination
// dataset and appends the rows. The result is returned even on failure and
// is always passed to the notifier.
func (p *Pipeline) Run(ctx context.Context, bucket, object string) (*Result, error) {
	ctx = p.begin(ctx)
	l := log.Ctx(ctx)

	ev := Event{Bucket: bucket, Name: object}
	id, _ := RunIDFrom(ctx)
	res := &Result{
		RunID:       id,
		Source:      ev.FullPath(),
		Destination: p.cfg.Destination.FullTable(),
		State:       StatePending,
	}

	l.Info().Str("source", res.Source).Str("destination", res.Destination).Msg("pipeline started")

	var err error
	switch {
	case bucket == "" || object == "":
		err = xerrors.New("bucket and object are required")
	default:
		err = p.cfg.ValidateWrite()
	}
	if err != nil {
		return p.finish(ctx, res, xerrors.Errorf("invalid configuration: %w", err))
	}

	err = p.session(ctx, func(ctx context.Context, r *run) error {
		return r.execute(ctx, ev, res)
	})

	return p.finish(ctx, res, err)
}

func (p *Pipeline) finish(ctx context.Context, res *Result, err error) (*Result, error) {
	l := log.Ctx(ctx)

	res.Error = err
	if t, ok := startedTimeFrom(ctx); ok {
		res.Elapsed = time.Since(t)
	}

	if err != nil {
		l.Error().Err(err).
			Str("state", string(res.State)).
			Str("class", Classify(err).String()).
			Msg("pipeline failed")
	} else {
		l.Info().Int64("appended", res.Appended).Dur("elapsed", res.Elapsed).Msg("pipeline finished")
	}

	metrics.RecordStep(p.cfg.Metrics.Job, "run", err, res.Elapsed)

	fctx, cancel := p.withTimeout(ctx)
	if ferr := metrics.Flush(fctx); ferr != nil {
		l.Warn().Err(ferr).Msg("failed to push metrics")
	}
	cancel()

	nctx, cancel := p.withTimeout(ctx)
	if nerr := p.notifier.Notify(nctx, res); nerr != nil {
		l.Warn().Err(nerr).Msg("failed to notify")
	}
	cancel()

	return res, err
}

// withTimeout bounds one network call outside the retried stages.
func (p *Pipeline) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.Timeout)
}

// FetchByKey reads every configured column of the reviews whose key column
// equals key. It never fails: on any error it logs once and returns an
// empty dataset.
func (p *Pipeline) FetchByKey(ctx context.Context, key string) *dataset.Dataset {
	ctx = p.begin(ctx)

	var ds *dataset.Dataset
	err := p.cfg.ValidateFetch()
	if err == nil {
		err = p.session(ctx, func(ctx context.Context, r *run) error {
			var err error
			ds, err = r.fetchByKey(ctx, key)
			return err
		})
	}

	if err != nil {
		log.Ctx(ctx).Error().Err(err).
			Str("key", key).
			Str("class", Classify(err).String()).
			Msg("failed to fetch reviews, continuing with an empty dataset")
		return dataset.Empty()
	}

	return ds
}

// FetchBlob downloads and parses one object.
func (p *Pipeline) FetchBlob(ctx context.Context, bucket, object string) (*dataset.Dataset, error) {
	ctx = p.begin(ctx)

	var ds *dataset.Dataset
	err := p.session(ctx, func(ctx context.Context, r *run) error {
		var err error
		ds, err = r.fetchBlob(ctx, Event{Bucket: bucket, Name: object})
		return err
	})
	if err != nil {
		return nil, err
	}

	return ds, nil
}

// EnsureDataset creates the destination dataset unless it exists.
func (p *Pipeline) EnsureDataset(ctx context.Context) error {
	ctx = p.begin(ctx)

	if err := p.cfg.ValidateWrite(); err != nil {
		return xerrors.Errorf("invalid configuration: %w", err)
	}

	return p.session(ctx, func(ctx context.Context, r *run) error {
		return r.ensureDataset(ctx)
	})
}

// Append appends ds to the destination table and returns the number of rows
// written.
func (p *Pipeline) Append(ctx context.Context, ds *dataset.Dataset) (int64, error) {
	ctx = p.begin(ctx)

	if err := p.cfg.ValidateWrite(); err != nil {
		return 0, xerrors.Errorf("invalid configuration: %w", err)
	}

	var n int64
	err := p.session(ctx, func(ctx context.Context, r *run) error {
		var err error
		n, err = r.append(ctx, ds)
		return err
	})
	if err != nil {
		return 0, err
	}

	return n, nil
}
