package reviewloader

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"go.nownabe.dev/reviewloader/dataset"
	"go.nownabe.dev/reviewloader/metrics"
	"go.nownabe.dev/reviewloader/validate"
)

// Validate runs the bias inspection and the schema validation over ds and
// renders the statistics chart. Problems are logged; they never fail the
// caller. A nil ds is validated as an empty dataset.
func (p *Pipeline) Validate(ctx context.Context, ds *dataset.Dataset) *validate.Report {
	return p.check(p.begin(ctx), ds)
}

func (p *Pipeline) check(ctx context.Context, ds *dataset.Dataset) *validate.Report {
	l := log.Ctx(ctx)
	start := time.Now()

	if ds == nil {
		ds = dataset.Empty()
	}

	if p.inspector != nil {
		if err := p.inspector.Inspect(ctx, ds.Clone()); err != nil {
			l.Warn().Err(err).Msg("bias inspection failed")
		}
	}

	stats := validate.ComputeStatistics(ds)

	schema := p.schema
	if schema == nil {
		schema = validate.InferSchema(stats)
		l.Debug().Int("features", len(schema.Features)).Msg("schema inferred from the dataset")
	}

	report := validate.Validate(stats, schema)
	for _, a := range report.Anomalies {
		l.Warn().
			Str("feature", a.Feature).
			Str("anomaly", string(a.Type)).
			Str("severity", a.Severity).
			Msg(a.Details)
	}
	if report.Empty() {
		l.Info().Int("rows", stats.Rows).Msg("no anomalies found")
	}
	metrics.RecordRows(p.cfg.Metrics.Job, "anomalies", int64(len(report.Anomalies)))

	if path := p.cfg.Validation.VisualizationPath; path != "" {
		if err := validate.Visualize(stats, path); err != nil {
			l.Warn().Err(err).Str("path", path).Msg("failed to render statistics")
		} else {
			l.Debug().Str("path", path).Msg("statistics rendered")
		}
	}

	metrics.RecordStep(p.cfg.Metrics.Job, "validate", nil, time.Since(start))

	return report
}
