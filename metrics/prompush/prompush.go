// Package prompush pushes pipeline metrics to a Prometheus Pushgateway.
// A batch job has nothing to scrape, so metrics are pushed on Flush.
package prompush

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"golang.org/x/xerrors"

	"go.nownabe.dev/reviewloader/metrics"
)

var errNoGateway = errors.New("prompush: gateway URL is required")

// Backend implements metrics.Backend.
type Backend struct {
	pusher *push.Pusher

	steps     *prometheus.CounterVec
	durations *prometheus.SummaryVec
	rows      *prometheus.CounterVec
}

// NewBackend builds a backend pushing under job to gatewayURL. Each push
// gives up after timeout; zero means no limit beyond the flush context.
func NewBackend(job, gatewayURL string, timeout time.Duration) (*Backend, error) {
	if gatewayURL == "" {
		return nil, errNoGateway
	}
	if job == "" {
		job = "reviewloader"
	}

	reg := prometheus.NewRegistry()

	steps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewloader_step_total",
		Help: "Pipeline stage executions by step and status.",
	}, []string{"step", "status"})

	durations := prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Name:       "reviewloader_step_duration_seconds",
		Help:       "Pipeline stage durations in seconds by step and status.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	}, []string{"step", "status"})

	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reviewloader_rows_total",
		Help: "Rows handled by kind.",
	}, []string{"kind"})

	if err := registerAll(reg, steps, durations, rows); err != nil {
		return nil, err
	}

	return &Backend{
		pusher:    push.New(gatewayURL, job).Gatherer(reg).Client(&http.Client{Timeout: timeout}),
		steps:     steps,
		durations: durations,
		rows:      rows,
	}, nil
}

func registerAll(reg *prometheus.Registry, cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return xerrors.Errorf("failed to register collector: %w", err)
		}
	}
	return nil
}

// IncCounter implements metrics.Backend. The job label is carried by the
// push grouping key and dropped here.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case "reviewloader_step_total":
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case "reviewloader_rows_total":
		b.rows.WithLabelValues(labels["kind"]).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name == "reviewloader_step_duration_seconds" {
		b.durations.WithLabelValues(labels["step"], labels["status"]).Observe(value)
	}
}

// Flush pushes every collected metric, replacing the job's previous group.
func (b *Backend) Flush(ctx context.Context) error {
	if err := b.pusher.PushContext(ctx); err != nil {
		return xerrors.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
