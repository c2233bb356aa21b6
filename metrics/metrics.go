// Package metrics records pipeline stage outcomes through a pluggable
// backend. The default backend discards everything.
package metrics

import (
	"context"
	"sync"
	"time"
)

// Labels are attached to a metric.
type Labels map[string]string

// Backend receives counters and observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush(context.Context) error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush(context.Context) error              { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()

	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the current backend. ctx bounds the flush.
func Flush(ctx context.Context) error {
	return current().Flush(ctx)
}

// RecordStep counts one execution of a stage and observes its duration.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{"job": job, "step": step, "status": status}
	b := current()
	b.IncCounter("reviewloader_step_total", 1, lbls)
	b.ObserveHistogram("reviewloader_step_duration_seconds", d.Seconds(), lbls)
}

// RecordRows counts rows by kind, e.g. "fetched", "appended", "anomalies".
func RecordRows(job, kind string, n int64) {
	if n <= 0 {
		return
	}
	current().IncCounter("reviewloader_rows_total", float64(n), Labels{"job": job, "kind": kind})
}
