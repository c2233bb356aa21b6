package metrics

import (
	"context"
	"errors"
	"testing"
	"time"
)

type call struct {
	kind   string
	name   string
	value  float64
	labels Labels
}

type recordingBackend struct {
	calls []call
}

func (r *recordingBackend) IncCounter(name string, delta float64, labels Labels) {
	r.calls = append(r.calls, call{"counter", name, delta, labels})
}

func (r *recordingBackend) ObserveHistogram(name string, value float64, labels Labels) {
	r.calls = append(r.calls, call{"histogram", name, value, labels})
}

func (r *recordingBackend) Flush(context.Context) error { return nil }

func TestRecordStep(t *testing.T) {
	rb := &recordingBackend{}
	SetBackend(rb)
	defer SetBackend(nil)

	RecordStep("job", "append", errors.New("x"), 2*time.Second)

	if len(rb.calls) != 2 {
		t.Fatalf("Size of calls should be 2, but %d", len(rb.calls))
	}
	if rb.calls[0].name != "reviewloader_step_total" {
		t.Errorf(`calls[0] should be "reviewloader_step_total", but "%s"`, rb.calls[0].name)
	}
	if s := rb.calls[0].labels["status"]; s != "failure" {
		t.Errorf(`status should be "failure", but "%s"`, s)
	}
	if s := rb.calls[0].labels["step"]; s != "append" {
		t.Errorf(`step should be "append", but "%s"`, s)
	}
	if rb.calls[1].value != 2.0 {
		t.Errorf("duration should be 2s, but %v", rb.calls[1].value)
	}
}

func TestRecordRows(t *testing.T) {
	rb := &recordingBackend{}
	SetBackend(rb)
	defer SetBackend(nil)

	RecordRows("job", "appended", 0)
	RecordRows("job", "appended", 7)

	if len(rb.calls) != 1 {
		t.Fatalf("Size of calls should be 1, but %d", len(rb.calls))
	}
	if rb.calls[0].value != 7.0 {
		t.Errorf("value should be 7, but %v", rb.calls[0].value)
	}
	if k := rb.calls[0].labels["kind"]; k != "appended" {
		t.Errorf(`kind should be "appended", but "%s"`, k)
	}
}

func TestNopBackend(t *testing.T) {
	SetBackend(nil)
	RecordStep("job", "fetch", nil, time.Second)

	if err := Flush(context.Background()); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}
