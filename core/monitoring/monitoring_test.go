package monitoring

import (
	"errors"
	"testing"
	"time"
)

type recordMonitor struct {
	errs    []error
	panics  []any
	flushed bool
}

func (r *recordMonitor) CaptureException(err error, _ map[string]string) {
	r.errs = append(r.errs, err)
}
func (r *recordMonitor) CapturePanic(v any)  { r.panics = append(r.panics, v) }
func (r *recordMonitor) Flush(time.Duration) { r.flushed = true }

func TestCaptureException(t *testing.T) {
	rec := &recordMonitor{}
	Init(rec)
	defer Init(NopMonitor{})
	CaptureException(nil, nil)
	CaptureException(errors.New("boom"), map[string]string{"stage": "fetch"})
	if len(rec.errs) != 1 {
		t.Fatalf("expected one captured error, got %d", len(rec.errs))
	}
	Init(nil)
	CaptureException(errors.New("again"), nil)
	if len(rec.errs) != 2 {
		t.Fatalf("Init(nil) must keep the current monitor")
	}
}

func TestRecoverReportsAndRepanics(t *testing.T) {
	rec := &recordMonitor{}
	Init(rec)
	defer Init(NopMonitor{})
	defer func() {
		if r := recover(); r != "boom" {
			t.Fatalf("expected re-panic, got %v", r)
		}
		if len(rec.panics) != 1 || !rec.flushed {
			t.Fatalf("panic not reported: %+v", rec)
		}
	}()
	func() {
		defer Recover()
		panic("boom")
	}()
}
