package observability

import (
	"errors"
	"testing"
)

type countingReporter struct {
	NoopReporter
	started, completed int
	bytes              int64
	failures           int
}

func (r *countingReporter) OnDownloadStart(string, int64)        { r.started++ }
func (r *countingReporter) OnDownloadProgress(_ string, n int64) { r.bytes += n }
func (r *countingReporter) OnDownloadComplete(_ string, err error) {
	r.completed++
	if err != nil {
		r.failures++
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := &countingReporter{}, &countingReporter{}
	m := Multi{a, b}

	m.OnDownloadStart("pkg==1.0", 10)
	m.OnDownloadProgress("pkg==1.0", 4)
	m.OnDownloadProgress("pkg==1.0", 6)
	m.OnDownloadComplete("pkg==1.0", errors.New("boom"))
	m.OnUninstall("old==0.1", 3, 1, nil)
	m.OnDiagnostic("missing-record", "half", "no RECORD")

	for _, r := range []*countingReporter{a, b} {
		if r.started != 1 || r.completed != 1 || r.bytes != 10 || r.failures != 1 {
			t.Errorf("reporter saw %+v", r)
		}
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopReporter); !ok {
		t.Error("OrNoop(nil) should return NoopReporter")
	}
	r := &countingReporter{}
	if OrNoop(r) != r {
		t.Error("OrNoop should pass through non-nil reporters")
	}
}
