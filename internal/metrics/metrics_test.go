package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type event struct {
	kind   string
	name   string
	value  float64
	labels Labels
}

type recorder struct {
	mu       sync.Mutex
	events   []event
	flushErr error
	flushes  int
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{"counter", name, delta, labels})
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{"histogram", name, value, labels})
}

func (r *recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return r.flushErr
}

// TestHelpers_ForwardToBackend verifies the domain helpers emit the expected
// names and labels. Not parallel: it swaps the process-wide backend.
func TestHelpers_ForwardToBackend(t *testing.T) {
	rec := &recorder{}
	SetBackend(rec)
	t.Cleanup(func() { SetBackend(nil) })

	RecordFile("ok", 250*time.Millisecond)
	RecordListings("residential", 2)
	RecordListings("land", 0)
	RecordRelocation("failed", errors.New("copy"))
	RecordBatch()

	want := []event{
		{"counter", FilesTotal, 1, Labels{"outcome": "ok"}},
		{"histogram", FileDurationSecond, 0.25, Labels{"outcome": "ok"}},
		{"counter", ListingsTotal, 2, Labels{"kind": "residential"}},
		{"counter", RelocationsTotal, 1, Labels{"dest": "failed", "status": "error"}},
		{"counter", BatchesTotal, 1, nil},
	}
	if len(rec.events) != len(want) {
		t.Fatalf("want %d events, got %d: %#v", len(want), len(rec.events), rec.events)
	}
	for i, w := range want {
		got := rec.events[i]
		if got.kind != w.kind || got.name != w.name || got.value != w.value || len(got.labels) != len(w.labels) {
			t.Fatalf("event %d: want %#v got %#v", i, w, got)
		}
		for k, v := range w.labels {
			if got.labels[k] != v {
				t.Fatalf("event %d label %s: want %q got %q", i, k, v, got.labels[k])
			}
		}
	}
}

// TestFlush_UsesInstalledBackend verifies Flush reaches the backend and a nil
// backend falls back to the no-op one.
func TestFlush_UsesInstalledBackend(t *testing.T) {
	rec := &recorder{flushErr: errors.New("boom")}
	SetBackend(rec)
	t.Cleanup(func() { SetBackend(nil) })

	if err := Flush(); err == nil || rec.flushes != 1 {
		t.Fatalf("Flush: err=%v flushes=%d", err, rec.flushes)
	}

	SetBackend(nil)
	if err := Flush(); err != nil {
		t.Fatalf("nop Flush: %v", err)
	}
}
