// Package metrics is the backend-agnostic metrics facade used by the batch
// run. The core only talks to Backend; concrete backends (Datadog) live in
// subpackages and are selected by the command.
package metrics

import (
	"sync"
	"time"
)

// Metric names understood by backends.
const (
	FilesTotal         = "reaxml_files_total"           // labels: outcome
	ListingsTotal      = "reaxml_listings_total"        // labels: kind
	BatchesTotal       = "reaxml_batches_total"         // no labels
	RelocationsTotal   = "reaxml_relocations_total"     // labels: dest, status
	FileDurationSecond = "reaxml_file_duration_seconds" // labels: outcome
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events.
//
// Implementations must be safe for concurrent use and must ignore metric
// names they do not know.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. A nil b restores the
// no-op backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush flushes the installed backend.
func Flush() error {
	return current().Flush()
}

// RecordFile counts one processed file and its duration by outcome
// ("ok", "malformed", "no_listings", "unreadable").
func RecordFile(outcome string, d time.Duration) {
	b := current()
	l := Labels{"outcome": outcome}
	b.IncCounter(FilesTotal, 1, l)
	b.ObserveHistogram(FileDurationSecond, d.Seconds(), l)
}

// RecordListings counts n records of one listing type.
func RecordListings(kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(ListingsTotal, float64(n), Labels{"kind": kind})
}

// RecordRelocation counts one file move to dest ("processed" or "failed").
func RecordRelocation(dest string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	current().IncCounter(RelocationsTotal, 1, Labels{"dest": dest, "status": status})
}

// RecordBatch counts one directory run.
func RecordBatch() {
	current().IncCounter(BatchesTotal, 1, nil)
}
