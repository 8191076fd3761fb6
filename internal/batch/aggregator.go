// Package batch runs the extractor over feed files and directories, merging
// per-file listings into one aggregate and routing each file to a processed
// or failed destination.
package batch

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/encoding"

	"reaxml/internal/extractxml"
	"reaxml/internal/fieldspec"
	"reaxml/internal/metrics"
)

// OutcomeUnreadable marks a file that exists but could not be read.
const OutcomeUnreadable = "unreadable"

// Destination names used in reports and metrics.
const (
	DestProcessed = "processed"
	DestFailed    = "failed"
)

// Options configures an Aggregator.
type Options struct {
	// ProcessedDir receives files that yielded at least one listing.
	// Empty disables the move.
	ProcessedDir string

	// FailedDir receives files that yielded nothing. Empty disables the move.
	FailedDir string

	// Logger receives per-file diagnostics. If nil, they are discarded.
	Logger *log.Logger

	// Encoding is a charset label used for files that are not valid UTF-8
	// and do not declare an encoding. Empty disables the fallback.
	Encoding string
}

// FileResult describes what happened to one file of a run.
type FileResult struct {
	Name        string `json:"name"`
	Outcome     string `json:"outcome"`
	Listings    int    `json:"listings"`
	Destination string `json:"destination,omitempty"`
}

// Report is the outcome of one directory run.
type Report struct {
	RunID    string             `json:"run_id"`
	Files    []FileResult       `json:"files"`
	Listings fieldspec.Listings `json:"listings"`
}

// Aggregator processes files with one Extractor. It keeps no state between
// calls.
type Aggregator struct {
	ex        *extractxml.Extractor
	processed string
	failed    string
	log       *log.Logger
	enc       encoding.Encoding
}

// New creates an Aggregator. It fails only when opts.Encoding names an
// unknown charset.
func New(ex *extractxml.Extractor, opts Options) (*Aggregator, error) {
	if ex == nil {
		ex = extractxml.New(nil, extractxml.Options{Logger: opts.Logger})
	}
	lg := opts.Logger
	if lg == nil {
		lg = log.New(io.Discard, "", 0)
	}
	enc, err := lookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	return &Aggregator{
		ex:        ex,
		processed: opts.ProcessedDir,
		failed:    opts.FailedDir,
		log:       lg,
		enc:       enc,
	}, nil
}

// ProcessFile extracts the listings of one file and relocates it.
//
// A missing path returns ErrNotFound. Every other problem (unreadable file,
// malformed XML, failed move) is logged and yields an empty or partial
// result with a nil error.
func (a *Aggregator) ProcessFile(path string) (fieldspec.Listings, error) {
	_, listings, err := a.processFile(path)
	if err != nil {
		return nil, err
	}
	return listings, nil
}

// ProcessFileResult is ProcessFile with the per-file result, which says
// whether and where the file was moved.
func (a *Aggregator) ProcessFileResult(path string) (FileResult, fieldspec.Listings, error) {
	return a.processFile(path)
}

// ProcessDirectory processes every file directly inside dir and returns the
// merged listings. Names in excluded are skipped, as are "." and ".." and
// subdirectories. A missing dir returns ErrNotFound without touching any
// file.
func (a *Aggregator) ProcessDirectory(dir string, excluded []string) (fieldspec.Listings, error) {
	rep, err := a.Run(dir, excluded)
	if err != nil {
		return nil, err
	}
	return rep.Listings, nil
}

// Run is ProcessDirectory with a per-file report and a fresh run ID.
func (a *Aggregator) Run(dir string, excluded []string) (*Report, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s: %w", ErrNotFound, dir, err)
		}
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	skip := map[string]bool{".": true, "..": true}
	for _, name := range excluded {
		skip[name] = true
	}

	metrics.RecordBatch()
	rep := &Report{RunID: uuid.NewString(), Listings: fieldspec.Listings{}}

	for _, e := range entries {
		if skip[e.Name()] || e.IsDir() {
			continue
		}

		res, listings, err := a.processFile(filepath.Join(dir, e.Name()))
		if err != nil {
			// Removed between listing and processing.
			a.log.Printf("batch: %s: %v", e.Name(), err)
			continue
		}
		rep.Files = append(rep.Files, res)
		merge(rep.Listings, listings)
	}

	a.log.Printf("batch: run %s: %d files, %d listings", rep.RunID, len(rep.Files), rep.Listings.Count())
	return rep, nil
}

// merge adds src into dst, placing src's records ahead of those already
// held for the same listing type.
func merge(dst, src fieldspec.Listings) {
	for kind, recs := range src {
		out := make([]fieldspec.Record, 0, len(recs)+len(dst[kind]))
		out = append(out, recs...)
		dst[kind] = append(out, dst[kind]...)
	}
}

func (a *Aggregator) processFile(path string) (FileResult, fieldspec.Listings, error) {
	start := time.Now()
	name := filepath.Base(path)

	if _, err := os.Stat(path); err != nil && errors.Is(err, fs.ErrNotExist) {
		return FileResult{}, nil, fmt.Errorf("%w: %s: %w", ErrNotFound, path, err)
	}

	var res FileResult
	var listings fieldspec.Listings

	b, err := os.ReadFile(path)
	if err != nil {
		a.log.Printf("batch: %s: read: %v", name, err)
		res = FileResult{Name: name, Outcome: OutcomeUnreadable}
		listings = fieldspec.Listings{}
		metrics.RecordFile(res.Outcome, time.Since(start))
	} else {
		res, listings = a.process(name, b, start)
	}

	dest, dir := DestFailed, a.failed
	if res.Listings > 0 {
		dest, dir = DestProcessed, a.processed
	}
	if dir != "" {
		moved, err := relocate(path, dir)
		metrics.RecordRelocation(dest, err)
		if err != nil {
			a.log.Printf("batch: %s: move to %s: %v", name, dest, err)
		} else {
			a.log.Printf("batch: %s: moved to %s", name, moved)
			res.Destination = dest
		}
	}

	return res, listings, nil
}

// ProcessBytes extracts the listings of a document that did not come from
// the filesystem (stdin, HTTP). It applies the fallback charset and records
// metrics like ProcessFile but never relocates anything.
func (a *Aggregator) ProcessBytes(name string, b []byte) (FileResult, fieldspec.Listings) {
	return a.process(name, b, time.Now())
}

func (a *Aggregator) process(name string, b []byte, start time.Time) (FileResult, fieldspec.Listings) {
	b = a.decode(name, b)
	parsed := a.ex.Parse(string(b))
	if parsed.Outcome == extractxml.OutcomeMalformed {
		a.log.Printf("batch: %s: malformed: %v", name, parsed.Err)
	}

	res := FileResult{Name: name, Outcome: parsed.Outcome.String(), Listings: parsed.Listings.Count()}
	for kind, recs := range parsed.Listings {
		metrics.RecordListings(kind, len(recs))
	}
	metrics.RecordFile(res.Outcome, time.Since(start))
	return res, parsed.Listings
}

func (a *Aggregator) decode(name string, b []byte) []byte {
	out, converted, err := decodeFallback(b, a.enc)
	if err != nil {
		a.log.Printf("batch: %s: decode: %v", name, err)
		return b
	}
	if converted {
		a.log.Printf("batch: %s: decoded with fallback charset", name)
	}
	return out
}
