// Command reaxml converts REAXML listing feeds into JSON records grouped by
// listing type.
//
// Usage (directory mode, moving files once handled):
//
//	reaxml -dir ./incoming -processed ./done -failed ./failed
//
// Usage (single file, or stdin with "-"):
//
//	reaxml -file feed.xml
//	cat feed.xml | reaxml -file -
//
// Usage (fetch one feed over HTTP):
//
//	reaxml -url https://agent.example.com/feeds/current.xml -timeout 30s
//
// Custom field specification (JSON or YAML):
//
//	reaxml -dir ./incoming -spec fields.yaml
//
// Load the listings into SQL as well as printing them:
//
//	reaxml -dir ./incoming -storage sqlite -dsn listings.db
//
// The load runs after files have been moved. If it fails, the moved files are
// listed on stderr; move them back to the input to reload them.
//
// Debug (print XML or text for XPath matches):
//
//	reaxml -file feed.xml -xpath "/propertyList/*/priceView" -text
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/microsoft/go-mssqldb" // "sqlserver" driver for the mssql storage sink

	"reaxml/internal/batch"
	"reaxml/internal/extractxml"
	"reaxml/internal/feedsource"
	"reaxml/internal/fieldspec"
	"reaxml/internal/metrics"
	"reaxml/internal/metrics/datadog"
	"reaxml/internal/storage"
	_ "reaxml/internal/storage/mssql"
	_ "reaxml/internal/storage/postgres"
	_ "reaxml/internal/storage/sqlite"
)

// backendCloser is a metrics backend with a shutdown hook.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are the process-level collaborators of run, replaced in tests.
type deps struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// HTTPClient is used for -url; nil means http.DefaultClient.
	HTTPClient *http.Client

	BackendFactory func(ctx context.Context, jobName string, tags []string) (backendCloser, error)
}

func main() {
	// A missing .env is normal; real environment variables still apply.
	_ = godotenv.Load()

	os.Exit(run(context.Background(), os.Args[1:], deps{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, jobName string, tags []string) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: 60 * time.Second,
			})
		},
	}))
}

// runConfig holds the parsed flags.
type runConfig struct {
	Dir       string
	File      string
	URL       string
	Timeout   time.Duration
	SpecPath  string
	Root      string
	Processed string
	Failed    string
	Exclude   []string
	Encoding  string
	Debug     bool
	Report    bool

	XPath    string
	TextOnly bool

	StorageKind string
	DSN         string
	Table       string

	MetricsBackend string
	JobName        string
}

func parseFlags(args []string, stderr io.Writer) (runConfig, error) {
	var cfg runConfig
	var exclude string

	fs := flag.NewFlagSet("reaxml", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&cfg.Dir, "dir", "", "Directory of feed files to process (not recursive)")
	fs.StringVar(&cfg.File, "file", "", `Single feed file to process ("-" reads stdin)`)
	fs.StringVar(&cfg.URL, "url", "", "Single feed to fetch via HTTP GET")
	fs.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "HTTP timeout for -url")
	fs.StringVar(&cfg.SpecPath, "spec", "", "Optional: field specification file (.json, .yaml, .yml)")
	fs.StringVar(&cfg.Root, "root", extractxml.DefaultRoot, "Listing-list root element")
	fs.StringVar(&cfg.Processed, "processed", "", "Optional: move files with listings here")
	fs.StringVar(&cfg.Failed, "failed", "", "Optional: move files without listings here")
	fs.StringVar(&exclude, "exclude", "", "Comma-separated file names to skip in -dir mode")
	fs.StringVar(&cfg.Encoding, "encoding", "", "Optional: charset for undeclared non-UTF-8 files (e.g. windows-1252)")
	fs.BoolVar(&cfg.Debug, "debug", false, "Print per-file diagnostics to stderr")
	fs.BoolVar(&cfg.Report, "report", false, "In -dir mode, print the run report instead of only the listings")
	fs.StringVar(&cfg.XPath, "xpath", "", "Debug: XPath expression to print matches for (not JSON)")
	fs.BoolVar(&cfg.TextOnly, "text", false, "Debug: print text of -xpath matches instead of XML")
	fs.StringVar(&cfg.StorageKind, "storage", "", "Optional: load listings into SQL (sqlite, postgres, mssql)")
	fs.StringVar(&cfg.DSN, "dsn", "", "Data source name for -storage")
	fs.StringVar(&cfg.Table, "table", storage.DefaultTable, "Destination table for -storage")
	fs.StringVar(&cfg.MetricsBackend, "metrics", "", "Metrics backend (datadog, none); overrides METRICS_BACKEND")
	fs.StringVar(&cfg.JobName, "job", "reaxml", "Job name tag for metrics")

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	for _, name := range strings.Split(exclude, ",") {
		if name = strings.TrimSpace(name); name != "" {
			cfg.Exclude = append(cfg.Exclude, name)
		}
	}

	if cfg.MetricsBackend == "" {
		cfg.MetricsBackend = os.Getenv("METRICS_BACKEND")
	}

	inputs := 0
	for _, v := range []string{cfg.Dir, cfg.File, cfg.URL} {
		if v != "" {
			inputs++
		}
	}

	if cfg.XPath != "" {
		if cfg.File == "" && cfg.URL == "" {
			return cfg, errors.New("-xpath requires -file or -url")
		}
		if cfg.Dir != "" || inputs > 1 {
			return cfg, errors.New("-xpath takes exactly one of -file or -url")
		}
		return cfg, nil
	}
	if inputs != 1 {
		return cfg, errors.New("exactly one of -dir, -file or -url is required")
	}
	if cfg.StorageKind != "" {
		if !slices.Contains(storage.Kinds(), cfg.StorageKind) {
			return cfg, fmt.Errorf("unsupported -storage %q", cfg.StorageKind)
		}
		if cfg.DSN == "" {
			return cfg, errors.New("-storage requires -dsn")
		}
	}
	return cfg, nil
}

// run is split out from main so the command can be tested without spawning a
// process.
//
// It returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage/config errors
//   - 1 for operational/runtime errors (missing input, storage failures)
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdin == nil {
		d.Stdin = strings.NewReader("")
	}
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}

	cfg, err := parseFlags(args, d.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(d.Stderr, err.Error())
		}
		return 2
	}

	logger := log.New(io.Discard, "", 0)
	if cfg.Debug {
		logger = log.New(d.Stderr, "reaxml: ", log.LstdFlags)
	}

	loader := feedsource.NewLoader(d.HTTPClient, cfg.Timeout)
	input := feedsource.Input{URL: cfg.URL, Path: cfg.File, Stdin: d.Stdin}

	// Debug XPath mode needs the raw document but no spec or metrics.
	if cfg.XPath != "" {
		b, err := loader.Load(ctx, input)
		if err != nil {
			fmt.Fprintf(d.Stderr, "read input: %v\n", err)
			return 1
		}
		if err := extractxml.DebugPrintXPath(d.Stdout, string(b), cfg.XPath, cfg.TextOnly); err != nil {
			fmt.Fprintf(d.Stderr, "debug xpath: %v\n", err)
			return 1
		}
		return 0
	}

	spec := fieldspec.Default()
	if cfg.SpecPath != "" {
		if spec, err = fieldspec.LoadFile(cfg.SpecPath); err != nil {
			fmt.Fprintf(d.Stderr, "load spec: %v\n", err)
			return 2
		}
	}

	ex := extractxml.New(spec, extractxml.Options{Logger: logger, Root: cfg.Root})
	agg, err := batch.New(ex, batch.Options{
		ProcessedDir: cfg.Processed,
		FailedDir:    cfg.Failed,
		Logger:       logger,
		Encoding:     cfg.Encoding,
	})
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	if closeMetrics := setupMetrics(ctx, cfg, d, logger); closeMetrics != nil {
		defer closeMetrics()
	}

	var out any
	var listings fieldspec.Listings
	var files []batch.FileResult
	runID := uuid.NewString()

	switch {
	case cfg.Dir != "":
		rep, err := agg.Run(cfg.Dir, cfg.Exclude)
		if err != nil {
			fmt.Fprintf(d.Stderr, "process dir: %v\n", err)
			return 1
		}
		runID, listings, files, out = rep.RunID, rep.Listings, rep.Files, rep.Listings
		if cfg.Report {
			out = rep
		}

	case cfg.URL != "" || cfg.File == feedsource.StdinPath:
		b, err := loader.Load(ctx, input)
		if err != nil {
			fmt.Fprintf(d.Stderr, "read input: %v\n", err)
			return 1
		}
		name := cfg.URL
		if name == "" {
			name = "stdin"
		}
		_, listings = agg.ProcessBytes(name, b)
		out = listings

	default:
		var res batch.FileResult
		res, listings, err = agg.ProcessFileResult(cfg.File)
		if err != nil {
			fmt.Fprintf(d.Stderr, "process file: %v\n", err)
			return 1
		}
		files, out = []batch.FileResult{res}, listings
	}

	if cfg.StorageKind != "" {
		if err := store(ctx, cfg, runID, listings, logger); err != nil {
			fmt.Fprintf(d.Stderr, "storage: %v\n", err)
			reportMoved(d.Stderr, cfg, files)
			return 1
		}
	}

	enc := json.NewEncoder(d.Stdout)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(d.Stderr, "encode json: %v\n", err)
		return 1
	}
	return 0
}

// reportMoved lists files that already left the input directory, so a failed
// load can be retried by moving them back.
func reportMoved(w io.Writer, cfg runConfig, files []batch.FileResult) {
	for _, f := range files {
		var dir string
		switch f.Destination {
		case batch.DestProcessed:
			dir = cfg.Processed
		case batch.DestFailed:
			dir = cfg.Failed
		default:
			continue
		}
		fmt.Fprintf(w, "storage: %s was already moved to %s and was not loaded\n", f.Name, filepath.Join(dir, f.Name))
	}
}

// setupMetrics installs the configured backend and returns its shutdown
// func, or nil when metrics stay disabled. Backend failures never stop a run.
func setupMetrics(ctx context.Context, cfg runConfig, d deps, logger *log.Logger) func() {
	switch cfg.MetricsBackend {
	case "datadog":
		if d.BackendFactory == nil {
			fmt.Fprintln(d.Stderr, "metrics: no datadog backend available; metrics disabled")
			return nil
		}
		tags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))
		b, err := d.BackendFactory(ctx, cfg.JobName, tags)
		if err != nil {
			fmt.Fprintf(d.Stderr, "metrics: failed to init datadog backend: %v; using nop\n", err)
			return nil
		}
		logger.Printf("metrics: backend=datadog job_name=%v tags=%v", cfg.JobName, tags)
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				fmt.Fprintf(d.Stderr, "metrics: datadog close/flush error: %v\n", err)
			}
			metrics.SetBackend(nil)
		}

	case "", "none":
		return nil

	default:
		fmt.Fprintf(d.Stderr, "metrics: unknown backend %q; metrics disabled\n", cfg.MetricsBackend)
		return nil
	}
}

func store(ctx context.Context, cfg runConfig, runID string, l fieldspec.Listings, logger *log.Logger) error {
	repo, err := storage.New(ctx, storage.Config{Kind: cfg.StorageKind, DSN: cfg.DSN, Table: cfg.Table})
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.EnsureTable(ctx); err != nil {
		return err
	}
	n, err := repo.InsertListings(ctx, runID, l)
	if err != nil {
		return err
	}
	logger.Printf("storage: run %s: inserted %d of %d records into %s", runID, n, l.Count(), cfg.Table)
	return nil
}
