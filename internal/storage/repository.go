// Package storage is the optional SQL sink for extracted listings.
//
// Each backend lives in a subpackage and registers itself under a kind
// ("sqlite", "postgres", "mssql") from init. Commands blank-import the
// backends they support and call New.
package storage

import (
	"context"
	"fmt"
	"sync"

	"reaxml/internal/fieldspec"
)

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "reaxml_listings"

// Config is the minimal configuration needed to create a Repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend; validation is backend-specific.
//   - Table may be schema-qualified where the backend supports it.
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// TableName returns cfg.Table, or DefaultTable when it is empty.
func (cfg Config) TableName() string {
	if cfg.Table == "" {
		return DefaultTable
	}
	return cfg.Table
}

// Repository loads listings into one table.
//
// The table holds one row per record (see Columns). Rows are unique on
// DedupeColumns, so loading the same feed twice inserts nothing the second
// time. Each backend enforces that in its own way (SQLite OR IGNORE,
// Postgres ON CONFLICT, SQL Server NOT EXISTS).
type Repository interface {
	// EnsureTable creates the table and its unique constraint if missing.
	EnsureTable(ctx context.Context) error

	// InsertListings inserts every record of l tagged with runID and returns
	// the number of rows actually inserted.
	InsertListings(ctx context.Context, runID string, l fieldspec.Listings) (int64, error)

	// Close releases backend resources. Call once.
	Close()
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under kind.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// Kinds returns the registered backend kinds in no particular order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}

// New constructs a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
