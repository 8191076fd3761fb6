package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"reaxml/internal/fieldspec"
)

// Columns is the insert column order shared by every backend.
var Columns = []string{"listing_type", "record_hash", "run_id", "payload"}

// DedupeColumns identify a stored listing.
var DedupeColumns = []string{"listing_type", "record_hash"}

// ChunkSize bounds the rows per INSERT statement. SQL Server caps a
// statement at 2100 parameters.
const ChunkSize = 500

// Rows flattens l into insert rows in Columns order.
//
// Listing types are visited in name order and records in their own order.
// Rows repeating an earlier (listing_type, record_hash) pair are dropped so
// a single statement never conflicts with itself.
func Rows(runID string, l fieldspec.Listings) ([][]any, error) {
	kinds := make([]string, 0, len(l))
	for k := range l {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	seen := map[string]bool{}
	out := make([][]any, 0, l.Count())
	for _, kind := range kinds {
		for _, rec := range l[kind] {
			hash := RecordHash(rec)
			key := kind + "\x1f" + hash
			if seen[key] {
				continue
			}
			seen[key] = true

			payload, err := json.Marshal(rec)
			if err != nil {
				return nil, fmt.Errorf("encode %s record: %w", kind, err)
			}
			out = append(out, []any{kind, hash, runID, string(payload)})
		}
	}
	return out, nil
}

// RecordHash returns a lowercase hex SHA-256 over a canonical form of rec.
//
// Keys are sorted at every level. Every key and string value is written
// length-prefixed ("<len>:<bytes>") and tagged by type, so no text inside a
// record can imitate a separator. A missing value differs from an empty
// string, and a nested map differs from the same keys at the top level.
func RecordHash(rec fieldspec.Record) string {
	var b strings.Builder
	b.Grow(len(rec) * 24)

	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	writeLen(&b, len(keys))
	for _, k := range keys {
		writeString(&b, k)
		appendCanonicalValue(&b, rec[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func appendCanonicalValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteByte('n')

	case string:
		b.WriteByte('s')
		writeString(b, t)

	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteByte('m')
		writeLen(b, len(keys))
		for _, k := range keys {
			writeString(b, k)
			writeString(b, t[k])
		}

	default:
		b.WriteByte('v')
		writeString(b, fmt.Sprint(t))
	}
}

func writeLen(b *strings.Builder, n int) {
	b.WriteString(strconv.Itoa(n))
	b.WriteByte(':')
}

func writeString(b *strings.Builder, s string) {
	writeLen(b, len(s))
	b.WriteString(s)
}

// Chunks splits rows into slices of at most size rows. A size <= 0 uses
// ChunkSize.
func Chunks(rows [][]any, size int) [][][]any {
	if size <= 0 {
		size = ChunkSize
	}
	var out [][][]any
	for len(rows) > size {
		out = append(out, rows[:size:size])
		rows = rows[size:]
	}
	if len(rows) > 0 {
		out = append(out, rows)
	}
	return out
}
