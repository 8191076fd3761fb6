package storage

import (
	"reflect"
	"testing"

	"reaxml/internal/fieldspec"
)

// TestRecordHash_Canonical verifies the hash ignores map ordering and
// distinguishes nesting and missing values.
func TestRecordHash_Canonical(t *testing.T) {
	t.Parallel()

	a := fieldspec.Record{"priceView": "$1", "address": map[string]string{"state": "WA", "suburb": "Perth"}}
	b := fieldspec.Record{"address": map[string]string{"suburb": "Perth", "state": "WA"}, "priceView": "$1"}

	ha, hb := RecordHash(a), RecordHash(b)
	if ha != hb {
		t.Fatalf("equal records hashed differently: %s vs %s", ha, hb)
	}
	if len(ha) != 64 {
		t.Fatalf("want 64 hex chars, got %d", len(ha))
	}

	nested := fieldspec.Record{"a": map[string]string{"b": ""}}
	flat := fieldspec.Record{"a": "", "b": ""}
	if RecordHash(nested) == RecordHash(flat) {
		t.Fatalf("nested and flat records collide")
	}

	if RecordHash(fieldspec.Record{"a": nil}) == RecordHash(fieldspec.Record{"a": ""}) {
		t.Fatalf("nil and empty string collide")
	}
}

// TestRecordHash_SeparatorText verifies text that looks like the canonical
// form's own structure cannot make two different records collide.
func TestRecordHash_SeparatorText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b fieldspec.Record
	}{
		{
			"value_with_field_separator",
			fieldspec.Record{"a": "x\x1fb=y"},
			fieldspec.Record{"a": "x", "b": "y"},
		},
		{
			"key_with_equals",
			fieldspec.Record{"a=b": "c"},
			fieldspec.Record{"a": "b=c"},
		},
		{
			"nested_with_group_separator",
			fieldspec.Record{"f": map[string]string{"a": "1\x1eb=2"}},
			fieldspec.Record{"f": map[string]string{"a": "1", "b": "2"}},
		},
		{
			"length_lookalike",
			fieldspec.Record{"a": "1:x"},
			fieldspec.Record{"a": "1", "b": "x"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if RecordHash(tc.a) == RecordHash(tc.b) {
				t.Fatalf("%#v and %#v hash the same", tc.a, tc.b)
			}
		})
	}
}

// TestRows_OrderAndDedupe verifies rows follow listing-type name order and
// in-batch duplicates are dropped.
func TestRows_OrderAndDedupe(t *testing.T) {
	t.Parallel()

	dup := fieldspec.Record{"priceView": "same"}
	l := fieldspec.Listings{
		"rural": {{"priceView": "r"}},
		"land":  {dup, {"priceView": "other"}, dup},
	}

	rows, err := Rows("run-7", l)
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("want 3 rows, got %d: %#v", len(rows), rows)
	}

	var kinds []string
	for _, r := range rows {
		if len(r) != len(Columns) {
			t.Fatalf("row width %d, want %d", len(r), len(Columns))
		}
		if r[2] != "run-7" {
			t.Fatalf("run_id: %#v", r[2])
		}
		kinds = append(kinds, r[0].(string))
	}
	if !reflect.DeepEqual(kinds, []string{"land", "land", "rural"}) {
		t.Fatalf("kinds: %v", kinds)
	}
	if rows[0][3] != `{"priceView":"same"}` {
		t.Fatalf("payload: %#v", rows[0][3])
	}
}

// TestRows_SameRecordDifferentTypes verifies the dedupe key includes the
// listing type.
func TestRows_SameRecordDifferentTypes(t *testing.T) {
	t.Parallel()

	rec := fieldspec.Record{"priceView": "x"}
	rows, err := Rows("run", fieldspec.Listings{"land": {rec}, "rural": {rec}})
	if err != nil {
		t.Fatalf("Rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("want 2 rows, got %d", len(rows))
	}
}

func TestChunks(t *testing.T) {
	t.Parallel()

	rows := make([][]any, 5)
	for i := range rows {
		rows[i] = []any{i}
	}

	tests := []struct {
		size int
		want []int
	}{
		{2, []int{2, 2, 1}},
		{5, []int{5}},
		{10, []int{5}},
		{0, []int{5}},
	}
	for _, tc := range tests {
		var got []int
		for _, c := range Chunks(rows, tc.size) {
			got = append(got, len(c))
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Chunks(size=%d): want %v got %v", tc.size, tc.want, got)
		}
	}

	if got := Chunks(nil, 2); len(got) != 0 {
		t.Fatalf("Chunks(nil): %v", got)
	}
}
