package fieldspec

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// TestDefault_FieldOrderAndKinds verifies the built-in field list keeps its
// declaration order and rule kinds.
func TestDefault_FieldOrderAndKinds(t *testing.T) {
	t.Parallel()

	want := []struct {
		key  string
		kind Kind
	}{
		{"priceView", KindScalar},
		{"description", KindScalar},
		{"features", KindGroup},
		{"address", KindGroup},
		{"images", KindMulti},
		{"floorplans", KindMulti},
		{"status", KindStatus},
	}

	got := Default().Fields()
	if len(got) != len(want) {
		t.Fatalf("want %d fields, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Key != w.key || got[i].Rule.Kind != w.kind {
			t.Fatalf("field %d: want (%s,%s) got (%s,%s)", i, w.key, w.kind, got[i].Key, got[i].Rule.Kind)
		}
	}
	if !Default().HasStatus() {
		t.Fatalf("default spec should read status")
	}
}

// TestDefault_ImagesRule verifies the image and floorplan multi rules share
// containers but use distinct prefixes.
func TestDefault_ImagesRule(t *testing.T) {
	t.Parallel()

	img, ok := Default().Lookup("images")
	if !ok {
		t.Fatalf("images missing")
	}
	fp, ok := Default().Lookup("floorplans")
	if !ok {
		t.Fatalf("floorplans missing")
	}

	if !reflect.DeepEqual(img.Containers, []string{"images", "objects"}) {
		t.Fatalf("unexpected containers: %#v", img.Containers)
	}
	if img.Item != "img" || img.Prefix != "img_" || img.ValueAttr != "url" || img.Mode != ValueAttr {
		t.Fatalf("unexpected images rule: %#v", img)
	}
	if fp.Item != "floorplan" || fp.Prefix != "floorplan_" {
		t.Fatalf("unexpected floorplans rule: %#v", fp)
	}
}

// TestNew_Rejects covers the construction-time invariants.
func TestNew_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		fields []Field
		want   string
	}{
		{"empty_key", []Field{{Key: " ", Rule: Scalar("a")}}, "empty key"},
		{"duplicate_key", []Field{{Key: "a", Rule: Scalar("a")}, {Key: "a", Rule: Scalar("b")}}, "duplicate key"},
		{"scalar_no_source", []Field{{Key: "a", Rule: Scalar("")}}, "missing source"},
		{"unknown_format", []Field{{Key: "a", Rule: Rule{Kind: KindScalar, Source: "a", Format: "md"}}}, "unknown format"},
		{"multi_no_item", []Field{{Key: "a", Rule: Multi("images", "", "id", ValueAttr)}}, "required"},
		{"zero_kind", []Field{{Key: "a"}}, "unknown kind"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.fields...)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error containing %q, got %v", tc.want, err)
			}
		})
	}
}

// TestLookup_Unknown verifies unknown keys report ok=false instead of panicking.
func TestLookup_Unknown(t *testing.T) {
	t.Parallel()

	if _, ok := Default().Lookup("nope"); ok {
		t.Fatalf("expected ok=false")
	}
}

// TestIsListingType covers the seven REAXML types and the sentinel.
func TestIsListingType(t *testing.T) {
	t.Parallel()

	for _, n := range []string{"residential", "rental", "land", "rural", "commercial", "commercialLand", "business"} {
		if !IsListingType(n) {
			t.Fatalf("%s should be a listing type", n)
		}
	}
	for _, n := range []string{"", "commercialland", InvalidListingType, "propertyList"} {
		if IsListingType(n) {
			t.Fatalf("%q should not be a listing type", n)
		}
	}
}

// TestLoadFile_JSON verifies a JSON spec file with every kind round-trips
// into the equivalent rules.
func TestLoadFile_JSON(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "spec.json")
	if err := os.WriteFile(p, []byte(`{
		"fields": [
			{"key":"price","kind":"scalar","source":"priceView"},
			{"key":"desc","kind":"scalar","source":"description","format":"html_text"},
			{"key":"addr","kind":"group","source":"address","subfields":["suburb","state"]},
			{"key":"pics","kind":"multi","container":"objects","item":"img","prefix":"img_"},
			{"key":"docs","kind":"multi","containers":["media"],"item":"attachment","id_attr":"usage","value":"text"},
			{"key":"status","kind":"status"}
		]
	}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if s.Len() != 6 {
		t.Fatalf("want 6 fields, got %d", s.Len())
	}

	desc, _ := s.Lookup("desc")
	if desc.Format != FormatHTMLText {
		t.Fatalf("desc format: %q", desc.Format)
	}
	pics, _ := s.Lookup("pics")
	if !reflect.DeepEqual(pics, Multi("objects", "img", "id", ValueAttr).WithPrefix("img_")) {
		t.Fatalf("pics: %#v", pics)
	}
	docs, _ := s.Lookup("docs")
	if docs.Mode != ValueText || docs.IDAttr != "usage" || docs.ValueAttr != "" {
		t.Fatalf("docs: %#v", docs)
	}
}

// TestLoadFile_YAML verifies .yaml files are decoded with the YAML decoder.
func TestLoadFile_YAML(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "spec.yaml")
	if err := os.WriteFile(p, []byte(`
fields:
  - key: features
    kind: group
    source: features
    subfields: [bedrooms, bathrooms]
  - key: plans
    kind: multi
    containers: [images, objects]
    item: floorplan
    value_attr: href
`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	s, err := LoadFile(p)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	f, _ := s.Lookup("features")
	if !reflect.DeepEqual(f.Subfields, []string{"bedrooms", "bathrooms"}) {
		t.Fatalf("subfields: %#v", f.Subfields)
	}
	plans, _ := s.Lookup("plans")
	if plans.ValueAttr != "href" || len(plans.Containers) != 2 {
		t.Fatalf("plans: %#v", plans)
	}
}

// TestLoadFile_Rejects covers empty field lists and unknown kinds.
func TestLoadFile_Rejects(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"empty.json":  `{"fields":[]}`,
		"kind.json":   `{"fields":[{"key":"a","kind":"xpath","source":"a"}]}`,
		"mode.json":   `{"fields":[{"key":"a","kind":"multi","container":"c","item":"i","value":"inner"}]}`,
		"nocont.json": `{"fields":[{"key":"a","kind":"multi","item":"i"}]}`,
		"broken.json": `{"fields":`,
		"broken.yaml": "fields: [",
	}

	dir := t.TempDir()
	for name, body := range tests {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := LoadFile(p); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
