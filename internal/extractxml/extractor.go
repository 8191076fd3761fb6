// Package extractxml turns one REAXML document into typed records, driven by
// a fieldspec.Spec.
package extractxml

import (
	"io"
	"log"
	"strings"

	"github.com/antchfx/xmlquery"

	"reaxml/internal/fieldspec"
)

// DefaultRoot is the listing-list root element of a REAXML document.
const DefaultRoot = "propertyList"

// Outcome is the parse state of one document.
type Outcome int

const (
	// OutcomeOK means the document parsed and at least one listing was found.
	OutcomeOK Outcome = iota
	// OutcomeMalformed means the text could not be parsed as XML, including
	// plain text with no markup.
	OutcomeMalformed
	// OutcomeNoListings means there was nothing to extract: empty or
	// whitespace-only text, a different root, or a root with no listing
	// elements.
	OutcomeNoListings
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeNoListings:
		return "no_listings"
	default:
		return "unknown"
	}
}

// Result is the full outcome of extracting one document.
//
// Listings is never nil. Err is set only for OutcomeMalformed.
type Result struct {
	Outcome  Outcome
	Listings fieldspec.Listings
	Err      error
}

// Options configures an Extractor.
type Options struct {
	// Logger receives diagnostic feedback. If nil, feedback is discarded.
	Logger *log.Logger

	// Root is the listing-list root element. If empty, DefaultRoot.
	Root string
}

// Extractor applies a field specification to REAXML documents.
// It holds no per-call state and may be reused.
type Extractor struct {
	spec *fieldspec.Spec
	log  *log.Logger
	root string
}

// New creates an Extractor. If spec is nil, fieldspec.Default() is used.
func New(spec *fieldspec.Spec, opts Options) *Extractor {
	if spec == nil {
		spec = fieldspec.Default()
	}
	lg := opts.Logger
	if lg == nil {
		lg = log.New(io.Discard, "", 0)
	}
	root := opts.Root
	if root == "" {
		root = DefaultRoot
	}
	return &Extractor{spec: spec, log: lg, root: root}
}

// Spec returns the field specification in use.
func (e *Extractor) Spec() *fieldspec.Spec { return e.spec }

// Extract returns the records of text grouped by listing type.
//
// It never fails: malformed or empty text yields an empty map, with the
// reason written to the diagnostic logger.
func (e *Extractor) Extract(text string) fieldspec.Listings {
	res := e.Parse(text)
	if res.Outcome == OutcomeMalformed {
		e.log.Printf("extract: malformed document: %v", res.Err)
	}
	return res.Listings
}

// Parse is Extract with the document outcome made explicit. A malformed
// document is reported through Result.Err only; the caller decides how to
// log it.
func (e *Extractor) Parse(text string) Result {
	if strings.TrimSpace(text) == "" {
		e.log.Printf("extract: empty document")
		return Result{Outcome: OutcomeNoListings, Listings: fieldspec.Listings{}}
	}

	doc, err := xmlquery.Parse(strings.NewReader(text))
	if err != nil {
		return Result{Outcome: OutcomeMalformed, Listings: fieldspec.Listings{}, Err: err}
	}

	root := documentElement(doc)
	if root == nil {
		e.log.Printf("extract: document has no root element")
		return Result{Outcome: OutcomeNoListings, Listings: fieldspec.Listings{}}
	}
	if root.Name() != e.root {
		e.log.Printf("extract: unexpected root <%s>, want <%s>", root.Name(), e.root)
		return Result{Outcome: OutcomeNoListings, Listings: fieldspec.Listings{}}
	}

	out := fieldspec.Listings{}
	for _, listing := range root.Elements() {
		kind := listing.Name()
		if !fieldspec.IsListingType(kind) {
			e.log.Printf("extract: cannot determine listing type of <%s>; using %s", kind, fieldspec.InvalidListingType)
			kind = fieldspec.InvalidListingType
		}
		out[kind] = append(out[kind], e.record(listing))
	}

	if len(out) == 0 {
		e.log.Printf("extract: <%s> has no listings", e.root)
		return Result{Outcome: OutcomeNoListings, Listings: out}
	}
	return Result{Outcome: OutcomeOK, Listings: out}
}

// record evaluates every field rule against one listing node.
func (e *Extractor) record(listing Node) fieldspec.Record {
	rec := make(fieldspec.Record, e.spec.Len())
	for _, f := range e.spec.Fields() {
		switch f.Rule.Kind {
		case fieldspec.KindScalar:
			rec[f.Key] = e.scalar(listing, f.Rule)
		case fieldspec.KindGroup:
			rec[f.Key] = group(listing, f.Rule)
		case fieldspec.KindMulti:
			rec[f.Key] = multi(listing, f.Rule)
		case fieldspec.KindStatus:
			rec[f.Key] = attrText(listing, fieldspec.StatusAttr)
		}
	}
	return rec
}

func (e *Extractor) scalar(listing Node, r fieldspec.Rule) string {
	v := childText(listing, r.Source)
	if r.Format == fieldspec.FormatHTMLText && v != "" {
		flat, err := HTMLToText(v)
		if err != nil {
			e.log.Printf("extract: %s: %v", r.Source, err)
			return v
		}
		return flat
	}
	return v
}

// group always yields an entry per declared subfield, "" when absent.
func group(listing Node, r fieldspec.Rule) map[string]string {
	parent := listing.Child(r.Source)
	out := make(map[string]string, len(r.Subfields))
	for _, sub := range r.Subfields {
		out[sub] = childText(parent, sub)
	}
	return out
}

// multi yields prefix+id -> value for every item of every container present.
// Later items with the same id replace earlier ones; items without an id are
// skipped.
func multi(listing Node, r fieldspec.Rule) map[string]string {
	out := map[string]string{}
	for _, name := range r.Containers {
		for _, container := range listing.Children(name) {
			for _, item := range container.Children(r.Item) {
				id := attrText(item, r.IDAttr)
				if id == "" {
					continue
				}
				if r.Mode == fieldspec.ValueText {
					out[r.Prefix+id] = item.Text()
				} else {
					out[r.Prefix+id] = attrText(item, r.ValueAttr)
				}
			}
		}
	}
	return out
}
