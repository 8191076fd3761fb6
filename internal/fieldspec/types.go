// Package fieldspec describes which fields are pulled out of a REAXML listing
// and how. It is pure data: the extractor interprets it.
package fieldspec

// Kind selects how a Rule is evaluated against a listing node.
type Kind int

const (
	// KindScalar reads the trimmed text of one child element.
	KindScalar Kind = iota + 1
	// KindGroup reads a nested element and each listed child of it.
	KindGroup
	// KindMulti reads a repeated item set keyed by an identifying attribute.
	KindMulti
	// KindStatus reads the listing node's own status attribute.
	KindStatus
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindGroup:
		return "group"
	case KindMulti:
		return "multi"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// ValueMode selects where a multi item's value comes from.
type ValueMode int

const (
	// ValueAttr reads the attribute named by Rule.ValueAttr (default "url").
	ValueAttr ValueMode = iota
	// ValueText reads the item's trimmed inner text.
	ValueText
)

// FormatHTMLText flattens markup embedded in a scalar's text to plain text.
const FormatHTMLText = "html_text"

const (
	// DefaultIDAttr is the identifying attribute of multi items.
	DefaultIDAttr = "id"
	// DefaultValueAttr is the value-bearing attribute of multi items.
	DefaultValueAttr = "url"
	// StatusAttr is the listing node attribute read by KindStatus.
	StatusAttr = "status"
)

// Rule is one extraction instruction. Which fields matter depends on Kind:
//
//   - KindScalar: Source, Format
//   - KindGroup:  Source, Subfields
//   - KindMulti:  Containers, Item, IDAttr, Mode, ValueAttr, Prefix
//   - KindStatus: none
type Rule struct {
	Kind Kind

	Source    string
	Subfields []string
	Format    string

	// Containers lists alternative container elements; every one present
	// under the listing contributes items, in order.
	Containers []string
	Item       string
	IDAttr     string
	Mode       ValueMode
	ValueAttr  string
	Prefix     string
}

// Field binds an output key to its rule.
type Field struct {
	Key  string
	Rule Rule
}

// Scalar reads the text content of the child element named source.
func Scalar(source string) Rule {
	return Rule{Kind: KindScalar, Source: source}
}

// HTMLText is Scalar with embedded markup flattened to plain text.
func HTMLText(source string) Rule {
	return Rule{Kind: KindScalar, Source: source, Format: FormatHTMLText}
}

// Group reads each of subfields from the child element named source.
func Group(source string, subfields ...string) Rule {
	return Rule{Kind: KindGroup, Source: source, Subfields: append([]string(nil), subfields...)}
}

// Multi reads container/item elements keyed by idAttr. In ValueAttr mode the
// value comes from the "url" attribute; use WithValueAttr to change it.
func Multi(container, item, idAttr string, mode ValueMode) Rule {
	if idAttr == "" {
		idAttr = DefaultIDAttr
	}
	r := Rule{
		Kind:       KindMulti,
		Containers: []string{container},
		Item:       item,
		IDAttr:     idAttr,
		Mode:       mode,
	}
	if mode == ValueAttr {
		r.ValueAttr = DefaultValueAttr
	}
	return r
}

// Status reads the status attribute of the listing node itself.
func Status() Rule {
	return Rule{Kind: KindStatus}
}

// WithPrefix returns a copy of r whose multi keys are prefix+id.
func (r Rule) WithPrefix(prefix string) Rule {
	r.Prefix = prefix
	return r
}

// WithContainers returns a copy of r reading items from every listed container.
func (r Rule) WithContainers(containers ...string) Rule {
	r.Containers = append([]string(nil), containers...)
	return r
}

// WithValueAttr returns a copy of r reading item values from attr.
func (r Rule) WithValueAttr(attr string) Rule {
	r.Mode = ValueAttr
	r.ValueAttr = attr
	return r
}

// Record is the extraction result for one listing node. Values are either
// string (scalar, status) or map[string]string (group, multi).
type Record map[string]any

// Listings maps a listing type to its records in encounter order.
type Listings map[string][]Record

// Count returns the total number of records across all listing types.
func (l Listings) Count() int {
	n := 0
	for _, recs := range l {
		n += len(recs)
	}
	return n
}
