package fieldspec

import (
	"fmt"
	"strings"
)

// REAXML listing types.
const (
	Residential    = "residential"
	Rental         = "rental"
	Land           = "land"
	Rural          = "rural"
	Commercial     = "commercial"
	CommercialLand = "commercialLand"
	Business       = "business"

	// InvalidListingType keys listing nodes whose type cannot be determined.
	InvalidListingType = "INVALID_PROPERTY_TYPE"
)

var listingTypes = map[string]bool{
	Residential:    true,
	Rental:         true,
	Land:           true,
	Rural:          true,
	Commercial:     true,
	CommercialLand: true,
	Business:       true,
}

// IsListingType reports whether name is one of the REAXML listing types.
func IsListingType(name string) bool {
	return listingTypes[name]
}

// Spec is an ordered, immutable set of fields with unique output keys.
type Spec struct {
	fields []Field
	index  map[string]int
}

// New validates fields and builds a Spec.
//
// Errors:
//   - an empty key, or a key used more than once
//   - a rule with an unknown kind, or missing the names its kind requires
func New(fields ...Field) (*Spec, error) {
	s := &Spec{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		key := strings.TrimSpace(f.Key)
		if key == "" {
			return nil, fmt.Errorf("field %d: empty key", i)
		}
		if _, dup := s.index[key]; dup {
			return nil, fmt.Errorf("field %q: duplicate key", key)
		}
		if err := validateRule(f.Rule); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		f.Key = key
		s.index[key] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s, nil
}

// MustNew is New that panics on error. Intended for package-level specs.
func MustNew(fields ...Field) *Spec {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func validateRule(r Rule) error {
	switch r.Kind {
	case KindScalar:
		if r.Source == "" {
			return fmt.Errorf("scalar: missing source")
		}
		if r.Format != "" && r.Format != FormatHTMLText {
			return fmt.Errorf("scalar: unknown format %q", r.Format)
		}
	case KindGroup:
		if r.Source == "" {
			return fmt.Errorf("group: missing source")
		}
	case KindMulti:
		if len(r.Containers) == 0 || r.Item == "" || r.IDAttr == "" {
			return fmt.Errorf("multi: container, item and id attribute are required")
		}
		if r.Mode == ValueAttr && r.ValueAttr == "" {
			return fmt.Errorf("multi: missing value attribute")
		}
	case KindStatus:
	default:
		return fmt.Errorf("unknown kind %d", int(r.Kind))
	}
	return nil
}

// Fields returns the fields in declaration order. Callers must not modify
// the returned slice.
func (s *Spec) Fields() []Field {
	return s.fields
}

// Lookup returns the rule for an output key.
func (s *Spec) Lookup(key string) (Rule, bool) {
	i, ok := s.index[key]
	if !ok {
		return Rule{}, false
	}
	return s.fields[i].Rule, true
}

// HasStatus reports whether any field reads the status attribute.
func (s *Spec) HasStatus() bool {
	for _, f := range s.fields {
		if f.Rule.Kind == KindStatus {
			return true
		}
	}
	return false
}

// Len returns the number of fields.
func (s *Spec) Len() int { return len(s.fields) }

var defaultSpec = MustNew(
	Field{Key: "priceView", Rule: Scalar("priceView")},
	Field{Key: "description", Rule: Scalar("description")},
	Field{Key: "features", Rule: Group("features",
		"bedrooms",
		"bathrooms",
		"garages",
		"carports",
		"airConditioning",
		"pool",
		"alarmSystem",
		"otherFeatures",
	)},
	Field{Key: "address", Rule: Group("address",
		"streetNumber",
		"street",
		"suburb",
		"state",
		"postcode",
	)},
	Field{Key: "images", Rule: Multi("images", "img", DefaultIDAttr, ValueAttr).
		WithContainers("images", "objects").
		WithPrefix("img_")},
	Field{Key: "floorplans", Rule: Multi("images", "floorplan", DefaultIDAttr, ValueAttr).
		WithContainers("images", "objects").
		WithPrefix("floorplan_")},
	Field{Key: "status", Rule: Status()},
)

// Default returns the built-in specification.
func Default() *Spec {
	return defaultSpec
}
