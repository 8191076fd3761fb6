package fieldspec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FieldConfig is one entry of a field spec file.
type FieldConfig struct {
	Key  string `json:"key" yaml:"key"`
	Kind string `json:"kind" yaml:"kind"` // "scalar", "group", "multi", "status"

	// scalar, group
	Source    string   `json:"source,omitempty" yaml:"source,omitempty"`
	Format    string   `json:"format,omitempty" yaml:"format,omitempty"`
	Subfields []string `json:"subfields,omitempty" yaml:"subfields,omitempty"`

	// multi; Containers wins over Container when both are set
	Container  string   `json:"container,omitempty" yaml:"container,omitempty"`
	Containers []string `json:"containers,omitempty" yaml:"containers,omitempty"`
	Item       string   `json:"item,omitempty" yaml:"item,omitempty"`
	IDAttr     string   `json:"id_attr,omitempty" yaml:"id_attr,omitempty"`
	Value      string   `json:"value,omitempty" yaml:"value,omitempty"` // "attr" (default) or "text"
	ValueAttr  string   `json:"value_attr,omitempty" yaml:"value_attr,omitempty"`
	Prefix     string   `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

// File describes a field spec file.
type File struct {
	Fields []FieldConfig `json:"fields" yaml:"fields"`
}

// LoadFile loads a JSON or YAML (by extension) field spec file and builds a Spec.
func LoadFile(path string) (*Spec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec file: %w", err)
	}

	var f File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("parse spec yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(b, &f); err != nil {
			return nil, fmt.Errorf("parse spec json: %w", err)
		}
	}

	if len(f.Fields) == 0 {
		return nil, fmt.Errorf("spec file %s has no fields", path)
	}
	return f.Spec()
}

// Spec converts the file into a validated Spec.
func (f File) Spec() (*Spec, error) {
	fields := make([]Field, 0, len(f.Fields))
	for i, fc := range f.Fields {
		r, err := fc.rule()
		if err != nil {
			return nil, fmt.Errorf("fields[%d] (%s): %w", i, fc.Key, err)
		}
		fields = append(fields, Field{Key: fc.Key, Rule: r})
	}
	return New(fields...)
}

func (fc FieldConfig) rule() (Rule, error) {
	switch strings.ToLower(strings.TrimSpace(fc.Kind)) {
	case "scalar", "":
		r := Scalar(fc.Source)
		r.Format = fc.Format
		return r, nil

	case "group":
		return Group(fc.Source, fc.Subfields...), nil

	case "multi":
		containers := fc.Containers
		if len(containers) == 0 && fc.Container != "" {
			containers = []string{fc.Container}
		}
		if len(containers) == 0 {
			return Rule{}, fmt.Errorf("multi: missing container")
		}

		var mode ValueMode
		switch strings.ToLower(fc.Value) {
		case "", "attr":
			mode = ValueAttr
		case "text":
			mode = ValueText
		default:
			return Rule{}, fmt.Errorf("multi: unknown value mode %q", fc.Value)
		}

		r := Multi(containers[0], fc.Item, fc.IDAttr, mode).
			WithContainers(containers...).
			WithPrefix(fc.Prefix)
		if mode == ValueAttr && fc.ValueAttr != "" {
			r = r.WithValueAttr(fc.ValueAttr)
		}
		return r, nil

	case "status":
		return Status(), nil

	default:
		return Rule{}, fmt.Errorf("unknown kind %q", fc.Kind)
	}
}
