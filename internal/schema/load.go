package schema

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk schema file shape.
//
//	version: 1
//	fields:
//	  - name: admin_id
//	    type: select
//	    default: [1]
//	    options:
//	      - {id: 1, text: "John", value: 1}
//	    config: {label: Assignee, required: true, multiple: chips}
type Document struct {
	Version int     `yaml:"version" json:"version"`
	Fields  []Field `yaml:"fields" json:"fields"`
}

// Load reads and validates a schema file.
func Load(path string) ([]Field, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fields, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fields, nil
}

// Parse decodes YAML or JSON and validates the result.
func Parse(b []byte) ([]Field, error) {
	var doc Document
	if json.Valid(b) {
		if err := json.Unmarshal(b, &doc); err != nil {
			return nil, err
		}
	} else if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	if err := Validate(doc.Fields); err != nil {
		return nil, err
	}
	return doc.Fields, nil
}

// fieldHeader is the part of a field entry that does not depend on type.
type fieldHeader struct {
	Name        string   `yaml:"name" json:"name"`
	Type        string   `yaml:"type" json:"type"`
	Default     any      `yaml:"default,omitempty" json:"default,omitempty"`
	DefaultFrom string   `yaml:"default_from,omitempty" json:"default_from,omitempty"`
	Options     []Option `yaml:"options,omitempty" json:"options,omitempty"`
}

func (h fieldHeader) defaultValue() Default {
	if h.DefaultFrom != "" {
		return From(h.DefaultFrom)
	}
	return Static(h.Default)
}

// UnmarshalYAML decodes `config` into the variant selected by `type`.
func (f *Field) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		fieldHeader `yaml:",inline"`
		Config      yaml.Node `yaml:"config"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	t, err := ParseFieldType(raw.Type)
	if err != nil {
		return fmt.Errorf("field %q: %w", raw.Name, err)
	}
	cfg, err := decodeConfig(t, func(dst any) error {
		if raw.Config.Kind == 0 {
			return nil
		}
		return raw.Config.Decode(dst)
	})
	if err != nil {
		return fmt.Errorf("field %q config: %w", raw.Name, err)
	}
	*f = Field{Name: raw.Name, Default: raw.defaultValue(), Config: cfg, Options: raw.Options}
	return nil
}

// UnmarshalJSON is the JSON counterpart of UnmarshalYAML.
func (f *Field) UnmarshalJSON(b []byte) error {
	var raw struct {
		fieldHeader
		Config json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	t, err := ParseFieldType(raw.Type)
	if err != nil {
		return fmt.Errorf("field %q: %w", raw.Name, err)
	}
	cfg, err := decodeConfig(t, func(dst any) error {
		if len(raw.Config) == 0 || string(raw.Config) == "null" {
			return nil
		}
		return json.Unmarshal(raw.Config, dst)
	})
	if err != nil {
		return fmt.Errorf("field %q config: %w", raw.Name, err)
	}
	*f = Field{Name: raw.Name, Default: raw.defaultValue(), Config: cfg, Options: raw.Options}
	return nil
}

// MarshalJSON renders the field for the presentation layer. Computed
// defaults other than default_from are not serializable and are omitted.
func (f Field) MarshalJSON() ([]byte, error) {
	out := struct {
		fieldHeader
		Config FieldConfig `json:"config"`
	}{
		fieldHeader: fieldHeader{
			Name:        f.Name,
			Type:        string(f.Type()),
			DefaultFrom: f.Default.from,
			Options:     f.Options,
		},
		Config: f.Config,
	}
	if !f.Default.IsComputed() {
		out.Default = f.Default.static
	}
	if out.Config == nil {
		out.Config = emptyConfig(f.Type())
	}
	return json.Marshal(out)
}

func decodeConfig(t FieldType, decode func(dst any) error) (FieldConfig, error) {
	switch t {
	case TypeInput:
		var c InputConfig
		err := decode(&c)
		return c, err
	case TypeDate:
		var c DateConfig
		err := decode(&c)
		return c, err
	case TypeSelect:
		var c SelectConfig
		if err := decode(&c); err != nil {
			return nil, err
		}
		switch c.Multiple {
		case MultipleNone, MultipleDefault, MultipleChips:
		default:
			return nil, fmt.Errorf("unknown multiple mode %q", c.Multiple)
		}
		return c, nil
	case TypeCustom:
		var c CustomConfig
		err := decode(&c)
		return c, err
	default:
		var c HiddenConfig
		err := decode(&c)
		return c, err
	}
}
