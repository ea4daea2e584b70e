package schema

import (
	"errors"
	"fmt"

	"scheditor/internal/model"
)

var (
	ErrUnknownFieldType = errors.New("unknown field type")
	ErrDuplicateField   = errors.New("duplicate field name")
	ErrReservedField    = errors.New("field name is reserved")
	ErrEmptyFieldName   = errors.New("field name is empty")
)

// Option is one entry of a select field's option list. Duplicate IDs are
// the caller's responsibility.
type Option struct {
	ID    any    `yaml:"id" json:"id"`
	Text  string `yaml:"text" json:"text"`
	Value any    `yaml:"value" json:"value"`
}

// Field describes one editable attribute of an event. A Field is
// immutable for the lifetime of an editing session.
type Field struct {
	Name    string
	Default Default
	Config  FieldConfig
	Options []Option
}

// Type returns the field kind, derived from its config.
func (f Field) Type() FieldType {
	if f.Config == nil {
		return TypeHidden
	}
	return f.Config.Type()
}

// Props returns the shared input props of the field's config.
func (f Field) Props() InputProps {
	if f.Config == nil {
		return InputProps{}
	}
	return f.Config.Props()
}

// Required reports config.required.
func (f Field) Required() bool { return f.Props().Required }

// Multi reports whether the field is declared multi-valued. This is the
// only input to the scalar/list decision of the normalizer.
func (f Field) Multi() bool {
	sc, ok := f.Config.(SelectConfig)
	return ok && sc.Multiple != MultipleNone
}

// Default is either a static value or a value computed from the seed
// event of an editing session.
type Default struct {
	static   any
	computed func(event *model.EventRecord) any
	// from names the seed field a YAML `default_from` copies.
	from string
}

// Static returns a Default holding v.
func Static(v any) Default { return Default{static: v} }

// Computed returns a Default evaluated against the seed event.
func Computed(fn func(event *model.EventRecord) any) Default {
	return Default{computed: fn}
}

// From returns a Default copying another field of the seed event.
func From(field string) Default {
	return Default{
		from: field,
		computed: func(event *model.EventRecord) any {
			return event.Value(field)
		},
	}
}

// IsComputed reports whether the default is a function of the seed.
func (d Default) IsComputed() bool { return d.computed != nil }

// Resolve evaluates the default. A panicking computed default resolves to
// nil with ok=false instead of propagating.
func (d Default) Resolve(event *model.EventRecord) (v any, ok bool) {
	if d.computed == nil {
		return d.static, true
	}
	defer func() {
		if r := recover(); r != nil {
			v, ok = nil, false
		}
	}()
	return d.computed(event), true
}

// Validate checks a field list: names must be non-empty, unique, and must
// not shadow the built-in event fields.
func Validate(fields []Field) error {
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("field #%d: %w", i, ErrEmptyFieldName)
		}
		if model.IsBuiltin(f.Name) {
			return fmt.Errorf("field %q: %w", f.Name, ErrReservedField)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("field %q: %w", f.Name, ErrDuplicateField)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// Lookup returns the field named name.
func Lookup(fields []Field, name string) (Field, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
