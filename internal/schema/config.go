package schema

import "fmt"

// FieldType is the closed set of editor input kinds.
type FieldType string

const (
	TypeHidden FieldType = "hidden"
	TypeInput  FieldType = "input"
	TypeDate   FieldType = "date"
	TypeSelect FieldType = "select"
	TypeCustom FieldType = "custom"
)

// ParseFieldType maps a wire string to a FieldType.
func ParseFieldType(s string) (FieldType, error) {
	switch t := FieldType(s); t {
	case TypeHidden, TypeInput, TypeDate, TypeSelect, TypeCustom:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFieldType, s)
}

// InputProps are the presentation props shared by every field kind.
type InputProps struct {
	Label       string `yaml:"label,omitempty" json:"label,omitempty"`
	Placeholder string `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Disabled    bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	// ErrMsg replaces the computed error text when the field is invalid.
	ErrMsg string `yaml:"err_msg,omitempty" json:"errMsg,omitempty"`
	// SM is a grid span hint; passed through to the presentation layer.
	SM int `yaml:"sm,omitempty" json:"sm,omitempty"`
}

// FieldConfig is implemented only by the five config structs in this file.
type FieldConfig interface {
	Type() FieldType
	Props() InputProps
	sealed()
}

type HiddenConfig struct {
	InputProps `yaml:",inline"`
}

type InputConfig struct {
	InputProps `yaml:",inline"`
	// Min and Max bound the value length in characters.
	Min       *int `yaml:"min,omitempty" json:"min,omitempty"`
	Max       *int `yaml:"max,omitempty" json:"max,omitempty"`
	Email     bool `yaml:"email,omitempty" json:"email,omitempty"`
	Decimal   bool `yaml:"decimal,omitempty" json:"decimal,omitempty"`
	Multiline bool `yaml:"multiline,omitempty" json:"multiline,omitempty"`
	Rows      int  `yaml:"rows,omitempty" json:"rows,omitempty"`
	// RRule marks the value as an RFC 5545 recurrence rule.
	RRule bool `yaml:"rrule,omitempty" json:"rrule,omitempty"`
}

type DateConfig struct {
	InputProps `yaml:",inline"`
	// Kind is "date" or "datetime" (default).
	Kind    string `yaml:"type,omitempty" json:"type,omitempty"`
	Variant string `yaml:"variant,omitempty" json:"variant,omitempty"`
}

// MultipleMode selects single vs multi-valued select behaviour.
type MultipleMode string

const (
	MultipleNone    MultipleMode = ""
	MultipleDefault MultipleMode = "default"
	MultipleChips   MultipleMode = "chips"
)

type SelectConfig struct {
	InputProps `yaml:",inline"`
	Multiple   MultipleMode `yaml:"multiple,omitempty" json:"multiple,omitempty"`
	Loading    bool         `yaml:"loading,omitempty" json:"loading,omitempty"`
}

type CustomConfig struct {
	InputProps `yaml:",inline"`
	Extra      map[string]any `yaml:"props,omitempty" json:"props,omitempty"`
}

func (HiddenConfig) Type() FieldType { return TypeHidden }
func (InputConfig) Type() FieldType  { return TypeInput }
func (DateConfig) Type() FieldType   { return TypeDate }
func (SelectConfig) Type() FieldType { return TypeSelect }
func (CustomConfig) Type() FieldType { return TypeCustom }

func (c HiddenConfig) Props() InputProps { return c.InputProps }
func (c InputConfig) Props() InputProps  { return c.InputProps }
func (c DateConfig) Props() InputProps   { return c.InputProps }
func (c SelectConfig) Props() InputProps { return c.InputProps }
func (c CustomConfig) Props() InputProps { return c.InputProps }

func (HiddenConfig) sealed() {}
func (InputConfig) sealed()  {}
func (DateConfig) sealed()   {}
func (SelectConfig) sealed() {}
func (CustomConfig) sealed() {}

// Visitor has one method per config variant.
type Visitor[T any] interface {
	Hidden(HiddenConfig) T
	Input(InputConfig) T
	Date(DateConfig) T
	Select(SelectConfig) T
	Custom(CustomConfig) T
}

// Visit dispatches cfg to the matching Visitor method. A nil config is
// treated as an empty HiddenConfig.
func Visit[T any](cfg FieldConfig, v Visitor[T]) T {
	switch c := cfg.(type) {
	case InputConfig:
		return v.Input(c)
	case DateConfig:
		return v.Date(c)
	case SelectConfig:
		return v.Select(c)
	case CustomConfig:
		return v.Custom(c)
	case HiddenConfig:
		return v.Hidden(c)
	default:
		return v.Hidden(HiddenConfig{})
	}
}

// emptyConfig returns the zero config for t.
func emptyConfig(t FieldType) FieldConfig {
	switch t {
	case TypeInput:
		return InputConfig{}
	case TypeDate:
		return DateConfig{}
	case TypeSelect:
		return SelectConfig{}
	case TypeCustom:
		return CustomConfig{}
	default:
		return HiddenConfig{}
	}
}

// IntPtr is a small helper for building InputConfig literals.
func IntPtr(n int) *int { return &n }
