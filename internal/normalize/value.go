package normalize

import (
	"encoding/json"
	"reflect"
	"time"
)

// Value is a canonical field value: a scalar, or a list for fields
// declared multi-valued. Which one is decided by the schema alone.
type Value struct {
	multi  bool
	scalar any
	list   []any
}

// Scalar wraps a single value.
func Scalar(v any) Value { return Value{scalar: v} }

// List wraps a multi value; the items are copied.
func List(items ...any) Value {
	out := make([]any, len(items))
	copy(out, items)
	return Value{multi: true, list: out}
}

// Empty returns the empty value of the requested shape.
func Empty(multi bool) Value {
	if multi {
		return Value{multi: true, list: []any{}}
	}
	return Value{scalar: ""}
}

// Multi reports whether v is a list.
func (v Value) Multi() bool { return v.multi }

// Items returns a copy of the list items (nil for scalars).
func (v Value) Items() []any {
	if !v.multi {
		return nil
	}
	out := make([]any, len(v.list))
	copy(out, v.list)
	return out
}

// Raw returns the plain Go value: the scalar, or a fresh []any.
func (v Value) Raw() any {
	if v.multi {
		return v.Items()
	}
	return v.scalar
}

// IsEmpty reports whether the value counts as "not filled in".
func (v Value) IsEmpty() bool {
	if v.multi {
		return len(v.list) == 0
	}
	return !Truthy(v.scalar)
}

// Equal lets go-cmp and tests compare values.
func (v Value) Equal(o Value) bool {
	if v.multi != o.multi {
		return false
	}
	if v.multi {
		return reflect.DeepEqual(v.list, o.list)
	}
	return reflect.DeepEqual(v.scalar, o.scalar)
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Raw())
}

// Truthy mirrors what a form treats as "filled in": nil, "", false, numeric
// zero, the zero time and empty lists are all falsy.
func Truthy(x any) bool {
	switch t := x.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case int:
		return t != 0
	case int32:
		return t != 0
	case int64:
		return t != 0
	case float32:
		return t != 0
	case float64:
		return t != 0
	case time.Time:
		return !t.IsZero()
	case *time.Time:
		return t != nil && !t.IsZero()
	case []any:
		return len(t) > 0
	case []string:
		return len(t) > 0
	}
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer:
		return !rv.IsNil()
	}
	return true
}
