// Package normalize turns raw, default and stored values into the canonical
// per-field representation used by the editor state.
package normalize

import (
	"reflect"
	"time"

	appLog "scheditor/internal/log"
	"scheditor/internal/model"
	"scheditor/internal/schema"
)

// Result is a normalized value with its validity.
type Result struct {
	Value    Value
	Validity bool
}

// Normalize converts raw into field's canonical shape.
//
// Multi-valued fields always yield a list (a scalar is wrapped, nil or ""
// become the empty list); other fields always yield a scalar. Input whose
// shape contradicts the schema degrades to the empty value. Validity is
// true for non-required fields and "non-empty" for required ones. Never
// panics.
func Normalize(field schema.Field, raw any) Result {
	var v Value
	if field.Multi() {
		v = toList(field, raw)
	} else {
		v = toScalar(field, raw)
	}
	return Result{Value: v, Validity: validity(field, v)}
}

// NormalizeDefault resolves field's default against the seed event and
// normalizes it. A computed default that panics counts as absent.
func NormalizeDefault(field schema.Field, event *model.EventRecord) Result {
	raw, ok := field.Default.Resolve(event)
	if !ok {
		appLog.Debug("field default callback failed; treating as empty", "field", field.Name)
		raw = nil
	}
	return Normalize(field, raw)
}

// NormalizeStored normalizes the value event holds for field.
func NormalizeStored(field schema.Field, event *model.EventRecord) Result {
	return Normalize(field, event.Value(field.Name))
}

func validity(field schema.Field, v Value) bool {
	if !field.Required() {
		return true
	}
	return !v.IsEmpty()
}

func toList(field schema.Field, raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Empty(true)
	case string:
		if t == "" {
			return Empty(true)
		}
		return List(t)
	case []any:
		return List(t...)
	case Value:
		if t.Multi() {
			return List(t.list...)
		}
		return toList(field, t.scalar)
	}
	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return Value{multi: true, list: items}
	case reflect.Map, reflect.Struct, reflect.Func, reflect.Chan:
		if _, isTime := raw.(time.Time); !isTime {
			anomaly(field, raw)
			return Empty(true)
		}
	}
	return List(raw)
}

func toScalar(field schema.Field, raw any) Value {
	if v, ok := raw.(Value); ok {
		if v.Multi() {
			anomaly(field, v.list)
			return Empty(false)
		}
		raw = v.scalar
	}
	if raw == nil {
		return Empty(false)
	}
	if field.Type() == schema.TypeDate {
		return dateScalar(field, raw)
	}
	switch raw.(type) {
	case string, bool, int, int32, int64, float32, float64, time.Time:
		return Scalar(raw)
	}
	switch reflect.ValueOf(raw).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct, reflect.Func, reflect.Chan:
		anomaly(field, raw)
		return Empty(false)
	}
	return Scalar(raw)
}

// dateScalar accepts time.Time or a parseable string for date fields.
func dateScalar(field schema.Field, raw any) Value {
	switch t := raw.(type) {
	case time.Time:
		if t.IsZero() {
			return Empty(false)
		}
		return Scalar(t)
	case *time.Time:
		if t == nil || t.IsZero() {
			return Empty(false)
		}
		return Scalar(*t)
	case string:
		if t == "" {
			return Empty(false)
		}
		ts, err := model.ParseTime(t)
		if err != nil {
			anomaly(field, raw)
			return Empty(false)
		}
		return Scalar(ts)
	}
	anomaly(field, raw)
	return Empty(false)
}

func anomaly(field schema.Field, raw any) {
	appLog.Debug("field value does not match schema shape; using empty value",
		"field", field.Name,
		"type", string(field.Type()),
		"multi", field.Multi(),
		"value_type", reflect.TypeOf(raw),
	)
}
