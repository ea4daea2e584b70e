package model

import (
	"time"
)

// Built-in field names. Every EventRecord carries these; they are always
// the first four entries of an editor state, in this order.
const (
	FieldEventID = "event_id"
	FieldTitle   = "title"
	FieldStart   = "start"
	FieldEnd     = "end"
)

// BuiltinFields lists the built-in names in their fixed order.
var BuiltinFields = []string{FieldEventID, FieldTitle, FieldStart, FieldEnd}

// IsBuiltin reports whether name is one of the four built-in fields.
func IsBuiltin(name string) bool {
	switch name {
	case FieldEventID, FieldTitle, FieldStart, FieldEnd:
		return true
	}
	return false
}

// Action is the lifecycle tag attached to a committed record. It is derived
// by the editor, never supplied by callers.
type Action string

const (
	ActionCreate Action = "create"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// SelectedRange is the time range a user picked on the calendar grid. It
// seeds a quick-create session and supplies the duration used to repair an
// inverted start/end on commit.
type SelectedRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns End-Start truncated to whole minutes.
func (r SelectedRange) Duration() time.Duration {
	return r.End.Sub(r.Start).Truncate(time.Minute)
}

// EventRecord is the externally visible event shape: the four mandatory
// fields plus an ordered set of custom field values.
//
// Records handed to collaborators are always fresh copies; nothing in this
// module mutates a record it did not build itself.
type EventRecord struct {
	ID     string
	Title  string
	Start  time.Time
	End    time.Time
	Fields Fields
}

// Get returns the raw value for any field name, built-ins included.
func (e *EventRecord) Get(name string) (any, bool) {
	if e == nil {
		return nil, false
	}
	switch name {
	case FieldEventID:
		if e.ID == "" {
			return nil, false
		}
		return e.ID, true
	case FieldTitle:
		if e.Title == "" {
			return nil, false
		}
		return e.Title, true
	case FieldStart:
		if e.Start.IsZero() {
			return nil, false
		}
		return e.Start, true
	case FieldEnd:
		if e.End.IsZero() {
			return nil, false
		}
		return e.End, true
	}
	return e.Fields.Get(name)
}

// Value is Get without the presence flag.
func (e *EventRecord) Value(name string) any {
	v, _ := e.Get(name)
	return v
}

// Clone returns a deep copy (custom list values are copied too).
func (e EventRecord) Clone() EventRecord {
	out := e
	out.Fields = e.Fields.Clone()
	return out
}

// Fields is an insertion-ordered name -> value mapping for custom fields.
// The zero value is ready to use.
type Fields struct {
	names  []string
	values map[string]any
}

// Set inserts or replaces a value. Replacing keeps the original position.
func (f *Fields) Set(name string, value any) {
	if f.values == nil {
		f.values = make(map[string]any)
	}
	if _, ok := f.values[name]; !ok {
		f.names = append(f.names, name)
	}
	f.values[name] = value
}

// Get returns the value for name.
func (f Fields) Get(name string) (any, bool) {
	v, ok := f.values[name]
	return v, ok
}

// Delete removes name, keeping the order of the rest.
func (f *Fields) Delete(name string) {
	if _, ok := f.values[name]; !ok {
		return
	}
	delete(f.values, name)
	for i, n := range f.names {
		if n == name {
			f.names = append(f.names[:i:i], f.names[i+1:]...)
			break
		}
	}
}

// Names returns the field names in insertion order.
func (f Fields) Names() []string {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out
}

// Len returns the number of custom fields.
func (f Fields) Len() int { return len(f.names) }

// Clone deep-copies the mapping.
func (f Fields) Clone() Fields {
	var out Fields
	for _, n := range f.names {
		out.Set(n, CloneValue(f.values[n]))
	}
	return out
}

// CloneValue copies list values so a clone never aliases the original's
// backing arrays. Scalars are returned as is.
func CloneValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		copy(out, t)
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
