package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MarshalJSON writes the flat wire shape:
// {"event_id", "title", "start", "end", ...custom fields in order}.
func (e EventRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	write := func(first bool, key string, v any) error {
		if !first {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		val, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(val)
		return nil
	}

	var id any
	if e.ID != "" {
		id = e.ID
	}
	if err := write(true, FieldEventID, id); err != nil {
		return nil, err
	}
	if err := write(false, FieldTitle, e.Title); err != nil {
		return nil, err
	}
	if err := write(false, FieldStart, e.Start); err != nil {
		return nil, err
	}
	if err := write(false, FieldEnd, e.End); err != nil {
		return nil, err
	}
	for _, name := range e.Fields.names {
		if err := write(false, name, e.Fields.values[name]); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the flat wire shape, keeping custom fields in the
// order they appear in the document.
func (e *EventRecord) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("event record: expected object")
	}

	var out EventRecord
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errors.New("event record: expected key")
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("event record %s: %w", key, err)
		}
		switch key {
		case FieldEventID:
			out.ID = idString(raw)
		case FieldTitle:
			s, _ := raw.(string)
			out.Title = s
		case FieldStart, FieldEnd:
			t, err := ParseTime(raw)
			if err != nil {
				return fmt.Errorf("event record %s: %w", key, err)
			}
			if key == FieldStart {
				out.Start = t
			} else {
				out.End = t
			}
		default:
			out.Fields.Set(key, plainNumber(raw))
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*e = out
	return nil
}

// ParseTime accepts RFC3339 strings, time.Time, or nil (zero time).
func ParseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case string:
		if t == "" {
			return time.Time{}, nil
		}
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts, nil
		}
		// Date-time without zone, as sent by <input type="datetime-local">.
		if ts, err := time.ParseInLocation("2006-01-02T15:04", t, time.UTC); err == nil {
			return ts, nil
		}
		return time.Parse("2006-01-02", t)
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", v)
	}
}

// idString accepts string and numeric ids; numeric ids are common in host
// applications backed by SQL.
func idString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// plainNumber converts json.Number (recursively inside lists) into int64 or
// float64 so callers never see the decoder's internal type.
func plainNumber(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = plainNumber(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = plainNumber(t[k])
		}
		return t
	default:
		return v
	}
}
