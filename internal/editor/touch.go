package editor

import (
	"scheditor/internal/normalize"
)

// Tracker records which inputs the user has interacted with, and whether
// the whole form has been touched (failed submit or Touch).
type Tracker struct {
	inputs map[string]bool
	form   bool
}

// Blur marks name touched. Only the first call changes anything.
func (t *Tracker) Blur(name string) {
	if t.inputs == nil {
		t.inputs = map[string]bool{}
	}
	t.inputs[name] = true
}

// MarkForm sets the form-level touched flag.
func (t *Tracker) MarkForm() { t.form = true }

// Form reports the form-level touched flag.
func (t *Tracker) Form() bool { return t.form }

// Touched reports whether the input name has been touched.
func (t *Tracker) Touched(name string) bool { return t.inputs[name] }

// Reset clears every flag.
func (t *Tracker) Reset() {
	t.inputs = nil
	t.form = false
}

// ErrorText returns the visible error for name, or "" when the input is
// valid or has not been touched yet.
func (t *Tracker) ErrorText(s State, name string) string {
	it, ok := s.Get(name)
	if !ok || it.Validity {
		return ""
	}
	if !t.form && !t.Touched(name) {
		return ""
	}
	return errorMessage(it)
}

// FieldError is one visible validation message.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors returns every visible error in field order.
func (t *Tracker) Errors(s State) []FieldError {
	var out []FieldError
	s.Each(func(it StateItem) bool {
		if msg := t.ErrorText(s, it.Name); msg != "" {
			out = append(out, FieldError{Field: it.Name, Message: msg})
		}
		return true
	})
	return out
}

// errorMessage picks err_msg, then the rule message, then "Required".
func errorMessage(it StateItem) string {
	field := it.Field()
	if msg := field.Props().ErrMsg; msg != "" {
		return msg
	}
	if v := normalize.Check(field, it.Value); !v.Valid && v.Message != "" {
		return v.Message
	}
	return normalize.MsgRequired
}
