package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"scheditor/internal/ics"
	"scheditor/internal/schema"
)

// Error messages shown next to an invalid input.
const (
	MsgRequired = "Required"
	MsgEmail    = "Invalid Email"
	MsgDecimal  = "Only numbers allowed"
	MsgRRule    = "Invalid recurrence rule"
	MsgDate     = "Invalid date"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Verdict is the outcome of checking a value against its field's rules.
type Verdict struct {
	Valid   bool
	Message string
}

// Check applies the input rules of field to v: required first, then the
// per-kind rules for non-empty values. The message honors config.err_msg.
func Check(field schema.Field, v Value) Verdict {
	props := field.Props()
	fail := func(msg string) Verdict {
		if props.ErrMsg != "" {
			msg = props.ErrMsg
		}
		return Verdict{Valid: false, Message: msg}
	}

	if v.IsEmpty() {
		if props.Required {
			return fail(MsgRequired)
		}
		return Verdict{Valid: true}
	}

	msg := schema.Visit[string](field.Config, ruleVisitor{value: v})
	if msg != "" {
		return fail(msg)
	}
	return Verdict{Valid: true}
}

// CheckRaw normalizes raw for field and checks it.
func CheckRaw(field schema.Field, raw any) (Result, Verdict) {
	res := Normalize(field, raw)
	verdict := Check(field, res.Value)
	res.Validity = verdict.Valid
	return res, verdict
}

// ruleVisitor returns "" when the value passes, else an error message.
type ruleVisitor struct {
	value Value
}

func (ruleVisitor) Hidden(schema.HiddenConfig) string { return "" }
func (ruleVisitor) Custom(schema.CustomConfig) string { return "" }
func (ruleVisitor) Select(schema.SelectConfig) string { return "" }

func (r ruleVisitor) Date(schema.DateConfig) string {
	if _, ok := r.value.Raw().(time.Time); !ok {
		return MsgDate
	}
	return ""
}

func (r ruleVisitor) Input(c schema.InputConfig) string {
	s := scalarText(r.value.Raw())
	n := utf8.RuneCountInString(s)
	if c.Min != nil && n < *c.Min {
		return fmt.Sprintf("Minimum %d letters", *c.Min)
	}
	if c.Max != nil && n > *c.Max {
		return fmt.Sprintf("Maximum %d letters", *c.Max)
	}
	if c.Email && !emailPattern.MatchString(s) {
		return MsgEmail
	}
	if c.Decimal {
		if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return MsgDecimal
		}
	}
	if c.RRule {
		if err := ics.ValidateRRule(s); err != nil {
			return MsgRRule
		}
	}
	return ""
}

func scalarText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
