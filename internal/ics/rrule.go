package ics

import (
	"strings"

	"github.com/teambition/rrule-go"
)

// RecurrenceField is the custom event field holding an RFC 5545 RRULE.
const RecurrenceField = "recurrence"

// ParseRRule parses a rule with or without the "RRULE:" prefix.
func ParseRRule(s string) (*rrule.RRule, error) {
	return rrule.StrToRRule(strings.TrimPrefix(strings.TrimSpace(s), "RRULE:"))
}

// ValidateRRule reports whether s is a usable recurrence rule.
func ValidateRRule(s string) error {
	_, err := ParseRRule(s)
	return err
}
