package viewer

import (
	appLog "scheditor/internal/log"
	"scheditor/internal/model"
)

// Args is what a computed viewer component receives.
type Args struct {
	Event model.EventRecord
	Close func()
}

// Content is a viewer slot that is either a fixed value or computed from
// the open event.
type Content[T any] struct {
	static   T
	computed func(Args) T
	set      bool
}

// Static returns content that always resolves to v.
func Static[T any](v T) Content[T] {
	return Content[T]{static: v, set: true}
}

// Computed returns content resolved by fn for each open event.
func Computed[T any](fn func(Args) T) Content[T] {
	return Content[T]{computed: fn, set: fn != nil}
}

// IsSet reports whether the slot has content at all.
func (c Content[T]) IsSet() bool { return c.set }

// Resolve returns the slot value. A panicking callback yields the zero
// value.
func (c Content[T]) Resolve(args Args) (out T) {
	if c.computed == nil {
		return c.static
	}
	defer func() {
		if r := recover(); r != nil {
			appLog.Warn("viewer component panicked", "event_id", args.Event.ID, "panic", r)
			var zero T
			out = zero
		}
	}()
	return c.computed(args)
}
