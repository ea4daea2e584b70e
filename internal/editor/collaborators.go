package editor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"scheditor/internal/model"
)

// Confirmer is the optional remote commit hook. It receives a fresh draft
// and returns the record to merge, possibly changed (e.g. a server id).
type Confirmer interface {
	Confirm(ctx context.Context, draft model.EventRecord, action model.Action) (model.EventRecord, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, draft model.EventRecord, action model.Action) (model.EventRecord, error)

func (f ConfirmFunc) Confirm(ctx context.Context, draft model.EventRecord, action model.Action) (model.EventRecord, error) {
	return f(ctx, draft, action)
}

// Remover is the optional remote delete hook. It returns the id to remove
// locally, which may differ from the requested one; "" means do not remove.
type Remover interface {
	Remove(ctx context.Context, id string) (string, error)
}

// RemoveFunc adapts a function to Remover.
type RemoveFunc func(ctx context.Context, id string) (string, error)

func (f RemoveFunc) Remove(ctx context.Context, id string) (string, error) { return f(ctx, id) }

// Host owns the event collection. Implementations must not call back into
// the Editor synchronously from these methods.
type Host interface {
	ConfirmEvent(rec model.EventRecord, action model.Action)
	RemoveEvent(id string) bool
}

// DetailView is the open event viewer a successful delete closes.
type DetailView interface {
	Close()
}

// IDGenerator synthesizes ids for records created without a Confirmer.
type IDGenerator interface {
	NewID() string
}

// IDFunc adapts a function to IDGenerator.
type IDFunc func() string

func (f IDFunc) NewID() string { return f() }

// UUIDGenerator returns random (version 4) UUID strings.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// Clock supplies "now" for fresh start/end values of an unseeded session.
type Clock func() time.Time

// Helpers are handed to a CustomEditor in place of the built-in form.
type Helpers struct {
	State     State
	Close     func()
	Loading   func(bool)
	Edited    *model.EventRecord
	OnConfirm func(rec model.EventRecord, action model.Action)
}

// CustomEditor replaces the built-in form. Installing one bypasses
// built-in validation on confirm.
type CustomEditor func(h Helpers) any
