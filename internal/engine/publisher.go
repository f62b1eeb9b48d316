package engine

import (
	"context"

	"github.com/roach88/musicbox/internal/ir"
)

// Publisher sends a participant's intent to the ordered broadcast service.
// The intent is not applied locally: it comes back through Deliver, in
// order, like everyone else's.
type Publisher interface {
	Publish(ctx context.Context, kind ir.Kind, args ir.Object) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, kind ir.Kind, args ir.Object) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, kind ir.Kind, args ir.Object) error {
	return f(ctx, kind, args)
}

// Journal persists applied intents. *store.Store implements it.
type Journal interface {
	WriteIntent(ctx context.Context, in ir.Intent) error
}
