package events

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

// CartEvent describes a mutation of the cart owned by a session.
type CartEvent struct {
	SessionID string
	UserID    snowflake.ID
}

// PaymentEvent describes a payment record lifecycle change.
type PaymentEvent struct {
	PaymentID snowflake.ID
	SessionID string
	UserID    snowflake.ID
	OldStatus string
	NewStatus string
}

// Bus is a typed, in-process event bus with a fixed set of event kinds.
// Handlers run synchronously in registration order within the publishing
// request; a handler error does not stop the remaining handlers.
type Bus struct {
	cartMutated          []func(context.Context, CartEvent)
	cartEmptied          []func(context.Context, CartEvent)
	paymentInserted      []func(context.Context, PaymentEvent)
	paymentStatusChanged []func(context.Context, PaymentEvent)
}

func NewBus() *Bus {
	return &Bus{}
}

var Module = fx.Module("events",
	fx.Provide(NewBus),
)

func (b *Bus) OnCartMutated(fn func(context.Context, CartEvent)) {
	b.cartMutated = append(b.cartMutated, fn)
}

func (b *Bus) OnCartEmptied(fn func(context.Context, CartEvent)) {
	b.cartEmptied = append(b.cartEmptied, fn)
}

func (b *Bus) OnPaymentInserted(fn func(context.Context, PaymentEvent)) {
	b.paymentInserted = append(b.paymentInserted, fn)
}

func (b *Bus) OnPaymentStatusChanged(fn func(context.Context, PaymentEvent)) {
	b.paymentStatusChanged = append(b.paymentStatusChanged, fn)
}

func (b *Bus) PublishCartMutated(ctx context.Context, e CartEvent) {
	for _, fn := range b.cartMutated {
		fn(ctx, e)
	}
}

func (b *Bus) PublishCartEmptied(ctx context.Context, e CartEvent) {
	for _, fn := range b.cartEmptied {
		fn(ctx, e)
	}
}

// PublishPaymentInserted latches the request scope before invoking handlers so
// that cart-sync activity later in the same request knows checkout completion
// already happened.
func (b *Bus) PublishPaymentInserted(ctx context.Context, e PaymentEvent) {
	if scope := ScopeFrom(ctx); scope != nil {
		scope.MarkPaymentInserted()
	}
	for _, fn := range b.paymentInserted {
		fn(ctx, e)
	}
}

func (b *Bus) PublishPaymentStatusChanged(ctx context.Context, e PaymentEvent) {
	for _, fn := range b.paymentStatusChanged {
		fn(ctx, e)
	}
}
