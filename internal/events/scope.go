package events

import "context"

type scopeKey struct{}

// Scope tracks per-request event facts. Requests are handled by a single
// goroutine, so plain fields are fine.
type Scope struct {
	paymentInserted bool
}

// WithScope attaches a fresh event scope to the request context.
func WithScope(ctx context.Context) context.Context {
	return context.WithValue(ctx, scopeKey{}, &Scope{})
}

// ScopeFrom returns the request scope, or nil when none was installed.
func ScopeFrom(ctx context.Context) *Scope {
	scope, _ := ctx.Value(scopeKey{}).(*Scope)
	return scope
}

func (s *Scope) MarkPaymentInserted() {
	if s != nil {
		s.paymentInserted = true
	}
}

// PaymentInserted reports whether a payment-insertion event already fired in
// this request.
func (s *Scope) PaymentInserted() bool {
	return s != nil && s.paymentInserted
}
