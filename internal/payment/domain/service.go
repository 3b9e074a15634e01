package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type CreatePaymentRequest struct {
	SessionID  string
	UserID     snowflake.ID
	CustomerID int64
	Email      string
	FirstName  string
	LastName   string
	Gateway    string
	Currency   string
	Total      int64
	Subtotal   int64
	Tax        int64
	Discount   int64
	Items      []PaymentItem
}

type UpdateStatusRequest struct {
	ID        snowflake.ID
	NewStatus string

	// SessionID is empty for gateway notification contexts.
	SessionID string
}

type Service interface {
	// Create inserts a pending payment and announces it on the bus.
	Create(ctx context.Context, req CreatePaymentRequest) (Payment, error)

	GetByID(ctx context.Context, id snowflake.ID) (Payment, error)

	// UpdateStatus transitions a payment and announces the change. Completing
	// a payment stamps its completion time.
	UpdateStatus(ctx context.Context, req UpdateStatusRequest) (Payment, error)

	AddNote(ctx context.Context, id snowflake.ID, body string) error

	Save(ctx context.Context, payment *Payment) error

	FindByCartToken(ctx context.Context, cartToken string) (*Payment, error)
}
