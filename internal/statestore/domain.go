// Package statestore abstracts the two local state scopes the sync and
// recovery engines touch: an ephemeral per-session store and a durable
// per-user mirror. The engines never talk to Redis or the database directly.
package statestore

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Session keys used by the engines. Values are strings; structured values are
// stored JSON-encoded.
const (
	KeyCartToken          = "jilt_cart_token"
	KeyOrderID            = "jilt_order_id"
	KeyPendingRecovery    = "jilt_pending_recovery"
	KeyRecoveredPaymentID = "jilt_recovered_payment_id"
	KeyCart               = "cart"
	KeyCustomer           = "customer"
	KeyDiscounts          = "cart_discounts"
	KeyGateway            = "gateway"
	KeyUserID             = "user_id"
)

// Correlation pairs a local cart with its remote order.
type Correlation struct {
	CartToken string
	OrderID   int64
}

func (c Correlation) Empty() bool {
	return c.CartToken == "" && c.OrderID == 0
}

// SessionStore is the ephemeral per-session key-value scope. Get returns ""
// for absent keys.
type SessionStore interface {
	Get(ctx context.Context, sessionID, key string) (string, error)
	Set(ctx context.Context, sessionID, key, value string) error
	Delete(ctx context.Context, sessionID string, keys ...string) error
}

// UserStore is the durable per-user key-value scope, plus the reverse lookup
// the recovery flow needs. Get returns "" for absent keys; FindUserByValue
// returns 0 when no user holds the value.
type UserStore interface {
	Get(ctx context.Context, userID snowflake.ID, key string) (string, error)
	Set(ctx context.Context, userID snowflake.ID, key, value string) error
	Delete(ctx context.Context, userID snowflake.ID, keys ...string) error
	FindUserByValue(ctx context.Context, key, value string) (snowflake.ID, error)
}
