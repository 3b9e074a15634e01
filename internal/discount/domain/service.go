package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateDiscountRequest struct {
	Code           string     `json:"code"`
	Name           string     `json:"name"`
	Type           string     `json:"type"`
	Amount         int64      `json:"amount"`
	MinPrice       int64      `json:"min_price"`
	UseOnce        bool       `json:"use_once"`
	MaxUses        int        `json:"max"`
	Expiration     *time.Time `json:"expiration"`
	JiltDiscountID int64      `json:"discount_id"`
}

type Service interface {
	Create(ctx context.Context, req CreateDiscountRequest) (Discount, error)
	GetByID(ctx context.Context, id snowflake.ID) (Discount, error)
	GetByCode(ctx context.Context, code string) (Discount, error)

	// RecordUse bumps the usage counter after a completed checkout.
	RecordUse(ctx context.Context, code string) error
}
