package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	Update(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)

	// FindByCartToken returns the most recent payment stamped with the cart
	// token, or nil.
	FindByCartToken(ctx context.Context, db *gorm.DB, cartToken string) (*Payment, error)
}
