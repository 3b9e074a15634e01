package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, discount *Discount) error
	Update(ctx context.Context, db *gorm.DB, discount *Discount) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Discount, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Discount, error)
}
