// Package user is a minimal directory of storefront accounts, enough to
// drive recovery auto-login and its safety gate.
package user

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type User struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Email     string       `gorm:"not null;uniqueIndex" json:"email"`
	FirstName string       `json:"first_name,omitempty"`
	LastName  string       `json:"last_name,omitempty"`

	// Admin accounts are never logged in automatically by a recovery visit.
	Admin bool `gorm:"not null;default:false" json:"admin"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

var Module = fx.Module("user",
	fx.Provide(Provide),
)

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error) {
	var u User
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
