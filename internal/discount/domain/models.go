package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	TypePercent = "percent"
	TypeFlat    = "flat"

	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Discount is a locally stored discount code, usually pushed down by the
// remote recovery campaign. For percent discounts Amount is whole percentage
// points; for flat discounts it is minor currency units.
type Discount struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	Code           string       `gorm:"not null;uniqueIndex" json:"code"`
	Name           string       `gorm:"not null" json:"name"`
	Type           string       `gorm:"not null" json:"type"`
	Amount         int64        `gorm:"not null" json:"amount"`
	MinPrice       int64        `gorm:"not null;default:0" json:"min_price"`
	UseOnce        bool         `gorm:"not null;default:false" json:"use_once"`
	MaxUses        int          `gorm:"not null;default:0" json:"max"`
	Uses           int          `gorm:"not null;default:0" json:"uses"`
	Status         string       `gorm:"not null;default:'active'" json:"status"`
	Expiration     *time.Time   `json:"expiration,omitempty"`
	JiltDiscountID int64        `gorm:"index" json:"jilt_discount_id,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Discount) TableName() string {
	return "discounts"
}

// Usable reports whether the code can still be applied to a cart.
func (d *Discount) Usable(now time.Time) bool {
	if d.Status != StatusActive {
		return false
	}
	if d.Expiration != nil && now.After(*d.Expiration) {
		return false
	}
	if d.MaxUses > 0 && d.Uses >= d.MaxUses {
		return false
	}
	return true
}

// AmountOff computes the reduction for a cart subtotal in minor units.
func (d *Discount) AmountOff(subtotal int64) int64 {
	if subtotal < d.MinPrice {
		return 0
	}
	var off int64
	switch d.Type {
	case TypePercent:
		off = subtotal * d.Amount / 100
	case TypeFlat:
		off = d.Amount
	}
	if off > subtotal {
		off = subtotal
	}
	if off < 0 {
		off = 0
	}
	return off
}
