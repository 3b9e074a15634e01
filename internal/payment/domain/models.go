package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Payment statuses. Complete payments carry the legacy "publish" status and
// are translated at the sync boundary.
const (
	StatusPending      = "pending"
	StatusPublish      = "publish"
	StatusRefunded     = "refunded"
	StatusFailed       = "failed"
	StatusAbandoned    = "abandoned"
	StatusRevoked      = "revoked"
	StatusPreapproved  = "preapproved"
	StatusCancelled    = "cancelled"
	StatusSubscription = "subscription"
)

// Metadata keys stamped on payments by the sync engines.
const (
	MetaOrderID            = "jilt_order_id"
	MetaCartToken          = "jilt_cart_token"
	MetaRecovered          = "jilt_recovered"
	MetaRecoveredPaymentID = "jilt_recovered_payment_id"
	MetaRecoveredInPayment = "jilt_recovered_in_payment"
	MetaCancelledAt        = "jilt_cancelled_at"
)

// PaymentItem is one purchased line frozen at checkout time. Price is the
// final per-line amount in minor units.
type PaymentItem struct {
	Title     string `json:"title"`
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
	URL       string `json:"url,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	SKU       string `json:"sku,omitempty"`
	VariantID int64  `json:"variant_id,omitempty"`
	Variation string `json:"variation,omitempty"`
	Token     string `json:"token"`
}

type Note struct {
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type Payment struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	Number      string            `gorm:"not null" json:"number"`
	UserID      snowflake.ID      `gorm:"index" json:"user_id,omitempty"`
	CustomerID  int64             `gorm:"index" json:"customer_id,omitempty"`
	Email       string            `gorm:"not null" json:"email"`
	FirstName   string            `json:"first_name,omitempty"`
	LastName    string            `json:"last_name,omitempty"`
	Gateway     string            `gorm:"not null" json:"gateway"`
	Status      string            `gorm:"not null;index" json:"status"`
	Currency    string            `gorm:"not null" json:"currency"`
	Total       int64             `gorm:"not null" json:"total"`
	Subtotal    int64             `gorm:"not null" json:"subtotal"`
	Tax         int64             `gorm:"not null;default:0" json:"tax"`
	Discount    int64             `gorm:"not null;default:0" json:"discount"`
	CartDetails datatypes.JSON    `gorm:"not null;default:'[]'" json:"cart_details"`
	Notes       datatypes.JSON    `gorm:"not null;default:'[]'" json:"notes"`
	Metadata    datatypes.JSONMap `gorm:"not null;default:'{}'" json:"metadata,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

func (p *Payment) IsComplete() bool {
	return p.Status == StatusPublish
}

// MetaString reads a metadata value stamped as a string, tolerating absent
// keys.
func (p *Payment) MetaString(key string) string {
	if p.Metadata == nil {
		return ""
	}
	val, ok := p.Metadata[key].(string)
	if !ok {
		return ""
	}
	return val
}

// MetaInt64 reads a numeric metadata value. A value stamped in-process is an
// int64, one round-tripped through request JSON is a float64, and one
// reloaded from the database is a json.Number; all three are accepted.
func (p *Payment) MetaInt64(key string) int64 {
	if p.Metadata == nil {
		return 0
	}
	switch val := p.Metadata[key].(type) {
	case int64:
		return val
	case float64:
		return int64(val)
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func (p *Payment) MetaBool(key string) bool {
	if p.Metadata == nil {
		return false
	}
	val, ok := p.Metadata[key].(bool)
	return ok && val
}

// Items decodes the frozen line items, tolerating a corrupt column.
func (p *Payment) Items() []PaymentItem {
	if len(p.CartDetails) == 0 {
		return nil
	}
	var items []PaymentItem
	if err := json.Unmarshal(p.CartDetails, &items); err != nil {
		return nil
	}
	return items
}

func (p *Payment) SetItems(items []PaymentItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	p.CartDetails = raw
	return nil
}

func (p *Payment) NoteList() []Note {
	if len(p.Notes) == 0 {
		return nil
	}
	var notes []Note
	if err := json.Unmarshal(p.Notes, &notes); err != nil {
		return nil
	}
	return notes
}

func (p *Payment) AppendNote(body string, at time.Time) error {
	notes := append(p.NoteList(), Note{Body: body, CreatedAt: at})
	raw, err := json.Marshal(notes)
	if err != nil {
		return err
	}
	p.Notes = raw
	return nil
}
