// Package cart maintains the session-scoped shopping cart snapshot and its
// derived totals. Amounts are minor currency units throughout.
package cart

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
)

// Item is one cart line. Price is the final line total, quantity included,
// after per-line discounts.
type Item struct {
	ProductID int64  `json:"product_id"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
	URL       string `json:"url,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	SKU       string `json:"sku,omitempty"`
	VariantID int64  `json:"variant_id,omitempty"`
	Variation string `json:"variation,omitempty"`
	Token     string `json:"token"`
}

// Customer is the shopper identity captured for the session, either from the
// logged-in user or restored by a recovery visit.
type Customer struct {
	CustomerID int64  `json:"customer_id,omitempty"`
	Email      string `json:"email,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	AdminURL   string `json:"admin_url,omitempty"`
}

// Snapshot is the full cart state persisted in the session scope.
type Snapshot struct {
	Items     []Item    `json:"items"`
	Discounts []string  `json:"discounts,omitempty"`
	Customer  *Customer `json:"customer,omitempty"`
	Gateway   string    `json:"gateway,omitempty"`
	Tax       int64     `json:"tax,omitempty"`
}

func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Items) == 0
}

func (s *Snapshot) Subtotal() int64 {
	var subtotal int64
	for _, item := range s.Items {
		subtotal += item.Price
	}
	return subtotal
}

// Hash fingerprints the cart lines so a recovery visit can skip rebuilding an
// unchanged cart.
func (s *Snapshot) Hash() string {
	raw, err := json.Marshal(s.Items)
	if err != nil {
		return ""
	}
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}

// ClientSession is the state blob shipped to the remote side with every order
// write and replayed on recovery.
type ClientSession struct {
	Cart      []Item            `json:"cart"`
	Customer  *Customer         `json:"customer,omitempty"`
	Discounts []string          `json:"discounts,omitempty"`
	Options   map[string]string `json:"options,omitempty"`
}
