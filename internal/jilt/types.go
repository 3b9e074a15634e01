package jilt

// Customer is the shopper block attached to a remote order.
type Customer struct {
	CustomerID int64  `json:"customer_id,omitempty"`
	Email      string `json:"email,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	AdminURL   string `json:"admin_url,omitempty"`
}

// LineItem mirrors one cart/order line on the remote side. Price is in minor
// currency units.
type LineItem struct {
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

// ClientDetails carries request metadata captured from the shopper's browser.
type ClientDetails struct {
	BrowserIP      string `json:"browser_ip,omitempty"`
	AcceptLanguage string `json:"accept_language,omitempty"`
	UserAgent      string `json:"user_agent,omitempty"`
}

// Order is the remote order record.
type Order struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name,omitempty"`
	CartToken       string     `json:"cart_token"`
	Status          string     `json:"status,omitempty"`
	FinancialStatus string     `json:"financial_status,omitempty"`
	TotalPrice      int64      `json:"total_price"`
	SubtotalPrice   int64      `json:"subtotal_price"`
	TotalTax        int64      `json:"total_tax"`
	TotalDiscounts  int64      `json:"total_discounts"`
	Currency        string     `json:"currency,omitempty"`
	CheckoutURL     string     `json:"checkout_url,omitempty"`
	LineItems       []LineItem `json:"line_items,omitempty"`
	Customer        *Customer  `json:"customer,omitempty"`
	ClientSession   string     `json:"client_session,omitempty"`
	PlacedAt        int64      `json:"placed_at,omitempty"`
	CancelledAt     int64      `json:"cancelled_at,omitempty"`
}

// OrderParams is the create/update payload. Zero values are omitted so the
// same type serves both full snapshots and partial updates; the remote side
// treats updates as full-state overwrites of the provided fields.
type OrderParams struct {
	Name             string         `json:"name,omitempty"`
	OrderID          int64          `json:"order_id,omitempty"`
	AdminURL         string         `json:"admin_url,omitempty"`
	Status           string         `json:"status,omitempty"`
	FinancialStatus  string         `json:"financial_status,omitempty"`
	TotalPrice       int64          `json:"total_price,omitempty"`
	SubtotalPrice    int64          `json:"subtotal_price,omitempty"`
	TotalTax         int64          `json:"total_tax,omitempty"`
	TotalDiscounts   int64          `json:"total_discounts,omitempty"`
	TotalShipping    int64          `json:"total_shipping"`
	RequiresShipping bool           `json:"requires_shipping"`
	Currency         string         `json:"currency,omitempty"`
	CheckoutURL      string         `json:"checkout_url,omitempty"`
	LineItems        []LineItem     `json:"line_items,omitempty"`
	CartToken        string         `json:"cart_token,omitempty"`
	ClientDetails    *ClientDetails `json:"client_details,omitempty"`
	ClientSession    string         `json:"client_session,omitempty"`
	Customer         *Customer      `json:"customer,omitempty"`
	BillingAddress   *Customer      `json:"billing_address,omitempty"`
	PlacedAt         int64          `json:"placed_at,omitempty"`
	CancelledAt      int64          `json:"cancelled_at,omitempty"`
}

// Shop is the remote shop record.
type Shop struct {
	ID     int64  `json:"id"`
	Domain string `json:"domain"`
}

// ShopParams is the shop create/update payload.
type ShopParams struct {
	Domain             string `json:"domain"`
	AdminURL           string `json:"admin_url,omitempty"`
	ProfileType        string `json:"profile_type,omitempty"`
	Name               string `json:"name,omitempty"`
	Currency           string `json:"currency,omitempty"`
	ProvinceCode       string `json:"province_code,omitempty"`
	CountryCode        string `json:"country_code,omitempty"`
	Timezone           string `json:"timezone,omitempty"`
	IntegrationVersion string `json:"integration_version,omitempty"`
	IntegrationEnabled bool   `json:"integration_enabled"`
	SupportsSSL        bool   `json:"supports_ssl,omitempty"`
	ShopOwner          string `json:"shop_owner,omitempty"`
	Email              string `json:"email,omitempty"`
}

// User is the remote account owning the secret key.
type User struct {
	PublicKey string `json:"public_key"`
}
