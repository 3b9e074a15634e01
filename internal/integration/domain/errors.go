package domain

import "errors"

var (
	ErrNotConfigured = errors.New("not_configured")
	ErrShopNotFound  = errors.New("shop_not_found")
	ErrInvalidKey    = errors.New("invalid_secret_key")
)
