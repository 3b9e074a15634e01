package domain

import "errors"

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidEmail   = errors.New("invalid_email")
	ErrInvalidStatus  = errors.New("invalid_status")
	ErrEmptyCart      = errors.New("empty_cart")
	ErrInvalidGateway = errors.New("invalid_gateway")
)

var validStatuses = map[string]struct{}{
	StatusPending:      {},
	StatusPublish:      {},
	StatusRefunded:     {},
	StatusFailed:       {},
	StatusAbandoned:    {},
	StatusRevoked:      {},
	StatusPreapproved:  {},
	StatusCancelled:    {},
	StatusSubscription: {},
}

func ValidStatus(status string) bool {
	_, ok := validStatuses[status]
	return ok
}
