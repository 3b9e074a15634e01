package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	cartsvc "github.com/smallbiznis/cartloop/internal/cart"
	discountdomain "github.com/smallbiznis/cartloop/internal/discount/domain"
	integrationdomain "github.com/smallbiznis/cartloop/internal/integration/domain"
	"github.com/smallbiznis/cartloop/internal/jilt"
	paymentdomain "github.com/smallbiznis/cartloop/internal/payment/domain"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

// ErrorHandlingMiddleware turns errors attached to the gin context into the
// JSON error envelope. Handlers report errors with AbortWithError and never
// write error bodies themselves.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var validationErr *discountdomain.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "validation_error",
			Message: validationErr.Message,
		}
	}

	var apiErr *jilt.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: apiErr.Message,
		}
	}

	switch {
	case errors.Is(err, discountdomain.ErrDuplicateCode):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "validation_error",
			Message: "discount code already exists",
		}
	case errors.Is(err, discountdomain.ErrNotFound),
		errors.Is(err, paymentdomain.ErrNotFound),
		errors.Is(err, cartsvc.ErrItemNotFound),
		errors.Is(err, cartsvc.ErrDiscountNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "resource not found",
		}
	case errors.Is(err, cartsvc.ErrDiscountNotUsable),
		errors.Is(err, paymentdomain.ErrInvalidEmail),
		errors.Is(err, paymentdomain.ErrInvalidStatus),
		errors.Is(err, paymentdomain.ErrInvalidGateway),
		errors.Is(err, paymentdomain.ErrEmptyCart),
		errors.Is(err, integrationdomain.ErrNotConfigured),
		errors.Is(err, integrationdomain.ErrInvalidKey),
		errors.Is(err, integrationdomain.ErrShopNotFound):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}
