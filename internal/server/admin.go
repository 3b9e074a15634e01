package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	integrationdomain "github.com/smallbiznis/cartloop/internal/integration/domain"
	"github.com/smallbiznis/cartloop/internal/jilt"
	paymentdomain "github.com/smallbiznis/cartloop/internal/payment/domain"
)

func (s *Server) AdminGetIntegration(c *gin.Context) {
	settings, err := s.integrationSvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"secret_key":     jilt.MaskToken(settings.SecretKey),
		"public_key":     settings.PublicKey,
		"linked_shop_id": settings.LinkedShopID,
		"shop_domain":    settings.ShopDomain,
		"disabled":       settings.Disabled,
		"linked":         settings.IsLinked(),
	})
}

// AdminSetSecretKey rotates the API secret key, relinking the shop with the
// new credentials.
func (s *Server) AdminSetSecretKey(c *gin.Context) {
	var body struct {
		SecretKey string `json:"secret_key"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	settings, err := s.integrationSvc.SetSecretKey(c.Request.Context(), integrationdomain.SetSecretKeyRequest{
		SecretKey: body.SecretKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"secret_key":     jilt.MaskToken(settings.SecretKey),
		"linked_shop_id": settings.LinkedShopID,
		"linked":         settings.IsLinked(),
	})
}

// AdminUpdatePaymentStatus transitions a payment, standing in for both the
// admin UI and offsite gateway notifications.
func (s *Server) AdminUpdatePaymentStatus(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, paymentdomain.ErrNotFound)
		return
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Status == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	payment, err := s.paymentSvc.UpdateStatus(c.Request.Context(), paymentdomain.UpdateStatusRequest{
		ID:        id,
		NewStatus: body.Status,
		SessionID: SessionID(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}
