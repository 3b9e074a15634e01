package server

import (
	"crypto/hmac"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	discountdomain "github.com/smallbiznis/cartloop/internal/discount/domain"
	integrationdomain "github.com/smallbiznis/cartloop/internal/integration/domain"
)

// IntegrationAPIAuth authenticates server-to-server requests from the remote
// side with the shared secret key.
func (s *Server) IntegrationAPIAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := s.creds.SecretKey(c.Request.Context())
		presented := strings.TrimPrefix(c.GetHeader("Authorization"), "Token ")
		if secret == "" || !hmac.Equal([]byte(secret), []byte(presented)) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

// IntegrationAPI routes remote-side requests on the resource query param and
// HTTP verb, mirroring the remote service's expectations.
func (s *Server) IntegrationAPI(c *gin.Context) {
	resource := c.Query("resource")

	switch {
	case resource == "integration" && c.Request.Method == http.MethodGet:
		s.getIntegration(c)
	case resource == "integration" && c.Request.Method == http.MethodPost:
		s.setIntegrationDisabled(c, false)
	case resource == "integration" && c.Request.Method == http.MethodDelete:
		s.setIntegrationDisabled(c, true)
	case resource == "integration" && c.Request.Method == http.MethodPut:
		s.putIntegration(c)
	case resource == "shop" && c.Request.Method == http.MethodGet:
		s.getShop(c)
	case resource == "discount" && c.Request.Method == http.MethodGet:
		s.getDiscount(c)
	case resource == "discounts" && c.Request.Method == http.MethodPost:
		s.postDiscounts(c)
	default:
		AbortWithError(c, ErrInvalidRequest)
	}
}

// safeSettings is the settings view exposed remotely; the secret key and its
// stash never leave the service.
type safeSettings struct {
	LinkedShopID int64  `json:"linked_shop_id"`
	ShopDomain   string `json:"shop_domain"`
	Disabled     bool   `json:"disabled"`
	PublicKey    string `json:"public_key,omitempty"`
}

func newSafeSettings(settings integrationdomain.Settings) safeSettings {
	return safeSettings{
		LinkedShopID: settings.LinkedShopID,
		ShopDomain:   settings.ShopDomain,
		Disabled:     settings.Disabled,
		PublicKey:    settings.PublicKey,
	}
}

func (s *Server) getIntegration(c *gin.Context) {
	settings, err := s.integrationSvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSafeSettings(settings))
}

func (s *Server) setIntegrationDisabled(c *gin.Context, disabled bool) {
	settings, err := s.integrationSvc.Update(c.Request.Context(), integrationdomain.UpdateSettingsRequest{
		Disabled: &disabled,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSafeSettings(settings))
}

// putIntegration updates whitelisted settings only. A secret_key in the body
// is dropped on the floor, never applied.
func (s *Server) putIntegration(c *gin.Context) {
	var body struct {
		Disabled *bool `json:"disabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	settings, err := s.integrationSvc.Update(c.Request.Context(), integrationdomain.UpdateSettingsRequest{
		Disabled: body.Disabled,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, newSafeSettings(settings))
}

func (s *Server) getShop(c *gin.Context) {
	settings, err := s.integrationSvc.Get(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"domain":              s.cfg.ShopDomain,
		"admin_url":           s.cfg.AdminURL,
		"profile_type":        "edd",
		"name":                s.cfg.ShopName,
		"currency":            s.cfg.Currency,
		"country_code":        s.cfg.CountryCode,
		"province_code":       s.cfg.ProvinceCode,
		"timezone":            s.cfg.Timezone,
		"integration_version": s.cfg.AppVersion,
		"integration_enabled": settings.IsLinked() && !settings.Disabled,
	})
}

func (s *Server) getDiscount(c *gin.Context) {
	ctx := c.Request.Context()

	rawID, hasID := c.GetQuery("id")
	code, hasCode := c.GetQuery("code")
	if !hasID && !hasCode {
		AbortWithError(c, &discountdomain.ValidationError{Message: "Need either an id or code to get a discount"})
		return
	}

	var (
		discount discountdomain.Discount
		err      error
	)
	if hasID {
		id, parseErr := snowflake.ParseString(rawID)
		if parseErr != nil {
			AbortWithError(c, discountdomain.ErrNotFound)
			return
		}
		discount, err = s.discountSvc.GetByID(ctx, id)
	} else {
		discount, err = s.discountSvc.GetByCode(ctx, code)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         discount.ID,
		"code":       discount.Code,
		"uses":       discount.Uses,
		"amount":     discount.Amount,
		"type":       discount.Type,
		"min_price":  discount.MinPrice,
		"use_once":   discount.UseOnce,
		"max":        discount.MaxUses,
		"status":     discount.Status,
		"expiration": discount.Expiration,
	})
}

func (s *Server) postDiscounts(c *gin.Context) {
	var req discountdomain.CreateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	discount, err := s.discountSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":   discount.ID,
		"code": discount.Code,
	})
}
