package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/cartloop/internal/config"
	discountdomain "github.com/smallbiznis/cartloop/internal/discount/domain"
	integrationdomain "github.com/smallbiznis/cartloop/internal/integration/domain"
)

const testSecretKey = "sk_secret_123456"

type credsStub struct {
	secret string
}

func (c credsStub) SecretKey(context.Context) string   { return c.secret }
func (c credsStub) LinkedShopID(context.Context) int64 { return 42 }
func (c credsStub) ShopDomain(context.Context) string  { return "shop.example.com" }

type integrationSvcStub struct {
	settings integrationdomain.Settings

	updates       []integrationdomain.UpdateSettingsRequest
	secretKeySets int
}

func (s *integrationSvcStub) Get(context.Context) (integrationdomain.Settings, error) {
	return s.settings, nil
}

func (s *integrationSvcStub) SetSecretKey(_ context.Context, req integrationdomain.SetSecretKeyRequest) (integrationdomain.Settings, error) {
	s.secretKeySets++
	s.settings.SecretKey = req.SecretKey
	return s.settings, nil
}

func (s *integrationSvcStub) LinkShop(context.Context) (int64, error) {
	return s.settings.LinkedShopID, nil
}

func (s *integrationSvcStub) UpdateShop(context.Context) error { return nil }

func (s *integrationSvcStub) Update(_ context.Context, req integrationdomain.UpdateSettingsRequest) (integrationdomain.Settings, error) {
	s.updates = append(s.updates, req)
	if req.Disabled != nil {
		s.settings.Disabled = *req.Disabled
	}
	return s.settings, nil
}

func (s *integrationSvcStub) MarkAccountCancelled(context.Context) error { return nil }

func (s *integrationSvcStub) IsOperational(context.Context) bool { return true }

type discountSvcStub struct {
	byCode map[string]discountdomain.Discount

	createErr error
	created   []discountdomain.CreateDiscountRequest
}

func (s *discountSvcStub) Create(_ context.Context, req discountdomain.CreateDiscountRequest) (discountdomain.Discount, error) {
	if s.createErr != nil {
		return discountdomain.Discount{}, s.createErr
	}
	s.created = append(s.created, req)
	return discountdomain.Discount{ID: 1001, Code: req.Code}, nil
}

func (s *discountSvcStub) GetByID(context.Context, snowflake.ID) (discountdomain.Discount, error) {
	return discountdomain.Discount{}, discountdomain.ErrNotFound
}

func (s *discountSvcStub) GetByCode(_ context.Context, code string) (discountdomain.Discount, error) {
	discount, ok := s.byCode[code]
	if !ok {
		return discountdomain.Discount{}, discountdomain.ErrNotFound
	}
	return discount, nil
}

func (s *discountSvcStub) RecordUse(context.Context, string) error { return nil }

func setupIntegrationAPI(t *testing.T) (*Server, *integrationSvcStub, *discountSvcStub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	integrationSvc := &integrationSvcStub{
		settings: integrationdomain.Settings{
			ID:           1,
			SecretKey:    testSecretKey,
			PublicKey:    "pk_live_abc",
			LinkedShopID: 42,
			ShopDomain:   "shop.example.com",
		},
	}
	discountSvc := &discountSvcStub{byCode: map[string]discountdomain.Discount{
		"SAVE10": {ID: 2002, Code: "SAVE10", Name: "Ten off", Type: "percent", Amount: 10, Status: "active"},
	}}

	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	s := &Server{
		engine:         r,
		cfg:            config.Config{ShopDomain: "shop.example.com", ShopName: "Example Shop", Currency: "USD", AppVersion: "0.1.0"},
		creds:          credsStub{secret: testSecretKey},
		integrationSvc: integrationSvc,
		discountSvc:    discountSvc,
	}
	r.Any("/integration-api", s.IntegrationAPIAuth(), s.IntegrationAPI)
	return s, integrationSvc, discountSvc
}

func doAPIRequest(t *testing.T, s *Server, method, target, auth, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func TestIntegrationAPIRejectsMissingAuth(t *testing.T) {
	s, _, _ := setupIntegrationAPI(t)

	w := doAPIRequest(t, s, http.MethodGet, "/integration-api?resource=integration", "", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"unauthorized"`)
}

func TestIntegrationAPIRejectsWrongToken(t *testing.T) {
	s, _, _ := setupIntegrationAPI(t)

	w := doAPIRequest(t, s, http.MethodGet, "/integration-api?resource=integration", "Token sk_wrong", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIntegrationAPIRejectsWhenNoKeyConfigured(t *testing.T) {
	s, _, _ := setupIntegrationAPI(t)
	s.creds = credsStub{secret: ""}

	// an empty presented token must not match an empty stored key
	w := doAPIRequest(t, s, http.MethodGet, "/integration-api?resource=integration", "Token ", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIntegrationAPIGetIntegrationOmitsSecret(t *testing.T) {
	s, _, _ := setupIntegrationAPI(t)

	w := doAPIRequest(t, s, http.MethodGet, "/integration-api?resource=integration", "Token "+testSecretKey, "")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(42), body["linked_shop_id"])
	assert.Equal(t, "pk_live_abc", body["public_key"])
	assert.NotContains(t, body, "secret_key")
	assert.NotContains(t, w.Body.String(), testSecretKey)
}

func TestIntegrationAPIDeleteDisablesSync(t *testing.T) {
	s, integrationSvc, _ := setupIntegrationAPI(t)

	w := doAPIRequest(t, s, http.MethodDelete, "/integration-api?resource=integration", "Token "+testSecretKey, "")

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, integrationSvc.updates, 1)
	require.NotNil(t, integrationSvc.updates[0].Disabled)
	assert.True(t, *integrationSvc.updates[0].Disabled)
	assert.Contains(t, w.Body.String(), `"disabled":true`)
}

func TestIntegrationAPIPostReenablesSync(t *testing.T) {
	s, integrationSvc, _ := setupIntegrationAPI(t)
	integrationSvc.settings.Disabled = true

	w := doAPIRequest(t, s, http.MethodPost, "/integration-api?resource=integration", "Token "+testSecretKey, "")

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, integrationSvc.updates, 1)
	require.NotNil(t, integrationSvc.updates[0].Disabled)
	assert.False(t, *integrationSvc.updates[0].Disabled)
}

func TestIntegrationAPIPutIgnoresSecretKey(t *testing.T) {
	s, integrationSvc, _ := setupIntegrationAPI(t)

	w := doAPIRequest(t, s, http.MethodPut, "/integration-api?resource=integration",
		"Token "+testSecretKey, `{"secret_key":"sk_evil","disabled":true}`)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, integrationSvc.secretKeySets)
	assert.Equal(t, testSecretKey, integrationSvc.settings.SecretKey)
	require.Len(t, integrationSvc.updates, 1)
	require.NotNil(t, integrationSvc.updates[0].Disabled)
	assert.True(t, *integrationSvc.updates[0].Disabled)
}

func TestIntegrationAPIGetShop(t *testing.T) {
	s, _, _ := setupIntegrationAPI(t)

	w := doAPIRequest(t, s, http.MethodGet, "/integration-api?resource=shop", "Token "+testSecretKey, "")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "shop.example.com", body["domain"])
	assert.Equal(t, "edd", body["profile_type"])
	assert.Equal(t, true, body["integration_enabled"])
}

func TestIntegrationAPIGetDiscountRequiresIDOrCode(t *testing.T) {
	s, _, _ := setupIntegrationAPI(t)

	w := doAPIRequest(t, s, http.MethodGet, "/integration-api?resource=discount", "Token "+testSecretKey, "")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Need either an id or code to get a discount")
}

func TestIntegrationAPIGetDiscountByCode(t *testing.T) {
	s, _, _ := setupIntegrationAPI(t)

	w := doAPIRequest(t, s, http.MethodGet, "/integration-api?resource=discount&code=SAVE10", "Token "+testSecretKey, "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"SAVE10"`)
	assert.Contains(t, w.Body.String(), `"type":"percent"`)
}

func TestIntegrationAPIGetDiscountMalformedID(t *testing.T) {
	s, _, _ := setupIntegrationAPI(t)

	w := doAPIRequest(t, s, http.MethodGet, "/integration-api?resource=discount&id=notanumber", "Token "+testSecretKey, "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIntegrationAPIPostDiscounts(t *testing.T) {
	s, _, discountSvc := setupIntegrationAPI(t)

	w := doAPIRequest(t, s, http.MethodPost, "/integration-api?resource=discounts",
		"Token "+testSecretKey, `{"code":"NEW15","name":"Fifteen off","type":"percent","amount":15,"discount_id":900}`)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, discountSvc.created, 1)
	assert.Equal(t, int64(900), discountSvc.created[0].JiltDiscountID)
	assert.Contains(t, w.Body.String(), `"code":"NEW15"`)
}

func TestIntegrationAPIPostDiscountsValidationError(t *testing.T) {
	s, _, discountSvc := setupIntegrationAPI(t)
	discountSvc.createErr = discountdomain.NewMissingParamsError([]string{"discount_id", "name", "amount"})

	w := doAPIRequest(t, s, http.MethodPost, "/integration-api?resource=discounts",
		"Token "+testSecretKey, `{"code":"NEW15"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "Missing required params: discount_id, name, amount")
}

func TestIntegrationAPIUnknownResource(t *testing.T) {
	s, _, _ := setupIntegrationAPI(t)

	w := doAPIRequest(t, s, http.MethodGet, "/integration-api?resource=orders", "Token "+testSecretKey, "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"invalid_request"`)
}
