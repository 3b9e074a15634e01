package jilt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const apiVersion = "v1"

// CredentialSource yields the current API credentials. Implementations read
// live integration settings so key rotation and shop linking take effect
// without rebuilding the client.
type CredentialSource interface {
	SecretKey(ctx context.Context) string
	LinkedShopID(ctx context.Context) int64
	ShopDomain(ctx context.Context) string
}

// Client is a typed client for the remote recovery API.
type Client struct {
	baseURL    string
	creds      CredentialSource
	httpClient *http.Client
	log        *zap.Logger

	// deactivate is invoked when the remote side reports the account as
	// cancelled. Set by the integration layer after construction.
	deactivate func(ctx context.Context)
}

func NewClient(hostname string, creds CredentialSource, log *zap.Logger) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("https://api.%s/%s", hostname, apiVersion),
		creds:      creds,
		httpClient: &http.Client{Timeout: 12 * time.Second},
		log:        log.Named("jilt.client"),
	}
}

func (c *Client) SetDeactivateFunc(fn func(ctx context.Context)) {
	c.deactivate = fn
}

// SetBaseURL overrides the API base URL. Tests point it at a local server.
func (c *Client) SetBaseURL(raw string) {
	c.baseURL = strings.TrimRight(raw, "/")
}

func (c *Client) GetUser(ctx context.Context) (User, error) {
	var user User
	err := c.doRequest(ctx, http.MethodGet, "/user", nil, &user)
	return user, err
}

// FindShop looks up a shop by domain. Returns nil when no shop matched.
func (c *Client) FindShop(ctx context.Context, domain string) (*Shop, error) {
	var shops []Shop
	path := "/shops?domain=" + domain
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &shops); err != nil {
		return nil, err
	}
	if len(shops) == 0 {
		return nil, nil
	}
	return &shops[0], nil
}

func (c *Client) CreateShop(ctx context.Context, params ShopParams) (Shop, error) {
	var shop Shop
	err := c.doRequest(ctx, http.MethodPost, "/shops", params, &shop)
	return shop, err
}

func (c *Client) UpdateShop(ctx context.Context, id int64, params ShopParams) (Shop, error) {
	var shop Shop
	err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/shops/%d", id), params, &shop)
	return shop, err
}

func (c *Client) DeleteShop(ctx context.Context, id int64) error {
	return c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/shops/%d", id), nil, nil)
}

func (c *Client) GetOrder(ctx context.Context, id int64) (Order, error) {
	var order Order
	err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/orders/%d", id), nil, &order)
	return order, err
}

func (c *Client) CreateOrder(ctx context.Context, params OrderParams) (Order, error) {
	shopID := c.creds.LinkedShopID(ctx)
	var order Order
	err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/shops/%d/orders", shopID), params, &order)
	return order, err
}

func (c *Client) UpdateOrder(ctx context.Context, id int64, params OrderParams) (Order, error) {
	var order Order
	err := c.doRequest(ctx, http.MethodPut, fmt.Sprintf("/orders/%d", id), params, &order)
	return order, err
}

func (c *Client) DeleteOrder(ctx context.Context, id int64) error {
	return c.doRequest(ctx, http.MethodDelete, fmt.Sprintf("/orders/%d", id), nil, nil)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, out any) error {
	var bodyReader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(raw)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}

	secret := c.creds.SecretKey(ctx)
	req.Header.Set("Authorization", "Token "+secret)
	req.Header.Set("X-Jilt-Shop-Domain", c.creds.ShopDomain(ctx))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug("api request",
		zap.String("method", method),
		zap.String("path", path),
		zap.String("authorization", "Token "+MaskToken(secret)),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		// account cancelled upstream; stop syncing rather than erroring out
		if c.deactivate != nil {
			c.deactivate(ctx)
		}
		return ErrAccountCancelled
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := newAPIError(resp.StatusCode, http.StatusText(resp.StatusCode))
		var parsed struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil && parsed.Error.Message != "" {
			apiErr.Message = parsed.Error.Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newTransportError(err)
	}
	return nil
}

// MaskToken keeps the first 2 and last 4 characters of a secret and masks the
// rest. Tokens of 7 characters or fewer are returned as-is.
func MaskToken(token string) string {
	if len(token) <= 7 {
		return token
	}
	return token[:2] + strings.Repeat("*", len(token)-6) + token[len(token)-4:]
}
