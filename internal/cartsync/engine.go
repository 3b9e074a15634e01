// Package cartsync mirrors local cart activity to the remote recovery
// service. It subscribes to cart events and never fails the storefront
// request: remote errors are logged and dropped.
package cartsync

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/cartloop/internal/cart"
	"github.com/smallbiznis/cartloop/internal/clientinfo"
	"github.com/smallbiznis/cartloop/internal/config"
	"github.com/smallbiznis/cartloop/internal/events"
	integrationdomain "github.com/smallbiznis/cartloop/internal/integration/domain"
	"github.com/smallbiznis/cartloop/internal/jilt"
	"github.com/smallbiznis/cartloop/internal/recovery/token"
	"github.com/smallbiznis/cartloop/internal/statestore"
)

type Params struct {
	fx.In

	Gateway     *statestore.Gateway
	Cart        *cart.Service
	Client      *jilt.Client
	Integration integrationdomain.Service
	Creds       jilt.CredentialSource
	Cfg         config.Config
	Log         *zap.Logger
}

type Engine struct {
	gateway     *statestore.Gateway
	cart        *cart.Service
	client      *jilt.Client
	integration integrationdomain.Service
	creds       jilt.CredentialSource
	cfg         config.Config
	log         *zap.Logger
}

func New(p Params) *Engine {
	return &Engine{
		gateway:     p.Gateway,
		cart:        p.Cart,
		client:      p.Client,
		integration: p.Integration,
		creds:       p.Creds,
		cfg:         p.Cfg,
		log:         p.Log.Named("cartsync.engine"),
	}
}

var Module = fx.Module("cartsync",
	fx.Provide(New),
	fx.Invoke(Register),
)

func Register(bus *events.Bus, e *Engine) {
	bus.OnCartMutated(e.HandleCartMutated)
	bus.OnCartEmptied(e.HandleCartEmptied)
}

func (e *Engine) HandleCartMutated(ctx context.Context, event events.CartEvent) {
	if !e.integration.IsOperational(ctx) {
		return
	}
	// checkout completion in this request owns the remote order now
	if scope := events.ScopeFrom(ctx); scope != nil && scope.PaymentInserted() {
		return
	}

	snapshot, err := e.cart.Get(ctx, event.SessionID)
	if err != nil {
		e.log.Error("failed to load cart", zap.String("session_id", event.SessionID), zap.Error(err))
		return
	}
	if snapshot.Empty() {
		e.HandleCartEmptied(ctx, event)
		return
	}

	corr, err := e.gateway.Correlation(ctx, event.SessionID, event.UserID)
	if err != nil {
		e.log.Error("failed to load correlation", zap.String("session_id", event.SessionID), zap.Error(err))
		return
	}

	params, err := e.orderParams(ctx, event, snapshot, corr)
	if err != nil {
		e.log.Error("failed to build order payload", zap.Error(err))
		return
	}

	if corr.OrderID != 0 {
		if _, err := e.client.UpdateOrder(ctx, corr.OrderID, params); err != nil {
			e.log.Error("failed to update remote order", zap.Int64("order_id", corr.OrderID), zap.Error(err))
		}
		return
	}

	order, err := e.client.CreateOrder(ctx, params)
	if err != nil {
		e.log.Error("failed to create remote order", zap.Error(err))
		return
	}

	corr = statestore.Correlation{CartToken: order.CartToken, OrderID: order.ID}
	if err := e.gateway.SetCorrelation(ctx, event.SessionID, event.UserID, corr); err != nil {
		e.log.Error("failed to store correlation", zap.Error(err))
		return
	}

	// the recovery URL embeds the order id, so it only exists after create
	patch := jilt.OrderParams{CheckoutURL: e.RecoveryURL(ctx, corr)}
	if _, err := e.client.UpdateOrder(ctx, order.ID, patch); err != nil {
		e.log.Error("failed to set recovery url", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

// HandleCartEmptied clears the local correlation before attempting the remote
// delete, so a failed delete cannot resurrect the pairing.
func (e *Engine) HandleCartEmptied(ctx context.Context, event events.CartEvent) {
	if !e.integration.IsOperational(ctx) {
		return
	}
	if scope := events.ScopeFrom(ctx); scope != nil && scope.PaymentInserted() {
		return
	}

	corr, err := e.gateway.Correlation(ctx, event.SessionID, event.UserID)
	if err != nil {
		e.log.Error("failed to load correlation", zap.String("session_id", event.SessionID), zap.Error(err))
		return
	}
	if corr.OrderID == 0 {
		return
	}

	if err := e.gateway.ClearCorrelation(ctx, event.SessionID, event.UserID); err != nil {
		e.log.Error("failed to clear correlation", zap.Error(err))
		return
	}
	if err := e.gateway.ClearPendingRecovery(ctx, event.SessionID, event.UserID); err != nil {
		e.log.Error("failed to clear pending recovery", zap.Error(err))
	}

	if err := e.client.DeleteOrder(ctx, corr.OrderID); err != nil {
		e.log.Error("failed to delete remote order", zap.Int64("order_id", corr.OrderID), zap.Error(err))
	}
}

// RecoveryURL builds the signed checkout recovery link for a correlation.
func (e *Engine) RecoveryURL(ctx context.Context, corr statestore.Correlation) string {
	tok, hash, err := token.Encode(corr.OrderID, corr.CartToken, e.creds.SecretKey(ctx))
	if err != nil {
		e.log.Error("failed to sign recovery url", zap.Error(err))
		return ""
	}
	return token.RecoveryURL(e.cfg.SiteURL, tok, hash)
}

func (e *Engine) orderParams(ctx context.Context, event events.CartEvent, snapshot cart.Snapshot, corr statestore.Correlation) (jilt.OrderParams, error) {
	totals, err := e.cart.Totals(ctx, snapshot)
	if err != nil {
		return jilt.OrderParams{}, err
	}
	clientSession, err := e.cart.ClientSession(ctx, event.SessionID)
	if err != nil {
		return jilt.OrderParams{}, err
	}

	params := jilt.OrderParams{
		TotalPrice:     totals.Total,
		SubtotalPrice:  totals.Subtotal,
		TotalTax:       totals.Tax,
		TotalDiscounts: totals.Discount,
		Currency:       e.cfg.Currency,
		LineItems:      lineItems(snapshot.Items),
		ClientSession:  clientSession,
	}

	if info := clientinfo.FromContext(ctx); info != (clientinfo.Info{}) {
		params.ClientDetails = &jilt.ClientDetails{
			BrowserIP:      info.BrowserIP,
			AcceptLanguage: info.AcceptLanguage,
			UserAgent:      info.UserAgent,
		}
	}

	// the remote side generates a cart token when none is provided
	if corr.CartToken != "" {
		params.CartToken = corr.CartToken
	}
	if corr.OrderID != 0 {
		params.CheckoutURL = e.RecoveryURL(ctx, corr)
	}

	if snapshot.Customer != nil {
		customer := &jilt.Customer{
			CustomerID: snapshot.Customer.CustomerID,
			Email:      snapshot.Customer.Email,
			FirstName:  snapshot.Customer.FirstName,
			LastName:   snapshot.Customer.LastName,
			AdminURL:   snapshot.Customer.AdminURL,
		}
		params.Customer = customer
		params.BillingAddress = &jilt.Customer{
			Email:     snapshot.Customer.Email,
			FirstName: snapshot.Customer.FirstName,
			LastName:  snapshot.Customer.LastName,
		}
	}

	return params, nil
}

func lineItems(items []cart.Item) []jilt.LineItem {
	var lines []jilt.LineItem
	for _, item := range items {
		lines = append(lines, jilt.LineItem{
			Title:     item.Title,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
			URL:       item.URL,
			ImageURL:  item.ImageURL,
			SKU:       item.SKU,
			VariantID: item.VariantID,
			Variation: item.Variation,
			Token:     item.Token,
		})
	}
	return lines
}
