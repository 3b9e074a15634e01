// Package checkoutsync moves a remote order through checkout: stamping
// placed payments with their correlation, pushing status transitions, and
// reconciling duplicate payments created by offsite-gateway recoveries.
package checkoutsync

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/cartloop/internal/cart"
	"github.com/smallbiznis/cartloop/internal/cartsync"
	"github.com/smallbiznis/cartloop/internal/clientinfo"
	"github.com/smallbiznis/cartloop/internal/config"
	"github.com/smallbiznis/cartloop/internal/events"
	integrationdomain "github.com/smallbiznis/cartloop/internal/integration/domain"
	"github.com/smallbiznis/cartloop/internal/jilt"
	paymentdomain "github.com/smallbiznis/cartloop/internal/payment/domain"
	"github.com/smallbiznis/cartloop/internal/statestore"
)

type Params struct {
	fx.In

	Gateway     *statestore.Gateway
	Cart        *cart.Service
	CartSync    *cartsync.Engine
	Payments    paymentdomain.Service
	Client      *jilt.Client
	Integration integrationdomain.Service
	Cfg         config.Config
	Log         *zap.Logger
}

type Engine struct {
	gateway     *statestore.Gateway
	cart        *cart.Service
	cartSync    *cartsync.Engine
	payments    paymentdomain.Service
	client      *jilt.Client
	integration integrationdomain.Service
	cfg         config.Config
	log         *zap.Logger
}

func New(p Params) *Engine {
	return &Engine{
		gateway:     p.Gateway,
		cart:        p.Cart,
		cartSync:    p.CartSync,
		payments:    p.Payments,
		client:      p.Client,
		integration: p.Integration,
		cfg:         p.Cfg,
		log:         p.Log.Named("checkoutsync.engine"),
	}
}

var Module = fx.Module("checkoutsync",
	fx.Provide(New),
	fx.Invoke(Register),
)

func Register(bus *events.Bus, e *Engine) {
	bus.OnPaymentInserted(e.HandlePaymentInserted)
	bus.OnPaymentStatusChanged(e.HandlePaymentStatusChanged)
}

// HandlePaymentInserted runs when checkout creates a pending payment. The
// correlation moves from the session onto the payment record, the remote
// order is updated with the placement, and the session correlation is
// retired so a fresh cart starts a fresh remote order.
func (e *Engine) HandlePaymentInserted(ctx context.Context, event events.PaymentEvent) {
	if !e.integration.IsOperational(ctx) {
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

	payment, err := e.payments.GetByID(ctx, event.PaymentID)
	if err != nil {
		e.log.Error("failed to load payment", zap.Int64("payment_id", int64(event.PaymentID)), zap.Error(err))
		return
	}

	payment.Metadata[paymentdomain.MetaCartToken] = corr.CartToken
	payment.Metadata[paymentdomain.MetaOrderID] = corr.OrderID

	pending, err := e.gateway.PendingRecovery(ctx, event.SessionID, event.UserID)
	if err != nil {
		e.log.Error("failed to read pending recovery", zap.Error(err))
	}
	if pending {
		payment.Metadata[paymentdomain.MetaRecovered] = true

		// offsite gateways cannot resume the original pending payment, so a
		// new payment record carries a reference back to it
		staged, err := e.gateway.StagedRecoveredPayment(ctx, event.SessionID)
		if err != nil {
			e.log.Error("failed to read staged payment", zap.Error(err))
		}
		if staged != 0 {
			payment.Metadata[paymentdomain.MetaRecoveredPaymentID] = staged.String()
		}
	}

	if err := e.payments.Save(ctx, &payment); err != nil {
		e.log.Error("failed to stamp payment", zap.Int64("payment_id", int64(payment.ID)), zap.Error(err))
		return
	}

	if _, err := e.client.UpdateOrder(ctx, corr.OrderID, e.placedOrderParams(ctx, &payment, event.SessionID, corr)); err != nil {
		e.log.Error("failed to update remote order", zap.Int64("order_id", corr.OrderID), zap.Error(err))
	}

	e.retireSession(ctx, event.SessionID, event.UserID)
}

// HandlePaymentStatusChanged pushes the transition to the remote order the
// payment is stamped with. Payments never stamped, or whose stamp was removed
// by reconciliation, are left alone.
func (e *Engine) HandlePaymentStatusChanged(ctx context.Context, event events.PaymentEvent) {
	if !e.integration.IsOperational(ctx) {
		return
	}

	payment, err := e.payments.GetByID(ctx, event.PaymentID)
	if err != nil {
		e.log.Error("failed to load payment", zap.Int64("payment_id", int64(event.PaymentID)), zap.Error(err))
		return
	}

	orderID := payment.MetaInt64(paymentdomain.MetaOrderID)
	if orderID == 0 {
		return
	}

	if payment.IsComplete() && payment.MetaBool(paymentdomain.MetaRecovered) {
		e.handleCompletedRecovery(ctx, &payment)
	}

	cancelledAt := payment.MetaInt64(paymentdomain.MetaCancelledAt)
	if cancelledAt == 0 && payment.Status == paymentdomain.StatusCancelled {
		cancelledAt = time.Now().UTC().Unix()
		payment.Metadata[paymentdomain.MetaCancelledAt] = cancelledAt
		if err := e.payments.Save(ctx, &payment); err != nil {
			e.log.Error("failed to stamp cancellation time", zap.Error(err))
		}
	}

	params := jilt.OrderParams{
		Status:          RemoteStatus(payment.Status),
		FinancialStatus: FinancialStatus(&payment),
	}
	if payment.CompletedAt != nil {
		params.PlacedAt = payment.CompletedAt.Unix()
	}
	if cancelledAt != 0 {
		params.CancelledAt = cancelledAt
	}

	if _, err := e.client.UpdateOrder(ctx, orderID, params); err != nil {
		e.log.Error("failed to update remote order", zap.Int64("order_id", orderID), zap.Error(err))
	}
}

// handleCompletedRecovery notes the recovery and, when the checkout was a
// duplicate of an offsite-gateway payment, reconciles the original: note it,
// point it at the new payment, strip its correlation stamp, and abandon it.
func (e *Engine) handleCompletedRecovery(ctx context.Context, payment *paymentdomain.Payment) {
	if err := e.payments.AddNote(ctx, payment.ID, "Recovered by Jilt."); err != nil {
		e.log.Error("failed to add recovery note", zap.Error(err))
	}

	rawOriginal := payment.MetaString(paymentdomain.MetaRecoveredPaymentID)
	if rawOriginal == "" {
		return
	}
	originalID, err := snowflake.ParseString(rawOriginal)
	if err != nil {
		e.log.Warn("discarding malformed original payment id", zap.String("value", rawOriginal))
		return
	}

	original, err := e.payments.GetByID(ctx, originalID)
	if err != nil {
		e.log.Error("failed to load original payment", zap.Int64("payment_id", int64(originalID)), zap.Error(err))
		return
	}

	if err := e.payments.AddNote(ctx, original.ID, fmt.Sprintf("Recovered by Jilt in payment %d.", payment.ID)); err != nil {
		e.log.Error("failed to note original payment", zap.Error(err))
	}

	// reload after AddNote rewrote the row
	original, err = e.payments.GetByID(ctx, original.ID)
	if err != nil {
		e.log.Error("failed to reload original payment", zap.Error(err))
		return
	}

	original.Metadata[paymentdomain.MetaRecoveredInPayment] = payment.ID.String()
	delete(original.Metadata, paymentdomain.MetaCartToken)
	delete(original.Metadata, paymentdomain.MetaOrderID)
	if err := e.payments.Save(ctx, &original); err != nil {
		e.log.Error("failed to strip original payment", zap.Error(err))
		return
	}

	if _, err := e.payments.UpdateStatus(ctx, paymentdomain.UpdateStatusRequest{
		ID:        original.ID,
		NewStatus: paymentdomain.StatusAbandoned,
	}); err != nil {
		e.log.Error("failed to abandon original payment", zap.Error(err))
	}
}

func (e *Engine) placedOrderParams(ctx context.Context, payment *paymentdomain.Payment, sessionID string, corr statestore.Correlation) jilt.OrderParams {
	params := jilt.OrderParams{
		Name:            payment.Number,
		OrderID:         int64(payment.ID),
		AdminURL:        fmt.Sprintf("%s/payments/%d", e.cfg.AdminURL, payment.ID),
		Status:          RemoteStatus(payment.Status),
		FinancialStatus: FinancialStatus(payment),
		TotalPrice:      payment.Total,
		SubtotalPrice:   payment.Subtotal,
		TotalTax:        payment.Tax,
		TotalDiscounts:  payment.Discount,
		Currency:        payment.Currency,
		CheckoutURL:     e.cartSync.RecoveryURL(ctx, corr),
		LineItems:       paymentLineItems(payment.Items()),
		CartToken:       corr.CartToken,
		Customer: &jilt.Customer{
			CustomerID: payment.CustomerID,
			AdminURL:   fmt.Sprintf("%s/customers/%d", e.cfg.AdminURL, payment.CustomerID),
			Email:      payment.Email,
			FirstName:  payment.FirstName,
			LastName:   payment.LastName,
		},
	}

	if info := clientinfo.FromContext(ctx); info != (clientinfo.Info{}) {
		params.ClientDetails = &jilt.ClientDetails{
			BrowserIP:      info.BrowserIP,
			AcceptLanguage: info.AcceptLanguage,
			UserAgent:      info.UserAgent,
		}
	}

	if sessionID != "" {
		clientSession, err := e.cart.ClientSession(ctx, sessionID)
		if err != nil {
			e.log.Error("failed to serialize client session", zap.Error(err))
		} else {
			params.ClientSession = clientSession
		}
	}

	return params
}

// retireSession removes the correlation and recovery markers once a payment
// owns them.
func (e *Engine) retireSession(ctx context.Context, sessionID string, userID snowflake.ID) {
	if err := e.gateway.ClearCorrelation(ctx, sessionID, userID); err != nil {
		e.log.Error("failed to clear correlation", zap.Error(err))
	}
	if err := e.gateway.ClearPendingRecovery(ctx, sessionID, userID); err != nil {
		e.log.Error("failed to clear pending recovery", zap.Error(err))
	}
	if err := e.gateway.ClearStagedRecoveredPayment(ctx, sessionID); err != nil {
		e.log.Error("failed to clear staged payment", zap.Error(err))
	}
}

func paymentLineItems(items []paymentdomain.PaymentItem) []jilt.LineItem {
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
