// Package recovery turns a signed recovery link back into a live checkout
// session: it validates the link, reconciles any payment already placed for
// the cart, logs the owner back in when safe, and rebuilds the cart from the
// remote order.
package recovery

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/cartloop/internal/cart"
	"github.com/smallbiznis/cartloop/internal/config"
	integrationdomain "github.com/smallbiznis/cartloop/internal/integration/domain"
	"github.com/smallbiznis/cartloop/internal/jilt"
	paymentdomain "github.com/smallbiznis/cartloop/internal/payment/domain"
	"github.com/smallbiznis/cartloop/internal/recovery/token"
	"github.com/smallbiznis/cartloop/internal/statestore"
	"github.com/smallbiznis/cartloop/internal/user"
)

type RecoverRequest struct {
	SessionID string
	Token     string
	Hash      string

	// Discount is passed through to the checkout redirect untouched.
	Discount string

	// CurrentUserID is the user already logged into this session, if any.
	CurrentUserID snowflake.ID
}

// Result tells the HTTP surface where to send the visitor and whether a user
// should be logged in on the way.
type Result struct {
	RedirectURL string
	LoginUserID snowflake.ID
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Gateway     *statestore.Gateway
	Cart        *cart.Service
	Client      *jilt.Client
	Integration integrationdomain.Service
	Creds       jilt.CredentialSource
	Payments    paymentdomain.Service
	Users       user.Repository
	Cfg         config.Config
	Holder      *config.RuntimeHolder
	Log         *zap.Logger
}

type Service struct {
	db          *gorm.DB
	gateway     *statestore.Gateway
	cart        *cart.Service
	client      *jilt.Client
	integration integrationdomain.Service
	creds       jilt.CredentialSource
	payments    paymentdomain.Service
	users       user.Repository
	cfg         config.Config
	holder      *config.RuntimeHolder
	log         *zap.Logger
}

func New(p Params) *Service {
	return &Service{
		db:          p.DB,
		gateway:     p.Gateway,
		cart:        p.Cart,
		client:      p.Client,
		integration: p.Integration,
		creds:       p.Creds,
		payments:    p.Payments,
		users:       p.Users,
		cfg:         p.Cfg,
		holder:      p.Holder,
		log:         p.Log.Named("recovery.service"),
	}
}

var Module = fx.Module("recovery.service",
	fx.Provide(New),
)

// Recover processes a recovery link visit. It never returns an error to the
// visitor: every failure path resolves to a redirect, with the cause logged.
func (s *Service) Recover(ctx context.Context, req RecoverRequest) Result {
	root := s.cfg.SiteURL + "/"
	checkoutURL := s.cfg.SiteURL + s.holder.Current().CheckoutPath

	if !s.integration.IsOperational(ctx) {
		s.log.Warn("recovery visit while integration inactive")
		return Result{RedirectURL: root}
	}

	payload, err := token.Decode(req.Token, req.Hash, s.creds.SecretKey(ctx))
	if err != nil {
		s.log.Warn("recovery link failed validation", zap.Error(err))
		return Result{RedirectURL: root}
	}

	remoteOrder, err := s.client.GetOrder(ctx, payload.OrderID)
	if err != nil {
		s.log.Warn("could not recreate cart",
			zap.Int64("order_id", payload.OrderID),
			zap.Error(err),
		)
		return Result{RedirectURL: checkoutURL}
	}

	// a payment may already exist for this cart
	if result, done := s.reconcilePlacedPayment(ctx, req.SessionID, payload.CartToken); done {
		return result
	}

	loginUserID := snowflake.ID(0)
	ownerID, err := s.gateway.UserIDForCartToken(ctx, payload.CartToken)
	if err != nil {
		s.log.Error("failed to look up cart owner", zap.Error(err))
	}
	if ownerID != 0 {
		loginUserID = s.loginUser(ctx, ownerID, req.CurrentUserID)

		if !hmac.Equal([]byte(remoteOrder.CartToken), []byte(payload.CartToken)) {
			s.log.Warn("cart token failed validation",
				zap.Int64("order_id", payload.OrderID),
				zap.String("cart_token", jilt.MaskToken(payload.CartToken)),
			)
			return Result{RedirectURL: root, LoginUserID: loginUserID}
		}
	} else {
		if err := s.gateway.SetPendingRecovery(ctx, req.SessionID, 0); err != nil {
			s.log.Error("failed to mark pending recovery", zap.Error(err))
		}
	}

	snapshot := s.rebuildCart(ctx, req.SessionID, loginUserID, &remoteOrder)

	if snapshot.Empty() {
		return Result{RedirectURL: checkoutURL, LoginUserID: loginUserID}
	}

	return Result{
		RedirectURL: s.checkoutRedirect(checkoutURL, snapshot, req.Discount),
		LoginUserID: loginUserID,
	}
}

// reconcilePlacedPayment handles a cart whose checkout already produced a
// payment. Completed payments send the visitor to their receipt; resumable
// ones are staged so the eventual new payment can reference them.
func (s *Service) reconcilePlacedPayment(ctx context.Context, sessionID, cartToken string) (Result, bool) {
	payment, err := s.payments.FindByCartToken(ctx, cartToken)
	if err != nil {
		s.log.Error("failed to look up payment for cart", zap.Error(err))
		return Result{}, false
	}
	if payment == nil {
		return Result{}, false
	}

	switch payment.Status {
	case paymentdomain.StatusAbandoned, paymentdomain.StatusPending:
		if err := s.gateway.StageRecoveredPayment(ctx, sessionID, payment.ID); err != nil {
			s.log.Error("failed to stage recovered payment", zap.Error(err))
		}
		if err := s.payments.AddNote(ctx, payment.ID, "Customer visited Jilt order recovery URL."); err != nil {
			s.log.Error("failed to note payment", zap.Error(err))
		}
		return Result{}, false

	case paymentdomain.StatusPublish:
		receipt := fmt.Sprintf("%s%s?payment_id=%d", s.cfg.SiteURL, s.holder.Current().ReceiptPath, payment.ID)
		return Result{RedirectURL: receipt}, true
	}

	return Result{}, false
}

// loginUser decides whether the cart owner may be logged in automatically.
// Accounts with admin rights never are; a different logged-in user is
// replaced when the owner passes the gate.
func (s *Service) loginUser(ctx context.Context, ownerID, currentUserID snowflake.ID) snowflake.ID {
	if currentUserID == ownerID {
		s.markUserPendingRecovery(ctx, ownerID)
		return 0
	}

	owner, err := s.users.FindByID(ctx, s.db, ownerID)
	if err != nil {
		s.log.Error("failed to load cart owner", zap.Int64("user_id", int64(ownerID)), zap.Error(err))
		return 0
	}
	if owner == nil || owner.Admin {
		return 0
	}

	s.markUserPendingRecovery(ctx, ownerID)
	return ownerID
}

func (s *Service) markUserPendingRecovery(ctx context.Context, userID snowflake.ID) {
	if err := s.gateway.MarkUserPendingRecovery(ctx, userID); err != nil {
		s.log.Error("failed to mark user pending recovery", zap.Int64("user_id", int64(userID)), zap.Error(err))
	}
}

// rebuildCart restores the session from the remote order's client session
// blob. An unchanged cart keeps its stored lines, but the companion state
// (discounts, customer, chosen gateway) is applied regardless.
func (s *Service) rebuildCart(ctx context.Context, sessionID string, userID snowflake.ID, remoteOrder *jilt.Order) cart.Snapshot {
	var clientSession cart.ClientSession
	if remoteOrder.ClientSession != "" {
		if err := json.Unmarshal([]byte(remoteOrder.ClientSession), &clientSession); err != nil {
			s.log.Warn("discarding malformed client session",
				zap.Int64("order_id", remoteOrder.ID),
				zap.Error(err),
			)
		}
	}

	snapshot := cart.Snapshot{
		Items:     clientSession.Cart,
		Discounts: clientSession.Discounts,
		Customer:  mergeCustomer(clientSession.Customer, remoteOrder.Customer),
	}
	if gw, ok := clientSession.Options[statestore.KeyGateway]; ok {
		snapshot.Gateway = gw
	}

	existing, err := s.cart.Get(ctx, sessionID)
	if err != nil {
		s.log.Error("failed to load existing cart", zap.Error(err))
	}
	// the hash guards the cart lines only; discounts, customer and options
	// are always rewritten
	if existing.Hash() == snapshot.Hash() {
		snapshot.Items = existing.Items
	}
	if err := s.cart.Replace(ctx, sessionID, snapshot); err != nil {
		s.log.Error("failed to rebuild cart", zap.Error(err))
	}

	corr := statestore.Correlation{CartToken: remoteOrder.CartToken, OrderID: remoteOrder.ID}
	if err := s.gateway.SetCorrelation(ctx, sessionID, userID, corr); err != nil {
		s.log.Error("failed to store correlation", zap.Error(err))
	}
	if err := s.gateway.SetPendingRecovery(ctx, sessionID, userID); err != nil {
		s.log.Error("failed to mark pending recovery", zap.Error(err))
	}

	return snapshot
}

// checkoutRedirect carries the remembered gateway into checkout when it is
// still enabled, plus any discount code from the link.
func (s *Service) checkoutRedirect(checkoutURL string, snapshot cart.Snapshot, discount string) string {
	query := url.Values{}
	if snapshot.Gateway != "" && s.holder.GatewayEnabled(snapshot.Gateway) {
		query.Set("payment-mode", snapshot.Gateway)
	}
	if discount != "" {
		query.Set("discount", discount)
	}
	if len(query) == 0 {
		return checkoutURL
	}
	return checkoutURL + "?" + query.Encode()
}

// mergeCustomer overlays the remote order's customer block on top of the
// session capture; the remote side wins on conflicts.
func mergeCustomer(session *cart.Customer, remote *jilt.Customer) *cart.Customer {
	if session == nil && remote == nil {
		return nil
	}
	merged := cart.Customer{}
	if session != nil {
		merged = *session
	}
	if remote != nil {
		if remote.CustomerID != 0 {
			merged.CustomerID = remote.CustomerID
		}
		if remote.Email != "" {
			merged.Email = remote.Email
		}
		if remote.FirstName != "" {
			merged.FirstName = remote.FirstName
		}
		if remote.LastName != "" {
			merged.LastName = remote.LastName
		}
		if remote.AdminURL != "" {
			merged.AdminURL = remote.AdminURL
		}
	}
	return &merged
}
