package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	cartsvc "github.com/smallbiznis/cartloop/internal/cart"
	paymentdomain "github.com/smallbiznis/cartloop/internal/payment/domain"
	"github.com/smallbiznis/cartloop/internal/statestore"
)

// Checkout turns the session cart into a pending payment. The payment service
// announces the insertion, which moves the remote order into its placed
// state and retires the session correlation.
func (s *Server) Checkout(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := SessionID(c)
	userID := s.currentUserID(c)

	var body struct {
		Gateway   string `json:"gateway"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	snapshot, err := s.cartSvc.Get(ctx, sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	totals, err := s.cartSvc.Totals(ctx, snapshot)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	req := paymentdomain.CreatePaymentRequest{
		SessionID: sessionID,
		UserID:    userID,
		Email:     body.Email,
		FirstName: body.FirstName,
		LastName:  body.LastName,
		Gateway:   body.Gateway,
		Currency:  s.cfg.Currency,
		Total:     totals.Total,
		Subtotal:  totals.Subtotal,
		Tax:       totals.Tax,
		Discount:  totals.Discount,
		Items:     paymentItems(snapshot.Items),
	}
	if req.Gateway == "" {
		req.Gateway = snapshot.Gateway
	}
	if snapshot.Customer != nil {
		if req.Email == "" {
			req.Email = snapshot.Customer.Email
		}
		if req.FirstName == "" {
			req.FirstName = snapshot.Customer.FirstName
		}
		if req.LastName == "" {
			req.LastName = snapshot.Customer.LastName
		}
		req.CustomerID = snapshot.Customer.CustomerID
	}

	payment, err := s.paymentSvc.Create(ctx, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	// checkout consumed the cart
	if err := s.cartSvc.Empty(ctx, sessionID, userID); err != nil {
		s.log.Error("failed to empty cart after checkout", zap.Error(err))
	}

	c.JSON(http.StatusCreated, payment)
}

// SessionLogin attaches a user to the session and reconciles the cart
// correlation between the session and the user's durable mirror.
func (s *Server) SessionLogin(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := SessionID(c)

	var body struct {
		UserID string `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.UserID == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	userID, err := snowflake.ParseString(body.UserID)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	u, err := s.users.FindByID(ctx, s.db, userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if u == nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.gateway.Sessions().Set(ctx, sessionID, statestore.KeyUserID, userID.String()); err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.gateway.MergeOnLogin(ctx, sessionID, userID); err != nil {
		AbortWithError(c, err)
		return
	}

	// populate the session customer record and let the cart announce itself
	snapshot, err := s.cartSvc.Get(ctx, sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !snapshot.Empty() {
		if _, err := s.cartSvc.SetCustomer(ctx, sessionID, userID, cartsvc.Customer{
			Email:     u.Email,
			FirstName: u.FirstName,
			LastName:  u.LastName,
		}); err != nil {
			AbortWithError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func paymentItems(items []cartsvc.Item) []paymentdomain.PaymentItem {
	var out []paymentdomain.PaymentItem
	for _, item := range items {
		out = append(out, paymentdomain.PaymentItem{
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
	return out
}
