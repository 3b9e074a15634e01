package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	cartsvc "github.com/smallbiznis/cartloop/internal/cart"
)

func (s *Server) GetCart(c *gin.Context) {
	ctx := c.Request.Context()
	snapshot, err := s.cartSvc.Get(ctx, SessionID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	totals, err := s.cartSvc.Totals(ctx, snapshot)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cart": snapshot,
		"totals": gin.H{
			"subtotal": totals.Subtotal,
			"discount": totals.Discount,
			"tax":      totals.Tax,
			"total":    totals.Total,
		},
	})
}

func (s *Server) AddCartItem(c *gin.Context) {
	var item cartsvc.Item
	if err := c.ShouldBindJSON(&item); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if item.ProductID == 0 || item.Quantity <= 0 || item.Title == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if item.Token == "" {
		item.Token = uuid.NewString()
	}

	snapshot, err := s.cartSvc.AddItem(c.Request.Context(), SessionID(c), s.currentUserID(c), item)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) UpdateCartItem(c *gin.Context) {
	var body struct {
		Quantity int   `json:"quantity"`
		Price    int64 `json:"price"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Quantity <= 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	snapshot, err := s.cartSvc.SetQuantity(c.Request.Context(), SessionID(c), s.currentUserID(c), c.Param("token"), body.Quantity, body.Price)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) RemoveCartItem(c *gin.Context) {
	snapshot, err := s.cartSvc.RemoveItem(c.Request.Context(), SessionID(c), s.currentUserID(c), c.Param("token"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) ApplyCartDiscount(c *gin.Context) {
	var body struct {
		Code string `json:"code"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Code == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	snapshot, err := s.cartSvc.ApplyDiscount(c.Request.Context(), SessionID(c), s.currentUserID(c), body.Code)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) RemoveCartDiscount(c *gin.Context) {
	snapshot, err := s.cartSvc.RemoveDiscount(c.Request.Context(), SessionID(c), s.currentUserID(c), c.Param("code"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) SetCartGateway(c *gin.Context) {
	var body struct {
		Gateway string `json:"gateway"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Gateway == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	snapshot, err := s.cartSvc.SetGateway(c.Request.Context(), SessionID(c), s.currentUserID(c), body.Gateway)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// SetCartCustomer captures guest contact details into the session. Logged-in
// visitors already have their identity; the capture is refused for them.
func (s *Server) SetCartCustomer(c *gin.Context) {
	if s.currentUserID(c) != 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	var customer cartsvc.Customer
	if err := c.ShouldBindJSON(&customer); err != nil || customer.Email == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	snapshot, err := s.cartSvc.SetCustomer(c.Request.Context(), SessionID(c), 0, customer)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) EmptyCart(c *gin.Context) {
	if err := s.cartSvc.Empty(c.Request.Context(), SessionID(c), s.currentUserID(c)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
