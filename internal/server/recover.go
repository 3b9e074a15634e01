package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smallbiznis/cartloop/internal/recovery"
	"github.com/smallbiznis/cartloop/internal/statestore"
)

// Recover handles a recovery link visit. The outcome is always a redirect;
// the recovery service decides where.
func (s *Server) Recover(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := SessionID(c)

	result := s.recoverySvc.Recover(ctx, recovery.RecoverRequest{
		SessionID:     sessionID,
		Token:         c.Query("token"),
		Hash:          c.Query("hash"),
		Discount:      c.Query("discount"),
		CurrentUserID: s.currentUserID(c),
	})

	if result.LoginUserID != 0 {
		if err := s.gateway.Sessions().Set(ctx, sessionID, statestore.KeyUserID, result.LoginUserID.String()); err != nil {
			s.log.Error("failed to log user in", zap.Int64("user_id", int64(result.LoginUserID)), zap.Error(err))
		}
	}

	c.Redirect(http.StatusFound, result.RedirectURL)
}

// currentUserID reads the logged-in user for this session, zero for guests.
func (s *Server) currentUserID(c *gin.Context) snowflake.ID {
	raw, err := s.gateway.Sessions().Get(c.Request.Context(), SessionID(c), statestore.KeyUserID)
	if err != nil || raw == "" {
		return 0
	}
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0
	}
	return id
}
