package statestore

import (
	"context"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

// Gateway layers the typed operations the engines need over the two raw
// key-value scopes. Logged-in users get every correlation write mirrored to
// the durable scope; guests live in the session alone.
type Gateway struct {
	sessions SessionStore
	users    UserStore
	log      *zap.Logger
}

func NewGateway(sessions SessionStore, users UserStore, log *zap.Logger) *Gateway {
	return &Gateway{
		sessions: sessions,
		users:    users,
		log:      log.Named("statestore.gateway"),
	}
}

// Sessions exposes the raw session scope for cart snapshot storage.
func (g *Gateway) Sessions() SessionStore { return g.sessions }

// Correlation reads the cart token and order id, session scope first. When
// the session is cold and the visitor is logged in, the durable mirror is
// consulted and the session rehydrated from it.
func (g *Gateway) Correlation(ctx context.Context, sessionID string, userID snowflake.ID) (Correlation, error) {
	token, err := g.sessions.Get(ctx, sessionID, KeyCartToken)
	if err != nil {
		return Correlation{}, err
	}
	rawOrderID, err := g.sessions.Get(ctx, sessionID, KeyOrderID)
	if err != nil {
		return Correlation{}, err
	}
	corr := Correlation{CartToken: token, OrderID: parseOrderID(rawOrderID)}
	if !corr.Empty() || userID == 0 {
		return corr, nil
	}

	token, err = g.users.Get(ctx, userID, KeyCartToken)
	if err != nil {
		return Correlation{}, err
	}
	rawOrderID, err = g.users.Get(ctx, userID, KeyOrderID)
	if err != nil {
		return Correlation{}, err
	}
	corr = Correlation{CartToken: token, OrderID: parseOrderID(rawOrderID)}
	if corr.Empty() {
		return corr, nil
	}
	if err := g.writeCorrelation(ctx, g.sessionWriter(sessionID), corr); err != nil {
		return Correlation{}, err
	}
	return corr, nil
}

func (g *Gateway) SetCorrelation(ctx context.Context, sessionID string, userID snowflake.ID, corr Correlation) error {
	if err := g.writeCorrelation(ctx, g.sessionWriter(sessionID), corr); err != nil {
		return err
	}
	if userID != 0 {
		return g.writeCorrelation(ctx, g.userWriter(userID), corr)
	}
	return nil
}

func (g *Gateway) ClearCorrelation(ctx context.Context, sessionID string, userID snowflake.ID) error {
	if err := g.sessions.Delete(ctx, sessionID, KeyCartToken, KeyOrderID); err != nil {
		return err
	}
	if userID != 0 {
		return g.users.Delete(ctx, userID, KeyCartToken, KeyOrderID)
	}
	return nil
}

func (g *Gateway) PendingRecovery(ctx context.Context, sessionID string, userID snowflake.ID) (bool, error) {
	val, err := g.sessions.Get(ctx, sessionID, KeyPendingRecovery)
	if err != nil {
		return false, err
	}
	if val == "" && userID != 0 {
		val, err = g.users.Get(ctx, userID, KeyPendingRecovery)
		if err != nil {
			return false, err
		}
	}
	return val == "1", nil
}

func (g *Gateway) SetPendingRecovery(ctx context.Context, sessionID string, userID snowflake.ID) error {
	if err := g.sessions.Set(ctx, sessionID, KeyPendingRecovery, "1"); err != nil {
		return err
	}
	if userID != 0 {
		return g.users.Set(ctx, userID, KeyPendingRecovery, "1")
	}
	return nil
}

// MarkUserPendingRecovery flags only the durable scope, for when the session
// that will carry the recovery is not the current one.
func (g *Gateway) MarkUserPendingRecovery(ctx context.Context, userID snowflake.ID) error {
	return g.users.Set(ctx, userID, KeyPendingRecovery, "1")
}

func (g *Gateway) ClearPendingRecovery(ctx context.Context, sessionID string, userID snowflake.ID) error {
	if err := g.sessions.Delete(ctx, sessionID, KeyPendingRecovery); err != nil {
		return err
	}
	if userID != 0 {
		return g.users.Delete(ctx, userID, KeyPendingRecovery)
	}
	return nil
}

// StageRecoveredPayment records the original payment a recovered checkout
// should reconcile against. The value only ever lives in the session.
func (g *Gateway) StageRecoveredPayment(ctx context.Context, sessionID string, paymentID snowflake.ID) error {
	return g.sessions.Set(ctx, sessionID, KeyRecoveredPaymentID, paymentID.String())
}

func (g *Gateway) StagedRecoveredPayment(ctx context.Context, sessionID string) (snowflake.ID, error) {
	val, err := g.sessions.Get(ctx, sessionID, KeyRecoveredPaymentID)
	if err != nil || val == "" {
		return 0, err
	}
	id, err := snowflake.ParseString(val)
	if err != nil {
		g.log.Warn("discarding malformed staged payment id", zap.String("value", val))
		return 0, nil
	}
	return id, nil
}

func (g *Gateway) ClearStagedRecoveredPayment(ctx context.Context, sessionID string) error {
	return g.sessions.Delete(ctx, sessionID, KeyRecoveredPaymentID)
}

func (g *Gateway) UserIDForCartToken(ctx context.Context, cartToken string) (snowflake.ID, error) {
	return g.users.FindUserByValue(ctx, KeyCartToken, cartToken)
}

// MergeOnLogin reconciles the two scopes when a guest session gains a user.
// A live session correlation wins and is mirrored down; otherwise the durable
// values are pulled up into the session.
func (g *Gateway) MergeOnLogin(ctx context.Context, sessionID string, userID snowflake.ID) error {
	token, err := g.sessions.Get(ctx, sessionID, KeyCartToken)
	if err != nil {
		return err
	}
	rawOrderID, err := g.sessions.Get(ctx, sessionID, KeyOrderID)
	if err != nil {
		return err
	}
	corr := Correlation{CartToken: token, OrderID: parseOrderID(rawOrderID)}
	if !corr.Empty() {
		return g.writeCorrelation(ctx, g.userWriter(userID), corr)
	}
	_, err = g.Correlation(ctx, sessionID, userID)
	return err
}

type kvWriter func(ctx context.Context, key, value string) error

func (g *Gateway) sessionWriter(sessionID string) kvWriter {
	return func(ctx context.Context, key, value string) error {
		return g.sessions.Set(ctx, sessionID, key, value)
	}
}

func (g *Gateway) userWriter(userID snowflake.ID) kvWriter {
	return func(ctx context.Context, key, value string) error {
		return g.users.Set(ctx, userID, key, value)
	}
}

func (g *Gateway) writeCorrelation(ctx context.Context, write kvWriter, corr Correlation) error {
	if err := write(ctx, KeyCartToken, corr.CartToken); err != nil {
		return err
	}
	return write(ctx, KeyOrderID, strconv.FormatInt(corr.OrderID, 10))
}

func parseOrderID(raw string) int64 {
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}
