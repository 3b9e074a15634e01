package statestore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// memSessionStore stands in for the Redis scope.
type memSessionStore struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{data: map[string]map[string]string{}}
}

func (s *memSessionStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[sessionID][key], nil
}

func (s *memSessionStore) Set(ctx context.Context, sessionID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[sessionID] == nil {
		s.data[sessionID] = map[string]string{}
	}
	s.data[sessionID][key] = value
	return nil
}

func (s *memSessionStore) Delete(ctx context.Context, sessionID string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data[sessionID], key)
	}
	return nil
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func setupGateway(t *testing.T) (*Gateway, *memSessionStore, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&UserMeta{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sessions := newMemSessionStore()
	users := NewGormUserStore(db, mustNode(t))
	return NewGateway(sessions, users, zap.NewNop()), sessions, db
}

func TestCorrelationSessionScopeWins(t *testing.T) {
	gateway, sessions, _ := setupGateway(t)
	ctx := context.Background()

	_ = sessions.Set(ctx, "s1", KeyCartToken, "tok-session")
	_ = sessions.Set(ctx, "s1", KeyOrderID, "11")

	corr, err := gateway.Correlation(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}
	if corr.CartToken != "tok-session" || corr.OrderID != 11 {
		t.Fatalf("unexpected correlation: %+v", corr)
	}
}

func TestCorrelationRehydratesFromUserMirror(t *testing.T) {
	gateway, sessions, _ := setupGateway(t)
	ctx := context.Background()
	userID := snowflake.ID(1234)

	// durable mirror set by a previous session, current session cold
	if err := gateway.SetCorrelation(ctx, "old-session", userID, Correlation{CartToken: "tok-user", OrderID: 7}); err != nil {
		t.Fatalf("set correlation: %v", err)
	}

	corr, err := gateway.Correlation(ctx, "new-session", userID)
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}
	if corr.CartToken != "tok-user" || corr.OrderID != 7 {
		t.Fatalf("expected mirror values, got %+v", corr)
	}

	// the session was rehydrated in passing
	tok, _ := sessions.Get(ctx, "new-session", KeyCartToken)
	if tok != "tok-user" {
		t.Fatalf("expected session rehydration, got %q", tok)
	}
}

func TestClearCorrelationClearsBothScopes(t *testing.T) {
	gateway, _, _ := setupGateway(t)
	ctx := context.Background()
	userID := snowflake.ID(55)

	if err := gateway.SetCorrelation(ctx, "s1", userID, Correlation{CartToken: "tok", OrderID: 3}); err != nil {
		t.Fatalf("set correlation: %v", err)
	}
	if err := gateway.ClearCorrelation(ctx, "s1", userID); err != nil {
		t.Fatalf("clear correlation: %v", err)
	}

	corr, err := gateway.Correlation(ctx, "s1", userID)
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}
	if !corr.Empty() {
		t.Fatalf("expected empty correlation, got %+v", corr)
	}
}

func TestPendingRecoveryFallsBackToUserScope(t *testing.T) {
	gateway, _, _ := setupGateway(t)
	ctx := context.Background()
	userID := snowflake.ID(9)

	if err := gateway.MarkUserPendingRecovery(ctx, userID); err != nil {
		t.Fatalf("mark pending: %v", err)
	}

	pending, err := gateway.PendingRecovery(ctx, "fresh-session", userID)
	if err != nil {
		t.Fatalf("pending recovery: %v", err)
	}
	if !pending {
		t.Fatal("expected pending recovery from user scope")
	}

	pending, err = gateway.PendingRecovery(ctx, "fresh-session", 0)
	if err != nil {
		t.Fatalf("pending recovery: %v", err)
	}
	if pending {
		t.Fatal("guest session should not see another user's flag")
	}
}

func TestStagedRecoveredPaymentRoundTrip(t *testing.T) {
	gateway, sessions, _ := setupGateway(t)
	ctx := context.Background()
	paymentID := mustNode(t).Generate()

	if err := gateway.StageRecoveredPayment(ctx, "s1", paymentID); err != nil {
		t.Fatalf("stage: %v", err)
	}
	got, err := gateway.StagedRecoveredPayment(ctx, "s1")
	if err != nil {
		t.Fatalf("read staged: %v", err)
	}
	if got != paymentID {
		t.Fatalf("expected %d, got %d", paymentID, got)
	}

	// malformed values are dropped rather than propagated
	_ = sessions.Set(ctx, "s1", KeyRecoveredPaymentID, "not-a-number")
	got, err = gateway.StagedRecoveredPayment(ctx, "s1")
	if err != nil {
		t.Fatalf("read staged: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected malformed value to read as 0, got %d", got)
	}
}

func TestMergeOnLoginSessionWins(t *testing.T) {
	gateway, sessions, _ := setupGateway(t)
	ctx := context.Background()
	userID := snowflake.ID(77)

	// user mirror has a stale correlation, session has a live one
	if err := gateway.SetCorrelation(ctx, "stale", userID, Correlation{CartToken: "old", OrderID: 1}); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}
	_ = sessions.Set(ctx, "s1", KeyCartToken, "live")
	_ = sessions.Set(ctx, "s1", KeyOrderID, "2")

	if err := gateway.MergeOnLogin(ctx, "s1", userID); err != nil {
		t.Fatalf("merge: %v", err)
	}

	corr, err := gateway.Correlation(ctx, "cold-session", userID)
	if err != nil {
		t.Fatalf("correlation: %v", err)
	}
	if corr.CartToken != "live" || corr.OrderID != 2 {
		t.Fatalf("expected session correlation mirrored down, got %+v", corr)
	}
}

func TestMergeOnLoginPullsUpMirror(t *testing.T) {
	gateway, sessions, _ := setupGateway(t)
	ctx := context.Background()
	userID := snowflake.ID(78)

	if err := gateway.SetCorrelation(ctx, "previous", userID, Correlation{CartToken: "mine", OrderID: 4}); err != nil {
		t.Fatalf("seed mirror: %v", err)
	}

	if err := gateway.MergeOnLogin(ctx, "s2", userID); err != nil {
		t.Fatalf("merge: %v", err)
	}

	tok, _ := sessions.Get(ctx, "s2", KeyCartToken)
	if tok != "mine" {
		t.Fatalf("expected mirror pulled into session, got %q", tok)
	}
}

func TestUserIDForCartToken(t *testing.T) {
	gateway, _, _ := setupGateway(t)
	ctx := context.Background()
	userID := snowflake.ID(31)

	if err := gateway.SetCorrelation(ctx, "s1", userID, Correlation{CartToken: "find-me", OrderID: 5}); err != nil {
		t.Fatalf("set correlation: %v", err)
	}

	got, err := gateway.UserIDForCartToken(ctx, "find-me")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != userID {
		t.Fatalf("expected %d, got %d", userID, got)
	}

	got, err = gateway.UserIDForCartToken(ctx, "unknown")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected 0 for unknown token, got %d", got)
	}
}
