package recovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/cartloop/internal/cart"
	"github.com/smallbiznis/cartloop/internal/config"
	discountdomain "github.com/smallbiznis/cartloop/internal/discount/domain"
	"github.com/smallbiznis/cartloop/internal/events"
	integrationdomain "github.com/smallbiznis/cartloop/internal/integration/domain"
	"github.com/smallbiznis/cartloop/internal/jilt"
	paymentdomain "github.com/smallbiznis/cartloop/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/cartloop/internal/payment/repository"
	paymentservice "github.com/smallbiznis/cartloop/internal/payment/service"
	"github.com/smallbiznis/cartloop/internal/recovery/token"
	"github.com/smallbiznis/cartloop/internal/statestore"
	"github.com/smallbiznis/cartloop/internal/user"
)

const testSecret = "sk_test_secret"

type memSessions struct {
	data map[string]map[string]string
}

func newMemSessions() *memSessions {
	return &memSessions{data: map[string]map[string]string{}}
}

func (s *memSessions) Get(ctx context.Context, sessionID, key string) (string, error) {
	return s.data[sessionID][key], nil
}

func (s *memSessions) Set(ctx context.Context, sessionID, key, value string) error {
	if s.data[sessionID] == nil {
		s.data[sessionID] = map[string]string{}
	}
	s.data[sessionID][key] = value
	return nil
}

func (s *memSessions) Delete(ctx context.Context, sessionID string, keys ...string) error {
	for _, key := range keys {
		delete(s.data[sessionID], key)
	}
	return nil
}

type integrationStub struct {
	operational bool
}

func (i *integrationStub) Get(context.Context) (integrationdomain.Settings, error) {
	return integrationdomain.Settings{}, nil
}

func (i *integrationStub) SetSecretKey(context.Context, integrationdomain.SetSecretKeyRequest) (integrationdomain.Settings, error) {
	return integrationdomain.Settings{}, nil
}

func (i *integrationStub) LinkShop(context.Context) (int64, error) { return 0, nil }

func (i *integrationStub) UpdateShop(context.Context) error { return nil }

func (i *integrationStub) Update(context.Context, integrationdomain.UpdateSettingsRequest) (integrationdomain.Settings, error) {
	return integrationdomain.Settings{}, nil
}

func (i *integrationStub) MarkAccountCancelled(context.Context) error { return nil }

func (i *integrationStub) IsOperational(context.Context) bool { return i.operational }

type staticCreds struct{}

func (staticCreds) SecretKey(context.Context) string   { return testSecret }
func (staticCreds) LinkedShopID(context.Context) int64 { return 42 }
func (staticCreds) ShopDomain(context.Context) string  { return "shop.example.com" }

type discountStub struct{}

func (discountStub) Create(context.Context, discountdomain.CreateDiscountRequest) (discountdomain.Discount, error) {
	return discountdomain.Discount{}, nil
}

func (discountStub) GetByID(context.Context, snowflake.ID) (discountdomain.Discount, error) {
	return discountdomain.Discount{}, discountdomain.ErrNotFound
}

func (discountStub) GetByCode(context.Context, string) (discountdomain.Discount, error) {
	return discountdomain.Discount{}, discountdomain.ErrNotFound
}

func (discountStub) RecordUse(context.Context, string) error { return nil }

type fixture struct {
	svc      *Service
	gateway  *statestore.Gateway
	cartSvc  *cart.Service
	payments paymentdomain.Service
	db       *gorm.DB
	node     *snowflake.Node

	orders map[int64]jilt.Order
}

func setupRecovery(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{orders: map[int64]jilt.Order{}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id int64
		_, _ = fmt.Sscanf(r.URL.Path, "/orders/%d", &id)
		order, ok := f.orders[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"message":"Not found"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(order)
	}))
	t.Cleanup(srv.Close)

	client := jilt.NewClient("jilt.com", staticCreds{}, zap.NewNop())
	client.SetBaseURL(srv.URL)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&paymentdomain.Payment{}, &user.User{}, &statestore.UserMeta{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	gateway := statestore.NewGateway(newMemSessions(), statestore.NewGormUserStore(db, node), zap.NewNop())
	cartSvc := cart.New(cart.Params{
		Sessions:  gateway.Sessions(),
		Discounts: discountStub{},
		Bus:       events.NewBus(),
		Log:       zap.NewNop(),
	})
	payments := paymentservice.New(paymentservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  paymentrepo.Provide(),
		Bus:   events.NewBus(),
	})

	holder, err := config.NewRuntimeHolder()
	if err != nil {
		t.Fatalf("runtime holder: %v", err)
	}

	f.svc = New(Params{
		DB:          db,
		Gateway:     gateway,
		Cart:        cartSvc,
		Client:      client,
		Integration: &integrationStub{operational: true},
		Creds:       staticCreds{},
		Payments:    payments,
		Users:       user.Provide(),
		Cfg:         config.Config{SiteURL: "https://shop.example.com", Currency: "USD"},
		Holder:      holder,
		Log:         zap.NewNop(),
	})
	f.gateway = gateway
	f.cartSvc = cartSvc
	f.payments = payments
	f.db = db
	f.node = node
	return f
}

func (f *fixture) signedLink(t *testing.T, orderID int64, cartToken string) (string, string) {
	t.Helper()
	tok, hash, err := token.Encode(orderID, cartToken, testSecret)
	if err != nil {
		t.Fatalf("encode token: %v", err)
	}
	return tok, hash
}

func (f *fixture) seedRemoteOrder(orderID int64, cartToken string, session *cart.ClientSession) {
	order := jilt.Order{ID: orderID, CartToken: cartToken}
	if session != nil {
		raw, _ := json.Marshal(session)
		order.ClientSession = string(raw)
	}
	f.orders[orderID] = order
}

func TestRecoverRejectsInvalidSignature(t *testing.T) {
	f := setupRecovery(t)
	tok, _ := f.signedLink(t, 55, "tok-1")

	result := f.svc.Recover(context.Background(), RecoverRequest{
		SessionID: "s1",
		Token:     tok,
		Hash:      "deadbeef",
	})

	assert.Equal(t, "https://shop.example.com/", result.RedirectURL)
	assert.Zero(t, result.LoginUserID)
}

func TestRecoverWhileIntegrationInactive(t *testing.T) {
	f := setupRecovery(t)
	f.svc.integration = &integrationStub{operational: false}
	tok, hash := f.signedLink(t, 55, "tok-1")

	result := f.svc.Recover(context.Background(), RecoverRequest{SessionID: "s1", Token: tok, Hash: hash})

	assert.Equal(t, "https://shop.example.com/", result.RedirectURL)
}

func TestRecoverFallsBackToCheckoutWhenOrderGone(t *testing.T) {
	f := setupRecovery(t)
	tok, hash := f.signedLink(t, 404404, "tok-1")

	result := f.svc.Recover(context.Background(), RecoverRequest{SessionID: "s1", Token: tok, Hash: hash})

	assert.Equal(t, "https://shop.example.com/checkout", result.RedirectURL)
}

func TestRecoverRebuildsCartFromClientSession(t *testing.T) {
	f := setupRecovery(t)
	ctx := context.Background()

	f.seedRemoteOrder(55, "tok-1", &cart.ClientSession{
		Cart: []cart.Item{{ProductID: 1, Title: "Widget", Quantity: 2, Price: 2000, Token: "a"}},
		Customer: &cart.Customer{
			Email:     "shopper@example.com",
			FirstName: "Sam",
		},
		Options: map[string]string{statestore.KeyGateway: "stripe"},
	})
	tok, hash := f.signedLink(t, 55, "tok-1")

	result := f.svc.Recover(ctx, RecoverRequest{SessionID: "s1", Token: tok, Hash: hash})

	assert.Equal(t, "https://shop.example.com/checkout?payment-mode=stripe", result.RedirectURL)

	snapshot, err := f.cartSvc.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, snapshot.Items, 1)
	assert.Equal(t, "Widget", snapshot.Items[0].Title)
	require.NotNil(t, snapshot.Customer)
	assert.Equal(t, "shopper@example.com", snapshot.Customer.Email)
	assert.Equal(t, "stripe", snapshot.Gateway)

	corr, err := f.gateway.Correlation(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Equal(t, statestore.Correlation{CartToken: "tok-1", OrderID: 55}, corr)

	pending, err := f.gateway.PendingRecovery(ctx, "s1", 0)
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestRecoverUnchangedCartStillAppliesCompanionState(t *testing.T) {
	f := setupRecovery(t)
	ctx := context.Background()

	items := []cart.Item{{ProductID: 1, Title: "Widget", Quantity: 2, Price: 2000, Token: "a"}}
	require.NoError(t, f.cartSvc.Replace(ctx, "s1", cart.Snapshot{
		Items:    items,
		Customer: &cart.Customer{Email: "stale@example.com"},
	}))

	f.seedRemoteOrder(55, "tok-1", &cart.ClientSession{
		Cart:      items,
		Customer:  &cart.Customer{Email: "shopper@example.com"},
		Discounts: []string{"SAVE15"},
		Options:   map[string]string{statestore.KeyGateway: "stripe"},
	})
	tok, hash := f.signedLink(t, 55, "tok-1")

	result := f.svc.Recover(ctx, RecoverRequest{SessionID: "s1", Token: tok, Hash: hash})

	// an unchanged cart must not suppress discounts, customer or gateway
	assert.Equal(t, "https://shop.example.com/checkout?payment-mode=stripe", result.RedirectURL)

	snapshot, err := f.cartSvc.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, snapshot.Items, 1)
	assert.Equal(t, []string{"SAVE15"}, snapshot.Discounts)
	assert.Equal(t, "stripe", snapshot.Gateway)
	require.NotNil(t, snapshot.Customer)
	assert.Equal(t, "shopper@example.com", snapshot.Customer.Email)
}

func TestRecoverDisabledGatewayNotPreselected(t *testing.T) {
	f := setupRecovery(t)

	f.seedRemoteOrder(55, "tok-1", &cart.ClientSession{
		Cart:    []cart.Item{{ProductID: 1, Title: "Widget", Quantity: 1, Price: 100, Token: "a"}},
		Options: map[string]string{statestore.KeyGateway: "legacy-gateway"},
	})
	tok, hash := f.signedLink(t, 55, "tok-1")

	result := f.svc.Recover(context.Background(), RecoverRequest{SessionID: "s1", Token: tok, Hash: hash})

	assert.Equal(t, "https://shop.example.com/checkout", result.RedirectURL)
}

func TestRecoverCarriesDiscountCode(t *testing.T) {
	f := setupRecovery(t)

	f.seedRemoteOrder(55, "tok-1", &cart.ClientSession{
		Cart: []cart.Item{{ProductID: 1, Title: "Widget", Quantity: 1, Price: 100, Token: "a"}},
	})
	tok, hash := f.signedLink(t, 55, "tok-1")

	result := f.svc.Recover(context.Background(), RecoverRequest{
		SessionID: "s1",
		Token:     tok,
		Hash:      hash,
		Discount:  "SAVE15",
	})

	assert.Equal(t, "https://shop.example.com/checkout?discount=SAVE15", result.RedirectURL)
}

func TestRecoverEmptyRemoteCartRedirectsToCheckout(t *testing.T) {
	f := setupRecovery(t)

	f.seedRemoteOrder(55, "tok-1", nil)
	tok, hash := f.signedLink(t, 55, "tok-1")

	result := f.svc.Recover(context.Background(), RecoverRequest{SessionID: "s1", Token: tok, Hash: hash})

	assert.Equal(t, "https://shop.example.com/checkout", result.RedirectURL)
}

func TestRecoverCompletedPaymentRedirectsToReceipt(t *testing.T) {
	f := setupRecovery(t)
	ctx := context.Background()

	payment, err := f.payments.Create(ctx, paymentdomain.CreatePaymentRequest{
		Email:    "shopper@example.com",
		Gateway:  "stripe",
		Currency: "USD",
		Total:    2000,
		Subtotal: 2000,
		Items:    []paymentdomain.PaymentItem{{Title: "Widget", ProductID: 1, Quantity: 1, Price: 2000, Token: "a"}},
	})
	require.NoError(t, err)
	payment.Metadata[paymentdomain.MetaCartToken] = "tok-1"
	require.NoError(t, f.payments.Save(ctx, &payment))
	_, err = f.payments.UpdateStatus(ctx, paymentdomain.UpdateStatusRequest{ID: payment.ID, NewStatus: paymentdomain.StatusPublish})
	require.NoError(t, err)

	f.seedRemoteOrder(55, "tok-1", nil)
	tok, hash := f.signedLink(t, 55, "tok-1")

	result := f.svc.Recover(ctx, RecoverRequest{SessionID: "s1", Token: tok, Hash: hash})

	assert.Equal(t, fmt.Sprintf("https://shop.example.com/receipt?payment_id=%d", payment.ID), result.RedirectURL)
}

func TestRecoverPendingPaymentIsStagedForReconciliation(t *testing.T) {
	f := setupRecovery(t)
	ctx := context.Background()

	payment, err := f.payments.Create(ctx, paymentdomain.CreatePaymentRequest{
		Email:    "shopper@example.com",
		Gateway:  "stripe",
		Currency: "USD",
		Total:    2000,
		Subtotal: 2000,
		Items:    []paymentdomain.PaymentItem{{Title: "Widget", ProductID: 1, Quantity: 1, Price: 2000, Token: "a"}},
	})
	require.NoError(t, err)
	payment.Metadata[paymentdomain.MetaCartToken] = "tok-1"
	require.NoError(t, f.payments.Save(ctx, &payment))

	f.seedRemoteOrder(55, "tok-1", &cart.ClientSession{
		Cart: []cart.Item{{ProductID: 1, Title: "Widget", Quantity: 1, Price: 2000, Token: "a"}},
	})
	tok, hash := f.signedLink(t, 55, "tok-1")

	result := f.svc.Recover(ctx, RecoverRequest{SessionID: "s1", Token: tok, Hash: hash})

	// the visit continues into checkout, with the original staged
	assert.Equal(t, "https://shop.example.com/checkout", result.RedirectURL)

	staged, err := f.gateway.StagedRecoveredPayment(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, payment.ID, staged)

	noted, err := f.payments.GetByID(ctx, payment.ID)
	require.NoError(t, err)
	notes := noted.NoteList()
	require.NotEmpty(t, notes)
	assert.Equal(t, "Customer visited Jilt order recovery URL.", notes[len(notes)-1].Body)
}

func seedUser(t *testing.T, f *fixture, admin bool) snowflake.ID {
	t.Helper()
	u := user.User{
		ID:    f.node.Generate(),
		Email: fmt.Sprintf("owner-%d@example.com", f.node.Generate()),
		Admin: admin,
	}
	if err := f.db.Create(&u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u.ID
}

func TestRecoverLogsOwnerIn(t *testing.T) {
	f := setupRecovery(t)
	ctx := context.Background()
	ownerID := seedUser(t, f, false)

	// the owner's durable mirror remembers the cart token
	require.NoError(t, f.gateway.SetCorrelation(ctx, "owner-session", ownerID, statestore.Correlation{CartToken: "tok-1", OrderID: 55}))

	f.seedRemoteOrder(55, "tok-1", &cart.ClientSession{
		Cart: []cart.Item{{ProductID: 1, Title: "Widget", Quantity: 1, Price: 100, Token: "a"}},
	})
	tok, hash := f.signedLink(t, 55, "tok-1")

	result := f.svc.Recover(ctx, RecoverRequest{SessionID: "s-new", Token: tok, Hash: hash})

	assert.Equal(t, ownerID, result.LoginUserID)

	pending, err := f.gateway.PendingRecovery(ctx, "other-session", ownerID)
	require.NoError(t, err)
	assert.True(t, pending, "expected the pending flag in the durable scope")
}

func TestRecoverNeverLogsAdminIn(t *testing.T) {
	f := setupRecovery(t)
	ctx := context.Background()
	adminID := seedUser(t, f, true)

	require.NoError(t, f.gateway.SetCorrelation(ctx, "admin-session", adminID, statestore.Correlation{CartToken: "tok-1", OrderID: 55}))

	f.seedRemoteOrder(55, "tok-1", &cart.ClientSession{
		Cart: []cart.Item{{ProductID: 1, Title: "Widget", Quantity: 1, Price: 100, Token: "a"}},
	})
	tok, hash := f.signedLink(t, 55, "tok-1")

	result := f.svc.Recover(ctx, RecoverRequest{SessionID: "s-new", Token: tok, Hash: hash})

	assert.Zero(t, result.LoginUserID)
	// the cart itself is still recovered
	snapshot, err := f.cartSvc.Get(ctx, "s-new")
	require.NoError(t, err)
	assert.False(t, snapshot.Empty())
}

func TestRecoverAlreadyLoggedInOwnerSkipsLogin(t *testing.T) {
	f := setupRecovery(t)
	ctx := context.Background()
	ownerID := seedUser(t, f, false)

	require.NoError(t, f.gateway.SetCorrelation(ctx, "owner-session", ownerID, statestore.Correlation{CartToken: "tok-1", OrderID: 55}))

	f.seedRemoteOrder(55, "tok-1", &cart.ClientSession{
		Cart: []cart.Item{{ProductID: 1, Title: "Widget", Quantity: 1, Price: 100, Token: "a"}},
	})
	tok, hash := f.signedLink(t, 55, "tok-1")

	result := f.svc.Recover(ctx, RecoverRequest{
		SessionID:     "s-new",
		Token:         tok,
		Hash:          hash,
		CurrentUserID: ownerID,
	})

	assert.Zero(t, result.LoginUserID)
}

func TestRecoverOwnedCartRejectsMismatchedToken(t *testing.T) {
	f := setupRecovery(t)
	ctx := context.Background()
	ownerID := seedUser(t, f, false)

	require.NoError(t, f.gateway.SetCorrelation(ctx, "owner-session", ownerID, statestore.Correlation{CartToken: "tok-guessed", OrderID: 55}))

	// the remote order carries a different token than the link claims
	f.seedRemoteOrder(55, "tok-real", &cart.ClientSession{
		Cart: []cart.Item{{ProductID: 1, Title: "Widget", Quantity: 1, Price: 100, Token: "a"}},
	})
	tok, hash := f.signedLink(t, 55, "tok-guessed")

	result := f.svc.Recover(ctx, RecoverRequest{SessionID: "s-new", Token: tok, Hash: hash})

	assert.Equal(t, "https://shop.example.com/", result.RedirectURL)

	snapshot, err := f.cartSvc.Get(ctx, "s-new")
	require.NoError(t, err)
	assert.True(t, snapshot.Empty(), "a mismatched token must not rebuild the cart")
}
