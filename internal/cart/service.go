package cart

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	discountdomain "github.com/smallbiznis/cartloop/internal/discount/domain"
	"github.com/smallbiznis/cartloop/internal/events"
	"github.com/smallbiznis/cartloop/internal/statestore"
)

var (
	ErrItemNotFound      = errors.New("item_not_found")
	ErrDiscountNotFound  = errors.New("discount_not_found")
	ErrDiscountNotUsable = errors.New("discount_not_usable")
)

// Totals is the cart priced out with discounts applied.
type Totals struct {
	Subtotal int64
	Discount int64
	Tax      int64
	Total    int64
}

type Params struct {
	fx.In

	Sessions  statestore.SessionStore
	Discounts discountdomain.Service
	Bus       *events.Bus
	Log       *zap.Logger
}

type Service struct {
	sessions  statestore.SessionStore
	discounts discountdomain.Service
	bus       *events.Bus
	log       *zap.Logger
}

func New(p Params) *Service {
	return &Service{
		sessions:  p.Sessions,
		discounts: p.Discounts,
		bus:       p.Bus,
		log:       p.Log.Named("cart.service"),
	}
}

var Module = fx.Module("cart.service",
	fx.Provide(New),
)

func (s *Service) Get(ctx context.Context, sessionID string) (Snapshot, error) {
	raw, err := s.sessions.Get(ctx, sessionID, statestore.KeyCart)
	if err != nil {
		return Snapshot{}, err
	}
	var snapshot Snapshot
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
			s.log.Warn("discarding malformed cart snapshot", zap.String("session_id", sessionID), zap.Error(err))
			snapshot = Snapshot{}
		}
	}
	return snapshot, nil
}

func (s *Service) AddItem(ctx context.Context, sessionID string, userID snowflake.ID, item Item) (Snapshot, error) {
	snapshot, err := s.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	replaced := false
	for i := range snapshot.Items {
		if snapshot.Items[i].Token == item.Token {
			snapshot.Items[i] = item
			replaced = true
			break
		}
	}
	if !replaced {
		snapshot.Items = append(snapshot.Items, item)
	}
	return s.saveAndPublish(ctx, sessionID, userID, snapshot)
}

func (s *Service) RemoveItem(ctx context.Context, sessionID string, userID snowflake.ID, token string) (Snapshot, error) {
	snapshot, err := s.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	kept := snapshot.Items[:0]
	found := false
	for _, item := range snapshot.Items {
		if item.Token == token {
			found = true
			continue
		}
		kept = append(kept, item)
	}
	if !found {
		return Snapshot{}, ErrItemNotFound
	}
	snapshot.Items = kept
	return s.saveAndPublish(ctx, sessionID, userID, snapshot)
}

func (s *Service) SetQuantity(ctx context.Context, sessionID string, userID snowflake.ID, token string, quantity int, lineTotal int64) (Snapshot, error) {
	snapshot, err := s.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	for i := range snapshot.Items {
		if snapshot.Items[i].Token == token {
			snapshot.Items[i].Quantity = quantity
			snapshot.Items[i].Price = lineTotal
			return s.saveAndPublish(ctx, sessionID, userID, snapshot)
		}
	}
	return Snapshot{}, ErrItemNotFound
}

func (s *Service) ApplyDiscount(ctx context.Context, sessionID string, userID snowflake.ID, code string) (Snapshot, error) {
	discount, err := s.discounts.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, discountdomain.ErrNotFound) {
			return Snapshot{}, ErrDiscountNotFound
		}
		return Snapshot{}, err
	}
	if !discount.Usable(time.Now().UTC()) {
		return Snapshot{}, ErrDiscountNotUsable
	}

	snapshot, err := s.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	for _, existing := range snapshot.Discounts {
		if existing == discount.Code {
			return snapshot, nil
		}
	}
	snapshot.Discounts = append(snapshot.Discounts, discount.Code)
	return s.saveAndPublish(ctx, sessionID, userID, snapshot)
}

func (s *Service) RemoveDiscount(ctx context.Context, sessionID string, userID snowflake.ID, code string) (Snapshot, error) {
	snapshot, err := s.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	kept := snapshot.Discounts[:0]
	for _, existing := range snapshot.Discounts {
		if existing == code {
			continue
		}
		kept = append(kept, existing)
	}
	snapshot.Discounts = kept
	return s.saveAndPublish(ctx, sessionID, userID, snapshot)
}

func (s *Service) SetCustomer(ctx context.Context, sessionID string, userID snowflake.ID, customer Customer) (Snapshot, error) {
	snapshot, err := s.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot.Customer = &customer
	return s.saveAndPublish(ctx, sessionID, userID, snapshot)
}

func (s *Service) SetGateway(ctx context.Context, sessionID string, userID snowflake.ID, gateway string) (Snapshot, error) {
	snapshot, err := s.Get(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot.Gateway = gateway
	return s.saveAndPublish(ctx, sessionID, userID, snapshot)
}

// Empty drops the cart and announces the emptied cart.
func (s *Service) Empty(ctx context.Context, sessionID string, userID snowflake.ID) error {
	if err := s.sessions.Delete(ctx, sessionID, statestore.KeyCart); err != nil {
		return err
	}
	s.bus.PublishCartEmptied(ctx, events.CartEvent{SessionID: sessionID, UserID: userID})
	return nil
}

// Replace overwrites the snapshot without announcing a mutation. Recovery
// rehydration uses it and decides itself when to trigger a sync.
func (s *Service) Replace(ctx context.Context, sessionID string, snapshot Snapshot) error {
	return s.save(ctx, sessionID, snapshot)
}

// Totals prices the snapshot, applying each discount to the running subtotal.
func (s *Service) Totals(ctx context.Context, snapshot Snapshot) (Totals, error) {
	totals := Totals{Subtotal: snapshot.Subtotal(), Tax: snapshot.Tax}
	remaining := totals.Subtotal
	now := time.Now().UTC()
	for _, code := range snapshot.Discounts {
		discount, err := s.discounts.GetByCode(ctx, code)
		if err != nil {
			if errors.Is(err, discountdomain.ErrNotFound) {
				continue
			}
			return Totals{}, err
		}
		if !discount.Usable(now) {
			continue
		}
		off := discount.AmountOff(remaining)
		totals.Discount += off
		remaining -= off
	}
	totals.Total = totals.Subtotal - totals.Discount + totals.Tax
	if totals.Total < 0 {
		totals.Total = 0
	}
	return totals, nil
}

// ClientSession serializes the session state blob attached to outbound order
// payloads.
func (s *Service) ClientSession(ctx context.Context, sessionID string) (string, error) {
	snapshot, err := s.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	session := ClientSession{
		Cart:      snapshot.Items,
		Customer:  snapshot.Customer,
		Discounts: snapshot.Discounts,
	}
	if snapshot.Gateway != "" {
		session.Options = map[string]string{statestore.KeyGateway: snapshot.Gateway}
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *Service) saveAndPublish(ctx context.Context, sessionID string, userID snowflake.ID, snapshot Snapshot) (Snapshot, error) {
	if snapshot.Empty() {
		if err := s.Empty(ctx, sessionID, userID); err != nil {
			return Snapshot{}, err
		}
		return snapshot, nil
	}
	if err := s.save(ctx, sessionID, snapshot); err != nil {
		return Snapshot{}, err
	}
	s.bus.PublishCartMutated(ctx, events.CartEvent{SessionID: sessionID, UserID: userID})
	return snapshot, nil
}

func (s *Service) save(ctx context.Context, sessionID string, snapshot Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return s.sessions.Set(ctx, sessionID, statestore.KeyCart, string(raw))
}
