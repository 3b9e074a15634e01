package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/cartloop/internal/events"
	"github.com/smallbiznis/cartloop/internal/payment/domain"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Bus   *events.Bus
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	bus   *events.Bus
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("payment.service"),
		genID: p.GenID,
		repo:  p.Repo,
		bus:   p.Bus,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreatePaymentRequest) (domain.Payment, error) {
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Payment{}, domain.ErrInvalidEmail
	}
	if strings.TrimSpace(req.Gateway) == "" {
		return domain.Payment{}, domain.ErrInvalidGateway
	}
	if len(req.Items) == 0 {
		return domain.Payment{}, domain.ErrEmptyCart
	}

	now := time.Now().UTC()
	payment := domain.Payment{
		ID:         s.genID.Generate(),
		UserID:     req.UserID,
		CustomerID: req.CustomerID,
		Email:      email,
		FirstName:  strings.TrimSpace(req.FirstName),
		LastName:   strings.TrimSpace(req.LastName),
		Gateway:    req.Gateway,
		Status:     domain.StatusPending,
		Currency:   req.Currency,
		Total:      req.Total,
		Subtotal:   req.Subtotal,
		Tax:        req.Tax,
		Discount:   req.Discount,
		Metadata:   datatypes.JSONMap{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	payment.Number = fmt.Sprintf("EDD-%d", payment.ID)
	if err := payment.SetItems(req.Items); err != nil {
		return domain.Payment{}, err
	}

	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return domain.Payment{}, err
	}

	s.bus.PublishPaymentInserted(ctx, events.PaymentEvent{
		PaymentID: payment.ID,
		SessionID: req.SessionID,
		UserID:    req.UserID,
		NewStatus: payment.Status,
	})

	// handlers may have stamped metadata on the row
	return s.GetByID(ctx, payment.ID)
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Payment, error) {
	payment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment == nil {
		return domain.Payment{}, domain.ErrNotFound
	}
	return *payment, nil
}

func (s *Service) UpdateStatus(ctx context.Context, req domain.UpdateStatusRequest) (domain.Payment, error) {
	if !domain.ValidStatus(req.NewStatus) {
		return domain.Payment{}, domain.ErrInvalidStatus
	}

	payment, err := s.repo.FindByID(ctx, s.db, req.ID)
	if err != nil {
		return domain.Payment{}, err
	}
	if payment == nil {
		return domain.Payment{}, domain.ErrNotFound
	}

	oldStatus := payment.Status
	if oldStatus == req.NewStatus {
		return *payment, nil
	}

	payment.Status = req.NewStatus
	now := time.Now().UTC()
	if payment.IsComplete() && payment.CompletedAt == nil {
		payment.CompletedAt = &now
	}
	payment.UpdatedAt = now

	if err := s.repo.Update(ctx, s.db, payment); err != nil {
		return domain.Payment{}, err
	}

	s.log.Info("payment status changed",
		zap.Int64("payment_id", int64(payment.ID)),
		zap.String("old_status", oldStatus),
		zap.String("new_status", payment.Status),
	)

	s.bus.PublishPaymentStatusChanged(ctx, events.PaymentEvent{
		PaymentID: payment.ID,
		SessionID: req.SessionID,
		UserID:    payment.UserID,
		OldStatus: oldStatus,
		NewStatus: payment.Status,
	})

	return s.GetByID(ctx, payment.ID)
}

func (s *Service) AddNote(ctx context.Context, id snowflake.ID, body string) error {
	payment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return err
	}
	if payment == nil {
		return domain.ErrNotFound
	}
	if err := payment.AppendNote(body, time.Now().UTC()); err != nil {
		return err
	}
	return s.Save(ctx, payment)
}

func (s *Service) Save(ctx context.Context, payment *domain.Payment) error {
	payment.UpdatedAt = time.Now().UTC()
	return s.repo.Update(ctx, s.db, payment)
}

func (s *Service) FindByCartToken(ctx context.Context, cartToken string) (*domain.Payment, error) {
	if cartToken == "" {
		return nil, nil
	}
	return s.repo.FindByCartToken(ctx, s.db, cartToken)
}
