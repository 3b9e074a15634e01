package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/cartloop/internal/discount/domain"
	"github.com/smallbiznis/cartloop/pkg/db"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("discount.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateDiscountRequest) (domain.Discount, error) {
	var missing []string
	if strings.TrimSpace(req.Code) == "" {
		missing = append(missing, "code")
	}
	if req.JiltDiscountID == 0 {
		missing = append(missing, "discount_id")
	}
	if strings.TrimSpace(req.Name) == "" {
		missing = append(missing, "name")
	}
	if req.Type == "" {
		missing = append(missing, "type")
	}
	if req.Amount == 0 {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return domain.Discount{}, domain.NewMissingParamsError(missing)
	}

	if req.Type != domain.TypePercent && req.Type != domain.TypeFlat {
		return domain.Discount{}, domain.NewInvalidTypeError()
	}

	code := strings.TrimSpace(req.Code)
	existing, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return domain.Discount{}, err
	}
	if existing != nil {
		return domain.Discount{}, domain.ErrDuplicateCode
	}

	now := time.Now().UTC()
	discount := domain.Discount{
		ID:             s.genID.Generate(),
		Code:           code,
		Name:           strings.TrimSpace(req.Name),
		Type:           req.Type,
		Amount:         req.Amount,
		MinPrice:       req.MinPrice,
		UseOnce:        req.UseOnce,
		MaxUses:        req.MaxUses,
		Status:         domain.StatusActive,
		Expiration:     req.Expiration,
		JiltDiscountID: req.JiltDiscountID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, s.db, &discount); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Discount{}, domain.ErrDuplicateCode
		}
		return domain.Discount{}, err
	}

	return discount, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Discount, error) {
	discount, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Discount{}, err
	}
	if discount == nil {
		return domain.Discount{}, domain.ErrNotFound
	}
	return *discount, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (domain.Discount, error) {
	discount, err := s.repo.FindByCode(ctx, s.db, strings.TrimSpace(code))
	if err != nil {
		return domain.Discount{}, err
	}
	if discount == nil {
		return domain.Discount{}, domain.ErrNotFound
	}
	return *discount, nil
}

func (s *Service) RecordUse(ctx context.Context, code string) error {
	discount, err := s.repo.FindByCode(ctx, s.db, strings.TrimSpace(code))
	if err != nil {
		return err
	}
	if discount == nil {
		return domain.ErrNotFound
	}
	discount.Uses++
	discount.UpdatedAt = time.Now().UTC()
	return s.repo.Update(ctx, s.db, discount)
}
