package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/cartloop/internal/config"
	"github.com/smallbiznis/cartloop/internal/integration/domain"
	"github.com/smallbiznis/cartloop/internal/jilt"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Client *jilt.Client
	Cfg    config.Config
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	repo   domain.Repository
	client *jilt.Client
	cfg    config.Config
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("integration.service"),
		genID:  p.GenID,
		repo:   p.Repo,
		client: p.Client,
		cfg:    p.Cfg,
	}
}

func (s *Service) Get(ctx context.Context) (domain.Settings, error) {
	settings, err := s.load(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	return *settings, nil
}

func (s *Service) SetSecretKey(ctx context.Context, req domain.SetSecretKeyRequest) (domain.Settings, error) {
	key := strings.TrimSpace(req.SecretKey)

	settings, err := s.load(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	if key == settings.SecretKey {
		return *settings, nil
	}

	if key == "" {
		return s.unlink(ctx, settings)
	}

	settings.SecretKey = key
	settings.PublicKey = ""
	settings.LinkedShopID = 0
	if err := settings.AppendStash(key); err != nil {
		return domain.Settings{}, err
	}
	if err := s.save(ctx, settings); err != nil {
		return domain.Settings{}, err
	}

	// the client reads credentials live, so validation exercises the new key
	user, err := s.client.GetUser(ctx)
	if err != nil {
		return *settings, domain.ErrInvalidKey
	}
	settings.PublicKey = user.PublicKey
	if err := s.save(ctx, settings); err != nil {
		return domain.Settings{}, err
	}

	if _, err := s.LinkShop(ctx); err != nil {
		return *settings, err
	}
	return s.Get(ctx)
}

// unlink clears the link locally first, then makes a best effort to remove
// the remote shop with the outgoing credentials.
func (s *Service) unlink(ctx context.Context, settings *domain.Settings) (domain.Settings, error) {
	shopID := settings.LinkedShopID

	if shopID != 0 {
		if err := s.client.DeleteShop(ctx, shopID); err != nil {
			s.log.Error("failed to delete remote shop", zap.Int64("shop_id", shopID), zap.Error(err))
		}
	}

	settings.SecretKey = ""
	settings.PublicKey = ""
	settings.LinkedShopID = 0
	if err := s.save(ctx, settings); err != nil {
		return domain.Settings{}, err
	}
	return *settings, nil
}

func (s *Service) LinkShop(ctx context.Context) (int64, error) {
	settings, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	if !settings.IsConfigured() {
		return 0, domain.ErrNotConfigured
	}

	params := s.shopParams(settings)

	shop, err := s.client.CreateShop(ctx, params)
	if err == nil {
		return s.saveLink(ctx, settings, shop.ID, params.Domain)
	}
	if !strings.Contains(err.Error(), "Domain has already been taken") {
		return 0, err
	}
	s.log.Error("remote shop create rejected, adopting existing shop", zap.Error(err))

	existing, err := s.client.FindShop(ctx, params.Domain)
	if err != nil {
		return 0, err
	}
	if existing == nil {
		// the shop may exist under an account this key cannot see
		return 0, domain.ErrShopNotFound
	}

	if _, err := s.client.UpdateShop(ctx, existing.ID, params); err != nil {
		s.log.Error("failed to refresh adopted shop", zap.Int64("shop_id", existing.ID), zap.Error(err))
	}

	return s.saveLink(ctx, settings, existing.ID, params.Domain)
}

func (s *Service) UpdateShop(ctx context.Context) error {
	settings, err := s.load(ctx)
	if err != nil {
		return err
	}
	if !settings.IsLinked() {
		return nil
	}
	_, err = s.client.UpdateShop(ctx, settings.LinkedShopID, s.shopParams(settings))
	return err
}

func (s *Service) Update(ctx context.Context, req domain.UpdateSettingsRequest) (domain.Settings, error) {
	settings, err := s.load(ctx)
	if err != nil {
		return domain.Settings{}, err
	}
	if req.Disabled != nil {
		settings.Disabled = *req.Disabled
	}
	if err := s.save(ctx, settings); err != nil {
		return domain.Settings{}, err
	}
	if settings.IsLinked() {
		if err := s.UpdateShop(ctx); err != nil {
			s.log.Error("failed to push shop profile", zap.Error(err))
		}
	}
	return *settings, nil
}

func (s *Service) MarkAccountCancelled(ctx context.Context) error {
	settings, err := s.load(ctx)
	if err != nil {
		return err
	}
	if settings.Disabled {
		return nil
	}
	settings.Disabled = true
	if err := s.save(ctx, settings); err != nil {
		return err
	}
	s.log.Warn("remote account cancelled, sync disabled")
	return nil
}

func (s *Service) IsOperational(ctx context.Context) bool {
	settings, err := s.load(ctx)
	if err != nil {
		s.log.Error("failed to load integration settings", zap.Error(err))
		return false
	}
	return settings.IsOperational()
}

func (s *Service) shopParams(settings *domain.Settings) jilt.ShopParams {
	return jilt.ShopParams{
		Domain:             s.cfg.ShopDomain,
		AdminURL:           s.cfg.AdminURL,
		ProfileType:        "edd",
		Name:               s.cfg.ShopName,
		Currency:           s.cfg.Currency,
		ProvinceCode:       s.cfg.ProvinceCode,
		CountryCode:        s.cfg.CountryCode,
		Timezone:           s.cfg.Timezone,
		IntegrationVersion: s.cfg.AppVersion,
		IntegrationEnabled: settings.IsLinked() && !settings.Disabled,
		SupportsSSL:        strings.HasPrefix(s.cfg.SiteURL, "https://"),
	}
}

func (s *Service) saveLink(ctx context.Context, settings *domain.Settings, shopID int64, shopDomain string) (int64, error) {
	settings.LinkedShopID = shopID
	settings.ShopDomain = shopDomain
	if err := s.save(ctx, settings); err != nil {
		return 0, err
	}
	return shopID, nil
}

func (s *Service) load(ctx context.Context) (*domain.Settings, error) {
	settings, err := s.repo.Get(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if settings == nil {
		now := time.Now().UTC()
		settings = &domain.Settings{
			ID:             s.genID.Generate(),
			SecretKeyStash: datatypes.JSON([]byte("[]")),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}
	return settings, nil
}

func (s *Service) save(ctx context.Context, settings *domain.Settings) error {
	settings.UpdatedAt = time.Now().UTC()
	return s.repo.Save(ctx, s.db, settings)
}
