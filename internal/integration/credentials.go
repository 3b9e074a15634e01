package integration

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/cartloop/internal/integration/domain"
)

// Credentials adapts the persisted settings row to the API client's
// credential lookups. Reads go straight to the repository so a key rotation
// is visible on the next request.
type Credentials struct {
	db   *gorm.DB
	repo domain.Repository
	log  *zap.Logger
}

func NewCredentials(db *gorm.DB, repo domain.Repository, log *zap.Logger) *Credentials {
	return &Credentials{db: db, repo: repo, log: log.Named("integration.credentials")}
}

func (c *Credentials) SecretKey(ctx context.Context) string {
	return c.settings(ctx).SecretKey
}

func (c *Credentials) LinkedShopID(ctx context.Context) int64 {
	return c.settings(ctx).LinkedShopID
}

func (c *Credentials) ShopDomain(ctx context.Context) string {
	return c.settings(ctx).ShopDomain
}

func (c *Credentials) settings(ctx context.Context) domain.Settings {
	settings, err := c.repo.Get(ctx, c.db)
	if err != nil {
		c.log.Error("failed to load credentials", zap.Error(err))
		return domain.Settings{}
	}
	if settings == nil {
		return domain.Settings{}
	}
	return *settings
}
