// Package migration keeps the schema current at startup.
package migration

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	discountdomain "github.com/smallbiznis/cartloop/internal/discount/domain"
	integrationdomain "github.com/smallbiznis/cartloop/internal/integration/domain"
	paymentdomain "github.com/smallbiznis/cartloop/internal/payment/domain"
	"github.com/smallbiznis/cartloop/internal/statestore"
	"github.com/smallbiznis/cartloop/internal/user"
)

var Module = fx.Module("migration",
	fx.Invoke(Run),
)

func Run(lc fx.Lifecycle, db *gorm.DB, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("running schema migration")
			return db.WithContext(ctx).AutoMigrate(
				&integrationdomain.Settings{},
				&paymentdomain.Payment{},
				&discountdomain.Discount{},
				&statestore.UserMeta{},
				&user.User{},
			)
		},
	})
}
