package integration

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/cartloop/internal/config"
	"github.com/smallbiznis/cartloop/internal/integration/domain"
	"github.com/smallbiznis/cartloop/internal/integration/repository"
	"github.com/smallbiznis/cartloop/internal/integration/service"
	"github.com/smallbiznis/cartloop/internal/jilt"
)

var Module = fx.Module("integration.service",
	fx.Provide(repository.Provide),
	fx.Provide(fx.Annotate(NewCredentials, fx.As(new(jilt.CredentialSource)))),
	fx.Provide(NewAPIClient),
	fx.Provide(service.New),
	fx.Invoke(wireDeactivate),
)

func NewAPIClient(cfg config.Config, creds jilt.CredentialSource, log *zap.Logger) *jilt.Client {
	return jilt.NewClient(cfg.JiltHostname, creds, log)
}

func wireDeactivate(client *jilt.Client, svc domain.Service, log *zap.Logger) {
	client.SetDeactivateFunc(func(ctx context.Context) {
		if err := svc.MarkAccountCancelled(ctx); err != nil {
			log.Error("failed to disable integration", zap.Error(err))
		}
	})
}
