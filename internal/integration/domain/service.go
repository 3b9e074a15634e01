package domain

import "context"

type SetSecretKeyRequest struct {
	SecretKey string
}

type UpdateSettingsRequest struct {
	Disabled *bool
}

type Service interface {
	Get(ctx context.Context) (Settings, error)

	// SetSecretKey validates and persists a new secret key, stashes the
	// previous one, refreshes the public key and relinks the shop. An empty
	// key unlinks the shop.
	SetSecretKey(ctx context.Context, req SetSecretKeyRequest) (Settings, error)

	// LinkShop creates or adopts the remote shop and returns its id.
	LinkShop(ctx context.Context) (int64, error)

	// UpdateShop pushes the latest shop profile to the remote side.
	UpdateShop(ctx context.Context) error

	Update(ctx context.Context, req UpdateSettingsRequest) (Settings, error)

	// MarkAccountCancelled disables sync after the remote side reports the
	// account as cancelled.
	MarkAccountCancelled(ctx context.Context) error

	IsOperational(ctx context.Context) bool
}
