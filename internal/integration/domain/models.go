package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Settings is the single persisted row describing the remote account link.
// SecretKeyStash retains every secret key ever configured; recovery link
// validation uses the current key only.
type Settings struct {
	ID             snowflake.ID   `gorm:"primaryKey" json:"id"`
	SecretKey      string         `gorm:"not null;default:''" json:"secret_key,omitempty"`
	PublicKey      string         `gorm:"not null;default:''" json:"public_key,omitempty"`
	LinkedShopID   int64          `gorm:"not null;default:0" json:"linked_shop_id"`
	ShopDomain     string         `gorm:"not null;default:''" json:"shop_domain"`
	Disabled       bool           `gorm:"not null;default:false" json:"disabled"`
	SecretKeyStash datatypes.JSON `gorm:"not null;default:'[]'" json:"-"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Settings) TableName() string {
	return "integration_settings"
}

func (s *Settings) IsConfigured() bool {
	return s != nil && s.SecretKey != ""
}

func (s *Settings) IsLinked() bool {
	return s != nil && s.LinkedShopID != 0
}

// IsOperational reports whether sync traffic should flow at all.
func (s *Settings) IsOperational() bool {
	return s.IsConfigured() && s.IsLinked() && !s.Disabled
}

// Stash decodes the secret key stash, tolerating a corrupt column.
func (s *Settings) Stash() []string {
	if s == nil || len(s.SecretKeyStash) == 0 {
		return nil
	}
	var keys []string
	if err := json.Unmarshal(s.SecretKeyStash, &keys); err != nil {
		return nil
	}
	return keys
}

// AppendStash adds key to the stash unless already present. Keys are never
// removed.
func (s *Settings) AppendStash(key string) error {
	if key == "" {
		return nil
	}
	keys := s.Stash()
	for _, existing := range keys {
		if existing == key {
			return nil
		}
	}
	keys = append(keys, key)
	raw, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	s.SecretKeyStash = raw
	return nil
}
