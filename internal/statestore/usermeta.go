package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserMeta mirrors selected session keys into a durable per-user row so a
// returning customer recovers their correlation after the session expires.
type UserMeta struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID `gorm:"index:idx_user_meta_key,unique" json:"user_id"`
	MetaKey   string       `gorm:"index:idx_user_meta_key,unique;index:idx_user_meta_value" json:"meta_key"`
	MetaValue string       `gorm:"index:idx_user_meta_value" json:"meta_value"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (UserMeta) TableName() string {
	return "user_meta"
}

type GormUserStore struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewGormUserStore(db *gorm.DB, node *snowflake.Node) *GormUserStore {
	return &GormUserStore{db: db, node: node}
}

func (s *GormUserStore) Get(ctx context.Context, userID snowflake.ID, key string) (string, error) {
	var row UserMeta
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND meta_key = ?", userID, key).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return row.MetaValue, nil
}

func (s *GormUserStore) Set(ctx context.Context, userID snowflake.ID, key, value string) error {
	row := UserMeta{
		ID:        s.node.Generate(),
		UserID:    userID,
		MetaKey:   key,
		MetaValue: value,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "meta_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"meta_value", "updated_at"}),
		}).
		Create(&row).Error
}

func (s *GormUserStore) Delete(ctx context.Context, userID snowflake.ID, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("user_id = ? AND meta_key IN ?", userID, keys).
		Delete(&UserMeta{}).Error
}

func (s *GormUserStore) FindUserByValue(ctx context.Context, key, value string) (snowflake.ID, error) {
	var row UserMeta
	err := s.db.WithContext(ctx).
		Where("meta_key = ? AND meta_value = ?", key, value).
		Order("updated_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return row.UserID, nil
}

var _ UserStore = (*GormUserStore)(nil)
