package store

import (
	"context"

	"tunelock/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DownloadStore struct{ db *gorm.DB }

func (s *Store) Downloads() *DownloadStore { return &DownloadStore{db: s.DB} }

func (d *DownloadStore) Create(ctx context.Context, dl *domain.Download) error {
	if dl.ID == uuid.Nil {
		dl.ID = uuid.New()
	}
	return translateErr(d.db.WithContext(ctx).Create(dl).Error)
}

func (d *DownloadStore) Get(ctx context.Context, id uuid.UUID, userID domain.UserID) (*domain.Download, error) {
	var dl domain.Download
	err := d.db.WithContext(ctx).
		First(&dl, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &dl, nil
}

func (d *DownloadStore) GetByUserID(ctx context.Context, userID domain.UserID) ([]*domain.Download, error) {
	var dls []*domain.Download
	err := d.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&dls).Error
	if err != nil {
		return nil, err
	}
	return dls, nil
}
