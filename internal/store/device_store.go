package store

import (
	"context"

	"tunelock/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DeviceStore struct{ db *gorm.DB }

func (s *Store) Devices() *DeviceStore { return &DeviceStore{db: s.DB} }

func (d *DeviceStore) Create(ctx context.Context, device *domain.Device) error {
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}
	return translateErr(d.db.WithContext(ctx).Create(device).Error)
}

// GetByExternalID resolves a device by its owner and the client-supplied
// identifier. The pair is the natural key; lookups never use the external id
// alone.
func (d *DeviceStore) GetByExternalID(ctx context.Context, userID domain.UserID, externalID string) (*domain.Device, error) {
	var device domain.Device
	err := d.db.WithContext(ctx).
		First(&device, "user_id = ? AND external_id = ?", userID, externalID).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &device, nil
}

func (d *DeviceStore) GetByUserID(ctx context.Context, userID domain.UserID) ([]*domain.Device, error) {
	var devices []*domain.Device
	if err := d.db.WithContext(ctx).Where("user_id = ?", userID).Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}
