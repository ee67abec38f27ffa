package store

import (
	"context"

	"tunelock/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LicenseStore struct{ db *gorm.DB }

func (s *Store) Licenses() *LicenseStore { return &LicenseStore{db: s.DB} }

func (l *LicenseStore) Create(ctx context.Context, lic *domain.License) error {
	if lic.ID == uuid.Nil {
		lic.ID = uuid.New()
	}
	return translateErr(l.db.WithContext(ctx).Create(lic).Error)
}

func (l *LicenseStore) Get(ctx context.Context, id domain.LicenseID, userID domain.UserID) (*domain.License, error) {
	var lic domain.License
	err := l.db.WithContext(ctx).
		First(&lic, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &lic, nil
}

// FindActive returns the single active license for a (user, device, media)
// tuple, or ErrRecordNotFound. The partial unique index guarantees there is
// at most one.
func (l *LicenseStore) FindActive(ctx context.Context, userID domain.UserID, deviceID domain.DeviceID, mediaID domain.MediaID) (*domain.License, error) {
	var lic domain.License
	err := l.db.WithContext(ctx).
		First(&lic, "user_id = ? AND device_id = ? AND media_id = ? AND active", userID, deviceID, mediaID).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &lic, nil
}

// FindForPlayback is the validator's single joined lookup: key, media,
// active flag and device binding are all enforced by the one filter.
func (l *LicenseStore) FindForPlayback(ctx context.Context, mediaID domain.MediaID, deviceExternalID, licenseKey string) (*domain.License, error) {
	var lic domain.License
	err := l.db.WithContext(ctx).
		Select("licenses.*").
		Joins("JOIN devices ON devices.id = licenses.device_id").
		Where("licenses.media_id = ? AND licenses.key = ? AND licenses.active AND devices.external_id = ?",
			mediaID, licenseKey, deviceExternalID).
		First(&lic).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &lic, nil
}

func (l *LicenseStore) GetByDevice(ctx context.Context, userID domain.UserID, deviceID domain.DeviceID) ([]*domain.License, error) {
	var lics []*domain.License
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Order("created_at DESC").
		Find(&lics).Error
	if err != nil {
		return nil, err
	}
	return lics, nil
}

// Deactivate flips a license to inactive. The only transitions into this
// state are lazy expiry and explicit revocation; rows are never deleted.
func (l *LicenseStore) Deactivate(ctx context.Context, id domain.LicenseID) error {
	return l.db.WithContext(ctx).
		Model(&domain.License{}).
		Where("id = ? AND active", id).
		Update("active", false).Error
}
