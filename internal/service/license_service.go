package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"tunelock/internal/domain"
	"tunelock/internal/observability/metrics"
	"tunelock/internal/store"
)

const (
	defaultDeviceName = "Unknown device"
	defaultDeviceType = "desktop"

	licenseKeyPrefix     = "LIC"
	licenseKeyRandomLen  = 12 // bytes of entropy, 24 hex chars
	licenseKeyMaxRetries = 2
)

// LicenseService issues licenses against completed transactions and decides
// whether a presented license authorizes playback right now.
type LicenseService struct {
	store *store.Store
	now   func() time.Time
}

func NewLicenseService(st *store.Store) *LicenseService {
	return &LicenseService{
		store: st,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Issue creates a license binding the caller's device to the media item paid
// for by the given transaction. Issuance is idempotent: a repeat request for
// the same (user, device, media) tuple returns the existing active license
// unchanged.
func (s *LicenseService) Issue(ctx context.Context, txID domain.TransactionID, userID domain.UserID, info domain.DeviceInfo) (*domain.License, error) {
	if strings.TrimSpace(info.DeviceID) == "" {
		return nil, fmt.Errorf("%w: missing deviceId", ErrInvalidRequest)
	}

	txn, err := s.store.Transactions().Get(ctx, txID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("transaction %s: %w", txID, domain.ErrNotFound)
		}
		return nil, err
	}
	if txn.UserID != userID {
		return nil, fmt.Errorf("transaction %s: %w", txID, domain.ErrUnauthorized)
	}
	if txn.Status != domain.TransactionCompleted {
		return nil, fmt.Errorf("transaction %s is %s: %w", txID, txn.Status, domain.ErrInvalidState)
	}

	var (
		lic     *domain.License
		created bool
	)
	err = s.store.WithTx(ctx, func(tx *store.Store) error {
		device, err := s.resolveDevice(ctx, tx, userID, info)
		if err != nil {
			return err
		}

		existing, err := tx.Licenses().FindActive(ctx, userID, device.ID, txn.MediaID)
		if err == nil {
			lic = existing
			return nil
		}
		if !errors.Is(err, store.ErrRecordNotFound) {
			return err
		}

		fresh, err := s.createLicense(ctx, tx, txn, userID, device.ID)
		if err != nil {
			return err
		}
		lic = fresh
		created = true
		return nil
	})
	if err != nil {
		// A concurrent issuance for the same tuple may have won the insert;
		// the unique index turns our attempt into a duplicate. Return the
		// winner.
		if errors.Is(err, store.ErrDuplicate) {
			return s.lookupAfterRace(ctx, userID, txn.MediaID, info.DeviceID)
		}
		return nil, err
	}

	if created {
		metrics.LicensesIssuedTotal.Inc()
		slog.Info("license issued",
			"license_id", lic.ID, "media_id", lic.MediaID, "user_id", userID, "transaction_id", txID)
	}
	return lic, nil
}

func (s *LicenseService) resolveDevice(ctx context.Context, tx *store.Store, userID domain.UserID, info domain.DeviceInfo) (*domain.Device, error) {
	device, err := tx.Devices().GetByExternalID(ctx, userID, info.DeviceID)
	if err == nil {
		return device, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	name := strings.TrimSpace(info.DeviceName)
	if name == "" {
		name = defaultDeviceName
	}
	devType := strings.TrimSpace(info.DeviceType)
	if devType == "" {
		devType = defaultDeviceType
	}

	device = &domain.Device{
		UserID:      userID,
		ExternalID:  info.DeviceID,
		Name:        name,
		Type:        devType,
		OS:          info.OS,
		Fingerprint: info.Fingerprint,
	}
	if err := tx.Devices().Create(ctx, device); err != nil {
		return nil, err
	}
	slog.Info("device registered", "device_id", device.ID, "external_id", device.ExternalID)
	return device, nil
}

func (s *LicenseService) createLicense(ctx context.Context, tx *store.Store, txn *domain.Transaction, userID domain.UserID, deviceID domain.DeviceID) (*domain.License, error) {
	var lastErr error
	// Key uniqueness is enforced by the store; a collision on the random
	// suffix is vanishingly rare but retried once anyway.
	for attempt := 0; attempt <= licenseKeyMaxRetries; attempt++ {
		key, err := generateLicenseKey(s.now())
		if err != nil {
			return nil, err
		}
		lic := &domain.License{
			UserID:           userID,
			DeviceID:         deviceID,
			MediaID:          txn.MediaID,
			TransactionID:    txn.ID,
			Key:              key,
			RestrictionLevel: domain.RestrictionStrict,
			Active:           true,
		}
		if err := tx.Licenses().Create(ctx, lic); err != nil {
			lastErr = err
			if errors.Is(err, store.ErrDuplicate) {
				continue
			}
			return nil, err
		}
		return lic, nil
	}
	return nil, lastErr
}

func (s *LicenseService) lookupAfterRace(ctx context.Context, userID domain.UserID, mediaID domain.MediaID, deviceExternalID string) (*domain.License, error) {
	device, err := s.store.Devices().GetByExternalID(ctx, userID, deviceExternalID)
	if err != nil {
		return nil, err
	}
	lic, err := s.store.Licenses().FindActive(ctx, userID, device.ID, mediaID)
	if err != nil {
		return nil, err
	}
	return lic, nil
}

// Authorize returns the license that authorizes playback right now for the
// given media, device and presented key, or nil when there is none. Expiry
// is settled through ensureCurrent before any content moves.
func (s *LicenseService) Authorize(ctx context.Context, mediaID domain.MediaID, deviceExternalID, licenseKey string) (*domain.License, error) {
	if deviceExternalID == "" || licenseKey == "" {
		metrics.LicenseValidationsTotal.WithLabelValues("invalid").Inc()
		return nil, nil
	}

	lic, err := s.store.Licenses().FindForPlayback(ctx, mediaID, deviceExternalID, licenseKey)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			metrics.LicenseValidationsTotal.WithLabelValues("invalid").Inc()
			return nil, nil
		}
		return nil, err
	}

	lic, err = s.ensureCurrent(ctx, lic)
	if err != nil {
		return nil, err
	}
	if lic == nil {
		metrics.LicenseValidationsTotal.WithLabelValues("expired").Inc()
		return nil, nil
	}

	metrics.LicenseValidationsTotal.WithLabelValues("valid").Inc()
	return lic, nil
}

// ActiveFor returns the caller's active, unexpired license for a media item
// on the given device, without requiring the key to be presented. The
// download path relies on this: the stored key is what seals the payload.
func (s *LicenseService) ActiveFor(ctx context.Context, userID domain.UserID, deviceExternalID string, mediaID domain.MediaID) (*domain.License, error) {
	device, err := s.store.Devices().GetByExternalID(ctx, userID, deviceExternalID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	lic, err := s.store.Licenses().FindActive(ctx, userID, device.ID, mediaID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return s.ensureCurrent(ctx, lic)
}

// ensureCurrent is the only place expiry is lazily enforced: a license found
// past its expires_at is flipped inactive and nil is returned in its place.
func (s *LicenseService) ensureCurrent(ctx context.Context, lic *domain.License) (*domain.License, error) {
	if !lic.Expired(s.now()) {
		return lic, nil
	}
	if err := s.store.Licenses().Deactivate(ctx, lic.ID); err != nil {
		return nil, err
	}
	slog.Info("license expired", "license_id", lic.ID, "expires_at", lic.ExpiresAt)
	return nil, nil
}

// Validate is the boolean form of Authorize, backing the validate endpoint.
func (s *LicenseService) Validate(ctx context.Context, mediaID domain.MediaID, deviceExternalID, licenseKey string) (bool, error) {
	lic, err := s.Authorize(ctx, mediaID, deviceExternalID, licenseKey)
	if err != nil {
		return false, err
	}
	return lic != nil, nil
}

// Revoke deactivates a caller-owned license. Terminal: there is no
// transition back to active.
func (s *LicenseService) Revoke(ctx context.Context, id domain.LicenseID, userID domain.UserID) error {
	lic, err := s.store.Licenses().Get(ctx, id, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return fmt.Errorf("license %s: %w", id, domain.ErrNotFound)
		}
		return err
	}
	if !lic.Active {
		return nil
	}
	if err := s.store.Licenses().Deactivate(ctx, lic.ID); err != nil {
		return err
	}
	slog.Info("license revoked", "license_id", lic.ID, "user_id", userID)
	return nil
}

func (s *LicenseService) Get(ctx context.Context, id domain.LicenseID, userID domain.UserID) (*domain.License, error) {
	lic, err := s.store.Licenses().Get(ctx, id, userID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("license %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return lic, nil
}

// ListForDevice returns every license bound to the caller's device,
// including deactivated ones. Ownership is part of the query filter, not a
// post-hoc check.
func (s *LicenseService) ListForDevice(ctx context.Context, userID domain.UserID, deviceExternalID string) ([]*domain.License, error) {
	device, err := s.store.Devices().GetByExternalID(ctx, userID, deviceExternalID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("device %s: %w", deviceExternalID, domain.ErrNotFound)
		}
		return nil, err
	}
	return s.store.Licenses().GetByDevice(ctx, userID, device.ID)
}

// generateLicenseKey builds an unguessable bearer key: time-ordered prefix
// for operator legibility, cryptographically random suffix for entropy.
func generateLicenseKey(now time.Time) (string, error) {
	buf := make([]byte, licenseKeyRandomLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate license key: %w", err)
	}
	return licenseKeyPrefix + "-" +
		strconv.FormatInt(now.Unix(), 36) + "-" +
		hex.EncodeToString(buf), nil
}
