package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"tunelock/internal/domain"
	"tunelock/internal/service"
	"tunelock/internal/store"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(db)
}

func seedTransaction(t *testing.T, st *store.Store, userID uuid.UUID, status domain.TransactionStatus) *domain.Transaction {
	t.Helper()
	txn := &domain.Transaction{
		ID:      uuid.New(),
		UserID:  userID,
		MediaID: uuid.New(),
		Status:  status,
		Amount:  129,
	}
	if err := st.DB.Create(txn).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return txn
}

func TestIssueLicenseIdempotent(t *testing.T) {
	st := setupStore(t)
	svc := service.NewLicenseService(st)

	userID := uuid.New()
	txn := seedTransaction(t, st, userID, domain.TransactionCompleted)
	info := domain.DeviceInfo{DeviceID: "dev-abc"}

	lic1, err := svc.Issue(context.Background(), txn.ID, userID, info)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !lic1.Active {
		t.Fatalf("expected new license to be active")
	}
	if lic1.RestrictionLevel != domain.RestrictionStrict {
		t.Fatalf("expected STRICT default, got %s", lic1.RestrictionLevel)
	}
	if lic1.MediaID != txn.MediaID {
		t.Fatalf("license bound to wrong media")
	}
	if lic1.Key == "" {
		t.Fatalf("expected a license key")
	}

	lic2, err := svc.Issue(context.Background(), txn.ID, userID, info)
	if err != nil {
		t.Fatalf("repeat issue: %v", err)
	}
	if lic2.ID != lic1.ID || lic2.Key != lic1.Key {
		t.Fatalf("repeat issuance created a new license: %s vs %s", lic2.ID, lic1.ID)
	}

	var count int64
	if err := st.DB.Model(&domain.License{}).Count(&count).Error; err != nil {
		t.Fatalf("count licenses: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 license row, got %d", count)
	}
}

func TestIssueLicenseCreatesDeviceWithDefaults(t *testing.T) {
	st := setupStore(t)
	svc := service.NewLicenseService(st)

	userID := uuid.New()
	txn := seedTransaction(t, st, userID, domain.TransactionCompleted)

	if _, err := svc.Issue(context.Background(), txn.ID, userID, domain.DeviceInfo{DeviceID: "dev-lazy"}); err != nil {
		t.Fatalf("issue: %v", err)
	}

	var device domain.Device
	if err := st.DB.First(&device, "user_id = ? AND external_id = ?", userID, "dev-lazy").Error; err != nil {
		t.Fatalf("device not created: %v", err)
	}
	if device.Name != "Unknown device" || device.Type != "desktop" {
		t.Fatalf("defaults not applied: name=%q type=%q", device.Name, device.Type)
	}

	// Second issuance for the same device must reuse the record.
	txn2 := seedTransaction(t, st, userID, domain.TransactionCompleted)
	if _, err := svc.Issue(context.Background(), txn2.ID, userID, domain.DeviceInfo{DeviceID: "dev-lazy", DeviceName: "My laptop"}); err != nil {
		t.Fatalf("second issue: %v", err)
	}
	var devices int64
	if err := st.DB.Model(&domain.Device{}).Where("user_id = ?", userID).Count(&devices).Error; err != nil {
		t.Fatalf("count devices: %v", err)
	}
	if devices != 1 {
		t.Fatalf("expected 1 device, got %d", devices)
	}
}

func TestIssueLicenseRefusals(t *testing.T) {
	st := setupStore(t)
	svc := service.NewLicenseService(st)

	owner := uuid.New()
	stranger := uuid.New()
	completed := seedTransaction(t, st, owner, domain.TransactionCompleted)
	pending := seedTransaction(t, st, owner, domain.TransactionPending)
	info := domain.DeviceInfo{DeviceID: "dev-x"}

	if _, err := svc.Issue(context.Background(), uuid.New(), owner, info); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing transaction: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Issue(context.Background(), completed.ID, stranger, info); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("foreign transaction: expected ErrUnauthorized, got %v", err)
	}
	if _, err := svc.Issue(context.Background(), pending.ID, owner, info); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("pending transaction: expected ErrInvalidState, got %v", err)
	}
	if _, err := svc.Issue(context.Background(), completed.ID, owner, domain.DeviceInfo{}); !errors.Is(err, service.ErrInvalidRequest) {
		t.Fatalf("missing device id: expected ErrInvalidRequest, got %v", err)
	}

	var count int64
	if err := st.DB.Model(&domain.License{}).Count(&count).Error; err != nil {
		t.Fatalf("count licenses: %v", err)
	}
	if count != 0 {
		t.Fatalf("refused issuance must not create licenses, found %d", count)
	}
}

func TestValidateLicenseBindings(t *testing.T) {
	st := setupStore(t)
	svc := service.NewLicenseService(st)

	userID := uuid.New()
	txn := seedTransaction(t, st, userID, domain.TransactionCompleted)
	lic, err := svc.Issue(context.Background(), txn.ID, userID, domain.DeviceInfo{DeviceID: "dev-abc"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := []struct {
		name     string
		mediaID  uuid.UUID
		deviceID string
		key      string
		want     bool
	}{
		{"all bindings match", lic.MediaID, "dev-abc", lic.Key, true},
		{"wrong media", uuid.New(), "dev-abc", lic.Key, false},
		{"wrong device", lic.MediaID, "dev-other", lic.Key, false},
		{"wrong key", lic.MediaID, "dev-abc", "LIC-bogus", false},
		{"empty key", lic.MediaID, "dev-abc", "", false},
		{"empty device", lic.MediaID, "", lic.Key, false},
	}
	for _, tc := range cases {
		got, err := svc.Validate(context.Background(), tc.mediaID, tc.deviceID, tc.key)
		if err != nil {
			t.Fatalf("%s: validate: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected valid=%v, got %v", tc.name, tc.want, got)
		}
	}

	// Deactivated license fails the same lookup.
	if err := svc.Revoke(context.Background(), lic.ID, userID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	got, err := svc.Validate(context.Background(), lic.MediaID, "dev-abc", lic.Key)
	if err != nil {
		t.Fatalf("validate after revoke: %v", err)
	}
	if got {
		t.Fatalf("revoked license validated")
	}
}

func TestValidateExpiryFlipsActive(t *testing.T) {
	st := setupStore(t)
	svc := service.NewLicenseService(st)

	userID := uuid.New()
	txn := seedTransaction(t, st, userID, domain.TransactionCompleted)
	lic, err := svc.Issue(context.Background(), txn.ID, userID, domain.DeviceInfo{DeviceID: "dev-exp"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	if err := st.DB.Model(&domain.License{}).Where("id = ?", lic.ID).Update("expires_at", yesterday).Error; err != nil {
		t.Fatalf("backdate expiry: %v", err)
	}

	ok, err := svc.Validate(context.Background(), lic.MediaID, "dev-exp", lic.Key)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok {
		t.Fatalf("expired license validated")
	}

	var stored domain.License
	if err := st.DB.First(&stored, "id = ?", lic.ID).Error; err != nil {
		t.Fatalf("reload license: %v", err)
	}
	if stored.Active {
		t.Fatalf("expiry did not flip active off")
	}

	// Second call sees the inactive row and stays false without another write.
	ok, err = svc.Validate(context.Background(), lic.MediaID, "dev-exp", lic.Key)
	if err != nil {
		t.Fatalf("second validate: %v", err)
	}
	if ok {
		t.Fatalf("inactive license validated")
	}
}

func TestValidateNoExpiryIsIndefinite(t *testing.T) {
	st := setupStore(t)
	svc := service.NewLicenseService(st)

	userID := uuid.New()
	txn := seedTransaction(t, st, userID, domain.TransactionCompleted)
	lic, err := svc.Issue(context.Background(), txn.ID, userID, domain.DeviceInfo{DeviceID: "dev-forever"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if lic.ExpiresAt != nil {
		t.Fatalf("issuance set an expiry")
	}
	ok, err := svc.Validate(context.Background(), lic.MediaID, "dev-forever", lic.Key)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !ok {
		t.Fatalf("license without expiry did not validate")
	}
}

func TestListForDeviceAndGet(t *testing.T) {
	st := setupStore(t)
	svc := service.NewLicenseService(st)

	userID := uuid.New()
	txn1 := seedTransaction(t, st, userID, domain.TransactionCompleted)
	txn2 := seedTransaction(t, st, userID, domain.TransactionCompleted)

	lic1, err := svc.Issue(context.Background(), txn1.ID, userID, domain.DeviceInfo{DeviceID: "dev-list"})
	if err != nil {
		t.Fatalf("issue 1: %v", err)
	}
	if _, err := svc.Issue(context.Background(), txn2.ID, userID, domain.DeviceInfo{DeviceID: "dev-list"}); err != nil {
		t.Fatalf("issue 2: %v", err)
	}

	lics, err := svc.ListForDevice(context.Background(), userID, "dev-list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lics) != 2 {
		t.Fatalf("expected 2 licenses, got %d", len(lics))
	}

	got, err := svc.Get(context.Background(), lic1.ID, userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Key != lic1.Key {
		t.Fatalf("get returned wrong license")
	}

	// Ownership is a query filter: another user sees nothing.
	if _, err := svc.Get(context.Background(), lic1.ID, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign get: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ListForDevice(context.Background(), uuid.New(), "dev-list"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign list: expected ErrNotFound, got %v", err)
	}
}
