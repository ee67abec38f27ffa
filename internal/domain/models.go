package domain

import (
	"time"

	"github.com/google/uuid"
)

type UserID = uuid.UUID
type DeviceID = uuid.UUID
type LicenseID = uuid.UUID
type MediaID = uuid.UUID
type TransactionID = uuid.UUID

// RestrictionLevel controls how aggressively delivery is locked to the
// issuing device. Levels are ordered: NONE < BASIC < STRICT < ENCRYPTED.
type RestrictionLevel string

const (
	RestrictionNone      RestrictionLevel = "NONE"
	RestrictionBasic     RestrictionLevel = "BASIC"
	RestrictionStrict    RestrictionLevel = "STRICT"
	RestrictionEncrypted RestrictionLevel = "ENCRYPTED"
)

var restrictionRank = map[RestrictionLevel]int{
	RestrictionNone:      0,
	RestrictionBasic:     1,
	RestrictionStrict:    2,
	RestrictionEncrypted: 3,
}

// AtLeast reports whether r is as strict or stricter than other.
func (r RestrictionLevel) AtLeast(other RestrictionLevel) bool {
	return restrictionRank[r] >= restrictionRank[other]
}

func (r RestrictionLevel) Valid() bool {
	_, ok := restrictionRank[r]
	return ok
}

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
)

const (
	AccessTypeOffline = "OFFLINE"
	AccessTypeStream  = "STREAM"
)

// Device is one physical/browser client a user registered, keyed by the
// client-supplied opaque ExternalID. Lookups always filter by owner and
// external id together.
type Device struct {
	ID          DeviceID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      UserID    `gorm:"type:uuid;not null;uniqueIndex:ux_devices_user_external" json:"userId"`
	ExternalID  string    `gorm:"type:text;not null;uniqueIndex:ux_devices_user_external" json:"deviceId"`
	Name        string    `gorm:"type:text;not null" json:"name"`
	Type        string    `gorm:"type:text;not null" json:"type"`
	OS          string    `gorm:"type:text" json:"os"`
	Fingerprint string    `gorm:"type:text" json:"fingerprint"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime" json:"updatedAt"`
}

func (Device) TableName() string { return "devices" }

// License grants one Device playback/download rights for one media item,
// tied to a completed transaction. At most one active license may exist per
// (user, device, media) tuple; the partial unique index makes the store the
// arbiter when two issuance calls race.
type License struct {
	ID               LicenseID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           UserID           `gorm:"type:uuid;not null;index;uniqueIndex:ux_licenses_active_tuple,where:active" json:"userId"`
	DeviceID         DeviceID         `gorm:"type:uuid;not null;index;uniqueIndex:ux_licenses_active_tuple" json:"deviceId"`
	MediaID          MediaID          `gorm:"type:uuid;not null;uniqueIndex:ux_licenses_active_tuple" json:"mediaId"`
	TransactionID    TransactionID    `gorm:"type:uuid;not null" json:"transactionId"`
	Key              string           `gorm:"type:text;not null;uniqueIndex" json:"licenseKey"`
	RestrictionLevel RestrictionLevel `gorm:"type:text;not null" json:"restrictionLevel"`
	Active           bool             `gorm:"not null" json:"active"`
	ExpiresAt        *time.Time       `json:"expiresAt,omitempty"`
	CreatedAt        time.Time        `gorm:"not null;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time        `gorm:"not null;autoUpdateTime" json:"updatedAt"`
}

func (License) TableName() string { return "licenses" }

// Expired reports whether the license carries an expiry that lies in the
// past at the given instant. A license with no expiry never expires.
func (l *License) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// Transaction is owned by the payment subsystem; this service only reads
// status, owner and media.
type Transaction struct {
	ID        TransactionID     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    UserID            `gorm:"type:uuid;not null;index" json:"userId"`
	MediaID   MediaID           `gorm:"type:uuid;not null" json:"mediaId"`
	Status    TransactionStatus `gorm:"type:text;not null" json:"status"`
	Amount    int64             `gorm:"not null" json:"amount"`
	CreatedAt time.Time         `gorm:"not null;autoCreateTime" json:"createdAt"`
}

func (Transaction) TableName() string { return "transactions" }

// Download is the audit record of one protected delivery. For OFFLINE
// packaging it carries the full encryption envelope so a stored ciphertext
// can be opened later without re-deriving any state.
type Download struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           UserID    `gorm:"type:uuid;not null;index" json:"userId"`
	MediaID          MediaID   `gorm:"type:uuid;not null" json:"mediaId"`
	LicenseKey       string    `gorm:"type:text;not null" json:"licenseKey"`
	DeviceExternalID string    `gorm:"type:text;not null" json:"deviceId"`
	DRMProtected     bool      `gorm:"not null" json:"drmProtected"`
	AccessType       string    `gorm:"type:text;not null" json:"accessType"`
	IV               string    `gorm:"type:text" json:"iv,omitempty"`
	AuthTag          string    `gorm:"type:text" json:"authTag,omitempty"`
	Algorithm        string    `gorm:"type:text" json:"algorithm,omitempty"`
	CreatedAt        time.Time `gorm:"not null;autoCreateTime" json:"createdAt"`
}

func (Download) TableName() string { return "downloads" }

// DeviceInfo is the client-supplied device payload accompanying license and
// delivery requests. DeviceID is required; the rest defaults on first
// registration.
type DeviceInfo struct {
	DeviceID    string `json:"deviceId"`
	DeviceName  string `json:"deviceName,omitempty"`
	DeviceType  string `json:"deviceType,omitempty"`
	OS          string `json:"os,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	LicenseKey  string `json:"licenseKey,omitempty"`
}
