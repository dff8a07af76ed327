// Package domain contains core types for the device binding protocol.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ActivationSession is the ephemeral first half of the binding handshake:
// a single-consumption, time-boxed challenge. A session past its expiry is
// treated as absent; a consumed session can never be consumed again.
type ActivationSession struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	LicenseID      snowflake.ID `gorm:"column:license_id;not null;index"`
	Challenge      string       `gorm:"type:text;not null"`
	DeviceName     string       `gorm:"column:device_name;type:text"`
	DevicePlatform string       `gorm:"column:device_platform;type:text"`
	CreatedAt      time.Time    `gorm:"not null"`
	ExpiresAt      time.Time    `gorm:"column:expires_at;not null;index"`
	ConsumedAt     *time.Time   `gorm:"column:consumed_at"`
}

// TableName sets the database table name.
func (ActivationSession) TableName() string { return "activation_sessions" }

// Activation is the durable binding between a license and exactly one
// device. The credential private key never leaves the device; the stored
// public key and its fingerprint identify it.
type Activation struct {
	ID                    snowflake.ID `gorm:"primaryKey"`
	LicenseID             snowflake.ID `gorm:"column:license_id;not null;uniqueIndex"`
	DeviceID              snowflake.ID `gorm:"column:device_id;not null"`
	CredentialPublicKey   []byte       `gorm:"column:credential_public_key;not null"`
	CredentialFingerprint string       `gorm:"column:credential_fingerprint;type:text;not null"`
	CreatedAt             time.Time    `gorm:"not null"`
	LastSeenAt            time.Time    `gorm:"column:last_seen_at;not null"`
	Revoked               bool         `gorm:"not null;default:false"`
	UpdatedAt             time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Activation) TableName() string { return "activations" }

var (
	ErrSessionNotFound   = errors.New("session_not_found")
	ErrSessionExpired    = errors.New("session_expired")
	ErrSessionConsumed   = errors.New("session_consumed")
	ErrAlreadyBound      = errors.New("license_already_bound")
	ErrAttestationFailed = errors.New("attestation_failed")
	ErrProjectMismatch   = errors.New("project_mismatch")
	ErrNotFound          = errors.New("activation_not_found")
	ErrInvalidDevice     = errors.New("invalid_device")
)
