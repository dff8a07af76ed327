package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	activationdomain "github.com/keyforge/keyforge/internal/activation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() activationdomain.Repository {
	return &repo{}
}

func (r *repo) InsertSession(ctx context.Context, db *gorm.DB, s *activationdomain.ActivationSession) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO activation_sessions (id, license_id, challenge, device_name, device_platform, created_at, expires_at, consumed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		s.ID,
		s.LicenseID,
		s.Challenge,
		s.DeviceName,
		s.DevicePlatform,
		s.CreatedAt,
		s.ExpiresAt,
	).Error
}

func (r *repo) FindSession(ctx context.Context, db *gorm.DB, id snowflake.ID) (*activationdomain.ActivationSession, error) {
	var session activationdomain.ActivationSession
	err := db.WithContext(ctx).Raw(
		`SELECT id, license_id, challenge, device_name, device_platform, created_at, expires_at, consumed_at
		 FROM activation_sessions WHERE id = ?`,
		id,
	).Scan(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, nil
	}
	return &session, nil
}

func (r *repo) ConsumeSession(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE activation_sessions SET consumed_at = ? WHERE id = ? AND consumed_at IS NULL`,
		at,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) DeleteExpiredSessions(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`DELETE FROM activation_sessions WHERE expires_at < ?`,
		cutoff,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) InsertActivation(ctx context.Context, db *gorm.DB, a *activationdomain.Activation) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO activations (id, license_id, device_id, credential_public_key, credential_fingerprint, created_at, last_seen_at, revoked, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.LicenseID,
		a.DeviceID,
		a.CredentialPublicKey,
		a.CredentialFingerprint,
		a.CreatedAt,
		a.LastSeenAt,
		a.Revoked,
		a.UpdatedAt,
	).Error
}

func (r *repo) FindByLicense(ctx context.Context, db *gorm.DB, licenseID snowflake.ID) (*activationdomain.Activation, error) {
	var activation activationdomain.Activation
	err := db.WithContext(ctx).Raw(
		`SELECT id, license_id, device_id, credential_public_key, credential_fingerprint, created_at, last_seen_at, revoked, updated_at
		 FROM activations WHERE license_id = ?`,
		licenseID,
	).Scan(&activation).Error
	if err != nil {
		return nil, err
	}
	if activation.ID == 0 {
		return nil, nil
	}
	return &activation, nil
}

func (r *repo) FindByLicenseAndDevice(ctx context.Context, db *gorm.DB, licenseID, deviceID snowflake.ID) (*activationdomain.Activation, error) {
	var activation activationdomain.Activation
	err := db.WithContext(ctx).Raw(
		`SELECT id, license_id, device_id, credential_public_key, credential_fingerprint, created_at, last_seen_at, revoked, updated_at
		 FROM activations WHERE license_id = ? AND device_id = ?`,
		licenseID,
		deviceID,
	).Scan(&activation).Error
	if err != nil {
		return nil, err
	}
	if activation.ID == 0 {
		return nil, nil
	}
	return &activation, nil
}

func (r *repo) TouchLastSeen(ctx context.Context, db *gorm.DB, licenseID, deviceID snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE activations SET last_seen_at = ?, updated_at = ? WHERE license_id = ? AND device_id = ?`,
		at,
		at,
		licenseID,
		deviceID,
	).Error
}
