package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertSession(ctx context.Context, db *gorm.DB, session *ActivationSession) error
	FindSession(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ActivationSession, error)
	// ConsumeSession marks the session consumed, conditioned on it not
	// already being consumed. Reports false when it lost that race.
	ConsumeSession(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	DeleteExpiredSessions(ctx context.Context, db *gorm.DB, cutoff time.Time) (int64, error)

	InsertActivation(ctx context.Context, db *gorm.DB, activation *Activation) error
	FindByLicense(ctx context.Context, db *gorm.DB, licenseID snowflake.ID) (*Activation, error)
	FindByLicenseAndDevice(ctx context.Context, db *gorm.DB, licenseID, deviceID snowflake.ID) (*Activation, error)
	TouchLastSeen(ctx context.Context, db *gorm.DB, licenseID, deviceID snowflake.ID, at time.Time) error
}
