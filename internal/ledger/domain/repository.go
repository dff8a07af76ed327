package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// EnsureCounter creates the (license, bucket, day) counter row when it
	// does not exist yet.
	EnsureCounter(ctx context.Context, db *gorm.DB, licenseID snowflake.ID, bucket string, dayKey int64) error
	// Admit increments the counter conditioned on the limit still holding
	// at write time; limited=false increments unconditionally. Reports
	// false when the increment would overshoot.
	Admit(ctx context.Context, db *gorm.DB, licenseID snowflake.ID, bucket string, dayKey, cost, limit int64, limited bool) (bool, error)
	CounterUsed(ctx context.Context, db *gorm.DB, licenseID snowflake.ID, bucket string, dayKey int64) (int64, error)
	InsertRecord(ctx context.Context, db *gorm.DB, record *UsageRecord) error
	// InsertSighting has set semantics: duplicates are silent no-ops.
	InsertSighting(ctx context.Context, db *gorm.DB, sighting *UserSighting) error
}
