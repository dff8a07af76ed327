package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/keyforge/keyforge/internal/ledger/domain"
	"github.com/keyforge/keyforge/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ledgerdomain.Repository {
	return &repo{}
}

func (r *repo) EnsureCounter(ctx context.Context, conn *gorm.DB, licenseID snowflake.ID, bucket string, dayKey int64) error {
	if strings.EqualFold(conn.Dialector.Name(), "mysql") {
		return conn.WithContext(ctx).Exec(
			`INSERT IGNORE INTO usage_counters (license_id, bucket, day_key, used) VALUES (?, ?, ?, 0)`,
			licenseID, bucket, dayKey,
		).Error
	}
	return conn.WithContext(ctx).Exec(
		`INSERT INTO usage_counters (license_id, bucket, day_key, used) VALUES (?, ?, ?, 0)
		 ON CONFLICT DO NOTHING`,
		licenseID, bucket, dayKey,
	).Error
}

func (r *repo) Admit(ctx context.Context, conn *gorm.DB, licenseID snowflake.ID, bucket string, dayKey, cost, limit int64, limited bool) (bool, error) {
	if !limited {
		err := conn.WithContext(ctx).Exec(
			`UPDATE usage_counters SET used = used + ? WHERE license_id = ? AND bucket = ? AND day_key = ?`,
			cost, licenseID, bucket, dayKey,
		).Error
		return err == nil, err
	}

	increment := db.ConditionedIncrement{
		Table:     "usage_counters",
		Column:    "used",
		Delta:     cost,
		Where:     "license_id = ? AND bucket = ? AND day_key = ?",
		WhereArgs: []any{licenseID, bucket, dayKey},
		Guard:     "used + ? <= ?",
		GuardArgs: []any{cost, limit},
	}
	return increment.Apply(ctx, conn)
}

func (r *repo) CounterUsed(ctx context.Context, conn *gorm.DB, licenseID snowflake.ID, bucket string, dayKey int64) (int64, error) {
	var used int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(used), 0) FROM usage_counters WHERE license_id = ? AND bucket = ? AND day_key = ?`,
		licenseID, bucket, dayKey,
	).Scan(&used).Error
	if err != nil {
		return 0, err
	}
	return used, nil
}

func (r *repo) InsertRecord(ctx context.Context, conn *gorm.DB, record *ledgerdomain.UsageRecord) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO usage_records (id, license_id, device_id, bucket, cost, minute_key, day_key, month_key, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.LicenseID,
		record.DeviceID,
		record.Bucket,
		record.Cost,
		record.MinuteKey,
		record.DayKey,
		record.MonthKey,
		record.RecordedAt,
	).Error
}

func (r *repo) InsertSighting(ctx context.Context, conn *gorm.DB, sighting *ledgerdomain.UserSighting) error {
	if strings.EqualFold(conn.Dialector.Name(), "mysql") {
		return conn.WithContext(ctx).Exec(
			`INSERT IGNORE INTO user_sightings (license_id, device_id, user_hash, first_seen_at) VALUES (?, ?, ?, ?)`,
			sighting.LicenseID, sighting.DeviceID, sighting.UserHash, sighting.FirstSeenAt,
		).Error
	}
	return conn.WithContext(ctx).Exec(
		`INSERT INTO user_sightings (license_id, device_id, user_hash, first_seen_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		sighting.LicenseID, sighting.DeviceID, sighting.UserHash, sighting.FirstSeenAt,
	).Error
}
