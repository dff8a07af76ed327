// Package domain contains core types for the usage ledger.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// UsageRecord is the append-only unit of audit truth. Window keys are
// computed once at write time and stored, so historical rollups stay
// correct even if limits or clock interpretation change later.
type UsageRecord struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	LicenseID  snowflake.ID `gorm:"column:license_id;not null;index"`
	DeviceID   snowflake.ID `gorm:"column:device_id;not null"`
	Bucket     string       `gorm:"type:text;not null"`
	Cost       int64        `gorm:"not null"`
	MinuteKey  int64        `gorm:"column:minute_key;not null"`
	DayKey     int64        `gorm:"column:day_key;not null;index"`
	MonthKey   string       `gorm:"column:month_key;type:text;not null"`
	RecordedAt time.Time    `gorm:"column:recorded_at;not null"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

// UsageCounter is the per-(license, bucket, day) rollup row that serializes
// concurrent admission; it is derived state and can be rebuilt from
// usage_records.
type UsageCounter struct {
	LicenseID snowflake.ID `gorm:"column:license_id;primaryKey"`
	Bucket    string       `gorm:"primaryKey;type:text"`
	DayKey    int64        `gorm:"column:day_key;primaryKey"`
	Used      int64        `gorm:"not null;default:0"`
}

// TableName sets the database table name.
func (UsageCounter) TableName() string { return "usage_counters" }

// UserSighting records a privacy-preserving distinct-user observation with
// set semantics. Only an irreversible hash is ever stored.
type UserSighting struct {
	LicenseID   snowflake.ID `gorm:"column:license_id;primaryKey"`
	DeviceID    snowflake.ID `gorm:"column:device_id;primaryKey"`
	UserHash    string       `gorm:"column:user_hash;primaryKey;type:text"`
	FirstSeenAt time.Time    `gorm:"column:first_seen_at;not null"`
}

// TableName sets the database table name.
func (UserSighting) TableName() string { return "user_sightings" }

var (
	ErrInvalidBucket      = errors.New("invalid_bucket")
	ErrInvalidCost        = errors.New("invalid_cost")
	ErrInvalidCertificate = errors.New("invalid_certificate")
)
