// Package domain contains core types for the license store.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// License types.
const (
	TypeIndividual = "individual"
	TypeSeat       = "seat"
)

// QuotaSpec is the structured limit set of a license: an optional global
// daily limit plus optional per-bucket daily limits. Zero means unset.
type QuotaSpec struct {
	Daily   int64            `json:"daily,omitempty"`
	Buckets map[string]int64 `json:"buckets,omitempty"`
}

// LimitFor resolves the applicable daily limit for a bucket: the bucket's
// own limit wins, then the license-wide daily limit, then defaultDaily.
// The second return is false when usage is unlimited.
func (q QuotaSpec) LimitFor(bucket string, defaultDaily int64) (int64, bool) {
	if limit, ok := q.Buckets[bucket]; ok && limit > 0 {
		return limit, true
	}
	if q.Daily > 0 {
		return q.Daily, true
	}
	if defaultDaily > 0 {
		return defaultDaily, true
	}
	return 0, false
}

func (q QuotaSpec) Value() (driver.Value, error) {
	return json.Marshal(q)
}

func (q *QuotaSpec) Scan(value any) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, q)
	case string:
		return json.Unmarshal([]byte(v), q)
	case nil:
		*q = QuotaSpec{}
		return nil
	default:
		return fmt.Errorf("unsupported quota spec source %T", value)
	}
}

// License is a signed, time-bounded entitlement scoped to a project. Quotas
// are immutable once issued; only the revoked flag ever changes, one way.
type License struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	ProjectID string            `json:"project_id" gorm:"column:project_id;type:text;not null;index"`
	Type      string            `json:"type" gorm:"type:text;not null"`
	Quotas    QuotaSpec         `json:"quotas" gorm:"type:jsonb;not null"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	IssuedAt  time.Time         `json:"issued_at" gorm:"column:issued_at;not null"`
	ExpiresAt time.Time         `json:"expires_at" gorm:"column:expires_at;not null"`
	Revoked   bool              `json:"revoked" gorm:"not null;default:false"`
	CreatedAt time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (License) TableName() string { return "licenses" }

// ValidAt is the business-validity gate shared by binding and metering.
// Cryptographic authenticity of a presented credential proves possession,
// never current standing; standing is always re-read from the store.
func (l *License) ValidAt(now time.Time) error {
	if l.Revoked {
		return ErrRevoked
	}
	if now.After(l.ExpiresAt) {
		return ErrExpired
	}
	return nil
}

var (
	ErrNotFound        = errors.New("license_not_found")
	ErrRevoked         = errors.New("license_revoked")
	ErrExpired         = errors.New("license_expired")
	ErrInvalidProject  = errors.New("invalid_project")
	ErrInvalidType     = errors.New("invalid_type")
	ErrInvalidDuration = errors.New("invalid_duration")
	ErrInvalidSeats    = errors.New("invalid_seats")
	ErrInvalidID       = errors.New("invalid_id")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
