// Package domain contains core types for bounded-use coupons.
package domain

import (
	"errors"
	"time"

	licensedomain "github.com/keyforge/keyforge/internal/license/domain"
)

// Coupon is a bounded-use code that mints a license from its plan template
// on redemption. current_uses <= max_uses holds at all times, including
// under concurrent redemption; the increment is conditioned at write time.
type Coupon struct {
	Code         string                  `json:"code" gorm:"primaryKey;type:text"`
	ProjectID    string                  `json:"project_id" gorm:"column:project_id;type:text;not null;index"`
	DurationDays int                     `json:"duration_days" gorm:"column:duration_days;not null"`
	Quotas       licensedomain.QuotaSpec `json:"quotas" gorm:"type:jsonb;not null"`
	MaxUses      int64                   `json:"max_uses" gorm:"column:max_uses;not null"`
	CurrentUses  int64                   `json:"current_uses" gorm:"column:current_uses;not null;default:0"`
	ExpiresAt    time.Time               `json:"expires_at" gorm:"column:expires_at;not null"`
	CreatedAt    time.Time               `json:"created_at" gorm:"not null"`
}

// TableName sets the database table name.
func (Coupon) TableName() string { return "coupons" }

var (
	ErrNotFound        = errors.New("coupon_not_found")
	ErrExpired         = errors.New("coupon_expired")
	ErrExhausted       = errors.New("coupon_exhausted")
	ErrInvalidMaxUses  = errors.New("invalid_max_uses")
	ErrInvalidExpiry   = errors.New("invalid_expiry")
	ErrInvalidCode     = errors.New("invalid_code")
	ErrInvalidDuration = errors.New("invalid_duration")
)
