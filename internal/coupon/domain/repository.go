package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, coupon *Coupon) error
	FindByCode(ctx context.Context, db *gorm.DB, code, projectID string) (*Coupon, error)
	// ClaimUse increments current_uses conditioned on max_uses still
	// holding at commit time. Reports false when the coupon is exhausted.
	ClaimUse(ctx context.Context, db *gorm.DB, code, projectID string) (bool, error)
}
