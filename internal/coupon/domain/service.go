package domain

import (
	"context"
	"time"

	licensedomain "github.com/keyforge/keyforge/internal/license/domain"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Coupon, error)
	// Redeem atomically claims one use and mints a license from the plan
	// template. Losing the last-use race yields ErrExhausted and mints
	// nothing.
	Redeem(ctx context.Context, code, projectID string) (*Redemption, error)
}

type CreateRequest struct {
	ProjectID    string                  `json:"project_id"`
	DurationDays int                     `json:"duration_days"`
	Quotas       licensedomain.QuotaSpec `json:"quotas"`
	MaxUses      int64                   `json:"max_uses"`
	ExpiresAt    time.Time               `json:"expires_at"`
}

type Redemption struct {
	LicenseID    string    `json:"license_id"`
	ProjectID    string    `json:"project_id"`
	ExpiresAt    time.Time `json:"expires_at"`
	LicenseToken string    `json:"license_token"`
}
