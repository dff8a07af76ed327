package repository

import (
	"context"

	coupondomain "github.com/keyforge/keyforge/internal/coupon/domain"
	"github.com/keyforge/keyforge/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() coupondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, c *coupondomain.Coupon) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO coupons (code, project_id, duration_days, quotas, max_uses, current_uses, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Code,
		c.ProjectID,
		c.DurationDays,
		c.Quotas,
		c.MaxUses,
		c.CurrentUses,
		c.ExpiresAt,
		c.CreatedAt,
	).Error
}

func (r *repo) FindByCode(ctx context.Context, conn *gorm.DB, code, projectID string) (*coupondomain.Coupon, error) {
	var coupon coupondomain.Coupon
	err := conn.WithContext(ctx).Raw(
		`SELECT code, project_id, duration_days, quotas, max_uses, current_uses, expires_at, created_at
		 FROM coupons WHERE code = ? AND project_id = ?`,
		code,
		projectID,
	).Scan(&coupon).Error
	if err != nil {
		return nil, err
	}
	if coupon.Code == "" {
		return nil, nil
	}
	return &coupon, nil
}

func (r *repo) ClaimUse(ctx context.Context, conn *gorm.DB, code, projectID string) (bool, error) {
	increment := db.ConditionedIncrement{
		Table:     "coupons",
		Column:    "current_uses",
		Delta:     1,
		Where:     "code = ? AND project_id = ?",
		WhereArgs: []any{code, projectID},
		Guard:     "current_uses + 1 <= max_uses",
	}
	return increment.Apply(ctx, conn)
}
