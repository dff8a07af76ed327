package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	licensedomain "github.com/keyforge/keyforge/internal/license/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() licensedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, l *licensedomain.License) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO licenses (id, project_id, type, quotas, metadata, issued_at, expires_at, revoked, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID,
		l.ProjectID,
		l.Type,
		l.Quotas,
		l.Metadata,
		l.IssuedAt,
		l.ExpiresAt,
		l.Revoked,
		l.CreatedAt,
		l.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*licensedomain.License, error) {
	var license licensedomain.License
	err := db.WithContext(ctx).Raw(
		`SELECT id, project_id, type, quotas, metadata, issued_at, expires_at, revoked, created_at, updated_at
		 FROM licenses WHERE id = ?`,
		id,
	).Scan(&license).Error
	if err != nil {
		return nil, err
	}
	if license.ID == 0 {
		return nil, nil
	}
	return &license, nil
}

func (r *repo) MarkRevoked(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE licenses SET revoked = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		true,
		id,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkActivationsRevoked(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`UPDATE activations SET revoked = ?, updated_at = CURRENT_TIMESTAMP WHERE license_id = ?`,
		true,
		id,
	).Error
}

func (r *repo) ListRevokedIDs(ctx context.Context, db *gorm.DB, projectID string) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM licenses WHERE project_id = ? AND revoked = ? ORDER BY id ASC`,
		projectID,
		true,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
