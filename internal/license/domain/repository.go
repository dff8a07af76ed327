package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, license *License) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*License, error)
	// MarkRevoked flips the one-way revoked flag; reports false when the
	// license does not exist.
	MarkRevoked(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
	// MarkActivationsRevoked cascades revocation to every activation under
	// the license. Callers run it in the same transaction as MarkRevoked.
	MarkActivationsRevoked(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	ListRevokedIDs(ctx context.Context, db *gorm.DB, projectID string) ([]snowflake.ID, error)
}
