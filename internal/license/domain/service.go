package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
)

type Service interface {
	Issue(ctx context.Context, req IssueRequest) ([]IssuedLicense, error)
	Get(ctx context.Context, id string) (*License, error)
	// Revoke flips the license and cascades to its activations atomically.
	Revoke(ctx context.Context, id string) error
	ListRevokedIDs(ctx context.Context, projectID string) ([]string, error)
}

type IssueRequest struct {
	ProjectID    string            `json:"project_id"`
	Type         string            `json:"type"`
	DurationDays int               `json:"duration_days"`
	Quotas       QuotaSpec         `json:"quotas"`
	Seats        int               `json:"seats"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
}

// IssuedLicense pairs a freshly created license with its signed token.
type IssuedLicense struct {
	ID        string            `json:"id"`
	ProjectID string            `json:"project_id"`
	Type      string            `json:"type"`
	Quotas    QuotaSpec         `json:"quotas"`
	Metadata  datatypes.JSONMap `json:"metadata,omitempty"`
	IssuedAt  time.Time         `json:"issued_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Token     string            `json:"token"`
}
