package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/keyforge/keyforge/internal/clock"
	"github.com/keyforge/keyforge/internal/config"
	licensedomain "github.com/keyforge/keyforge/internal/license/domain"
	"github.com/keyforge/keyforge/internal/metrics"
	tokendomain "github.com/keyforge/keyforge/internal/token/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Codec   tokendomain.Codec
	Repo    licensedomain.Repository
	Policy  *config.PolicyHolder
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	codec   tokendomain.Codec
	repo    licensedomain.Repository
	policy  *config.PolicyHolder
	metrics *metrics.Metrics
}

func New(p ServiceParam) licensedomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("license.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		codec:   p.Codec,
		repo:    p.Repo,
		policy:  p.Policy,
		metrics: p.Metrics,
	}
}

func (s *Service) Issue(ctx context.Context, req licensedomain.IssueRequest) ([]licensedomain.IssuedLicense, error) {
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		return nil, licensedomain.ErrInvalidProject
	}
	if req.Type != licensedomain.TypeIndividual && req.Type != licensedomain.TypeSeat {
		return nil, licensedomain.ErrInvalidType
	}
	if req.DurationDays <= 0 {
		return nil, licensedomain.ErrInvalidDuration
	}

	seats := req.Seats
	if seats == 0 {
		seats = 1
	}
	if seats < 1 || (req.Type == licensedomain.TypeIndividual && seats != 1) {
		return nil, licensedomain.ErrInvalidSeats
	}

	now := s.clock.Now()
	expiresAt := now.Add(time.Duration(req.DurationDays) * 24 * time.Hour)

	issued := make([]licensedomain.IssuedLicense, 0, seats)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for i := 0; i < seats; i++ {
			license := &licensedomain.License{
				ID:        s.genID.Generate(),
				ProjectID: projectID,
				Type:      req.Type,
				Quotas:    req.Quotas,
				Metadata:  req.Metadata,
				IssuedAt:  now,
				ExpiresAt: expiresAt,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.repo.Insert(ctx, tx, license); err != nil {
				return err
			}

			token, err := s.codec.Issue(tokendomain.NewLicenseClaims(
				projectID, license.ID.String(), license.Type, now, s.tokenExpiry(now, expiresAt),
			))
			if err != nil {
				return err
			}

			issued = append(issued, licensedomain.IssuedLicense{
				ID:        license.ID.String(),
				ProjectID: license.ProjectID,
				Type:      license.Type,
				Quotas:    license.Quotas,
				Metadata:  license.Metadata,
				IssuedAt:  license.IssuedAt,
				ExpiresAt: license.ExpiresAt,
				Token:     token,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("licenses issued",
		zap.String("project_id", projectID),
		zap.String("type", req.Type),
		zap.Int("seats", seats),
	)
	return issued, nil
}

// tokenExpiry caps the license token lifetime at the license expiry so a
// token can never outlive the entitlement it proves.
func (s *Service) tokenExpiry(now, licenseExpiry time.Time) time.Time {
	tokenExpiry := now.Add(s.policy.Current().LicenseTokenTTL)
	if tokenExpiry.After(licenseExpiry) {
		return licenseExpiry
	}
	return tokenExpiry
}

func (s *Service) Get(ctx context.Context, id string) (*licensedomain.License, error) {
	licenseID, err := licensedomain.ParseID(strings.TrimSpace(id))
	if err != nil || licenseID == 0 {
		return nil, licensedomain.ErrInvalidID
	}

	license, err := s.repo.FindByID(ctx, s.db, licenseID)
	if err != nil {
		return nil, err
	}
	if license == nil {
		return nil, licensedomain.ErrNotFound
	}
	return license, nil
}

func (s *Service) Revoke(ctx context.Context, id string) error {
	licenseID, err := licensedomain.ParseID(strings.TrimSpace(id))
	if err != nil || licenseID == 0 {
		return licensedomain.ErrInvalidID
	}

	// License flag and activation cascade commit together; a revoked
	// license with live activations must never be observable after return.
	err = s.db.Transaction(func(tx *gorm.DB) error {
		flipped, err := s.repo.MarkRevoked(ctx, tx, licenseID)
		if err != nil {
			return err
		}
		if !flipped {
			return licensedomain.ErrNotFound
		}
		return s.repo.MarkActivationsRevoked(ctx, tx, licenseID)
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.Revocations.Inc()
	}
	s.log.Info("license revoked", zap.String("license_id", licenseID.String()))
	return nil
}

func (s *Service) ListRevokedIDs(ctx context.Context, projectID string) ([]string, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, licensedomain.ErrInvalidProject
	}

	ids, err := s.repo.ListRevokedIDs(ctx, s.db, projectID)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out, nil
}
