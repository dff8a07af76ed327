package service

import (
	"context"
	"crypto/rand"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/keyforge/keyforge/internal/clock"
	"github.com/keyforge/keyforge/internal/config"
	coupondomain "github.com/keyforge/keyforge/internal/coupon/domain"
	licensedomain "github.com/keyforge/keyforge/internal/license/domain"
	"github.com/keyforge/keyforge/internal/metrics"
	tokendomain "github.com/keyforge/keyforge/internal/token/domain"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Codec       tokendomain.Codec
	Repo        coupondomain.Repository
	LicenseRepo licensedomain.Repository
	Policy      *config.PolicyHolder
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	codec       tokendomain.Codec
	repo        coupondomain.Repository
	licenserepo licensedomain.Repository
	policy      *config.PolicyHolder
	metrics     *metrics.Metrics
}

func New(p ServiceParam) coupondomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("coupon.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		codec:       p.Codec,
		repo:        p.Repo,
		licenserepo: p.LicenseRepo,
		policy:      p.Policy,
		metrics:     p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req coupondomain.CreateRequest) (*coupondomain.Coupon, error) {
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		return nil, licensedomain.ErrInvalidProject
	}
	if req.DurationDays <= 0 {
		return nil, coupondomain.ErrInvalidDuration
	}
	if req.MaxUses < 1 {
		return nil, coupondomain.ErrInvalidMaxUses
	}

	now := s.clock.Now()
	if !req.ExpiresAt.After(now) {
		return nil, coupondomain.ErrInvalidExpiry
	}

	code, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return nil, err
	}

	coupon := &coupondomain.Coupon{
		Code:         code.String(),
		ProjectID:    projectID,
		DurationDays: req.DurationDays,
		Quotas:       req.Quotas,
		MaxUses:      req.MaxUses,
		ExpiresAt:    req.ExpiresAt.UTC(),
		CreatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, coupon); err != nil {
		return nil, err
	}

	s.log.Info("coupon created",
		zap.String("project_id", projectID),
		zap.Int64("max_uses", req.MaxUses),
	)
	return coupon, nil
}

func (s *Service) Redeem(ctx context.Context, code, projectID string) (*coupondomain.Redemption, error) {
	code = strings.TrimSpace(code)
	projectID = strings.TrimSpace(projectID)
	if code == "" {
		return nil, coupondomain.ErrInvalidCode
	}
	if projectID == "" {
		return nil, licensedomain.ErrInvalidProject
	}

	now := s.clock.Now()

	var license *licensedomain.License
	err := s.db.Transaction(func(tx *gorm.DB) error {
		coupon, err := s.repo.FindByCode(ctx, tx, code, projectID)
		if err != nil {
			return err
		}
		if coupon == nil {
			return coupondomain.ErrNotFound
		}
		if now.After(coupon.ExpiresAt) {
			return coupondomain.ErrExpired
		}

		// The early-read exhaustion check is a fast path only; the
		// conditioned claim below is what actually decides the race.
		if coupon.CurrentUses >= coupon.MaxUses {
			return coupondomain.ErrExhausted
		}
		claimed, err := s.repo.ClaimUse(ctx, tx, code, projectID)
		if err != nil {
			return err
		}
		if !claimed {
			return coupondomain.ErrExhausted
		}

		license = &licensedomain.License{
			ID:        s.genID.Generate(),
			ProjectID: projectID,
			Type:      licensedomain.TypeIndividual,
			Quotas:    coupon.Quotas,
			IssuedAt:  now,
			ExpiresAt: now.Add(time.Duration(coupon.DurationDays) * 24 * time.Hour),
			CreatedAt: now,
			UpdatedAt: now,
		}
		return s.licenserepo.Insert(ctx, tx, license)
	})
	if err != nil {
		return nil, err
	}

	tokenExpiry := now.Add(s.policy.Current().LicenseTokenTTL)
	if tokenExpiry.After(license.ExpiresAt) {
		tokenExpiry = license.ExpiresAt
	}
	token, err := s.codec.Issue(tokendomain.NewLicenseClaims(
		projectID, license.ID.String(), license.Type, now, tokenExpiry,
	))
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Redemptions.Inc()
	}
	s.log.Info("coupon redeemed",
		zap.String("project_id", projectID),
		zap.String("license_id", license.ID.String()),
	)

	return &coupondomain.Redemption{
		LicenseID:    license.ID.String(),
		ProjectID:    projectID,
		ExpiresAt:    license.ExpiresAt,
		LicenseToken: token,
	}, nil
}
