package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/bwmarrin/snowflake"
	activationdomain "github.com/keyforge/keyforge/internal/activation/domain"
	"github.com/keyforge/keyforge/internal/clock"
	"github.com/keyforge/keyforge/internal/config"
	ledgerdomain "github.com/keyforge/keyforge/internal/ledger/domain"
	licensedomain "github.com/keyforge/keyforge/internal/license/domain"
	"github.com/keyforge/keyforge/internal/metrics"
	tokendomain "github.com/keyforge/keyforge/internal/token/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Codec          tokendomain.Codec
	Repo           ledgerdomain.Repository
	ActivationRepo activationdomain.Repository
	LicenseSvc     licensedomain.Service
	Policy         *config.PolicyHolder
	Metrics        *metrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	codec          tokendomain.Codec
	repo           ledgerdomain.Repository
	activationRepo activationdomain.Repository
	licensesvc     licensedomain.Service
	policy         *config.PolicyHolder
	metrics        *metrics.Metrics
}

func New(p ServiceParam) ledgerdomain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("ledger.service"),
		genID:          p.GenID,
		clock:          p.Clock,
		codec:          p.Codec,
		repo:           p.Repo,
		activationRepo: p.ActivationRepo,
		licensesvc:     p.LicenseSvc,
		policy:         p.Policy,
		metrics:        p.Metrics,
	}
}

func (s *Service) Meter(ctx context.Context, req ledgerdomain.MeterRequest) (*ledgerdomain.MeterResult, error) {
	bucket := strings.TrimSpace(req.Bucket)
	if bucket == "" {
		return nil, ledgerdomain.ErrInvalidBucket
	}
	if req.Cost <= 0 {
		return nil, ledgerdomain.ErrInvalidCost
	}

	license, activation, err := s.admitCertificate(ctx, req.Certificate)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	dayKey := ledgerdomain.DayKey(now)
	limit, limited := license.Quotas.LimitFor(bucket, s.policy.Current().DefaultDailyLimit)

	record := &ledgerdomain.UsageRecord{
		ID:         s.genID.Generate(),
		LicenseID:  license.ID,
		DeviceID:   activation.DeviceID,
		Bucket:     bucket,
		Cost:       req.Cost,
		MinuteKey:  ledgerdomain.MinuteKey(now),
		DayKey:     dayKey,
		MonthKey:   ledgerdomain.MonthKey(now),
		RecordedAt: now,
	}

	// The counter row is the serialization point: the conditioned
	// increment and the record append commit together, so concurrent
	// meters on one window can never jointly overshoot.
	admitted := false
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.EnsureCounter(ctx, tx, license.ID, bucket, dayKey); err != nil {
			return err
		}
		ok, err := s.repo.Admit(ctx, tx, license.ID, bucket, dayKey, req.Cost, limit, limited)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		admitted = true
		return s.repo.InsertRecord(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}

	result := &ledgerdomain.MeterResult{
		Admitted: admitted,
		Limited:  limited,
	}
	if limited {
		used, err := s.repo.CounterUsed(ctx, s.db, license.ID, bucket, dayKey)
		if err != nil {
			return nil, err
		}
		result.Limit = limit
		result.Remaining = max(limit-used, 0)
		result.ResetAt = ledgerdomain.NextDayStart(now)
	}

	if s.metrics != nil {
		if admitted {
			s.metrics.MeterAdmitted.WithLabelValues(bucket).Inc()
		} else {
			s.metrics.MeterDenied.WithLabelValues(bucket).Inc()
		}
	}
	if !admitted {
		s.log.Debug("usage denied",
			zap.String("license_id", license.ID.String()),
			zap.String("bucket", bucket),
			zap.Int64("remaining", result.Remaining),
		)
	}

	return result, nil
}

func (s *Service) Heartbeat(ctx context.Context, req ledgerdomain.HeartbeatRequest) error {
	license, activation, err := s.admitCertificate(ctx, req.Certificate)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if err := s.activationRepo.TouchLastSeen(ctx, s.db, license.ID, activation.DeviceID, now); err != nil {
		return err
	}

	if hashed := strings.TrimSpace(req.HashedUserID); hashed != "" {
		// Re-hash whatever the client sent; the raw value never reaches
		// storage regardless of what the client claims it is.
		sum := sha256.Sum256([]byte(hashed))
		err := s.repo.InsertSighting(ctx, s.db, &ledgerdomain.UserSighting{
			LicenseID:   license.ID,
			DeviceID:    activation.DeviceID,
			UserHash:    hex.EncodeToString(sum[:]),
			FirstSeenAt: now,
		})
		if err != nil {
			return err
		}
	}

	if s.metrics != nil {
		s.metrics.Heartbeats.Inc()
	}
	return nil
}

// admitCertificate is the shared privileged-call gate: cryptographic
// verification of the certificate, then business validity re-read from the
// store on every call.
func (s *Service) admitCertificate(ctx context.Context, raw string) (*licensedomain.License, *activationdomain.Activation, error) {
	claims, err := s.codec.Verify(raw)
	if err != nil {
		return nil, nil, err
	}
	if claims.Kind != tokendomain.KindActivation || claims.Level != tokendomain.LevelDevice {
		return nil, nil, tokendomain.ErrVerificationFailed
	}

	deviceID, err := snowflake.ParseString(claims.DeviceID)
	if err != nil || deviceID == 0 {
		return nil, nil, ledgerdomain.ErrInvalidCertificate
	}

	license, err := s.licensesvc.Get(ctx, claims.LicenseID())
	if err != nil {
		return nil, nil, err
	}
	if err := license.ValidAt(s.clock.Now()); err != nil {
		return nil, nil, err
	}

	activation, err := s.activationRepo.FindByLicenseAndDevice(ctx, s.db, license.ID, deviceID)
	if err != nil {
		return nil, nil, err
	}
	if activation == nil {
		return nil, nil, activationdomain.ErrNotFound
	}
	if activation.Revoked {
		return nil, nil, licensedomain.ErrRevoked
	}
	return license, activation, nil
}
