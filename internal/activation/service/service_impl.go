package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/keyforge/keyforge/internal/activation/attest"
	activationdomain "github.com/keyforge/keyforge/internal/activation/domain"
	"github.com/keyforge/keyforge/internal/clock"
	"github.com/keyforge/keyforge/internal/config"
	licensedomain "github.com/keyforge/keyforge/internal/license/domain"
	"github.com/keyforge/keyforge/internal/metrics"
	tokendomain "github.com/keyforge/keyforge/internal/token/domain"
	"github.com/keyforge/keyforge/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const challengeBytes = 32

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Codec      tokendomain.Codec
	Repo       activationdomain.Repository
	LicenseSvc licensedomain.Service
	Policy     *config.PolicyHolder
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	codec      tokendomain.Codec
	repo       activationdomain.Repository
	licensesvc licensedomain.Service
	policy     *config.PolicyHolder
	metrics    *metrics.Metrics
}

func New(p ServiceParam) activationdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("activation.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		codec:      p.Codec,
		repo:       p.Repo,
		licensesvc: p.LicenseSvc,
		policy:     p.Policy,
		metrics:    p.Metrics,
	}
}

func (s *Service) Start(ctx context.Context, req activationdomain.StartRequest) (*activationdomain.StartResponse, error) {
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		return nil, licensedomain.ErrInvalidProject
	}

	claims, err := s.codec.Verify(req.LicenseToken)
	if err != nil {
		return nil, err
	}
	if claims.Kind != tokendomain.KindLicense {
		return nil, tokendomain.ErrVerificationFailed
	}
	if claims.ProjectID() != projectID {
		return nil, activationdomain.ErrProjectMismatch
	}

	license, err := s.licensesvc.Get(ctx, claims.LicenseID())
	if err != nil {
		return nil, err
	}
	// A revoked license is indistinguishable from a missing one here.
	if err := license.ValidAt(s.clock.Now()); err != nil {
		if errors.Is(err, licensedomain.ErrRevoked) {
			return nil, licensedomain.ErrNotFound
		}
		return nil, err
	}

	challenge, err := newChallenge()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	policy := s.policy.Current()
	session := &activationdomain.ActivationSession{
		ID:             s.genID.Generate(),
		LicenseID:      license.ID,
		Challenge:      challenge,
		DeviceName:     strings.TrimSpace(req.DeviceInfo.Name),
		DevicePlatform: strings.TrimSpace(req.DeviceInfo.Platform),
		CreatedAt:      now,
		ExpiresAt:      now.Add(policy.SessionTTL),
	}
	if err := s.repo.InsertSession(ctx, s.db, session); err != nil {
		return nil, err
	}

	s.log.Info("binding session started",
		zap.String("license_id", license.ID.String()),
		zap.String("session_id", session.ID.String()),
	)

	return &activationdomain.StartResponse{
		ActivationID: session.ID.String(),
		Options: activationdomain.ChallengeOptions{
			Challenge:      challenge,
			RelyingPartyID: policy.RelyingPartyID,
			UserHandle:     license.ID.String(),
			TimeoutMillis:  policy.SessionTTL.Milliseconds(),
		},
	}, nil
}

func (s *Service) Finish(ctx context.Context, req activationdomain.FinishRequest) (*activationdomain.FinishResponse, error) {
	sessionID, err := snowflake.ParseString(strings.TrimSpace(req.ActivationID))
	if err != nil || sessionID == 0 {
		return nil, activationdomain.ErrSessionNotFound
	}

	session, err := s.repo.FindSession(ctx, s.db, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, activationdomain.ErrSessionNotFound
	}
	if session.ConsumedAt != nil {
		return nil, activationdomain.ErrSessionConsumed
	}

	now := s.clock.Now()
	if now.After(session.ExpiresAt) {
		return nil, activationdomain.ErrSessionExpired
	}

	credential, err := attest.Verify(attest.Response{
		PublicKey:  req.Attestation.PublicKey,
		ClientData: req.Attestation.ClientData,
		Signature:  req.Attestation.Signature,
	}, session.Challenge, s.policy.Current().AllowedOrigins)
	if err != nil {
		s.log.Debug("attestation rejected",
			zap.String("session_id", sessionID.String()),
			zap.Error(err),
		)
		return nil, activationdomain.ErrAttestationFailed
	}

	license, err := s.licensesvc.Get(ctx, session.LicenseID.String())
	if err != nil {
		return nil, err
	}
	if err := license.ValidAt(now); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByLicense(ctx, s.db, license.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.CredentialFingerprint != credential.Fingerprint {
		return nil, activationdomain.ErrAlreadyBound
	}

	var activation *activationdomain.Activation
	err = s.db.Transaction(func(tx *gorm.DB) error {
		consumed, err := s.repo.ConsumeSession(ctx, tx, sessionID, now)
		if err != nil {
			return err
		}
		if !consumed {
			return activationdomain.ErrSessionConsumed
		}

		if existing != nil {
			// Same device re-binding is an idempotent refresh.
			activation = existing
			return s.repo.TouchLastSeen(ctx, tx, license.ID, existing.DeviceID, now)
		}

		activation = &activationdomain.Activation{
			ID:                    s.genID.Generate(),
			LicenseID:             license.ID,
			DeviceID:              s.genID.Generate(),
			CredentialPublicKey:   credential.PublicKeyDER,
			CredentialFingerprint: credential.Fingerprint,
			CreatedAt:             now,
			LastSeenAt:            now,
			UpdatedAt:             now,
		}
		if err := s.repo.InsertActivation(ctx, tx, activation); err != nil {
			// A concurrent Finish for another device won the unique
			// license binding.
			if db.IsDuplicateKeyErr(err) {
				return activationdomain.ErrAlreadyBound
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	certificate, err := s.codec.Issue(tokendomain.NewActivationClaims(
		license.ProjectID,
		license.ID.String(),
		activation.DeviceID.String(),
		now,
		now.Add(s.policy.Current().CertificateLifetime),
	))
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Activations.Inc()
	}
	s.log.Info("device bound",
		zap.String("license_id", license.ID.String()),
		zap.String("device_id", activation.DeviceID.String()),
	)

	return &activationdomain.FinishResponse{
		LicenseID:   license.ID.String(),
		DeviceID:    activation.DeviceID.String(),
		Certificate: certificate,
	}, nil
}

func newChallenge() (string, error) {
	buf := make([]byte, challengeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate challenge: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
