package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/keyforge/keyforge/internal/activation/attest"
	activationdomain "github.com/keyforge/keyforge/internal/activation/domain"
	activationrepo "github.com/keyforge/keyforge/internal/activation/repository"
	"github.com/keyforge/keyforge/internal/clock"
	"github.com/keyforge/keyforge/internal/config"
	licensedomain "github.com/keyforge/keyforge/internal/license/domain"
	licenserepo "github.com/keyforge/keyforge/internal/license/repository"
	licenseservice "github.com/keyforge/keyforge/internal/license/service"
	tokendomain "github.com/keyforge/keyforge/internal/token/domain"
	tokenservice "github.com/keyforge/keyforge/internal/token/service"
	"go.uber.org/zap"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const testOrigin = "https://app.example.com"

type bindingFixture struct {
	activation activationdomain.Service
	license    licensedomain.Service
	codec      tokendomain.Codec
	clk        *clock.FakeClock
	db         *gorm.DB
}

func setupBinding(t *testing.T) *bindingFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = db.Exec("PRAGMA busy_timeout = 5000").Error
	prepareBindingSchema(t, db)

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	keys, err := tokenservice.NewTestKeyPair()
	if err != nil {
		t.Fatalf("key pair: %v", err)
	}
	codec := tokenservice.New(tokenservice.ServiceParam{
		Log:     zap.NewNop(),
		Clock:   clk,
		KeyPair: keys,
	})

	policy := config.DefaultPolicy()
	policy.AllowedOrigins = []string{testOrigin}
	holder := config.NewStaticPolicyHolder(policy)

	licenseSvc := licenseservice.New(licenseservice.ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Codec:  codec,
		Repo:   licenserepo.Provide(),
		Policy: holder,
	})

	activationSvc := New(ServiceParam{
		DB:         db,
		Log:        zap.NewNop(),
		GenID:      node,
		Clock:      clk,
		Codec:      codec,
		Repo:       activationrepo.Provide(),
		LicenseSvc: licenseSvc,
		Policy:     holder,
	})

	return &bindingFixture{
		activation: activationSvc,
		license:    licenseSvc,
		codec:      codec,
		clk:        clk,
		db:         db,
	}
}

func prepareBindingSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	statements := []string{
		`CREATE TABLE licenses (
			id BIGINT PRIMARY KEY,
			project_id TEXT NOT NULL,
			type TEXT NOT NULL,
			quotas JSON NOT NULL DEFAULT '{}',
			metadata JSON,
			issued_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			revoked BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE activation_sessions (
			id BIGINT PRIMARY KEY,
			license_id BIGINT NOT NULL,
			challenge TEXT NOT NULL,
			device_name TEXT,
			device_platform TEXT,
			created_at DATETIME NOT NULL,
			expires_at DATETIME NOT NULL,
			consumed_at DATETIME
		)`,
		`CREATE TABLE activations (
			id BIGINT PRIMARY KEY,
			license_id BIGINT NOT NULL,
			device_id BIGINT NOT NULL,
			credential_public_key BLOB NOT NULL,
			credential_fingerprint TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			last_seen_at DATETIME NOT NULL,
			revoked BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX ux_activations_license ON activations (license_id)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("prepare schema: %v", err)
		}
	}
}

// device simulates a client holding a credential private key.
type device struct {
	key *ecdsa.PrivateKey
}

func newDevice(t *testing.T) *device {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate device key: %v", err)
	}
	return &device{key: key}
}

// attest answers a challenge the way a client authenticator would.
func (d *device) attest(t *testing.T, challenge string) activationdomain.AttestationResponse {
	t.Helper()
	raw, err := json.Marshal(map[string]string{
		"type":      attest.CeremonyType,
		"challenge": challenge,
		"origin":    testOrigin,
	})
	if err != nil {
		t.Fatalf("marshal client data: %v", err)
	}
	digest := sha256.Sum256(raw)
	sig, err := ecdsa.SignASN1(rand.Reader, d.key, digest[:])
	if err != nil {
		t.Fatalf("sign client data: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&d.key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return activationdomain.AttestationResponse{
		PublicKey:  base64.StdEncoding.EncodeToString(der),
		ClientData: base64.StdEncoding.EncodeToString(raw),
		Signature:  base64.StdEncoding.EncodeToString(sig),
	}
}

func issueLicense(t *testing.T, f *bindingFixture) licensedomain.IssuedLicense {
	t.Helper()
	issued, err := f.license.Issue(context.Background(), licensedomain.IssueRequest{
		ProjectID:    "proj-1",
		Type:         licensedomain.TypeIndividual,
		DurationDays: 30,
	})
	if err != nil {
		t.Fatalf("issue license: %v", err)
	}
	return issued[0]
}

func TestBindDevice(t *testing.T) {
	f := setupBinding(t)
	ctx := context.Background()
	issued := issueLicense(t, f)
	dev := newDevice(t)

	start, err := f.activation.Start(ctx, activationdomain.StartRequest{
		ProjectID:    "proj-1",
		LicenseToken: issued.Token,
		DeviceInfo:   activationdomain.DeviceInfo{Name: "laptop", Platform: "darwin"},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if start.Options.Challenge == "" {
		t.Fatal("expected a challenge")
	}
	if start.Options.UserHandle != issued.ID {
		t.Fatalf("expected user handle %s, got %s", issued.ID, start.Options.UserHandle)
	}

	finish, err := f.activation.Finish(ctx, activationdomain.FinishRequest{
		ActivationID: start.ActivationID,
		Attestation:  dev.attest(t, start.Options.Challenge),
	})
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if finish.LicenseID != issued.ID {
		t.Fatalf("expected license %s, got %s", issued.ID, finish.LicenseID)
	}

	claims, err := f.codec.Verify(finish.Certificate)
	if err != nil {
		t.Fatalf("verify certificate: %v", err)
	}
	if claims.Kind != tokendomain.KindActivation {
		t.Fatalf("expected activation certificate, got kind %q", claims.Kind)
	}
	if claims.Level != tokendomain.LevelDevice {
		t.Fatalf("expected device level, got %q", claims.Level)
	}
	if claims.DeviceID != finish.DeviceID {
		t.Fatalf("certificate device %q does not match binding %q", claims.DeviceID, finish.DeviceID)
	}
}

func TestStartRejectsWrongProject(t *testing.T) {
	f := setupBinding(t)
	issued := issueLicense(t, f)

	_, err := f.activation.Start(context.Background(), activationdomain.StartRequest{
		ProjectID:    "proj-2",
		LicenseToken: issued.Token,
	})
	if err != activationdomain.ErrProjectMismatch {
		t.Fatalf("expected project_mismatch, got %v", err)
	}
}

func TestStartRejectsActivationCertificate(t *testing.T) {
	f := setupBinding(t)
	ctx := context.Background()
	issued := issueLicense(t, f)
	dev := newDevice(t)

	start, err := f.activation.Start(ctx, activationdomain.StartRequest{
		ProjectID:    "proj-1",
		LicenseToken: issued.Token,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	finish, err := f.activation.Finish(ctx, activationdomain.FinishRequest{
		ActivationID: start.ActivationID,
		Attestation:  dev.attest(t, start.Options.Challenge),
	})
	if err != nil {
		t.Fatalf("finish: %v", err)
	}

	// A certificate is not a license token; kinds do not interchange.
	_, err = f.activation.Start(ctx, activationdomain.StartRequest{
		ProjectID:    "proj-1",
		LicenseToken: finish.Certificate,
	})
	if err != tokendomain.ErrVerificationFailed {
		t.Fatalf("expected verification_failed, got %v", err)
	}
}

func TestStartHidesRevokedLicense(t *testing.T) {
	f := setupBinding(t)
	ctx := context.Background()
	issued := issueLicense(t, f)

	if err := f.license.Revoke(ctx, issued.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	_, err := f.activation.Start(ctx, activationdomain.StartRequest{
		ProjectID:    "proj-1",
		LicenseToken: issued.Token,
	})
	if err != licensedomain.ErrNotFound {
		t.Fatalf("expected license_not_found for revoked license, got %v", err)
	}
}

func TestFinishRejectsExpiredSession(t *testing.T) {
	f := setupBinding(t)
	ctx := context.Background()
	issued := issueLicense(t, f)
	dev := newDevice(t)

	start, err := f.activation.Start(ctx, activationdomain.StartRequest{
		ProjectID:    "proj-1",
		LicenseToken: issued.Token,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	f.clk.Advance(config.DefaultPolicy().SessionTTL + time.Minute)
	_, err = f.activation.Finish(ctx, activationdomain.FinishRequest{
		ActivationID: start.ActivationID,
		Attestation:  dev.attest(t, start.Options.Challenge),
	})
	if err != activationdomain.ErrSessionExpired {
		t.Fatalf("expected session_expired, got %v", err)
	}
}

func TestFinishSessionSingleUse(t *testing.T) {
	f := setupBinding(t)
	ctx := context.Background()
	issued := issueLicense(t, f)
	dev := newDevice(t)

	start, err := f.activation.Start(ctx, activationdomain.StartRequest{
		ProjectID:    "proj-1",
		LicenseToken: issued.Token,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	attestation := dev.attest(t, start.Options.Challenge)

	if _, err := f.activation.Finish(ctx, activationdomain.FinishRequest{
		ActivationID: start.ActivationID,
		Attestation:  attestation,
	}); err != nil {
		t.Fatalf("first finish: %v", err)
	}

	_, err = f.activation.Finish(ctx, activationdomain.FinishRequest{
		ActivationID: start.ActivationID,
		Attestation:  attestation,
	})
	if err != activationdomain.ErrSessionConsumed {
		t.Fatalf("expected session_consumed on replay, got %v", err)
	}
}

func TestFinishRejectsBadAttestation(t *testing.T) {
	f := setupBinding(t)
	ctx := context.Background()
	issued := issueLicense(t, f)
	dev := newDevice(t)

	start, err := f.activation.Start(ctx, activationdomain.StartRequest{
		ProjectID:    "proj-1",
		LicenseToken: issued.Token,
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Signed over a challenge from a different ceremony.
	_, err = f.activation.Finish(ctx, activationdomain.FinishRequest{
		ActivationID: start.ActivationID,
		Attestation:  dev.attest(t, "some-other-challenge"),
	})
	if err != activationdomain.ErrAttestationFailed {
		t.Fatalf("expected attestation_failed, got %v", err)
	}
}

func TestSecondDeviceRejected(t *testing.T) {
	f := setupBinding(t)
	ctx := context.Background()
	issued := issueLicense(t, f)
	first := newDevice(t)
	second := newDevice(t)

	start, err := f.activation.Start(ctx, activationdomain.StartRequest{
		ProjectID:    "proj-1",
		LicenseToken: issued.Token,
	})
	if err != nil {
		t.Fatalf("start first: %v", err)
	}
	if _, err := f.activation.Finish(ctx, activationdomain.FinishRequest{
		ActivationID: start.ActivationID,
		Attestation:  first.attest(t, start.Options.Challenge),
	}); err != nil {
		t.Fatalf("finish first: %v", err)
	}

	start2, err := f.activation.Start(ctx, activationdomain.StartRequest{
		ProjectID:    "proj-1",
		LicenseToken: issued.Token,
	})
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	_, err = f.activation.Finish(ctx, activationdomain.FinishRequest{
		ActivationID: start2.ActivationID,
		Attestation:  second.attest(t, start2.Options.Challenge),
	})
	if err != activationdomain.ErrAlreadyBound {
		t.Fatalf("expected license_already_bound, got %v", err)
	}
}

func TestSameDeviceRebindIsIdempotent(t *testing.T) {
	f := setupBinding(t)
	ctx := context.Background()
	issued := issueLicense(t, f)
	dev := newDevice(t)

	start, err := f.activation.Start(ctx, activationdomain.StartRequest{
		ProjectID:    "proj-1",
		LicenseToken: issued.Token,
	})
	if err != nil {
		t.Fatalf("start first: %v", err)
	}
	first, err := f.activation.Finish(ctx, activationdomain.FinishRequest{
		ActivationID: start.ActivationID,
		Attestation:  dev.attest(t, start.Options.Challenge),
	})
	if err != nil {
		t.Fatalf("finish first: %v", err)
	}

	start2, err := f.activation.Start(ctx, activationdomain.StartRequest{
		ProjectID:    "proj-1",
		LicenseToken: issued.Token,
	})
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	second, err := f.activation.Finish(ctx, activationdomain.FinishRequest{
		ActivationID: start2.ActivationID,
		Attestation:  dev.attest(t, start2.Options.Challenge),
	})
	if err != nil {
		t.Fatalf("rebind same device: %v", err)
	}
	if second.DeviceID != first.DeviceID {
		t.Fatalf("expected stable device id, got %s then %s", first.DeviceID, second.DeviceID)
	}

	var count int
	if err := f.db.Raw(`SELECT COUNT(1) FROM activations`).Scan(&count).Error; err != nil {
		t.Fatalf("count activations: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single binding row, got %d", count)
	}
}
