package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/keyforge/keyforge/internal/clock"
	"github.com/keyforge/keyforge/internal/config"
	licensedomain "github.com/keyforge/keyforge/internal/license/domain"
	licenserepo "github.com/keyforge/keyforge/internal/license/repository"
	tokendomain "github.com/keyforge/keyforge/internal/token/domain"
	tokenservice "github.com/keyforge/keyforge/internal/token/service"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupLicenseService(t *testing.T, clk clock.Clock) (licensedomain.Service, tokendomain.Codec, *gorm.DB) {
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
	prepareLicenseSchema(t, db)

	node := mustNode(t)
	keys, err := tokenservice.NewTestKeyPair()
	if err != nil {
		t.Fatalf("key pair: %v", err)
	}
	codec := tokenservice.New(tokenservice.ServiceParam{
		Log:     zap.NewNop(),
		Clock:   clk,
		KeyPair: keys,
	})

	service := New(ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Codec:  codec,
		Repo:   licenserepo.Provide(),
		Policy: config.NewStaticPolicyHolder(config.DefaultPolicy()),
	})
	return service, codec, db
}

func prepareLicenseSchema(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`CREATE TABLE licenses (
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
	)`).Error; err != nil {
		t.Fatalf("create licenses: %v", err)
	}
	if err := db.Exec(`CREATE TABLE activations (
		id BIGINT PRIMARY KEY,
		license_id BIGINT NOT NULL,
		device_id BIGINT NOT NULL,
		credential_public_key BLOB NOT NULL,
		credential_fingerprint TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		last_seen_at DATETIME NOT NULL,
		revoked BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at DATETIME NOT NULL
	)`).Error; err != nil {
		t.Fatalf("create activations: %v", err)
	}
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func TestIssueIndividualLicense(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	service, codec, _ := setupLicenseService(t, clock.NewFakeClock(now))

	issued, err := service.Issue(context.Background(), licensedomain.IssueRequest{
		ProjectID:    "proj-1",
		Type:         licensedomain.TypeIndividual,
		DurationDays: 30,
		Quotas:       licensedomain.QuotaSpec{Daily: 100},
		Metadata:     datatypes.JSONMap{"order_ref": "ord-42"},
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(issued) != 1 {
		t.Fatalf("expected 1 license, got %d", len(issued))
	}

	claims, err := codec.Verify(issued[0].Token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if claims.Kind != tokendomain.KindLicense {
		t.Fatalf("expected license token, got kind %q", claims.Kind)
	}
	if claims.LicenseID() != issued[0].ID {
		t.Fatalf("token subject %q does not match license %q", claims.LicenseID(), issued[0].ID)
	}

	got, err := service.Get(context.Background(), issued[0].ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Quotas.Daily != 100 {
		t.Fatalf("expected daily quota 100, got %d", got.Quotas.Daily)
	}
	if got.Metadata["order_ref"] != "ord-42" {
		t.Fatalf("expected metadata round trip, got %v", got.Metadata)
	}
	if !got.ExpiresAt.Equal(now.Add(30 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", got.ExpiresAt)
	}
}

func TestIssueSeatLicenses(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	service, _, db := setupLicenseService(t, clock.NewFakeClock(now))

	issued, err := service.Issue(context.Background(), licensedomain.IssueRequest{
		ProjectID:    "proj-1",
		Type:         licensedomain.TypeSeat,
		DurationDays: 365,
		Seats:        5,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(issued) != 5 {
		t.Fatalf("expected 5 seat licenses, got %d", len(issued))
	}

	seen := make(map[string]bool, len(issued))
	for _, l := range issued {
		if seen[l.ID] {
			t.Fatalf("duplicate license id %s", l.ID)
		}
		seen[l.ID] = true
	}

	var count int
	if err := db.Raw(`SELECT COUNT(1) FROM licenses`).Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 rows, got %d", count)
	}
}

func TestIssueValidation(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	service, _, _ := setupLicenseService(t, clock.NewFakeClock(now))
	ctx := context.Background()

	cases := []struct {
		name string
		req  licensedomain.IssueRequest
		want error
	}{
		{"empty project", licensedomain.IssueRequest{Type: licensedomain.TypeIndividual, DurationDays: 1}, licensedomain.ErrInvalidProject},
		{"unknown type", licensedomain.IssueRequest{ProjectID: "p", Type: "site", DurationDays: 1}, licensedomain.ErrInvalidType},
		{"zero duration", licensedomain.IssueRequest{ProjectID: "p", Type: licensedomain.TypeIndividual}, licensedomain.ErrInvalidDuration},
		{"individual with seats", licensedomain.IssueRequest{ProjectID: "p", Type: licensedomain.TypeIndividual, DurationDays: 1, Seats: 3}, licensedomain.ErrInvalidSeats},
		{"negative seats", licensedomain.IssueRequest{ProjectID: "p", Type: licensedomain.TypeSeat, DurationDays: 1, Seats: -1}, licensedomain.ErrInvalidSeats},
	}
	for _, tc := range cases {
		if _, err := service.Issue(ctx, tc.req); err != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestRevokeCascadesToActivations(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	service, _, db := setupLicenseService(t, clock.NewFakeClock(now))
	ctx := context.Background()

	issued, err := service.Issue(ctx, licensedomain.IssueRequest{
		ProjectID:    "proj-1",
		Type:         licensedomain.TypeIndividual,
		DurationDays: 30,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	licenseID := issued[0].ID

	if err := db.Exec(
		`INSERT INTO activations (id, license_id, device_id, credential_public_key, credential_fingerprint, created_at, last_seen_at, revoked, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		1, licenseID, 2, []byte("pk"), "fp", now, now, false, now,
	).Error; err != nil {
		t.Fatalf("seed activation: %v", err)
	}

	if err := service.Revoke(ctx, licenseID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	got, err := service.Get(ctx, licenseID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Revoked {
		t.Fatal("expected license revoked")
	}

	var activationRevoked bool
	if err := db.Raw(`SELECT revoked FROM activations WHERE license_id = ?`, licenseID).Scan(&activationRevoked).Error; err != nil {
		t.Fatalf("read activation: %v", err)
	}
	if !activationRevoked {
		t.Fatal("expected activation revoked by cascade")
	}

	ids, err := service.ListRevokedIDs(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list revoked: %v", err)
	}
	if len(ids) != 1 || ids[0] != licenseID {
		t.Fatalf("expected revocation list [%s], got %v", licenseID, ids)
	}
}

func TestRevokeUnknownLicense(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	service, _, _ := setupLicenseService(t, clock.NewFakeClock(now))

	if err := service.Revoke(context.Background(), "123456789"); err != licensedomain.ErrNotFound {
		t.Fatalf("expected license_not_found, got %v", err)
	}
	if err := service.Revoke(context.Background(), "not-a-number"); err != licensedomain.ErrInvalidID {
		t.Fatalf("expected invalid_id, got %v", err)
	}
}

func TestLicenseTokenExpiryCappedAtLicenseExpiry(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(now)
	service, codec, _ := setupLicenseService(t, clk)

	// License lasts 2 days; the default token TTL is far longer.
	issued, err := service.Issue(context.Background(), licensedomain.IssueRequest{
		ProjectID:    "proj-1",
		Type:         licensedomain.TypeIndividual,
		DurationDays: 2,
	})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clk.Advance(3 * 24 * time.Hour)
	if _, err := codec.Verify(issued[0].Token); err != tokendomain.ErrVerificationFailed {
		t.Fatalf("expected token to expire with the license, got %v", err)
	}
}
