// Package domain contains the claim types carried by signed credentials.
package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential kinds. A license token proves entitlement issuance; an
// activation certificate proves an already-completed device binding.
const (
	KindLicense    = "license"
	KindActivation = "activation"
)

// LevelDevice is the binding level recorded on activation certificates.
const LevelDevice = "device"

// Claims is the claim set of every credential this service signs. The
// audience is the project id and the subject is the license id. Kind
// discriminates license tokens from activation certificates.
type Claims struct {
	Kind        string `json:"kind"`
	LicenseType string `json:"license_type,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
	Level       string `json:"level,omitempty"`
	jwt.RegisteredClaims
}

// ProjectID returns the audience the credential was issued for.
func (c *Claims) ProjectID() string {
	if len(c.Audience) == 0 {
		return ""
	}
	return c.Audience[0]
}

// LicenseID returns the subject of the credential.
func (c *Claims) LicenseID() string { return c.Subject }

// NewLicenseClaims builds the claim set for a license token.
func NewLicenseClaims(projectID, licenseID, licenseType string, issuedAt, expiresAt time.Time) Claims {
	return Claims{
		Kind:        KindLicense,
		LicenseType: licenseType,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{projectID},
			Subject:   licenseID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
}

// NewActivationClaims builds the claim set for an activation certificate.
func NewActivationClaims(projectID, licenseID, deviceID string, issuedAt, expiresAt time.Time) Claims {
	return Claims{
		Kind:     KindActivation,
		DeviceID: deviceID,
		Level:    LevelDevice,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{projectID},
			Subject:   licenseID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
}
