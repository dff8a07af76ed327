// Package attest verifies device attestation responses. The client signs
// its own client data (ceremony type, challenge echo, origin) with a key
// that never leaves the device; a valid signature over a fresh challenge is
// what makes the resulting binding non-transferable.
package attest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// CeremonyType is the fixed client data type for binding ceremonies.
// Anything else is a cross-protocol replay.
const CeremonyType = "keyforge.bind"

type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

// Response is the raw attestation material as submitted by the client,
// base64 standard encoded.
type Response struct {
	PublicKey  string
	ClientData string
	Signature  string
}

// Credential is the verified outcome: the device credential public key in
// DER form and its fingerprint (hex SHA-256 of the DER bytes).
type Credential struct {
	PublicKeyDER []byte
	Fingerprint  string
}

// Verify checks the full attestation contract: client data decodes, the
// ceremony type matches, the challenge is echoed byte for byte, the origin
// is allow-listed and the signature over the client data verifies against
// the asserted public key.
func Verify(resp Response, expectedChallenge string, allowedOrigins []string) (*Credential, error) {
	clientDataRaw, err := base64.StdEncoding.DecodeString(resp.ClientData)
	if err != nil {
		return nil, fmt.Errorf("decode client data: %w", err)
	}

	var data clientData
	if err := json.Unmarshal(clientDataRaw, &data); err != nil {
		return nil, fmt.Errorf("parse client data: %w", err)
	}
	if data.Type != CeremonyType {
		return nil, fmt.Errorf("unexpected ceremony type %q", data.Type)
	}
	if subtle.ConstantTimeCompare([]byte(data.Challenge), []byte(expectedChallenge)) != 1 {
		return nil, errors.New("challenge mismatch")
	}
	if !originAllowed(data.Origin, allowedOrigins) {
		return nil, fmt.Errorf("origin %q not allowed", data.Origin)
	}

	keyDER, err := base64.StdEncoding.DecodeString(resp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	signature, err := base64.StdEncoding.DecodeString(resp.Signature)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}

	parsed, err := x509.ParsePKIXPublicKey(keyDER)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	digest := sha256.Sum256(clientDataRaw)
	switch key := parsed.(type) {
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest[:], signature) {
			return nil, errors.New("signature does not verify")
		}
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature); err != nil {
			return nil, errors.New("signature does not verify")
		}
	default:
		return nil, fmt.Errorf("unsupported credential key %T", parsed)
	}

	fingerprint := sha256.Sum256(keyDER)
	return &Credential{
		PublicKeyDER: keyDER,
		Fingerprint:  hex.EncodeToString(fingerprint[:]),
	}, nil
}

func originAllowed(origin string, allowed []string) bool {
	origin = strings.TrimSuffix(strings.TrimSpace(origin), "/")
	for _, candidate := range allowed {
		if origin == strings.TrimSuffix(strings.TrimSpace(candidate), "/") {
			return true
		}
	}
	return false
}
