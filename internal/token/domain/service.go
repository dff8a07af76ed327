package domain

import "errors"

// Codec signs and verifies compact credentials. Verification is purely
// cryptographic plus expiry; audience and business validity are the caller's
// responsibility.
type Codec interface {
	Issue(claims Claims) (string, error)
	Verify(token string) (*Claims, error)
}

// ErrVerificationFailed is the single failure Verify ever returns: malformed
// token, wrong algorithm, bad signature and expiry all collapse into it so a
// caller can never act on a partially trusted claim set.
var ErrVerificationFailed = errors.New("verification_failed")
