package domain

import "context"

type Service interface {
	Start(ctx context.Context, req StartRequest) (*StartResponse, error)
	Finish(ctx context.Context, req FinishRequest) (*FinishResponse, error)
}

type DeviceInfo struct {
	Name     string `json:"name"`
	Platform string `json:"platform"`
}

type StartRequest struct {
	ProjectID    string     `json:"project_id"`
	LicenseToken string     `json:"license_token"`
	DeviceInfo   DeviceInfo `json:"device_info"`
}

// ChallengeOptions is the structure handed to the client's local
// authenticator ceremony.
type ChallengeOptions struct {
	Challenge      string `json:"challenge"`
	RelyingPartyID string `json:"rp_id"`
	UserHandle     string `json:"user_handle"`
	TimeoutMillis  int64  `json:"timeout_ms"`
}

type StartResponse struct {
	ActivationID string           `json:"activation_id"`
	Options      ChallengeOptions `json:"options"`
}

// AttestationResponse is the client's answer to the challenge: the asserted
// public key, the signed client data (type, challenge echo, origin) and the
// signature produced by the device-held private key.
type AttestationResponse struct {
	PublicKey  string `json:"public_key"`
	ClientData string `json:"client_data"`
	Signature  string `json:"signature"`
}

type FinishRequest struct {
	ActivationID string              `json:"activation_id"`
	Attestation  AttestationResponse `json:"attestation"`
}

type FinishResponse struct {
	LicenseID   string `json:"license_id"`
	DeviceID    string `json:"device_id"`
	Certificate string `json:"certificate"`
}
