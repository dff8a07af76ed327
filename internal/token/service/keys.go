package service

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/keyforge/keyforge/internal/config"
	"go.uber.org/zap"
)

// KeyPair holds the RSA signing key of the credential codec.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// NewKeyPair loads the signing key from config. Outside production a missing
// key falls back to an ephemeral one, which invalidates all outstanding
// credentials on restart.
func NewKeyPair(cfg config.Config, log *zap.Logger) (*KeyPair, error) {
	pemData := strings.TrimSpace(cfg.SigningKeyPEM)
	if pemData == "" && cfg.SigningKeyPath != "" {
		raw, err := os.ReadFile(cfg.SigningKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		pemData = string(raw)
	}

	if pemData == "" {
		if cfg.IsProduction() {
			return nil, errors.New("signing key is required in production")
		}
		log.Warn("no signing key configured, generating an ephemeral key")
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
		return &KeyPair{Private: priv, Public: &priv.PublicKey}, nil
	}

	priv, err := parsePrivateKeyPEM([]byte(pemData))
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// NewTestKeyPair generates a throwaway key for tests.
func NewTestKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

func parsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("signing key is not valid PEM")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing key must be RSA")
	}
	return key, nil
}
