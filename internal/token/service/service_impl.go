package service

import (
	"crypto/rsa"

	"github.com/golang-jwt/jwt/v5"
	"github.com/keyforge/keyforge/internal/clock"
	tokendomain "github.com/keyforge/keyforge/internal/token/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Credentials are RS256 compact tokens: RSA PKCS#1 v1.5 over SHA-256. The
// algorithm is fixed; tokens claiming anything else are rejected outright.
const signingAlg = "RS256"

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	KeyPair *KeyPair
}

type Service struct {
	log    *zap.Logger
	clock  clock.Clock
	priv   *rsa.PrivateKey
	pub    *rsa.PublicKey
	parser *jwt.Parser
}

func New(p ServiceParam) tokendomain.Codec {
	return &Service{
		log:   p.Log.Named("token.codec"),
		clock: p.Clock,
		priv:  p.KeyPair.Private,
		pub:   p.KeyPair.Public,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{signingAlg}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(p.Clock.Now),
		),
	}
}

func (s *Service) Issue(claims tokendomain.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &claims)
	return token.SignedString(s.priv)
}

func (s *Service) Verify(raw string) (*tokendomain.Claims, error) {
	claims := &tokendomain.Claims{}
	token, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.pub, nil
	})
	if err != nil || !token.Valid {
		// The reason stays internal; the raw token is never logged.
		s.log.Debug("credential rejected", zap.Error(err))
		return nil, tokendomain.ErrVerificationFailed
	}
	if claims.Kind == "" || claims.Subject == "" {
		s.log.Debug("credential rejected", zap.String("reason", "missing_claims"))
		return nil, tokendomain.ErrVerificationFailed
	}
	return claims, nil
}
