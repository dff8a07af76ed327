package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
)

const adminSecretHeader = "X-Admin-Secret"

// adminRequired gates issuance, revocation and coupon minting behind the
// shared admin secret. With no secret configured the admin surface is off.
func (s *Server) adminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := s.cfg.AdminSecret
		if secret == "" {
			AbortWithError(c, ErrNotFound)
			return
		}
		presented := strings.TrimSpace(c.GetHeader(adminSecretHeader))
		if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}
