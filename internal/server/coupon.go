package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	coupondomain "github.com/keyforge/keyforge/internal/coupon/domain"
	licensedomain "github.com/keyforge/keyforge/internal/license/domain"
)

type createCouponRequest struct {
	ProjectID    string                  `json:"project_id"`
	DurationDays int                     `json:"duration_days"`
	Quotas       licensedomain.QuotaSpec `json:"quotas"`
	MaxUses      int64                   `json:"max_uses"`
	ExpiresAt    time.Time               `json:"expires_at"`
}

func (s *Server) CreateCoupon(c *gin.Context) {
	var req createCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	coupon, err := s.couponSvc.Create(c.Request.Context(), coupondomain.CreateRequest{
		ProjectID:    strings.TrimSpace(req.ProjectID),
		DurationDays: req.DurationDays,
		Quotas:       req.Quotas,
		MaxUses:      req.MaxUses,
		ExpiresAt:    req.ExpiresAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": coupon})
}

type redeemCouponRequest struct {
	Code      string `json:"code"`
	ProjectID string `json:"project_id"`
}

func (s *Server) RedeemCoupon(c *gin.Context) {
	if !s.redeemLimiter.Allow(c.Request.Context(), c.ClientIP()) {
		AbortWithError(c, ErrTooManyRequests)
		return
	}

	var req redeemCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	redemption, err := s.couponSvc.Redeem(c.Request.Context(), req.Code, req.ProjectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": redemption})
}
