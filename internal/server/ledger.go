package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/keyforge/keyforge/internal/ledger/domain"
)

type meterRequest struct {
	Certificate string `json:"certificate"`
	Bucket      string `json:"bucket"`
	Cost        int64  `json:"cost"`
}

func (s *Server) MeterUsage(c *gin.Context) {
	var req meterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.ledgerSvc.Meter(c.Request.Context(), ledgerdomain.MeterRequest{
		Certificate: strings.TrimSpace(req.Certificate),
		Bucket:      strings.TrimSpace(req.Bucket),
		Cost:        req.Cost,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if !result.Admitted {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{
				"type":      "quota_exceeded",
				"message":   "quota exceeded",
				"remaining": result.Remaining,
				"reset_at":  result.ResetAt.UTC().Format(time.RFC3339),
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

type heartbeatRequest struct {
	Certificate  string `json:"certificate"`
	HashedUserID string `json:"hashed_user_id"`
}

func (s *Server) Heartbeat(c *gin.Context) {
	var req heartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	err := s.ledgerSvc.Heartbeat(c.Request.Context(), ledgerdomain.HeartbeatRequest{
		Certificate:  strings.TrimSpace(req.Certificate),
		HashedUserID: req.HashedUserID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"ok": true}})
}
