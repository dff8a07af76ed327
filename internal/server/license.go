package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	licensedomain "github.com/keyforge/keyforge/internal/license/domain"
	"gorm.io/datatypes"
)

type issueLicensesRequest struct {
	ProjectID    string                  `json:"project_id"`
	Type         string                  `json:"type"`
	DurationDays int                     `json:"duration_days"`
	Quotas       licensedomain.QuotaSpec `json:"quotas"`
	Seats        int                     `json:"seats"`
	Metadata     datatypes.JSONMap       `json:"metadata"`
}

func (s *Server) IssueLicenses(c *gin.Context) {
	var req issueLicensesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	issued, err := s.licenseSvc.Issue(c.Request.Context(), licensedomain.IssueRequest{
		ProjectID:    strings.TrimSpace(req.ProjectID),
		Type:         strings.TrimSpace(req.Type),
		DurationDays: req.DurationDays,
		Quotas:       req.Quotas,
		Seats:        req.Seats,
		Metadata:     req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": issued})
}

func (s *Server) RevokeLicense(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.licenseSvc.Revoke(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"revoked": true}})
}

func (s *Server) ListRevokedIDs(c *gin.Context) {
	projectID := strings.TrimSpace(c.Param("project_id"))
	ids, err := s.licenseSvc.ListRevokedIDs(c.Request.Context(), projectID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"revoked_ids": ids}})
}
