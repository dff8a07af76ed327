package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	activationdomain "github.com/keyforge/keyforge/internal/activation/domain"
)

type startActivationRequest struct {
	ProjectID    string                      `json:"project_id"`
	LicenseToken string                      `json:"license_token"`
	DeviceInfo   activationdomain.DeviceInfo `json:"device_info"`
}

func (s *Server) StartActivation(c *gin.Context) {
	var req startActivationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.LicenseToken) == "" {
		AbortWithError(c, newValidationError("license_token", "required", "license token is required"))
		return
	}

	resp, err := s.activationSvc.Start(c.Request.Context(), activationdomain.StartRequest{
		ProjectID:    strings.TrimSpace(req.ProjectID),
		LicenseToken: req.LicenseToken,
		DeviceInfo:   req.DeviceInfo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type finishActivationRequest struct {
	ActivationID string                               `json:"activation_id"`
	Attestation  activationdomain.AttestationResponse `json:"attestation"`
}

func (s *Server) FinishActivation(c *gin.Context) {
	var req finishActivationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.ActivationID) == "" {
		AbortWithError(c, newValidationError("activation_id", "required", "activation id is required"))
		return
	}

	resp, err := s.activationSvc.Finish(c.Request.Context(), activationdomain.FinishRequest{
		ActivationID: strings.TrimSpace(req.ActivationID),
		Attestation:  req.Attestation,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
