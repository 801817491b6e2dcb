package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KevinKickass/OpenInverterCore/internal/auth"
	"github.com/KevinKickass/OpenInverterCore/internal/types"
)

// GET /api/v1/system/status
func (s *Server) getSystemStatus(c *gin.Context) {
	status := s.lm.GetCurrentStatus()
	c.JSON(http.StatusOK, status)
}

// POST /api/v1/auth/token
func (s *Server) issueToken(c *gin.Context) {
	var req types.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.CodeLoginInvalid, "Invalid request body", err.Error()))
		return
	}

	token, expires, err := s.authService.IssueToken(req.APIKey, c.ClientIP())
	switch {
	case errors.Is(err, auth.ErrNoAPIKey):
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.CodeLoginDisabled, "Writes are disabled, no api key configured", nil))
		return
	case err != nil:
		c.JSON(http.StatusUnauthorized, types.NewErrorResponse(types.CodeLoginRejected, "Invalid api key", nil))
		return
	}

	c.JSON(http.StatusOK, types.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(expires).Seconds()),
	})
}
