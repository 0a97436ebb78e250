package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mescon/Tickarr/internal/auth"
	"github.com/mescon/Tickarr/internal/logger"
)

type passwordRequest struct {
	Password string `json:"password" binding:"required"`
}

func (s *RESTServer) handleAuthSetup(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	apiKey, err := s.credentials.Setup(req.Password)
	switch {
	case errors.Is(err, auth.ErrAlreadySetup):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Setup already completed"})
		return
	case errors.Is(err, auth.ErrWeakPassword):
		respondBadRequest(c, err, true)
		return
	case err != nil:
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Setup complete",
		"token":   apiKey,
	})
	logger.Infof("Auth setup completed")
}

func (s *RESTServer) handleLogin(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	apiKey, err := s.credentials.Login(req.Password)
	switch {
	case errors.Is(err, auth.ErrNotSetup):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Setup required"})
		return
	case errors.Is(err, auth.ErrInvalidPassword):
		logger.Warnf("Login failed: invalid password attempt from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
		return
	case err != nil:
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   apiKey, // the API key doubles as session token
		"message": "Login successful",
	})
	logger.Infof("User logged in from %s", c.ClientIP())
}

func (s *RESTServer) handleAuthStatus(c *gin.Context) {
	done, err := s.credentials.IsSetup()
	if err != nil {
		respondDatabaseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_setup": done})
}

func (s *RESTServer) getAPIKey(c *gin.Context) {
	apiKey, err := s.credentials.APIKey()
	if errors.Is(err, auth.ErrNotSetup) {
		respondNotFound(c, "API key")
		return
	}
	if err != nil {
		respondAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"api_key": apiKey})
}

func (s *RESTServer) regenerateAPIKey(c *gin.Context) {
	newKey, err := s.credentials.RegenerateAPIKey()
	if errors.Is(err, auth.ErrNotSetup) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Setup required"})
		return
	}
	if err != nil {
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"api_key": newKey,
		"message": "API key regenerated successfully. Reconnect your displays with the new key.",
	})
	logger.Infof("API key regenerated")
}

func (s *RESTServer) changePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	err := s.credentials.ChangePassword(req.CurrentPassword, req.NewPassword)
	switch {
	case errors.Is(err, auth.ErrNotSetup):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Setup required"})
		return
	case errors.Is(err, auth.ErrInvalidPassword):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid current password"})
		return
	case errors.Is(err, auth.ErrWeakPassword):
		respondBadRequest(c, err, true)
		return
	case err != nil:
		respondAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}
