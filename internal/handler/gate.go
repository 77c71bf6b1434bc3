package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quitescan/internal/auth"
)

// GateStatus reports whether the current session has passed the gate.
func (h *Handler) GateStatus(c *gin.Context) {
	passed := false
	if cookie, err := c.Cookie(auth.SessionCookie); err == nil {
		if claims, err := auth.Parse(cookie, h.cfg.SessionSigningKey, h.cfg.SessionIssuer); err == nil {
			passed = claims.Gate
		}
	}
	c.JSON(http.StatusOK, gin.H{"gate_passed": passed})
}

// PassGate checks the pre-password and issues a gate-only session token.
func (h *Handler) PassGate(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.AdminGatePassword)) != 1 {
		c.JSON(http.StatusForbidden, gin.H{"error": "Incorrect password"})
		return
	}
	token, _, err := auth.IssueGate(h.cfg.SessionIssuer, h.cfg.SessionSigningKey, h.cfg.SessionTTL)
	if err != nil {
		renderError(c, err)
		return
	}
	auth.SetSessionCookie(c, token, int(h.cfg.SessionTTL.Seconds()), h.cfg.Env == "production" || h.cfg.Env == "prod")
	c.JSON(http.StatusOK, gin.H{"message": "Gate passed", "redirect": "/dashboard/"})
}

// Login verifies admin credentials and upgrades the session to an admin one.
// The route itself is behind RequireGate.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.creds.Verify(c.Request.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		renderError(c, err)
		return
	}
	token, _, err := auth.IssueAdmin(req.Username, h.cfg.SessionIssuer, h.cfg.SessionSigningKey, h.cfg.SessionTTL)
	if err != nil {
		renderError(c, err)
		return
	}
	auth.SetSessionCookie(c, token, int(h.cfg.SessionTTL.Seconds()), h.cfg.Env == "production" || h.cfg.Env == "prod")
	c.JSON(http.StatusOK, gin.H{"message": "Logged in", "username": req.Username})
}

// Logout clears the session.
func (h *Handler) Logout(c *gin.Context) {
	auth.ClearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "You have been logged out successfully."})
}
