package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SessionCookie is the cookie carrying the signed session token.
const SessionCookie = "quitescan_session"

// ContextAdminKey is where middleware stores the authenticated admin name.
const ContextAdminKey = "admin"

// SetSessionCookie writes the session token cookie.
func SetSessionCookie(c *gin.Context, token string, maxAge int, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, maxAge, "/", "", secure, true)
}

// ClearSessionCookie deletes the session token cookie.
func ClearSessionCookie(c *gin.Context) {
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
}

func sessionClaims(c *gin.Context, key, issuer string) (Claims, bool) {
	cookie, err := c.Cookie(SessionCookie)
	if err != nil || cookie == "" {
		return Claims{}, false
	}
	claims, err := Parse(cookie, key, issuer)
	if err != nil {
		return Claims{}, false
	}
	return claims, true
}

// RequireGate blocks routes (the login route in particular) until the
// session holds the gate claim.
func RequireGate(key, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := sessionClaims(c, key, issuer)
		if !ok || !claims.Gate {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin gate required"})
			return
		}
		c.Next()
	}
}

// RequireAdmin blocks routes until the session belongs to a logged-in admin.
func RequireAdmin(key, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := sessionClaims(c, key, issuer)
		if !ok || claims.Role != RoleAdmin || claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin login required"})
			return
		}
		c.Set(ContextAdminKey, claims.Subject)
		c.Next()
	}
}
