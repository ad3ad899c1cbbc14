package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dicehall/backend/internal/authtoken"
)

// RequireAuth verifies the opaque bearer access token issued by
// internal/authtoken and stashes the resolved identity in context,
// the same "set userID/username on the request context" shape the
// teacher's JWT middleware used — adapted from per-user JWT claims to
// a per-session opaque-token lookup since multiplayer sessions are
// the unit of identity here, not accounts.
func RequireAuth(tokens *authtoken.Adapter) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		rec, ok := tokens.VerifyAccess(token, time.Now())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("playerId", rec.PlayerID)
		c.Set("sessionId", rec.SessionID)
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) string {
	// Authorization: Bearer <token>
	authz := c.GetHeader("Authorization")
	if authz != "" {
		parts := strings.SplitN(authz, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	// ?token=<token> (useful for websocket)
	if t := c.Query("token"); t != "" {
		return t
	}
	return ""
}


