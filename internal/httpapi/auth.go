package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RegisterAuthRoutes wires /auth/me (protected) and the top-level
// /auth/token/refresh, which operates purely against the token adapter
// and doesn't require the caller's current access token to still be
// valid — only the refresh token.
func RegisterAuthRoutes(api *gin.RouterGroup, protected *gin.RouterGroup, deps Deps) {
	protected.GET("/auth/me", getAuthMe(deps))
	api.POST("/auth/token/refresh", postTokenRefresh(deps))
}

func getAuthMe(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, sessionID := authContext(c)
		c.JSON(http.StatusOK, gin.H{"playerId": playerID, "sessionId": sessionID})
	}
}

func postTokenRefresh(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.RefreshToken == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
			return
		}

		now := time.Now()
		rec, ok := deps.Tokens.VerifyRefresh(body.RefreshToken, now)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_refresh_token"})
			return
		}

		bundle, err := deps.Tokens.IssueBundle(rec.PlayerID, rec.SessionID, now)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		deps.Tokens.Revoke(body.RefreshToken)
		c.JSON(http.StatusOK, bundle)
	}
}
