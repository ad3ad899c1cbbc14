// Package httpapi is the thin HTTP transport layer (§6.1): gin route
// groups that translate requests into calls against the C1-C10
// engines and back, in the same one-file-per-concern,
// RegisterXRoutes(rg, ...) shape as the teacher's internal/handlers
// package. It contains no gameplay logic of its own.
package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dicehall/backend/internal/apierr"
)

// writeErr funnels an *apierr.Error (or an opaque error) into a JSON
// response, generalizing the teacher's writeAPIError funnel function
// (internal/handlers/api_errors.go) around the typed apierr.Error
// taxonomy instead of string matching. Reports whether it wrote a
// response so callers can `if writeErr(c, err) { return }`.
func writeErr(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := apierr.As(err); ok {
		status := apiErr.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": apiErr.Code, "reason": apiErr.Reason})
		return true
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	return true
}

// authContext reads the identity RequireAuth stashed on the gin
// context (§4.2's verified access-token record), never trusting a
// client-supplied playerId/sessionId on a protected route.
func authContext(c *gin.Context) (playerID, sessionID string) {
	playerIDVal, _ := c.Get("playerId")
	playerID, _ = playerIDVal.(string)
	sessionIDVal, _ := c.Get("sessionId")
	sessionID, _ = sessionIDVal.(string)
	return playerID, sessionID
}

// requireMatchingSession guards a /multiplayer/sessions/:id/* route:
// the bearer token's sessionId must match the path's :id, so a valid
// token for session A can never act on session B.
func requireMatchingSession(c *gin.Context) (playerID, sessionID string, ok bool) {
	playerID, sessionID = authContext(c)
	if sessionID == "" || sessionID != c.Param("id") {
		c.JSON(http.StatusForbidden, gin.H{"error": apierr.CodeForbidden, "reason": "token does not grant this session"})
		return "", "", false
	}
	return playerID, sessionID, true
}
