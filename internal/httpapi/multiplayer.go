package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dicehall/backend/internal/model"
	"dicehall/backend/internal/registry"
)

// RegisterMultiplayerRoutes wires session creation/join/state routes
// (§6.1) straight onto registry.Registry's exported API. api carries
// the unauthenticated entry points (listing rooms, creating/joining a
// session issues the caller's first token bundle); protected carries
// everything that requires an already-issued bearer token, guarded by
// requireMatchingSession so a token for session A can't touch B.
func RegisterMultiplayerRoutes(api *gin.RouterGroup, protected *gin.RouterGroup, deps Deps) {
	api.GET("/multiplayer/rooms", listRooms(deps))
	api.POST("/multiplayer/sessions", createSession(deps))
	api.POST("/multiplayer/rooms/:code/join", joinByCode(deps))
	api.POST("/multiplayer/sessions/:id/join", joinByID(deps))

	protected.GET("/multiplayer/sessions/:id", getSessionState(deps))
	protected.POST("/multiplayer/sessions/:id/heartbeat", heartbeat(deps))
	protected.POST("/multiplayer/sessions/:id/participant-state", participantState(deps))
	protected.POST("/multiplayer/sessions/:id/moderate", moderate(deps))
	protected.POST("/multiplayer/sessions/:id/queue-next", queueNext(deps))
	protected.POST("/multiplayer/sessions/:id/leave", leaveSession(deps))
	protected.POST("/multiplayer/sessions/:id/auth/refresh", refreshSessionAuth(deps))
}

func listRooms(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": deps.Registry.ListRooms()})
	}
}

type createSessionRequest struct {
	PlayerID    string          `json:"playerId"`
	DisplayName string          `json:"displayName"`
	BotCount    int             `json:"botCount"`
	IsPublic    bool            `json:"isPublic"`
	Difficulty  model.Difficulty `json:"difficulty"`
}

func createSession(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body createSessionRequest
		if err := c.ShouldBindJSON(&body); err != nil || body.PlayerID == "" || body.DisplayName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
			return
		}

		opts := registry.CreateOptions{BotCount: body.BotCount, IsPublic: body.IsPublic, Difficulty: body.Difficulty}
		session, bundle, err := deps.Registry.CreateSession(body.PlayerID, body.DisplayName, opts, time.Now())
		if writeErr(c, err) {
			return
		}
		c.JSON(http.StatusCreated, gin.H{"session": session, "auth": bundle})
	}
}

type joinRequest struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
}

func joinByCode(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body joinRequest
		if err := c.ShouldBindJSON(&body); err != nil || body.PlayerID == "" || body.DisplayName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
			return
		}
		session, bundle, err := deps.Registry.JoinRoomByCode(c.Param("code"), body.PlayerID, body.DisplayName, time.Now())
		if writeErr(c, err) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": session, "auth": bundle})
	}
}

func joinByID(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body joinRequest
		if err := c.ShouldBindJSON(&body); err != nil || body.PlayerID == "" || body.DisplayName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
			return
		}
		session, bundle, err := deps.Registry.JoinBySessionId(c.Param("id"), body.PlayerID, body.DisplayName, time.Now())
		if writeErr(c, err) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": session, "auth": bundle})
	}
}

func getSessionState(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, ok := requireMatchingSession(c); !ok {
			return
		}
		var out *model.Session
		err := deps.Registry.ReadSession(c.Param("id"), func(s *model.Session) { out = s })
		if writeErr(c, err) {
			return
		}
		c.JSON(http.StatusOK, out)
	}
}

func heartbeat(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, sessionID, ok := requireMatchingSession(c)
		if !ok {
			return
		}
		if writeErr(c, deps.Registry.Heartbeat(sessionID, playerID, time.Now())) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func participantState(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, sessionID, ok := requireMatchingSession(c)
		if !ok {
			return
		}
		var body struct {
			Action string `json:"action"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.Action == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
			return
		}
		session, turnStarted, err := deps.Registry.UpdateParticipantState(sessionID, playerID, body.Action, time.Now())
		if writeErr(c, err) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": session, "turnStarted": turnStarted})
	}
}

func moderate(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, sessionID, ok := requireMatchingSession(c)
		if !ok {
			return
		}
		var body struct {
			TargetID string `json:"targetId"`
			Action   string `json:"action"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.TargetID == "" || body.Action == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
			return
		}
		if writeErr(c, deps.Registry.Moderate(sessionID, playerID, body.TargetID, body.Action, time.Now())) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func queueNext(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, sessionID, ok := requireMatchingSession(c)
		if !ok {
			return
		}
		if writeErr(c, deps.Registry.QueueForNextGame(sessionID, playerID, time.Now())) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func leaveSession(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, sessionID, ok := requireMatchingSession(c)
		if !ok {
			return
		}
		if writeErr(c, deps.Registry.Leave(sessionID, playerID, time.Now())) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func refreshSessionAuth(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, sessionID, ok := requireMatchingSession(c)
		if !ok {
			return
		}
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = c.ShouldBindJSON(&body)
		bundle, err := deps.Registry.RefreshSessionAuth(sessionID, playerID, body.RefreshToken, time.Now())
		if writeErr(c, err) {
			return
		}
		c.JSON(http.StatusOK, bundle)
	}
}
