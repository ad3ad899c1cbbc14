package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dicehall/backend/internal/apierr"
	"dicehall/backend/internal/authtoken"
	"dicehall/backend/internal/config"
)

// RegisterRoutes wires every /admin/* route behind AccessGate,
// mirroring the teacher's RegisterXRoutes(rg, ...) shape.
func RegisterRoutes(rg *gin.RouterGroup, eng *Engine, cfg config.Config, tokens *authtoken.Adapter) {
	gated := rg.Group("/admin")
	gated.Use(AccessGate(cfg, tokens, eng))

	gated.GET("/overview", overviewHandler(eng))
	gated.GET("/rooms", roomsHandler(eng))
	gated.GET("/sessions/:sessionId/conduct", sessionConductHandler(eng))
	gated.GET("/sessions/:sessionId/conduct/:playerId", playerConductHandler(eng))
	gated.POST("/sessions/:sessionId/conduct/clear", clearConductHandler(eng))
	gated.POST("/sessions/:sessionId/force-expire", forceExpireHandler(eng))
	gated.DELETE("/sessions/:sessionId/participants/:playerId", removeParticipantHandler(eng))
	gated.GET("/conduct/terms", listTermsHandler(eng))
	gated.PUT("/conduct/terms", upsertTermHandler(eng))
	gated.DELETE("/conduct/terms/:term", removeTermHandler(eng))
	gated.PUT("/roles/:playerId", upsertRoleHandler(eng))
	gated.GET("/audit-log", auditLogHandler(eng))

	if cfg.AdminMetricsEnabled {
		gated.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

func actorFrom(c *gin.Context) string {
	if a := c.Query("actor"); a != "" {
		return a
	}
	return "admin"
}

func overviewHandler(eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) { c.JSON(http.StatusOK, eng.Overview()) }
}

func roomsHandler(eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) { c.JSON(http.StatusOK, eng.Rooms()) }
}

func sessionConductHandler(eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := eng.SessionConduct(c.Param("sessionId"))
		if writeErr(c, err) {
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

func playerConductHandler(eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := eng.PlayerConduct(c.Param("sessionId"), c.Param("playerId"))
		if writeErr(c, err) {
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

func clearConductHandler(eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			PlayerID   string `json:"playerId"`
			ResetTotal bool   `json:"resetTotal"`
		}
		_ = c.ShouldBindJSON(&body)
		err := eng.ClearConduct(c.Param("sessionId"), body.PlayerID, actorFrom(c), body.ResetTotal)
		if writeErr(c, err) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func forceExpireHandler(eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := eng.ForceExpireSession(c.Param("sessionId"), actorFrom(c))
		if writeErr(c, err) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func removeParticipantHandler(eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := eng.RemoveParticipant(c.Param("sessionId"), c.Param("playerId"), actorFrom(c))
		if writeErr(c, err) {
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func listTermsHandler(eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"terms": eng.Terms()}) }
}

func upsertTermHandler(eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Term string `json:"term"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.Term == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
			return
		}
		_ = eng.UpsertTerm(body.Term, actorFrom(c))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func removeTermHandler(eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		_ = eng.RemoveTerm(c.Param("term"), actorFrom(c))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func upsertRoleHandler(eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Role string `json:"role"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.Role == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
			return
		}
		_ = eng.UpsertRole(c.Param("playerId"), body.Role, actorFrom(c))
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

func auditLogHandler(eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
		c.JSON(http.StatusOK, gin.H{"entries": eng.AuditLog(limit)})
	}
}

// writeErr funnels an *apierr.Error (or generic error) into a JSON
// response, mirroring the teacher's writeAPIError idiom; reports
// whether it wrote a response (caller should return if so).
func writeErr(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	if apiErr, ok := apierr.As(err); ok {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Code, "reason": apiErr.Reason})
		return true
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	return true
}
