package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// RegisterLeaderboardRoutes wires the global-leaderboard surface
// against the injected LeaderboardSink (§1) rather than computing
// rankings here. Reading the board is public; submitting a score
// requires an authenticated session.
func RegisterLeaderboardRoutes(api, protected *gin.RouterGroup, deps Deps) {
	api.GET("/leaderboard/global", getLeaderboard(deps))
	protected.POST("/leaderboard/scores", postLeaderboardScore(deps))
}

func getLeaderboard(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 {
			limit = 50
		}
		entries, err := deps.Leaderboard.Top(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	}
}

func postLeaderboardScore(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		playerID, _ := authContext(c)

		var body struct {
			DisplayName string `json:"displayName"`
			Score       int    `json:"score"`
			Difficulty  string `json:"difficulty"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
			return
		}

		entry := LeaderboardEntry{
			PlayerID:    playerID,
			DisplayName: body.DisplayName,
			Score:       body.Score,
			Difficulty:  body.Difficulty,
			RecordedAt:  time.Now(),
		}
		if err := deps.Leaderboard.Submit(c.Request.Context(), entry); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
