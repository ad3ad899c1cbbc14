package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dicehall/backend/internal/store"
)

// PlayerProfile is the store-backed record behind GET/PUT
// /players/:id/profile, independent of the opaque session tokens
// authtoken issues (a player can have a profile without ever joining a
// live session).
type PlayerProfile struct {
	PlayerID    string    `json:"playerId"`
	DisplayName string    `json:"displayName"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PlayerScoreRecord is one row under /players/:id/scores.
type PlayerScoreRecord struct {
	PlayerID   string    `json:"playerId"`
	Score      int       `json:"score"`
	Difficulty string    `json:"difficulty,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// RegisterPlayerRoutes wires the player-profile/score surface, reading
// and writing the store controller's players/playerScores sections
// directly since no standalone player-profile engine exists — these
// routes are a thin store facade, same shape as the teacher's
// handlers that read straight off a repository.
func RegisterPlayerRoutes(api *gin.RouterGroup, deps Deps) {
	api.GET("/players/:id/profile", getPlayerProfile(deps))
	api.PUT("/players/:id/profile", putPlayerProfile(deps))
	api.GET("/players/:id/scores", getPlayerScores(deps))
}

func getPlayerProfile(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		snap := deps.Store.Snapshot()
		var profile PlayerProfile
		ok, err := snap.Get(store.SectionPlayers, id, &profile)
		if err != nil || !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "player_not_found"})
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}

func putPlayerProfile(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		idToken := c.GetHeader("X-Identity-Token")
		verifiedID, err := deps.Identity.Verify(c.Request.Context(), idToken)
		if err != nil || verifiedID == "" || verifiedID != id {
			c.JSON(http.StatusForbidden, gin.H{"error": "identity_mismatch"})
			return
		}

		var body struct {
			DisplayName string `json:"displayName"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || body.DisplayName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
			return
		}

		profile := PlayerProfile{PlayerID: id, DisplayName: body.DisplayName, UpdatedAt: time.Now()}
		deps.Store.Mutate(func(snap *store.Snapshot) {
			_ = snap.Put(store.SectionPlayers, id, profile)
		})
		c.JSON(http.StatusOK, profile)
	}
}

func getPlayerScores(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		snap := deps.Store.Snapshot()
		var records []PlayerScoreRecord
		ok, err := snap.Get(store.SectionPlayerScores, id, &records)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		if !ok {
			records = []PlayerScoreRecord{}
		}
		c.JSON(http.StatusOK, gin.H{"scores": records})
	}
}
