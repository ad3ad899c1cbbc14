package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dicehall/backend/internal/store"
)

// LogEntry is a single client-submitted game-log line stored under the
// store controller's gameLogs section, keyed by a server-minted id so
// repeated submissions never collide.
type LogEntry struct {
	PlayerID  string    `json:"playerId"`
	SessionID string    `json:"sessionId,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// RegisterLogRoutes wires the client-log-batch ingestion endpoint
// (§2.3): a low-ceremony sink so client-side diagnostics land
// somewhere durable without standing up a separate logging pipeline.
func RegisterLogRoutes(api *gin.RouterGroup, deps Deps) {
	api.POST("/logs/batch", postLogBatch(deps))
}

func postLogBatch(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Entries []LogEntry `json:"entries"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
			return
		}
		if len(body.Entries) == 0 {
			c.JSON(http.StatusOK, gin.H{"accepted": 0})
			return
		}

		deps.Store.Mutate(func(snap *store.Snapshot) {
			for _, entry := range body.Entries {
				if entry.At.IsZero() {
					entry.At = time.Now()
				}
				_ = snap.Put(store.SectionGameLogs, "log_"+uuid.NewString(), entry)
			}
		})
		deps.Logger.Infow("client log batch accepted", "count", len(body.Entries))
		c.JSON(http.StatusOK, gin.H{"accepted": len(body.Entries)})
	}
}
