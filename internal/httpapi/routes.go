package httpapi

import (
	"github.com/gin-gonic/gin"

	"dicehall/backend/internal/middleware"
)

// RegisterRoutes wires the full /api surface: an open group for routes
// that issue or refresh a token, and a RequireAuth-protected group for
// everything that acts on an already-authenticated session. Mirrors
// the teacher's cmd/server wiring one RegisterXRoutes call per
// concern against a shared router group.
func RegisterRoutes(rg *gin.RouterGroup, deps Deps) {
	protected := rg.Group("")
	protected.Use(middleware.RequireAuth(deps.Tokens))

	RegisterMultiplayerRoutes(rg, protected, deps)
	RegisterAuthRoutes(rg, protected, deps)
	RegisterPlayerRoutes(rg, deps)
	RegisterLeaderboardRoutes(rg, protected, deps)
	RegisterLogRoutes(rg, deps)
}
