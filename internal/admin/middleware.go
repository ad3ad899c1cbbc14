package admin

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"dicehall/backend/internal/adminauth"
	"dicehall/backend/internal/apierr"
	"dicehall/backend/internal/authtoken"
	"dicehall/backend/internal/config"
)

// AccessGate enforces §6.4's API_ADMIN_ACCESS_MODE on every /admin/*
// route: disabled refuses everything, open admits everything, token
// validates a signed adminauth JWT (or, if no JWT secret is
// configured, a plain shared-secret bearer), role looks the caller's
// player access token up against an admin role grant, and hybrid
// accepts either.
func AccessGate(cfg config.Config, tokens *authtoken.Adapter, eng *Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch cfg.AdminAccessMode {
		case config.AdminAccessDisabled:
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": apierr.CodeRoomNotFound})
		case config.AdminAccessOpen:
			c.Next()
		case config.AdminAccessToken:
			if checkToken(c, cfg) {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": apierr.CodeForbidden})
		case config.AdminAccessRole:
			if checkRole(c, tokens, eng) {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": apierr.CodeForbidden})
		case config.AdminAccessHybrid:
			if checkToken(c, cfg) || checkRole(c, tokens, eng) {
				c.Next()
				return
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": apierr.CodeForbidden})
		default:
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": apierr.CodeRoomNotFound})
		}
	}
}

func bearerFrom(c *gin.Context) string {
	return authtoken.ExtractBearer(c.GetHeader("Authorization"))
}

func checkToken(c *gin.Context, cfg config.Config) bool {
	token := bearerFrom(c)
	if token == "" {
		return false
	}
	if cfg.AdminJWTSecret != "" {
		claims, err := adminauth.Parse(cfg.AdminJWTSecret, token)
		return err == nil && claims.Role == adminauth.RoleAdmin
	}
	if cfg.AdminToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(cfg.AdminToken)) == 1
}

func checkRole(c *gin.Context, tokens *authtoken.Adapter, eng *Engine) bool {
	token := bearerFrom(c)
	if token == "" {
		return false
	}
	rec, ok := tokens.VerifyAccess(token, time.Now())
	if !ok {
		return false
	}
	role, ok := eng.RoleFor(rec.PlayerID)
	return ok && role == adminauth.RoleAdmin
}
