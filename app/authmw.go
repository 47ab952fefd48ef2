package app

import (
	"context"
	"net/http"
	"time"

	"keytrack/db"
	"keytrack/session"

	"github.com/gin-gonic/gin"
)

const AppSessionCookie = "app_session"

// AuthRequired resolves the session cookie and re-queries the user record,
// so role changes and deactivation take effect mid-session instead of riding
// on a cached credential.
func AuthRequired(appSess *session.AppSessionStore, repo *db.Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		ck, err := c.Request.Cookie(AppSessionCookie)
		if err != nil || ck.Value == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		as, err := appSess.Get(c.Request.Context(), ck.Value)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "invalid session"})
			return
		}

		u, err := repo.FindUserByID(c.Request.Context(), as.UserID)
		if err != nil || !u.IsActive {
			_ = appSess.Delete(c.Request.Context(), ck.Value)
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}

		c.Set("userID", u.ID)
		c.Set("userName", u.DisplayName)
		c.Set("userEmail", u.Email)
		c.Set("userRole", u.Role)
		c.Next()
	}
}

// RoleRequired gates a route group to the given roles. Run it after
// AuthRequired.
func RoleRequired(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		v, ok := c.Get("userRole")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		role, _ := v.(string)
		if _, ok := allowed[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// APIKeyRequired authenticates department-scoped integrations via X-API-Key.
func APIKeyRequired(repo *db.Repo) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-API-Key")
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "missing api key"})
			return
		}
		k, err := repo.FindUsableAPIKey(c.Request.Context(), raw, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, H{"error": "invalid api key"})
			return
		}
		go func(id string) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = repo.TouchAPIKeyUsed(ctx, id)
		}(k.ID)
		c.Set("apiKeyDepartment", k.Department)
		c.Next()
	}
}
