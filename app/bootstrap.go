// app/bootstrap.go
package app

import (
	"context"
	"log"

	"keytrack/config"
	"keytrack/db"
	"keytrack/models"

	"github.com/google/uuid"
)

// BootstrapFirstAdmin seeds the configured admin account so a fresh deploy
// is manageable before anyone else logs in.
func BootstrapFirstAdmin(ctx context.Context, cfg config.Config, repo *db.Repo) {
	if cfg.BootstrapAdminEmail == "" {
		return
	}
	u, err := repo.FindOrCreateUser(ctx, uuid.NewString(), cfg.BootstrapAdminEmail, cfg.BootstrapAdminName, models.RoleAdmin)
	if err != nil {
		log.Printf("bootstrap admin failed: %v", err)
		return
	}
	if u.Role != models.RoleAdmin {
		role := models.RoleAdmin
		if _, err := repo.UpdateUser(ctx, u.ID, db.UpdateUserInput{Role: &role}); err != nil {
			log.Printf("bootstrap admin promote failed: %v", err)
			return
		}
	}
	log.Printf("[BOOTSTRAP] admin account ready: %s", u.Email)
}
