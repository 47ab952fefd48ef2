// controllers/srv.go
package controllers

import (
	"log"
	"net/http"
	"strings"
	"time"

	"keytrack/app"
	"keytrack/apperr"
	"keytrack/config"
	"keytrack/db"
	"keytrack/models"
	"keytrack/realtime"
	"keytrack/services"
	"keytrack/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Srv struct {
	Repo     *db.Repo
	Keys     *services.KeyService
	Notifier *services.Notifier
	Sched    *services.Scheduler
	AppSess  *session.AppSessionStore
	Hub      *realtime.Hub
	Cfg      config.Config
}

func GetSrv(a *app.App) *Srv {
	repo := db.NewRepo(a.DB)
	notifier := services.NewNotifier(repo, a.Fanout, a.Mailer, a.Config.EmailEnabled)
	keys := services.NewKeyService(repo, repo, repo, notifier, a.Fanout, a.Config.QRSecret, a.Config.QRMaxAge)

	loc, err := time.LoadLocation(a.Config.Timezone)
	if err != nil {
		log.Printf("bad REMINDER_TZ %q, using UTC: %v", a.Config.Timezone, err)
		loc = time.UTC
	}
	sched := services.NewScheduler(
		repo, repo, notifier, repo, repo,
		services.NewRedisRunGuard(a.RDB, 48*time.Hour),
		loc, a.Config.ReminderAt, a.Config.PurgeAt, a.Config.ReminderSlot,
	)

	return &Srv{
		Repo:     repo,
		Keys:     keys,
		Notifier: notifier,
		Sched:    sched,
		AppSess:  a.AppSessions(),
		Hub:      a.Hub,
		Cfg:      a.Config,
	}
}

// --- helpers ---

// actor builds the explicit identity every service call carries.
func actor(c *gin.Context) services.Actor {
	return services.Actor{
		ID:    c.GetString("userID"),
		Name:  c.GetString("userName"),
		Email: c.GetString("userEmail"),
		Role:  c.GetString("userRole"),
		IP:    c.ClientIP(),
	}
}

func fail(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), app.H{"error": apperr.Message(err)})
}

func (s *Srv) setAppCookie(w http.ResponseWriter, sessionID string, maxAge time.Duration) {
	secure := strings.HasPrefix(s.Cfg.WebOrigin, "https://")
	http.SetCookie(w, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   secure,
		MaxAge:   int(maxAge / time.Second),
	})
}

// issueSession: create the Redis session + login snapshot + cookie.
func (s *Srv) issueSession(c *gin.Context, u *models.User) error {
	if err := s.Repo.TouchUserLogin(c.Request.Context(), u.ID, c.ClientIP(), c.Request.UserAgent()); err != nil {
		// snapshot only, not worth failing login
		log.Printf("touch login failed: %v", err)
	}
	id := uuid.NewString()
	if err := s.AppSess.Create(c.Request.Context(), id, u); err != nil {
		return err
	}
	s.setAppCookie(c.Writer, id, s.Cfg.SessionTTL)
	return nil
}
