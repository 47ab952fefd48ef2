package routes

import (
	"time"

	"keytrack/app"
	"keytrack/controllers"
	"keytrack/models"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App, s *controllers.Srv) {
	authCtl := controllers.NewAuthController(s)
	keyCtl := controllers.NewKeyController(s)
	qrCtl := controllers.NewQRController(s)
	notifCtl := controllers.NewNotificationController(s)
	auditCtl := controllers.NewAuditController(s)
	userCtl := controllers.NewUserController(s)
	apiKeyCtl := controllers.NewAPIKeyController(s)
	schedCtl := controllers.NewSchedulerController(s)
	eventsCtl := controllers.NewEventsController(s)

	authMW := app.AuthRequired(a.AppSessions(), s.Repo)
	adminMW := app.RoleRequired(models.RoleAdmin)
	securityMW := app.RoleRequired(models.RoleSecurity, models.RoleAdmin)
	seenMW := app.TouchLastSeen(s.Repo, a.RDB, 5*time.Minute)

	// ------------------------------
	// Auth
	// ------------------------------
	auth := r.Group("/auth")
	{
		auth.POST("/login", authCtl.Login)
	}
	authed := auth.Group("", authMW, seenMW)
	{
		authed.GET("/whoami", authCtl.Whoami)
		authed.POST("/logout", authCtl.Logout)
	}

	// ------------------------------
	// Keys: browse / take / return
	// ------------------------------
	keys := r.Group("/api/keys", authMW, seenMW)
	{
		keys.GET("", keyCtl.ListKeys) // ?q=&status=&category=&department=&frequentlyUsed=
		keys.GET("/mine", keyCtl.MyKeys)
		keys.GET("/:number", keyCtl.GetKey)
		keys.POST("/:number/take", keyCtl.Take)
		keys.POST("/:number/return", keyCtl.Return)
	}

	// inventory management (admin)
	keysAdmin := r.Group("/api/keys", authMW, adminMW)
	{
		keysAdmin.POST("", keyCtl.CreateKey)
		keysAdmin.PUT("/:number", keyCtl.UpdateKey)
		keysAdmin.DELETE("/:number", keyCtl.DeleteKey)
	}

	// ------------------------------
	// QR scan station (security/admin)
	// ------------------------------
	qr := r.Group("/api/qr", authMW, securityMW)
	{
		qr.POST("/scan", qrCtl.Scan)
		qr.POST("/issue", qrCtl.Issue)
	}

	// ------------------------------
	// Notifications (own feed)
	// ------------------------------
	notifs := r.Group("/api/notifications", authMW, seenMW)
	{
		notifs.GET("", notifCtl.List) // ?unread=true&type=&page=&size=
		notifs.GET("/unread-count", notifCtl.UnreadCount)
		notifs.POST("/read-all", notifCtl.MarkAllRead)
		notifs.POST("/:id/read", notifCtl.MarkRead)
		notifs.DELETE("/:id", notifCtl.Delete)
	}

	// ------------------------------
	// Audit trail (security/admin)
	// ------------------------------
	audit := r.Group("/api/audit", authMW, securityMW)
	{
		audit.GET("", auditCtl.List) // ?action=&actorId=&keyNumber=&from=&to=&collective=true
	}

	// ------------------------------
	// User management (admin)
	// ------------------------------
	users := r.Group("/api/users", authMW, adminMW)
	{
		users.GET("", userCtl.ListUsers) // ?q=&role=&page=&size=
		users.GET("/:id", userCtl.GetUser)
		users.PUT("/:id", userCtl.UpdateUser)
		users.DELETE("/:id", userCtl.DeleteUser)
	}

	// ------------------------------
	// API keys + scheduler (admin)
	// ------------------------------
	admin := r.Group("/api/admin", authMW, adminMW)
	{
		admin.POST("/api-keys", apiKeyCtl.Create)
		admin.GET("/api-keys", apiKeyCtl.List)
		admin.DELETE("/api-keys/:id", apiKeyCtl.Revoke)

		admin.POST("/reminders/run", schedCtl.RunReminders) // ?force=true bypasses the slot guard
		admin.GET("/reminders/runs", schedCtl.ListRuns)
		admin.POST("/notifications/purge", schedCtl.PurgeNotifications)
	}

	// ------------------------------
	// Department integrations (X-API-Key)
	// ------------------------------
	integration := r.Group("/integration", app.APIKeyRequired(s.Repo))
	{
		integration.GET("/keys", apiKeyCtl.IntegrationKeys)
	}

	// ------------------------------
	// Live updates
	// ------------------------------
	r.GET("/api/events", authMW, eventsCtl.Stream)
}
