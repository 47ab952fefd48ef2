package app

import (
	"context"
	"log"
	"time"

	"keytrack/config"
	"keytrack/db"
	"keytrack/mailer"
	"keytrack/realtime"
	"keytrack/session"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// aliases for handlers
type Ctx = gin.Context
type H = gin.H

// App aggregates the process-wide dependencies. Everything downstream gets
// these injected; nothing reaches for globals.
type App struct {
	Router *gin.Engine
	DB     *gorm.DB
	RDB    *redis.Client
	Config config.Config

	Hub    *realtime.Hub
	Fanout realtime.Fanout
	Mailer mailer.Sender

	appSess  *session.AppSessionStore
	stopping context.CancelFunc
}

func (a *App) AppSessions() *session.AppSessionStore { return a.appSess }

func MustNew(cfg config.Config) *App {
	dbConn := db.ConnectDB()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd, DB: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis: %v", err)
	}

	// fanout publishes via Redis so every replica sees every room; the
	// bridge feeds the local hub that SSE clients hang off
	hub := realtime.NewHub()
	bridgeCtx, stop := context.WithCancel(context.Background())
	go realtime.RunBridge(bridgeCtx, rdb, hub)

	r := gin.Default()
	useCORS(r, cfg.WebOrigin)

	return &App{
		Router:   r,
		DB:       dbConn,
		RDB:      rdb,
		Config:   cfg,
		Hub:      hub,
		Fanout:   realtime.NewRedisFanout(rdb),
		Mailer:   mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom, cfg.MailFromName),
		appSess:  session.NewAppSessionStore(rdb, cfg.SessionTTL),
		stopping: stop,
	}
}

func (a *App) Close() {
	a.stopping()
	_ = a.RDB.Close()
}
