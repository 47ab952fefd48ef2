package main

import (
	"context"
	"log"

	"keytrack/app"
	"keytrack/config"
	"keytrack/controllers"
	"keytrack/routes"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()

	application := app.MustNew(cfg)
	defer application.Close()

	r := application.Router

	// Health
	r.GET("/healthz", func(c *app.Ctx) { c.JSON(200, app.H{"ok": true}) })

	srv := controllers.GetSrv(application)
	routes.RegisterRoutes(r, application, srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.BootstrapFirstAdmin(ctx, cfg, srv.Repo)
	srv.Sched.Start(ctx)

	log.Printf("listening on :%s", cfg.Port)
	_ = r.Run(":" + cfg.Port)
}
