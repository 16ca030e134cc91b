/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package router wires every subsystem together and runs the HTTP API.
// Package router 负责组装各子系统并运行 HTTP API。
package router

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/kissanima/craftd/internal/apps/audit"
	"github.com/kissanima/craftd/internal/apps/auth"
	"github.com/kissanima/craftd/internal/apps/backup"
	"github.com/kissanima/craftd/internal/apps/dashboard"
	"github.com/kissanima/craftd/internal/apps/health"
	"github.com/kissanima/craftd/internal/apps/mods"
	"github.com/kissanima/craftd/internal/apps/oauth"
	"github.com/kissanima/craftd/internal/apps/power"
	"github.com/kissanima/craftd/internal/apps/properties"
	"github.com/kissanima/craftd/internal/apps/server"
	"github.com/kissanima/craftd/internal/apps/tunnel"
	"github.com/kissanima/craftd/internal/config"
	"github.com/kissanima/craftd/internal/db"
	"github.com/kissanima/craftd/internal/logger"
	"github.com/kissanima/craftd/internal/otel_trace"
	"github.com/kissanima/craftd/internal/playit"
	"github.com/kissanima/craftd/internal/scheduler"
	"github.com/kissanima/craftd/internal/session"
)

// Serve boots the daemon: database, session store, supervisor, tunnel,
// background jobs and the HTTP API. It blocks until SIGINT or SIGTERM, then
// shuts everything down in reverse order.
// Serve 启动守护进程的全部子系统并阻塞，收到退出信号后按相反顺序关闭。
func Serve() {
	ctx := context.Background()

	otel_trace.Init()
	defer otel_trace.Shutdown(ctx)

	logger.Init()
	defer logger.Sync()

	if config.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := db.Init(); err != nil {
		log.Fatalf("[API] failed to initialize database: %v\n", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(
		&auth.User{},
		&audit.CommandLog{},
		&audit.AuditLog{},
		&backup.Backup{},
		&health.Sample{},
		&power.Settings{},
		&mods.Mod{},
	); err != nil {
		log.Fatalf("[API] failed to migrate database: %v\n", err)
	}

	authCfg := config.Config.Auth
	if err := auth.EnsureDefaultAdmin(db.DB(ctx),
		authCfg.DefaultAdminUsername, authCfg.DefaultAdminPassword, authCfg.BcryptCost); err != nil {
		log.Fatalf("[API] failed to ensure default admin: %v\n", err)
	}

	if err := session.Init(); err != nil {
		log.Fatalf("[API] failed to initialize session store: %v\n", err)
	}

	oauth.InitProviders()

	// Domain services around the two child processes.
	auditRepo := audit.NewRepository(db.DB(ctx))
	serverCfg := config.GetServerConfig()
	serverService := server.NewService(serverCfg, auditRepo)
	serverDir := filepath.Dir(serverCfg.JarPath)

	tunnelCfg := config.GetTunnelConfig()
	tunnelManager := playit.NewManager(tunnelCfg.BinaryPath, tunnelCfg.GracefulTimeout())
	if tunnelCfg.AutoStart {
		if err := tunnelManager.Start(ctx); err != nil {
			logger.WarnF(ctx, "[API] tunnel auto-start failed: %v", err)
		}
	}

	backupService := backup.NewService(config.GetBackupConfig(), serverDir,
		backup.NewRepository(db.DB(ctx)), serverService)

	healthSink, err := health.NewClickHouseSink(ctx, config.GetClickHouseConfig())
	if err != nil {
		logger.WarnF(ctx, "[API] clickhouse sink disabled: %v", err)
		healthSink = nil
	}
	var sink health.SampleSink
	if healthSink != nil {
		sink = healthSink
		defer healthSink.Close()
	}
	healthService := health.NewService(config.GetHealthConfig(), serverService,
		health.NewRepository(db.DB(ctx)), sink)

	samplerCtx, stopSampler := context.WithCancel(ctx)
	go healthService.Run(samplerCtx)
	defer stopSampler()

	powerRepo := power.NewRepository(db.DB(ctx), config.GetPowerConfig())
	powerService := power.NewService(powerRepo, serverService, tunnelManager)

	powerCfg := config.GetPowerConfig()
	if powerCfg.WakeDetectionEnabled {
		wakeCtx, stopWake := context.WithCancel(ctx)
		go power.NewWakeDetector(serverService, tunnelManager,
			powerCfg.AutoRestartAfterWake).Run(wakeCtx)
		defer stopWake()
	}

	modsCfg := config.GetModsConfig()
	modsDir := modsCfg.Dir
	if modsDir == "" {
		modsDir = filepath.Join(serverDir, "mods")
	}
	modsService := mods.NewService(modsDir, mods.NewRepository(db.DB(ctx)), serverService)

	jobs := scheduler.New(backupService, powerService)
	if err := jobs.Start(ctx); err != nil {
		log.Fatalf("[API] failed to start scheduler: %v\n", err)
	}
	defer jobs.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(sessions.Sessions(config.Config.App.SessionCookieName, session.GinStore))
	r.Use(otelgin.Middleware(config.Config.App.AppName), loggerMiddleware())

	registerRoutes(r, &handlers{
		server:     server.NewHandler(serverService),
		tunnel:     tunnel.NewHandler(tunnelManager),
		backup:     backup.NewHandler(backupService, auditRepo),
		properties: properties.NewHandler(serverDir, auditRepo),
		health:     health.NewHandler(healthService, health.NewRepository(db.DB(ctx))),
		power:      power.NewHandler(powerRepo, auditRepo),
		mods:       mods.NewHandler(modsService, auditRepo),
		dashboard:  dashboard.NewHandler(serverService, tunnelManager, healthService, backupService, auditRepo),
		audit:      audit.NewHandler(auditRepo),
	})

	srv := &http.Server{
		Addr:    config.Config.App.Addr,
		Handler: r,
	}

	go func() {
		logger.InfoF(ctx, "[API] HTTP server starting on %s", config.Config.App.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[API] serve api failed: %v\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.InfoF(ctx, "[API] shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WarnF(ctx, "[API] HTTP shutdown error: %v", err)
	}

	// Children go down after the API so in-flight requests can still observe
	// them.
	power.StopAll(shutdownCtx, serverService, tunnelManager)

	logger.InfoF(ctx, "[API] shutdown complete")
}

// handlers collects every HTTP handler the route table needs.
type handlers struct {
	server     *server.Handler
	tunnel     *tunnel.Handler
	backup     *backup.Handler
	properties *properties.Handler
	health     *health.Handler
	power      *power.Handler
	mods       *mods.Handler
	dashboard  *dashboard.Handler
	audit      *audit.Handler
}

func registerRoutes(r *gin.Engine, h *handlers) {
	// Liveness probe for load balancers and container runtimes.
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := r.Group(config.Config.App.APIPrefix)

	apiV1Router := apiGroup.Group("/v1")
	{
		// Auth (password login; OAuth is the alternative below).
		apiV1Router.POST("/auth/login", auth.Login)
		apiV1Router.POST("/auth/logout", auth.LoginRequired(), auth.Logout)
		apiV1Router.GET("/auth/user-info", auth.LoginRequired(), auth.GetUserInfo)

		// OAuth (GitHub, Google).
		apiV1Router.GET("/oauth/providers", oauth.GetEnabledProvidersHandler)
		apiV1Router.GET("/oauth/login/:provider", oauth.GetLoginURL)
		apiV1Router.POST("/oauth/callback", oauth.Callback)

		// Server lifecycle and console.
		serverRouter := apiV1Router.Group("/server")
		serverRouter.Use(auth.LoginRequired())
		{
			serverRouter.POST("/start", h.server.Start)
			serverRouter.POST("/stop", h.server.Stop)
			serverRouter.POST("/restart", h.server.Restart)
			serverRouter.GET("/status", h.server.Status)
			serverRouter.POST("/command", h.server.SendCommand)
			serverRouter.GET("/console", h.server.Console)
			serverRouter.GET("/console/stream", h.server.ConsoleStream)
			serverRouter.POST("/console/clear", h.server.ClearConsole)
		}

		// Playit.gg tunnel.
		tunnelRouter := apiV1Router.Group("/tunnel")
		tunnelRouter.Use(auth.LoginRequired())
		{
			tunnelRouter.POST("/start", h.tunnel.Start)
			tunnelRouter.POST("/stop", h.tunnel.Stop)
			tunnelRouter.POST("/restart", h.tunnel.Restart)
			tunnelRouter.GET("/status", h.tunnel.Status)
		}

		// Backups.
		backupRouter := apiV1Router.Group("/backups")
		backupRouter.Use(auth.LoginRequired())
		{
			backupRouter.POST("", h.backup.Create)
			backupRouter.GET("", h.backup.List)
			backupRouter.GET("/stats", h.backup.GetStats)
			backupRouter.POST("/:id/restore", h.backup.Restore)
			backupRouter.DELETE("/:id", h.backup.Delete)
		}

		// server.properties editing.
		propertiesRouter := apiV1Router.Group("/properties")
		propertiesRouter.Use(auth.LoginRequired())
		{
			propertiesRouter.GET("", h.properties.Get)
			propertiesRouter.PUT("", h.properties.Update)
			propertiesRouter.POST("/reset", auth.AdminRequired(), h.properties.Reset)
		}

		// Health sampling.
		healthRouter := apiV1Router.Group("/health")
		healthRouter.Use(auth.LoginRequired())
		{
			healthRouter.GET("/current", h.health.Current)
			healthRouter.GET("/history", h.health.History)
			healthRouter.GET("/samples", h.health.Samples)
		}

		// Shutdown schedule. Editing is admin-only.
		powerRouter := apiV1Router.Group("/power")
		powerRouter.Use(auth.LoginRequired())
		{
			powerRouter.GET("/schedule", h.power.GetSchedule)
			powerRouter.PUT("/schedule", auth.AdminRequired(), h.power.UpdateSchedule)
		}

		// Mod library. Installing and removing jars is admin-only.
		modsRouter := apiV1Router.Group("/mods")
		modsRouter.Use(auth.LoginRequired())
		{
			modsRouter.GET("", h.mods.List)
			modsRouter.GET("/stats", h.mods.GetStats)
			modsRouter.GET("/dependencies/missing", h.mods.MissingDependencies)
			modsRouter.POST("/scan", h.mods.Scan)
			modsRouter.POST("", auth.AdminRequired(), h.mods.Install)
			modsRouter.POST("/:id/enable", h.mods.Enable)
			modsRouter.POST("/:id/disable", h.mods.Disable)
			modsRouter.DELETE("/:id", auth.AdminRequired(), h.mods.Remove)
		}

		// Dashboard overview.
		dashboardRouter := apiV1Router.Group("/dashboard")
		dashboardRouter.Use(auth.LoginRequired())
		{
			dashboardRouter.GET("/overview", h.dashboard.GetOverview)
		}

		// Command and audit logs.
		commandRouter := apiV1Router.Group("/commands")
		commandRouter.Use(auth.LoginRequired())
		{
			commandRouter.GET("", h.audit.ListCommandLogs)
		}
		auditLogRouter := apiV1Router.Group("/audit-logs")
		auditLogRouter.Use(auth.LoginRequired())
		{
			auditLogRouter.GET("", h.audit.ListAuditLogs)
			auditLogRouter.GET("/:id", h.audit.GetAuditLog)
		}
	}
}

// loggerMiddleware logs one line per request with latency and status.
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		logger.InfoF(c.Request.Context(), "[API] %s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), latency)
	}
}
