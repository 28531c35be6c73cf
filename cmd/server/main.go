package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/workdeck/workdeck/cmd/server/internal/api"
	"github.com/workdeck/workdeck/cmd/server/internal/config"
	"github.com/workdeck/workdeck/cmd/server/internal/documents"
	"github.com/workdeck/workdeck/cmd/server/internal/domain/projects"
	"github.com/workdeck/workdeck/cmd/server/internal/middleware"
	"github.com/workdeck/workdeck/cmd/server/internal/realtime"
	"github.com/workdeck/workdeck/cmd/server/internal/storage"
	"github.com/workdeck/workdeck/cmd/server/internal/users"
	"github.com/workdeck/workdeck/pkg/logger"
)

// generateRandomPassword generates a cryptographically secure random password
func generateRandomPassword(length int) string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("failed to generate random password: %v", err))
	}
	return base64.URLEncoding.EncodeToString(buf)[:length]
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	logInstance, err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		WithSource:  !cfg.IsProduction(),
		File:        cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	appLogger := logInstance.With("component", "server")

	if err := config.ValidateConfig(cfg); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// durable document storage
	store, err := storage.Open(cfg.Data.DatabasePath)
	if err != nil {
		appLogger.Error("failed to open document store", "path", cfg.Data.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// user accounts and tokens
	userManager, err := users.NewManager(cfg.Data.UsersDir, []byte(cfg.Security.JWTSecret), cfg.Security.AccessTokenTTL, cfg.Security.RefreshTokenTTL)
	if err != nil {
		appLogger.Error("failed to init user manager", "error", err)
		os.Exit(1)
	}
	adminPassword := os.Getenv("ADMIN_DEFAULT_PASSWORD")
	if adminPassword == "" {
		adminPassword = generateRandomPassword(16)
		appLogger.Info("generated admin password", "password", adminPassword)
	}
	if err := userManager.EnsureDefaultAdmin(adminPassword); err != nil {
		appLogger.Error("failed to ensure admin account", "error", err)
		os.Exit(1)
	}

	// project registry
	projects.InitPaths()
	projectRegistry := projects.NewProjectRegistry()
	if err := projects.LoadProjects(projectRegistry); err != nil {
		appLogger.Error("failed to load projects", "error", err)
		os.Exit(1)
	}
	appLogger.Info("projects loaded", "count", len(projectRegistry.List()))

	// realtime engine
	cache := realtime.NewCache(store)
	hub := realtime.NewHub(cache, store, appLogger.With("component", "realtime"), realtime.Options{
		DebounceWindow:    cfg.Realtime.DebounceWindow,
		WriteRetries:      cfg.Realtime.WriteRetries,
		WriteRetryBackoff: cfg.Realtime.WriteRetryBackoff,
	})

	// a room join requires an existing document in a project the user
	// belongs to
	authorize := func(ctx context.Context, username, docID string) (documents.Kind, error) {
		doc, err := store.GetDocument(ctx, docID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return "", realtime.ErrUnknownDocument
			}
			return "", err
		}
		p := projectRegistry.Get(doc.ProjectID)
		if p == nil || !p.HasMember(username) {
			return "", realtime.ErrNotAuthorized
		}
		return doc.Kind, nil
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(corsMiddleware(cfg.Security.CORSAllowedOrigins))

	startTime := time.Now()
	r.GET("/health", healthCheckHandler(cfg, startTime))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", api.HandleLogin(userManager, appLogger))
	v1.POST("/auth/refresh", api.HandleRefresh(userManager, appLogger))

	v1.GET("/realtime", realtime.HandleRealtime(realtime.HandlerDeps{
		Hub:             hub,
		Users:           userManager,
		Authorize:       authorize,
		Logger:          appLogger.With("component", "realtime-handler"),
		SendQueueSize:   cfg.Realtime.SendQueueSize,
		MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
		AllowedOrigins:  cfg.Security.CORSAllowedOrigins,
	}))

	authed := v1.Group("")
	authed.Use(middleware.Auth(userManager, appLogger))
	{
		authed.GET("/projects", api.HandleListProjects(projectRegistry))
		authed.GET("/projects/:id", api.HandleGetProject(projectRegistry))

		pw := authed.Group("").Use(middleware.RequireScope(users.ScopeProjectWrite))
		pw.POST("/projects", api.HandleCreateProject(projectRegistry, appLogger))
		pw.PUT("/projects/:id", api.HandleRenameProject(projectRegistry, appLogger))
		pw.DELETE("/projects/:id", api.HandleDeleteProject(projectRegistry, appLogger))
		pw.POST("/projects/:id/members", api.HandleAddMember(projectRegistry, appLogger))
		pw.DELETE("/projects/:id/members/:username", api.HandleRemoveMember(projectRegistry, appLogger))

		dr := authed.Group("").Use(middleware.RequireScope(users.ScopeDocRead))
		dr.GET("/projects/:id/documents", api.HandleListDocuments(store, projectRegistry))
		dr.GET("/documents/:id", api.HandleGetDocument(store, projectRegistry, hub.Cache()))

		dw := authed.Group("").Use(middleware.RequireScope(users.ScopeDocWrite))
		dw.POST("/projects/:id/documents", api.HandleCreateDocument(store, projectRegistry, appLogger))
		dw.DELETE("/documents/:id", api.HandleDeleteDocument(store, projectRegistry, hub.Cache(), appLogger))

		um := authed.Group("").Use(middleware.RequireScope(users.ScopeUserManage))
		um.GET("/users", api.HandleListUsers(userManager))
		um.GET("/users/:username", api.HandleGetUser(userManager))
		um.POST("/users", api.HandleCreateUser(userManager))
		um.PUT("/users/:username", api.HandleUpdateUser(userManager))
		um.DELETE("/users/:username", api.HandleDeleteUser(userManager))

		authed.POST("/me/password", api.HandleChangePassword(userManager))
	}

	srv := &http.Server{
		Addr:    cfg.GetServerAddr(),
		Handler: r,
	}

	runCtx, stopHub := context.WithCancel(context.Background())
	g, _ := errgroup.WithContext(runCtx)
	g.Go(func() error {
		hub.Run(runCtx)
		return nil
	})
	g.Go(func() error {
		appLogger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	appLogger.Info("shutdown signal received, shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("http shutdown failed", "error", err)
	}

	// persist settled edits before the process goes away
	hub.Scheduler().Flush(shutdownCtx)
	stopHub()

	if err := g.Wait(); err != nil {
		appLogger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("server stopped")
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := map[string]bool{}
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func healthCheckHandler(cfg *config.Config, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"env":     cfg.Server.Env,
			"uptime":  time.Since(startTime).Round(time.Second).String(),
			"version": "1.0.0",
		})
	}
}
