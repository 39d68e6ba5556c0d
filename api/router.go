package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/resulthound/resulthound/api/handler"
	"github.com/resulthound/resulthound/api/middleware"
	"github.com/resulthound/resulthound/config"
	"github.com/resulthound/resulthound/harvest"
	"github.com/resulthound/resulthound/portal"
	"github.com/resulthound/resulthound/qa"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(session *portal.Session, registry *harvest.Registry, qaClient *qa.Client, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(session, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Batch harvest runs
	protected.POST("/runs", handler.PostRun(registry, session, cfg))
	protected.GET("/runs/:id", handler.GetRun(registry))
	protected.GET("/runs/:id/export", handler.ExportRun(registry))
	protected.POST("/runs/:id/ask", handler.AskRun(registry, qaClient, cfg))

	// Single-student lookup
	protected.POST("/lookup", handler.PostLookup(session))

	// Question answering over an uploaded export
	protected.POST("/ask", handler.AskUpload(qaClient, cfg))

	return r
}
