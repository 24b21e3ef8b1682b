// Package router wires the CyPlan HTTP routes and middleware chain.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/cyplan/internal/cyplan/handler"
	"github.com/kart-io/cyplan/internal/cyplan/metrics"
	"github.com/kart-io/cyplan/internal/pkg/httputils"
	"github.com/kart-io/cyplan/pkg/infra/middleware"
	mwopts "github.com/kart-io/cyplan/pkg/options/middleware"
	errno "github.com/kart-io/cyplan/pkg/utils/errors"
)

// Handlers groups the handlers served by the router. Session, Plan and
// Knowledge may be nil to leave their routes out.
type Handlers struct {
	System    *handler.SystemHandler
	Thread    *handler.ThreadHandler
	Session   *handler.SessionHandler
	Plan      *handler.PlanHandler
	Knowledge *handler.KnowledgeHandler
}

// Register installs the middleware chain and every route on engine.
func Register(engine *gin.Engine, opts *mwopts.Options, m *metrics.Metrics, h Handlers) {
	logger.Info("Registering CyPlan routes...")
	if opts == nil {
		opts = mwopts.NewOptions()
	}
	if err := opts.Complete(); err != nil {
		logger.Warnw("middleware options incomplete", "error", err)
	}
	if m == nil {
		m = metrics.Default()
	}
	skip := opts.Logger.SkipPaths

	engine.Use(
		middleware.RequestID(*opts.RequestID),
		middleware.Recovery(*opts.Recovery),
		middleware.Tracing(skip...),
		middleware.Logger(*opts.Logger),
		middleware.Metrics(m, skip...),
		middleware.CORS(*opts.CORS),
		middleware.Timeout(*opts.Timeout),
	)
	engine.NoRoute(func(c *gin.Context) {
		httputils.WriteResponse(c, errno.ErrRouteNotFound.WithMessagef("route %s %s not found", c.Request.Method, c.Request.URL.Path), nil)
	})
	engine.HandleMethodNotAllowed = true
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})

	// Discovery
	engine.GET("/", h.System.Root)
	engine.GET("/health", h.System.Health)
	engine.GET("/ready", h.System.Ready)
	engine.GET("/info", h.System.Info)
	engine.GET("/assistants/:id", h.System.Assistant)
	engine.GET("/metrics", gin.WrapH(m.Handler()))

	// Streaming conversation
	threads := engine.Group("/threads")
	{
		threads.POST("", h.Thread.CreateThread)
		threads.POST("/search", h.Thread.SearchThreads)
		threads.GET("/:id/history", h.Thread.History)
		threads.POST("/:id/history", h.Thread.History)
		threads.POST("/:id/runs", h.Thread.Run)
		threads.POST("/:id/runs/stream", h.Thread.Run)
	}

	api := engine.Group("/api")
	if h.Session != nil {
		sessions := api.Group("/sessions")
		sessions.POST("", h.Session.Start)
		sessions.POST("/:id/messages", h.Session.Message)
		sessions.GET("/:id/messages", h.Session.History)
	}
	if h.Plan != nil {
		api.POST("/plans", h.Plan.Create)
		api.GET("/plans/:id", h.Plan.Get)
		api.POST("/plans/:id/responses", h.Plan.SubmitResponse)
		api.POST("/plans/:id/summary", h.Plan.Summary)
		api.GET("/frameworks/:id/prompts", h.Plan.Prompts)
		api.POST("/responses/validate", h.Plan.ValidateResponse)
	}
	if h.Knowledge != nil {
		api.GET("/knowledge", h.Knowledge.All)
		api.POST("/knowledge/search", h.Knowledge.Search)
		api.GET("/frameworks", h.Knowledge.Framework)
		api.GET("/frameworks/:id", h.Knowledge.Framework)
		api.POST("/risk/assess", h.Knowledge.AssessRisk)

		api.POST("/ingest", h.Knowledge.Upload)
		api.POST("/ingest/directory", h.Knowledge.IngestDirectory)
		api.GET("/libraries", h.Knowledge.Libraries)
		api.DELETE("/libraries/:name", h.Knowledge.DeleteLibrary)
		api.POST("/documents/search", h.Knowledge.SearchDocuments)
	}

	logger.Info("HTTP routes registered")
}
