// Package api exposes the orchestrator over HTTP: synchronous runs,
// session lifecycle, and the per-session SSE event stream.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/councilkit/council/pkg/database"
	"github.com/councilkit/council/pkg/orchestrator"
)

// Server is the HTTP transport over one orchestrator.
type Server struct {
	orch *orchestrator.Orchestrator
	db   *database.Client // nil when running without persistence
}

// NewServer creates an API server. db may be nil.
func NewServer(orch *orchestrator.Orchestrator, db *database.Client) *Server {
	return &Server{orch: orch, db: db}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router(allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(), corsMiddleware(allowedOrigins))

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/runs", s.createRun)
		v1.POST("/sessions", s.createSession)
		v1.GET("/sessions", s.listSessions)
		v1.GET("/sessions/:id", s.getSession)
		v1.POST("/sessions/:id/cancel", s.cancelSession)
		v1.GET("/sessions/:id/events", s.streamEvents)
	}
	return router
}

func (s *Server) health(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "disabled"})
		return
	}

	ctx, cancel := timeoutContext(c, 5*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": "ok"})
}
