package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/councilkit/council/pkg/models"
)

// createRun handles POST /api/v1/runs: one synchronous council run. The
// event stream is not exposed on this path; use sessions for streaming.
func (s *Server) createRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := s.orch.Run(c.Request.Context(), req.ToRunInput(), nil)
	c.JSON(http.StatusOK, result)
}

// createSession handles POST /api/v1/sessions: registers a session and
// starts its run in the background.
func (s *Server) createSession(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess, err := s.orch.StartSession(c.Request.Context(), req.ToRunInput())
	if err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sess)
}

// listSessions handles GET /api/v1/sessions.
func (s *Server) listSessions(c *gin.Context) {
	sessions, err := s.orch.ListSessions(c.Request.Context(), c.Query("org_scope"))
	if err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// getSession handles GET /api/v1/sessions/:id.
func (s *Server) getSession(c *gin.Context) {
	sess, err := s.orch.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// cancelSession handles POST /api/v1/sessions/:id/cancel.
func (s *Server) cancelSession(c *gin.Context) {
	if err := s.orch.Cancel(c.Param("id")); err != nil {
		mapError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancel_requested"})
}

// streamEvents handles GET /api/v1/sessions/:id/events as an SSE stream.
// A session supports exactly one observer; the stream ends with the run's
// terminal event or when the client disconnects.
func (s *Server) streamEvents(c *gin.Context) {
	stream, err := s.orch.Observe(c.Param("id"))
	if err != nil {
		mapError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case ev, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return !ev.Terminal()
		}
	})
}

// mapError translates engine errors to HTTP responses.
func mapError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, models.ErrSessionTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": "session already terminal"})
	case errors.Is(err, models.ErrObserverAttached):
		c.JSON(http.StatusConflict, gin.H{"error": "session already has an observer"})
	case errors.Is(err, models.ErrCancelled):
		c.JSON(http.StatusConflict, gin.H{"error": "session was cancelled"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// timeoutContext derives a bounded context from the request.
func timeoutContext(c *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), d)
}
