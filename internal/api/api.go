// Package api exposes the orchestration engine over HTTP. The surface
// mirrors the engine's upward interface one to one; all isolation and
// state logic stays in the session and engine layers.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mediafetch/fetchd/internal/model"
	"github.com/mediafetch/fetchd/internal/session"
	"github.com/mediafetch/fetchd/internal/store"
)

const (
	sessionCookie = "fetchd_session"
	cookieMaxAge  = 30 * 24 * 60 * 60
)

type Server struct {
	sessions *session.Manager
	router   *gin.Engine
}

func New(sessions *session.Manager) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		sessions: sessions,
		router:   gin.New(),
	}
	s.router.Use(gin.Recovery(), ownerToken())

	api := s.router.Group("/api")
	api.POST("/download", s.startDownload)
	api.GET("/status/:id", s.status)
	api.GET("/downloads", s.list)
	api.POST("/cancel/:id", s.cancel)
	api.DELETE("/downloads/:id", s.delete)
	api.POST("/clear-history", s.clearHistory)
	api.GET("/stats", s.statistics)
	return s
}

// Handler returns the http.Handler for the server lifecycle owner.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ownerToken assigns every caller a server-minted opaque identity,
// carried in a cookie. Ownership checks never trust client-supplied
// content beyond this token.
func ownerToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := c.Cookie(sessionCookie)
		if err != nil || owner == "" {
			owner = uuid.NewString()
			c.SetCookie(sessionCookie, owner, cookieMaxAge, "/", "", false, true)
		}
		c.Set("owner", owner)
		c.Next()
	}
}

func owner(c *gin.Context) string {
	return c.GetString("owner")
}

type downloadRequest struct {
	URL     string `json:"url" binding:"required"`
	Cookies string `json:"cookies"`
}

func (s *Server) startDownload(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "url is required"})
		return
	}

	var credentials []byte
	if req.Cookies != "" {
		credentials = []byte(req.Cookies)
	}

	id, err := s.sessions.Start(c.Request.Context(), owner(c), req.URL, credentials)
	if err != nil {
		if errors.Is(err, model.ErrInvalidURL) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid URL format"})
			return
		}
		slog.ErrorContext(c.Request.Context(), "starting download", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to start download"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success":     true,
		"download_id": id,
		"message":     "Download started successfully",
	})
}

func (s *Server) status(c *gin.Context) {
	job, err := s.sessions.Status(owner(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			notFound(c)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to read status"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": job})
}

func (s *Server) list(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": s.sessions.List(owner(c))})
}

func (s *Server) cancel(c *gin.Context) {
	id := c.Param("id")
	if !s.sessions.Cancel(c.Request.Context(), owner(c), id) {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Download " + id + " cancelled successfully"})
}

func (s *Server) delete(c *gin.Context) {
	id := c.Param("id")
	if !s.sessions.Delete(c.Request.Context(), owner(c), id) {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Download " + id + " deleted successfully"})
}

func (s *Server) clearHistory(c *gin.Context) {
	s.sessions.ClearHistory(c.Request.Context(), owner(c))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Download history cleared successfully"})
}

func (s *Server) statistics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": s.sessions.Statistics(owner(c))})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Download not found"})
}
