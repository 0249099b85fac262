// Package api exposes the monitor's live state over HTTP for dashboards
// and scripted checks. Advisory only: the monitoring loop never depends on
// this server.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/veloscale/velobench/internal/monitor"
)

// Server serves the live status endpoint.
type Server struct {
	addr string
	mon  *monitor.Monitor
	srv  *http.Server
}

// NewServer builds a status server bound to addr, reading state from mon.
func NewServer(addr string, mon *monitor.Monitor) *Server {
	return &Server{addr: addr, mon: mon}
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/api/v1/status", s.handleStatus)
	router.GET("/api/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

// Start runs the HTTP server in the background. Listen errors after startup
// are logged, not fatal to the monitoring session.
func (s *Server) Start() {
	s.srv = &http.Server{Addr: s.addr, Handler: s.router()}

	log.WithField("listen", s.addr).Info("🌐 Live status API listening")
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("Status API server stopped")
		}
	}()
}

// Stop shuts the server down, waiting briefly for in-flight requests.
func (s *Server) Stop() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.Header("Cache-Control", "no-cache")
	c.JSON(http.StatusOK, s.mon.Snapshot())
}
