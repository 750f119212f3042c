package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/wordbiz/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": "wordbiz",
			"version": Version,
		})
	})

	s.router.GET("/ready", func(c *gin.Context) {
		snap := s.source.Snapshot()
		status := http.StatusOK
		ready := snap.State.Authenticated()
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready": ready,
			"state": snap.State,
			"since": snap.Since,
		})
	})

	var validator auth.Validator
	if token := strings.TrimSpace(s.cfg.Token); token != "" {
		validator = auth.StaticToken{Token: token}
	}
	guarded := s.router.Group("/", auth.Middleware(validator))

	guarded.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.source.Snapshot())
	})

	guarded.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
