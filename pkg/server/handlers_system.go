package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// health handles GET /health. It is intentionally not exempt from auth:
// the auth middleware checks every route.
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// getConfig handles GET /config, returning the resolved configuration
// with the auth token masked.
func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.cfg.Masked())
}

// getLogs handles GET /logs, returning the in-memory ring buffer's
// current contents.
func (s *Server) getLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": s.recorder.Records()})
}
