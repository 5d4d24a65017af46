package main

import (
	"database/sql"
	"net/http"
	"time"

	"leadpool-crm/internal/auth"
	"leadpool-crm/internal/httpapi"
	"leadpool-crm/pkg/metrics"
	"leadpool-crm/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, db *sql.DB, m *metrics.Metrics) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	h.Register(r, auth.RequireAccessToken(h.Auth))
}
