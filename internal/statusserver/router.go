// SPDX-License-Identifier: MPL-2.0

package statusserver

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bbgum/bbgum/internal/lifecycle"
	"github.com/bbgum/bbgum/internal/metrics"
	"github.com/bbgum/bbgum/internal/worker"
)

type (
	handlers struct {
		state   StateReporter
		workers WorkerLister
	}

	// HealthResponse is the body of GET /health.
	HealthResponse struct {
		Status  string `json:"status"`
		State   string `json:"state"`
		Workers int    `json:"workers"`
	}

	// WorkersResponse is the body of GET /workers.
	WorkersResponse struct {
		Count   int           `json:"count"`
		Workers []worker.Info `json:"workers"`
	}
)

func newRouter(h *handlers, m *metrics.Metrics, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.GET("/health", h.health)
	router.GET("/workers", h.listWorkers)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	return router
}

func (h *handlers) health(c *gin.Context) {
	state := h.state.State()
	resp := HealthResponse{Status: "ok", State: state.String(), Workers: h.workers.Len()}
	if state != lifecycle.StateRunning {
		resp.Status = "unavailable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) listWorkers(c *gin.Context) {
	active := h.workers.Active()
	c.JSON(http.StatusOK, WorkersResponse{Count: len(active), Workers: active})
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
