package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/shenyu-register/metrics"
	"github.com/ceyewan/shenyu-register/registry"
	"github.com/ceyewan/shenyu-register/trace"
)

const (
	statusUp   = "UP"
	statusDown = "DOWN"
)

type healthResponse struct {
	Status      string                     `json:"status"`
	Connections map[string]registry.Health `json:"connections"`
}

func newRouter(tracker *registry.HealthTracker, requests metrics.Counter) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(
		gin.Recovery(),
		trace.GinMiddleware(serviceName),
		metrics.GinMiddleware(requests),
	)
	r.GET("/healthz", healthHandler(tracker))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}

// healthHandler 任一连接不健康或尚无连接时返回 503
func healthHandler(tracker *registry.HealthTracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := tracker.Snapshot()
		status, code := statusUp, http.StatusOK
		if len(snap) == 0 {
			status, code = statusDown, http.StatusServiceUnavailable
		}
		for _, h := range snap {
			if !h.Healthy {
				status, code = statusDown, http.StatusServiceUnavailable
				break
			}
		}
		c.JSON(code, healthResponse{Status: status, Connections: snap})
	}
}
