package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/usagelab/mobile-usage-api/internal/container"
	handlers "github.com/usagelab/mobile-usage-api/internal/interface/http"
	"github.com/usagelab/mobile-usage-api/internal/interface/middleware"
)

// TelemetryModule wires the flat per-table record routes.
type TelemetryModule struct {
	Handler *handlers.TelemetryHandler
}

func NewTelemetryModule(h *handlers.TelemetryHandler) *TelemetryModule {
	return &TelemetryModule{Handler: h}
}

func (m *TelemetryModule) Register(rg *gin.RouterGroup) {
	writeLimiter := middleware.RateLimit(container.GetRedis(), 120, time.Minute, middleware.KeyByIPAndPath(), middleware.AllowPrivateIP())
	readLimiter := middleware.RateLimit(container.GetRedis(), 300, time.Minute, middleware.KeyByIP(), middleware.AllowPrivateIP())

	rg.POST("/devices/", writeLimiter, m.Handler.CreateDevice)
	rg.GET("/devices", readLimiter, m.Handler.ListDevices)
	rg.POST("/app-usage/", writeLimiter, m.Handler.CreateAppUsage)
	rg.GET("/app-usage", readLimiter, m.Handler.ListAppUsage)
	rg.POST("/user-behavior/", writeLimiter, m.Handler.CreateBehavior)
	rg.GET("/user-behavior", readLimiter, m.Handler.ListBehaviors)
}
