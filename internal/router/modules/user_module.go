package modules

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/usagelab/mobile-usage-api/internal/container"
	handlers "github.com/usagelab/mobile-usage-api/internal/interface/http"
	"github.com/usagelab/mobile-usage-api/internal/interface/middleware"
)

// UserModule wires the aggregate CRUD routes:
// POST /users/, GET /users, GET /users/latest, GET/PUT/DELETE
// /users/:user_id, GET /users/search, POST /users/export.
type UserModule struct {
	Handler *handlers.UserHandler
}

func NewUserModule(h *handlers.UserHandler) *UserModule {
	return &UserModule{Handler: h}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	// Writes are limited harder than reads; private clients bypass both.
	writeLimiter := middleware.RateLimit(container.GetRedis(), 60, time.Minute, middleware.KeyByIPAndPath(), middleware.AllowPrivateIP())
	readLimiter := middleware.RateLimit(container.GetRedis(), 300, time.Minute, middleware.KeyByIP(), middleware.AllowPrivateIP())

	rg.POST("/users/", writeLimiter, m.Handler.Create)
	rg.GET("/users", readLimiter, m.Handler.List)
	rg.GET("/users/latest", readLimiter, m.Handler.GetLatest)
	rg.GET("/users/search", readLimiter, m.Handler.Search)
	rg.POST("/users/export", writeLimiter, m.Handler.Export)
	rg.GET("/users/:user_id", readLimiter, m.Handler.Get)
	rg.PUT("/users/:user_id", writeLimiter, m.Handler.Update)
	rg.DELETE("/users/:user_id", writeLimiter, m.Handler.Delete)
}
