package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	userapp "github.com/usagelab/mobile-usage-api/internal/application"
	"github.com/usagelab/mobile-usage-api/internal/domain/entity"
	repo "github.com/usagelab/mobile-usage-api/internal/domain/repository"
	"github.com/usagelab/mobile-usage-api/pkg/response"
	"github.com/usagelab/mobile-usage-api/pkg/validation"
)

type UserHandler struct {
	Svc    *userapp.Service
	Logger *logrus.Logger
}

func NewUserHandler(svc *userapp.Service, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

type deviceRequest struct {
	DeviceModel           string `json:"device_model" binding:"required"`
	OperatingSystem       string `json:"operating_system" binding:"required"`
	NumberOfAppsInstalled int    `json:"number_of_apps_installed" binding:"gte=0"`
}

type appUsageRequest struct {
	AppUsageTime int     `json:"app_usage_time" binding:"gte=0"`
	ScreenOnTime float64 `json:"screen_on_time" binding:"gte=0"`
	BatteryDrain float64 `json:"battery_drain" binding:"gte=0"`
	DataUsage    float64 `json:"data_usage" binding:"gte=0"`
}

type behaviorRequest struct {
	UserBehaviorClass int `json:"user_behavior_class" binding:"gte=0"`
}

type userRequest struct {
	UserID       int               `json:"user_id" binding:"required,gt=0"`
	Age          int               `json:"age" binding:"gte=0"`
	Gender       string            `json:"gender" binding:"required"`
	Devices      []deviceRequest   `json:"devices" binding:"omitempty,dive"`
	AppUsage     []appUsageRequest `json:"app_usage" binding:"omitempty,dive"`
	UserBehavior *behaviorRequest  `json:"user_behavior"`
}

func (r userRequest) toEntity() *entity.User {
	u := &entity.User{
		UserID:   r.UserID,
		Age:      r.Age,
		Gender:   r.Gender,
		Devices:  make([]entity.Device, 0, len(r.Devices)),
		AppUsage: make([]entity.AppUsage, 0, len(r.AppUsage)),
	}
	for _, d := range r.Devices {
		u.Devices = append(u.Devices, entity.Device{
			DeviceModel:           d.DeviceModel,
			OperatingSystem:       d.OperatingSystem,
			NumberOfAppsInstalled: d.NumberOfAppsInstalled,
		})
	}
	for _, a := range r.AppUsage {
		u.AppUsage = append(u.AppUsage, entity.AppUsage{
			AppUsageTime: a.AppUsageTime,
			ScreenOnTime: a.ScreenOnTime,
			BatteryDrain: a.BatteryDrain,
			DataUsage:    a.DataUsage,
		})
	}
	if r.UserBehavior != nil {
		u.UserBehavior.UserBehaviorClass = r.UserBehavior.UserBehaviorClass
	}
	return u
}

// respondStoreError maps the repository error taxonomy onto HTTP statuses.
// Shared by every handler in this package.
func respondStoreError(c *gin.Context, logger *logrus.Logger, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		response.Error[any](c, http.StatusNotFound, "user not found", nil)
	case errors.Is(err, repo.ErrReferentialIntegrity):
		response.Error[any](c, http.StatusBadRequest, "user_id does not exist in the users table", nil)
	case errors.Is(err, repo.ErrPoolExhausted):
		response.Error[any](c, http.StatusServiceUnavailable, "connection pool exhausted", nil)
	default:
		if logger != nil {
			logger.WithError(err).Error("store operation failed")
		}
		response.Error[any](c, http.StatusInternalServerError, "store operation failed", nil)
	}
}

func userIDParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("user_id"))
	if err != nil || id <= 0 {
		response.Error[any](c, http.StatusBadRequest, "invalid user_id", nil)
		return 0, false
	}
	return id, true
}

// Create persists a whole aggregate and echoes it back with generated ids.
func (h *UserHandler) Create(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	u := req.toEntity()
	if err := h.Svc.CreateUser(c.Request.Context(), u); err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusCreated, u, "user created", nil)
}

func (h *UserHandler) List(c *gin.Context) {
	users, err := h.Svc.ListUsers(c.Request.Context())
	if err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, users, "users", map[string]any{"count": len(users)})
}

func (h *UserHandler) GetLatest(c *gin.Context) {
	u, err := h.Svc.GetLatestUser(c.Request.Context())
	if err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, u, "latest user", nil)
}

func (h *UserHandler) Get(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	u, err := h.Svc.GetUser(c.Request.Context(), id)
	if err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, u, "user", nil)
}

// Update replaces the aggregate; the path user_id wins over the body.
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	u := req.toEntity()
	u.UserID = id
	if err := h.Svc.UpdateUser(c.Request.Context(), u); err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, u, "user updated", nil)
}

func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	if err := h.Svc.DeleteUser(c.Request.Context(), id); err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	response.Success[any](c, http.StatusOK, map[string]any{"deleted": true}, "user deleted", nil)
}

// Search queries the aggregate search index.
func (h *UserHandler) Search(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		response.Error[any](c, http.StatusBadRequest, "missing query parameter q", nil)
		return
	}
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	hits, err := h.Svc.SearchUsers(c.Request.Context(), q, size)
	if err != nil {
		if h.Logger != nil {
			h.Logger.WithError(err).Warn("search failed")
		}
		response.Error[any](c, http.StatusInternalServerError, "search failed", nil)
		return
	}
	response.Success(c, http.StatusOK, hits, "search results", map[string]any{"count": len(hits)})
}

// Export snapshots the full listing into the configured bucket.
func (h *UserHandler) Export(c *gin.Context) {
	url, err := h.Svc.ExportUsers(c.Request.Context())
	if err != nil {
		if errors.Is(err, userapp.ErrExportNotConfigured) {
			response.Error[any](c, http.StatusServiceUnavailable, "export not configured", nil)
			return
		}
		respondStoreError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, map[string]any{"url": url}, "export complete", nil)
}
