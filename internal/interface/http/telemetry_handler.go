package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	userapp "github.com/usagelab/mobile-usage-api/internal/application"
	"github.com/usagelab/mobile-usage-api/internal/domain/entity"
	"github.com/usagelab/mobile-usage-api/pkg/response"
	"github.com/usagelab/mobile-usage-api/pkg/validation"
)

// TelemetryHandler exposes the flat per-table records: single-row inserts
// and unnested listings of devices, app usage, and behavior rows.
type TelemetryHandler struct {
	Svc    *userapp.Service
	Logger *logrus.Logger
}

func NewTelemetryHandler(svc *userapp.Service, logger *logrus.Logger) *TelemetryHandler {
	return &TelemetryHandler{Svc: svc, Logger: logger}
}

type flatDeviceRequest struct {
	UserID                int    `json:"user_id" binding:"required,gt=0"`
	DeviceModel           string `json:"device_model" binding:"required"`
	OperatingSystem       string `json:"operating_system" binding:"required"`
	NumberOfAppsInstalled int    `json:"number_of_apps_installed" binding:"gte=0"`
}

type flatAppUsageRequest struct {
	UserID       int     `json:"user_id" binding:"required,gt=0"`
	AppUsageTime int     `json:"app_usage_time" binding:"gte=0"`
	ScreenOnTime float64 `json:"screen_on_time" binding:"gte=0"`
	BatteryDrain float64 `json:"battery_drain" binding:"gte=0"`
	DataUsage    float64 `json:"data_usage" binding:"gte=0"`
}

type flatBehaviorRequest struct {
	UserID            int `json:"user_id" binding:"required,gt=0"`
	UserBehaviorClass int `json:"user_behavior_class" binding:"gte=0"`
}

func (h *TelemetryHandler) CreateDevice(c *gin.Context) {
	var req flatDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	d := &entity.Device{
		UserID:                req.UserID,
		DeviceModel:           req.DeviceModel,
		OperatingSystem:       req.OperatingSystem,
		NumberOfAppsInstalled: req.NumberOfAppsInstalled,
	}
	if err := h.Svc.AddDevice(c.Request.Context(), d); err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusCreated, d, "device created", nil)
}

func (h *TelemetryHandler) ListDevices(c *gin.Context) {
	devices, err := h.Svc.ListDevices(c.Request.Context())
	if err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, devices, "devices", map[string]any{"count": len(devices)})
}

func (h *TelemetryHandler) CreateAppUsage(c *gin.Context) {
	var req flatAppUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	a := &entity.AppUsage{
		UserID:       req.UserID,
		AppUsageTime: req.AppUsageTime,
		ScreenOnTime: req.ScreenOnTime,
		BatteryDrain: req.BatteryDrain,
		DataUsage:    req.DataUsage,
	}
	if err := h.Svc.AddAppUsage(c.Request.Context(), a); err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusCreated, a, "app usage created", nil)
}

func (h *TelemetryHandler) ListAppUsage(c *gin.Context) {
	samples, err := h.Svc.ListAppUsage(c.Request.Context())
	if err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, samples, "app usage", map[string]any{"count": len(samples)})
}

func (h *TelemetryHandler) CreateBehavior(c *gin.Context) {
	var req flatBehaviorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
		return
	}
	b := &entity.UserBehavior{
		UserID:            req.UserID,
		UserBehaviorClass: req.UserBehaviorClass,
	}
	if err := h.Svc.AddBehavior(c.Request.Context(), b); err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusCreated, b, "behavior created", nil)
}

func (h *TelemetryHandler) ListBehaviors(c *gin.Context) {
	behaviors, err := h.Svc.ListBehaviors(c.Request.Context())
	if err != nil {
		respondStoreError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, behaviors, "behaviors", map[string]any{"count": len(behaviors)})
}
