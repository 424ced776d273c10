package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"carelink-telemetry/internal/models"
	"carelink-telemetry/internal/registry"
)

const maxBodyBytes = 1 << 20

// DeviceHandler 设备注册/配置管理 Handler
type DeviceHandler struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// NewDeviceHandler 创建设备管理 Handler
func NewDeviceHandler(reg *registry.Registry, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{registry: reg, logger: logger}
}

// ServeHTTP 实现 http.Handler 接口
func (h *DeviceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/devices" && r.Method == http.MethodPost:
		h.RegisterDevice(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/devices/") && strings.HasSuffix(r.URL.Path, "/config") && r.Method == http.MethodPut:
		h.UpdateDeviceConfig(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/devices/") && r.Method == http.MethodGet:
		h.GetDevice(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// RegisterDevice 注册设备
func (h *DeviceHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var device models.Device
	if err := readBodyJSON(r, maxBodyBytes, &device); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body: "+err.Error()))
		return
	}

	if err := h.registry.Register(r.Context(), &device); err != nil {
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			writeJSON(w, http.StatusBadRequest, Fail(validationErr.Error()))
			return
		}
		h.logger.Error("Failed to register device",
			zap.String("device_id", device.DeviceID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to register device"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{"device_id": device.DeviceID}))
}

// UpdateDeviceConfig 更新设备配置
func (h *DeviceHandler) UpdateDeviceConfig(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/v1/devices/"), "/config")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var cfg models.DeviceConfiguration
	if err := readBodyJSON(r, maxBodyBytes, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body: "+err.Error()))
		return
	}

	if err := h.registry.UpdateConfig(r.Context(), deviceID, cfg); err != nil {
		if errors.Is(err, models.ErrDeviceNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("device not found: "+deviceID))
			return
		}
		h.logger.Error("Failed to update device config",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to update device config"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{"device_id": deviceID}))
}

// GetDevice 查询设备（敏感字段保持密文返回）
func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/")
	if deviceID == "" || strings.Contains(deviceID, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	device, err := h.registry.Get(deviceID)
	if err != nil {
		if errors.Is(err, models.ErrDeviceNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("device not found: "+deviceID))
			return
		}
		writeJSON(w, http.StatusInternalServerError, Fail("failed to get device"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(device))
}
