package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"carelink-telemetry/internal/registry"
	"carelink-telemetry/internal/transform"
)

// NewRouter 组装管理 API 路由
func NewRouter(reg *registry.Registry, rules *transform.RuleStore, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	deviceHandler := NewDeviceHandler(reg, logger)
	rulesHandler := NewRulesHandler(rules, logger)

	mux.Handle("/api/v1/devices", deviceHandler)
	mux.Handle("/api/v1/devices/", deviceHandler)
	mux.Handle("/api/v1/rules", rulesHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]any{"status": "ok"}))
	})

	return mux
}
