package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"carelink-telemetry/internal/models"
	"carelink-telemetry/internal/transform"
)

// RulesHandler 转换规则管理 Handler
//
// 规则是配置数据，热更新走整体替换（copy-on-write 快照），
// 不需要重启检测逻辑。
type RulesHandler struct {
	rules  *transform.RuleStore
	logger *zap.Logger
}

// NewRulesHandler 创建规则管理 Handler
func NewRulesHandler(rules *transform.RuleStore, logger *zap.Logger) *RulesHandler {
	return &RulesHandler{rules: rules, logger: logger}
}

// ServeHTTP 实现 http.Handler 接口
func (h *RulesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/rules" && r.Method == http.MethodGet:
		h.ListRules(w, r)
	case r.URL.Path == "/api/v1/rules" && r.Method == http.MethodPut:
		h.ReplaceRules(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ListRules 查询当前规则快照
func (h *RulesHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.rules.All()
	writeJSON(w, http.StatusOK, Ok(map[string]any{"items": rules, "total": len(rules)}))
}

// ReplaceRules 整体替换规则集
func (h *RulesHandler) ReplaceRules(w http.ResponseWriter, r *http.Request) {
	var rules []models.TransformationRule
	if err := readBodyJSON(r, maxBodyBytes, &rules); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body: "+err.Error()))
		return
	}

	if err := h.rules.Replace(rules); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	h.logger.Info("Transformation rules replaced",
		zap.Int("rule_count", len(rules)),
	)
	writeJSON(w, http.StatusOK, Ok(map[string]any{"total": len(rules)}))
}
