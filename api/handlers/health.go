package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperqa/agent"
	"github.com/BaSui01/paperqa/llm"
)

// HealthHandler 健康检查接口
type HealthHandler struct {
	service *agent.Service
	primary llm.Provider
	backup  llm.Provider
	logger  *zap.Logger
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(service *agent.Service, primary, backup llm.Provider, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{service: service, primary: primary, backup: backup, logger: logger}
}

// Liveness GET /healthz，进程存活即 200
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readinessResponse struct {
	Status   string          `json:"status"`
	Index    map[string]any  `json:"index"`
	Backends map[string]bool `json:"backends"`
}

// Readiness GET /readyz，报告索引与各生成后端状态。
// 任一后端可用即 ready，索引空不算失败。
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	backends := make(map[string]bool)
	anyHealthy := false
	for _, p := range []llm.Provider{h.primary, h.backup} {
		if p == nil {
			continue
		}
		probeCtx, probeCancel := context.WithTimeout(r.Context(), 3*time.Second)
		status, err := p.HealthCheck(probeCtx)
		probeCancel()
		healthy := err == nil && status != nil && status.Healthy
		backends[p.Name()] = healthy
		anyHealthy = anyHealthy || healthy
	}

	ready, docs, chunks := h.service.IndexStatus()
	resp := readinessResponse{
		Status: "ready",
		Index: map[string]any{
			"ready":     ready,
			"documents": docs,
			"chunks":    chunks,
		},
		Backends: backends,
	}

	if !anyHealthy {
		resp.Status = "degraded"
		WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}
