package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/paperqa/agent"
	"github.com/BaSui01/paperqa/api"
	"github.com/BaSui01/paperqa/types"
)

// DocsHandler 文档与索引管理接口
type DocsHandler struct {
	service *agent.Service
	logger  *zap.Logger
}

// NewDocsHandler 创建文档处理器
func NewDocsHandler(service *agent.Service, logger *zap.Logger) *DocsHandler {
	return &DocsHandler{service: service, logger: logger}
}

// Rebuild POST /api/v1/documents/rebuild
// 全量重建：加载目录下所有支持的文件并替换当前索引。
func (h *DocsHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	var req api.RebuildRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Dir == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "dir is required").
			WithHTTPStatus(http.StatusBadRequest), h.logger)
		return
	}

	count, err := h.service.RebuildIndexFromDir(r.Context(), req.Dir)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	ready, docs, chunks := h.service.IndexStatus()
	h.logger.Info("index rebuilt via API",
		zap.String("dir", req.Dir),
		zap.Int("loaded", count),
		zap.Int("chunks", chunks))
	WriteSuccess(w, api.IndexStatusResponse{Ready: ready, Documents: docs, Chunks: chunks})
}

// Reset POST /api/v1/documents/reset
func (h *DocsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.service.ResetIndex()
	WriteSuccess(w, api.IndexStatusResponse{Ready: false})
}

// Status GET /api/v1/documents/status
func (h *DocsHandler) Status(w http.ResponseWriter, r *http.Request) {
	ready, docs, chunks := h.service.IndexStatus()
	WriteSuccess(w, api.IndexStatusResponse{Ready: ready, Documents: docs, Chunks: chunks})
}
