package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/paperqa/agent"
	"github.com/BaSui01/paperqa/api"
	"github.com/BaSui01/paperqa/types"
)

// QueryHandler 问答与会话接口
type QueryHandler struct {
	service *agent.Service
	logger  *zap.Logger
}

// NewQueryHandler 创建问答处理器
func NewQueryHandler(service *agent.Service, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{service: service, logger: logger}
}

// Query POST /api/v1/query
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req api.QueryRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	answer, err := h.service.AnswerQuestion(r.Context(), req.ThreadID, req.Question)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, api.QueryResponse{
		Answer:     answer.Text,
		Route:      string(answer.Route),
		References: answer.References,
		ThreadID:   answer.ThreadID,
		Degraded:   answer.Degraded,
	})
}

// Thread GET /api/v1/threads/{id}
func (h *QueryHandler) Thread(w http.ResponseWriter, r *http.Request) {
	id := threadID(r)
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "thread id is required").
			WithHTTPStatus(http.StatusBadRequest), h.logger)
		return
	}

	turns, err := h.service.ThreadTurns(id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	WriteSuccess(w, api.ThreadResponse{
		ThreadID:     id,
		MessageCount: len(turns),
		HasHistory:   len(turns) > 0,
		Turns:        turns,
	})
}

// ResetThread DELETE /api/v1/threads/{id}
func (h *QueryHandler) ResetThread(w http.ResponseWriter, r *http.Request) {
	id := threadID(r)
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "thread id is required").
			WithHTTPStatus(http.StatusBadRequest), h.logger)
		return
	}

	if err := h.service.ResetThread(id); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, map[string]string{"thread_id": id, "status": "cleared"})
}

func threadID(r *http.Request) string {
	if id := r.PathValue("id"); id != "" {
		return id
	}
	// 兼容不带路由参数的挂载方式
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return ""
}
