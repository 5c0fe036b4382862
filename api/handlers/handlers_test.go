package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/paperqa/agent"
	"github.com/BaSui01/paperqa/llm"
	"github.com/BaSui01/paperqa/rag"
	"github.com/BaSui01/paperqa/rag/loader"
)

// fixedProvider 固定应答的 Provider，按提示词选择响应
type fixedProvider struct{}

func (fixedProvider) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	prompt := req.Messages[len(req.Messages)-1].Content
	text := "ok"
	if strings.Contains(prompt, "Classify the user's message") {
		text = `{"route": "knowledge_base", "reason": "research question"}`
	}
	return &llm.ChatResponse{
		Model: "fixed",
		Choices: []llm.ChatChoice{{
			Message: llm.Message{Role: llm.RoleAssistant, Content: text},
		}},
	}, nil
}

func (fixedProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (fixedProvider) Name() string { return "fixed" }

type fixedEmbedder struct{}

func (fixedEmbedder) EmbedQuery(context.Context, string) ([]float64, error) {
	return []float64{1, 0}, nil
}

func (fixedEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range out {
		out[i] = []float64{1, 0}
	}
	return out, nil
}

func (fixedEmbedder) Name() string    { return "fixed" }
func (fixedEmbedder) Dimensions() int { return 2 }

type charTok struct{}

func (charTok) CountTokens(text string) int { return len(text) / 4 }

func newTestService(t *testing.T) *agent.Service {
	t.Helper()
	logger := zap.NewNop()

	oracle := llm.NewOracle(fixedProvider{}, nil, llm.OracleConfig{}, logger)
	chunker := rag.NewChunker(rag.ChunkerConfig{ChunkSize: 100, ChunkOverlap: 10}, charTok{}, logger)
	index := rag.NewHybridIndex(rag.DefaultHybridIndexConfig(), chunker, fixedEmbedder{}, logger)
	router := agent.NewRouter(oracle, logger)
	pipeline := agent.NewPipeline(index, oracle, agent.DefaultPipelineConfig(), nil, logger)

	return agent.NewService(router, pipeline, oracle, index, loader.NewRegistry(), nil, logger)
}

func TestQueryEndpointEmptyIndex(t *testing.T) {
	h := NewQueryHandler(newTestService(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
		strings.NewReader(`{"question": "What does the paper conclude?"}`))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "no documents")
	assert.Contains(t, rec.Body.String(), "thread_id")
}

func TestQueryEndpointEmptyQuestion(t *testing.T) {
	h := NewQueryHandler(newTestService(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
		strings.NewReader(`{"question": "   "}`))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_REQUEST")
}

func TestQueryEndpointBadJSON(t *testing.T) {
	h := NewQueryHandler(newTestService(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query",
		strings.NewReader(`{"question": `))
	rec := httptest.NewRecorder()
	h.Query(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestThreadEndpointNotFound(t *testing.T) {
	h := NewQueryHandler(newTestService(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/threads/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.Thread(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestThreadEndpointStatusFields(t *testing.T) {
	svc := newTestService(t)
	answer, err := svc.AnswerQuestion(context.Background(), "", "What does the paper conclude?")
	require.NoError(t, err)

	h := NewQueryHandler(svc, zap.NewNop())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/threads/"+answer.ThreadID, nil)
	req.SetPathValue("id", answer.ThreadID)
	rec := httptest.NewRecorder()
	h.Thread(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message_count":2`)
	assert.Contains(t, rec.Body.String(), `"has_history":true`)
}

func TestResetThreadNotFound(t *testing.T) {
	h := NewQueryHandler(newTestService(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/threads/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.ResetThread(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocsStatusEmpty(t *testing.T) {
	h := NewDocsHandler(newTestService(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents/status", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready":false`)
}

func TestDocsRebuildMissingDir(t *testing.T) {
	h := NewDocsHandler(newTestService(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/rebuild",
		strings.NewReader(`{"dir": ""}`))
	rec := httptest.NewRecorder()
	h.Rebuild(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthLiveness(t *testing.T) {
	h := NewHealthHandler(newTestService(t), fixedProvider{}, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Liveness(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthReadiness(t *testing.T) {
	h := NewHealthHandler(newTestService(t), fixedProvider{}, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readiness(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"fixed":true`)
}
