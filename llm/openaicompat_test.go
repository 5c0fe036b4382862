package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/BaSui01/paperqa/types"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAICompatProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAICompatProvider(OpenAICompatConfig{
		ProviderName: "test",
		APIKey:       "test-key",
		BaseURL:      srv.URL,
		DefaultModel: "test-model",
	}, zap.NewNop())
}

func TestCompletionSuccess(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "c1",
			"model": "test-model",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "hello back"}}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 3, "total_tokens": 8}
		}`))
	})

	resp, err := p.Completion(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("completion failed: %v", err)
	}
	if resp.Text() != "hello back" {
		t.Errorf("unexpected text %q", resp.Text())
	}
	if resp.Usage.TotalTokens != 8 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
}

func TestCompletionRateLimited(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "slow down"}}`))
	})

	_, err := p.Completion(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if !types.IsCode(err, types.ErrRateLimited) {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
	if !types.IsRetryable(err) {
		t.Error("rate limit errors must be retryable")
	}
}

func TestCompletionUpstreamError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message": "upstream broke"}`))
	})

	_, err := p.Completion(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if !types.IsCode(err, types.ErrUpstreamError) {
		t.Fatalf("expected UPSTREAM_ERROR, got %v", err)
	}
	if !types.IsRetryable(err) {
		t.Error("5xx errors must be retryable")
	}
}

func TestCompletionBadRequestNotRetryable(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "bad model"}}`))
	})

	_, err := p.Completion(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if !types.IsCode(err, types.ErrInvalidRequest) {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
	if types.IsRetryable(err) {
		t.Error("4xx errors must not be retryable")
	}
}

func TestCompletionEmptyChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "c1", "model": "m", "choices": []}`))
	})

	_, err := p.Completion(context.Background(), &ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if !types.IsCode(err, types.ErrUpstreamError) {
		t.Fatalf("expected UPSTREAM_ERROR for empty choices, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/models" {
			w.Write([]byte(`{"data": []}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	status, err := p.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if !status.Healthy {
		t.Error("expected healthy status")
	}
}

func TestHealthCheckUnhealthy(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	status, err := p.HealthCheck(context.Background())
	if err == nil {
		t.Fatal("expected error for unhealthy backend")
	}
	if status.Healthy {
		t.Error("expected unhealthy status")
	}
}
