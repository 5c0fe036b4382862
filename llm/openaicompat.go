// =============================================================================
// paperqa OpenAI-Compatible Provider
// =============================================================================
// Shared implementation for the OpenAI-compatible chat endpoints used by both
// the primary (Together-style) and the backup (OpenAI) backends. Only the
// name, base URL, key and default model differ; everything else is config.
// =============================================================================

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperqa/types"
)

// OpenAICompatConfig holds the configuration for an OpenAI-compatible provider.
type OpenAICompatConfig struct {
	// ProviderName is the unique identifier for this provider (e.g., "together", "openai").
	ProviderName string

	// APIKey is the authentication key for the provider's API.
	APIKey string

	// BaseURL is the base URL for the provider's API (e.g., "https://api.openai.com").
	BaseURL string

	// DefaultModel is the model to use when none is specified in the request.
	DefaultModel string

	// Timeout is the HTTP client timeout. Defaults to 60s if zero.
	Timeout time.Duration

	// EndpointPath is the chat completions endpoint path. Defaults to "/v1/chat/completions".
	EndpointPath string

	// ModelsEndpoint is the models list endpoint path, used for health probes.
	// Defaults to "/v1/models".
	ModelsEndpoint string
}

// OpenAICompatProvider is the hand-rolled net/http implementation of Provider
// against an OpenAI-compatible chat completions API.
type OpenAICompatProvider struct {
	cfg    OpenAICompatConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAICompatProvider creates a new OpenAI-compatible provider with the given config.
func NewOpenAICompatProvider(cfg OpenAICompatConfig, logger *zap.Logger) *OpenAICompatProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/v1/chat/completions"
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = "/v1/models"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAICompatProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Name returns the provider name.
func (p *OpenAICompatProvider) Name() string { return p.cfg.ProviderName }

func (p *OpenAICompatProvider) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *OpenAICompatProvider) buildHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
}

// HealthCheck verifies the provider is reachable by probing the models endpoint.
func (p *OpenAICompatProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.cfg.ModelsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("%s health check failed: status=%d", p.cfg.ProviderName, resp.StatusCode)
	}

	return &HealthStatus{Healthy: true, Latency: latency}, nil
}

type compatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

type compatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		FinishReason string  `json:"finish_reason"`
		Message      Message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Completion performs a non-streaming chat completion.
func (p *OpenAICompatProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}

	body := compatRequest{
		Model:       model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "marshal chat request").
			WithCause(err).WithHTTPStatus(http.StatusBadRequest).WithProvider(p.Name())
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.cfg.EndpointPath), bytes.NewReader(data))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "create chat request").
			WithCause(err).WithProvider(p.Name())
	}
	p.buildHeaders(httpReq)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		code := types.ErrUpstreamError
		if ctx.Err() == context.DeadlineExceeded {
			code = types.ErrUpstreamTimeout
		}
		return nil, types.NewError(code, "chat completion request failed").
			WithCause(err).WithHTTPStatus(http.StatusBadGateway).
			WithRetryable(true).WithProvider(p.Name())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "read chat response").
			WithCause(err).WithRetryable(true).WithProvider(p.Name())
	}

	if resp.StatusCode != http.StatusOK {
		return nil, p.mapHTTPError(resp.StatusCode, respBody)
	}

	var parsed compatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode chat response").
			WithCause(err).WithProvider(p.Name())
	}
	if parsed.Error != nil {
		return nil, types.NewError(types.ErrUpstreamError, parsed.Error.Message).
			WithProvider(p.Name())
	}
	if len(parsed.Choices) == 0 {
		return nil, types.NewError(types.ErrUpstreamError, "empty choices in chat response").
			WithRetryable(true).WithProvider(p.Name())
	}

	out := &ChatResponse{
		ID:        parsed.ID,
		Provider:  p.Name(),
		Model:     parsed.Model,
		CreatedAt: time.Now(),
		Usage: ChatUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}
	for _, c := range parsed.Choices {
		out.Choices = append(out.Choices, ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message:      c.Message,
		})
	}

	p.logger.Debug("chat completion served",
		zap.String("provider", p.Name()),
		zap.String("model", out.Model),
		zap.Int("total_tokens", out.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)

	return out, nil
}

// mapHTTPError 将上游 HTTP 状态映射到统一错误码。
// 429 与 5xx 可重试，4xx 不可重试。
func (p *OpenAICompatProvider) mapHTTPError(status int, body []byte) *types.Error {
	msg := readErrorMessage(body)
	switch {
	case status == http.StatusTooManyRequests:
		return types.NewError(types.ErrRateLimited, msg).
			WithHTTPStatus(status).WithRetryable(true).WithProvider(p.Name())
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return types.NewError(types.ErrUpstreamTimeout, msg).
			WithHTTPStatus(status).WithRetryable(true).WithProvider(p.Name())
	case status >= 500:
		return types.NewError(types.ErrUpstreamError, msg).
			WithHTTPStatus(status).WithRetryable(true).WithProvider(p.Name())
	default:
		return types.NewError(types.ErrInvalidRequest, msg).
			WithHTTPStatus(status).WithProvider(p.Name())
	}
}

func readErrorMessage(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error.Message != "" {
			return parsed.Error.Message
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}
