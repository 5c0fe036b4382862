package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperqa/types"
)

// Config OpenAI 兼容嵌入后端的配置
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
	// BatchSize 单次请求的最大文本数；0 表示 64
	BatchSize int
}

// OpenAIProvider 调用 OpenAI 兼容的 /v1/embeddings 端点。
type OpenAIProvider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewOpenAIProvider 创建嵌入后端
func NewOpenAIProvider(cfg Config, logger *zap.Logger) *OpenAIProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Name 返回 Provider 标识
func (p *OpenAIProvider) Name() string { return "openai-embedding" }

// Dimensions 返回向量维度
func (p *OpenAIProvider) Dimensions() int { return p.cfg.Dimensions }

// EmbedQuery 嵌入单条查询文本
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	vecs, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments 批量嵌入文档文本，自动分批
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := p.embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAIProvider) embed(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := json.Marshal(embedRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "marshal embedding request").
			WithCause(err).WithProvider(p.Name())
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/v1/embeddings"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "create embedding request").
			WithCause(err).WithProvider(p.Name())
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		code := types.ErrUpstreamError
		if ctx.Err() == context.DeadlineExceeded {
			code = types.ErrUpstreamTimeout
		}
		return nil, types.NewError(code, "embedding request failed").
			WithCause(err).WithRetryable(true).WithProvider(p.Name())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 50<<20))
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "read embedding response").
			WithCause(err).WithRetryable(true).WithProvider(p.Name())
	}

	if resp.StatusCode != http.StatusOK {
		code := types.ErrUpstreamError
		retryable := resp.StatusCode >= 500
		if resp.StatusCode == http.StatusTooManyRequests {
			code = types.ErrRateLimited
			retryable = true
		}
		return nil, types.NewError(code, "embedding backend returned non-200").
			WithHTTPStatus(resp.StatusCode).WithRetryable(retryable).WithProvider(p.Name())
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode embedding response").
			WithCause(err).WithProvider(p.Name())
	}
	if parsed.Error != nil {
		return nil, types.NewError(types.ErrUpstreamError, parsed.Error.Message).
			WithProvider(p.Name())
	}
	if len(parsed.Data) != len(texts) {
		return nil, types.NewError(types.ErrUpstreamError, "embedding count mismatch").
			WithProvider(p.Name())
	}

	// 按 index 还原输入顺序，上游不保证返回顺序
	sort.Slice(parsed.Data, func(i, j int) bool {
		return parsed.Data[i].Index < parsed.Data[j].Index
	})
	out := make([][]float64, len(parsed.Data))
	for i, d := range parsed.Data {
		out[i] = d.Embedding
	}

	p.logger.Debug("embeddings served",
		zap.Int("count", len(texts)),
		zap.String("model", p.cfg.Model),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}
