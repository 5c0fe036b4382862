// =============================================================================
// 🔮 LLM Oracle：主/备两级生成后端
// =============================================================================
// 每次调用前对主后端做一次轻量探活；探活失败则当次改用备用后端。
// 探活结果不做持久缓存，主后端的瞬时故障会在后续调用中自愈。
// 主后端调用失败时在备用后端上重试一次；两级都不可用才升级为
// SERVICE_UNAVAILABLE。每次调用都会记录实际服务的后端。
// =============================================================================
package llm

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/paperqa/types"
)

// Backend 标识 Oracle 的调用层级
type Backend string

const (
	BackendPrimary Backend = "primary"
	BackendBackup  Backend = "backup"
)

// ChooseBackend 是后端选择的纯决策函数：探活结果 → 本次调用的层级。
// 独立成函数便于脱离真实后端做单元测试。
func ChooseBackend(primaryHealthy bool) Backend {
	if primaryHealthy {
		return BackendPrimary
	}
	return BackendBackup
}

// InvokeOptions 控制单次 Oracle 调用
type InvokeOptions struct {
	Temperature float32
	MaxTokens   int
	Tags        []string
}

// Observer 在每次调用完成后收到通知（指标用），可为 nil。
type Observer func(backend string, outcome string)

// OracleConfig Oracle 配置
type OracleConfig struct {
	// ProbeTimeout 探活超时；0 表示 3s
	ProbeTimeout time.Duration
	// SystemPrompt 注入每次调用的系统提示词
	SystemPrompt string
}

// Oracle 封装主/备两级生成后端
type Oracle struct {
	primary  Provider
	backup   Provider
	cfg      OracleConfig
	observer Observer
	logger   *zap.Logger
}

// NewOracle 创建 Oracle
func NewOracle(primary, backup Provider, cfg OracleConfig, logger *zap.Logger) *Oracle {
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Oracle{
		primary: primary,
		backup:  backup,
		cfg:     cfg,
		logger:  logger,
	}
}

// WithObserver 设置调用观察者
func (o *Oracle) WithObserver(obs Observer) *Oracle {
	o.observer = obs
	return o
}

// probePrimary 探活主后端。探活本身的任何失败都视为不健康。
func (o *Oracle) probePrimary(ctx context.Context) bool {
	if o.primary == nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, o.cfg.ProbeTimeout)
	defer cancel()

	status, err := o.primary.HealthCheck(probeCtx)
	if err != nil || status == nil || !status.Healthy {
		o.logger.Warn("primary backend probe failed, using backup for this call",
			zap.String("provider", o.primary.Name()),
			zap.Error(err))
		return false
	}
	return true
}

// Invoke 执行一次生成调用并返回文本。
func (o *Oracle) Invoke(ctx context.Context, prompt string, opts InvokeOptions) (string, error) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: o.cfg.SystemPrompt},
			{Role: RoleUser, Content: prompt},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Tags:        opts.Tags,
	}

	backend := ChooseBackend(o.probePrimary(ctx))

	if backend == BackendPrimary {
		resp, err := o.primary.Completion(ctx, req)
		if err == nil {
			o.observe(string(BackendPrimary), "ok")
			o.logInvocation(o.primary.Name(), resp)
			return resp.Text(), nil
		}
		o.observe(string(BackendPrimary), "error")
		o.logger.Warn("primary backend call failed, retrying on backup",
			zap.String("provider", o.primary.Name()),
			zap.Error(err))
	}

	if o.backup == nil {
		o.observe(string(BackendBackup), "unavailable")
		return "", types.NewError(types.ErrServiceUnavailable, "no LLM backend available")
	}

	resp, err := o.backup.Completion(ctx, req)
	if err != nil {
		o.observe(string(BackendBackup), "error")
		return "", types.NewError(types.ErrServiceUnavailable, "all LLM backends failed").
			WithCause(err).WithProvider(o.backup.Name())
	}
	o.observe(string(BackendBackup), "ok")
	o.logInvocation(o.backup.Name(), resp)
	return resp.Text(), nil
}

// InvokeStructured 执行一次生成调用并把输出解析为 JSON。
// 在提示词尾部追加严格 JSON 约束，解析前剥离 markdown 代码围栏。
func (o *Oracle) InvokeStructured(ctx context.Context, prompt string, out any) error {
	full := prompt + "\n\nRespond with a single JSON object only. No markdown, no explanations."

	text, err := o.Invoke(ctx, full, InvokeOptions{Temperature: 0})
	if err != nil {
		return err
	}

	cleaned := stripJSONFences(text)
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return types.NewError(types.ErrParseFailure, "structured output is not valid JSON").
			WithCause(err)
	}
	return nil
}

func (o *Oracle) observe(backend, outcome string) {
	if o.observer != nil {
		o.observer(backend, outcome)
	}
}

func (o *Oracle) logInvocation(provider string, resp *ChatResponse) {
	o.logger.Info("oracle invocation served",
		zap.String("provider", provider),
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
}

// stripJSONFences 剥离 ```json ... ``` 围栏并截取首个对象边界。
func stripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	if start := strings.Index(s, "{"); start > 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}
