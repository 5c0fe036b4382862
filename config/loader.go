// =============================================================================
// 📦 paperqa 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("PAPERQA").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是 paperqa 服务的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server"`

	// LLM 生成后端配置（主/备两级）
	LLM LLMConfig `yaml:"llm"`

	// Embedding 嵌入后端配置
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Retrieval 分块与混合检索配置
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Index 索引持久化配置
	Index IndexConfig `yaml:"index"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BackendConfig 单个生成后端的配置
type BackendConfig struct {
	// 后端标识（日志与指标用）
	Name string `yaml:"name"`
	// OpenAI 兼容 API 地址
	BaseURL string `yaml:"base_url"`
	// API 密钥
	APIKey string `yaml:"api_key"`
	// 模型名称
	Model string `yaml:"model"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout"`
}

// LLMConfig 大语言模型配置
type LLMConfig struct {
	// Primary 主后端
	Primary BackendConfig `yaml:"primary"`
	// Backup 备用后端
	Backup BackendConfig `yaml:"backup"`
	// ProbeTimeout 每次调用前探活主后端的超时
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	// SystemPrompt 系统提示词
	SystemPrompt string `yaml:"system_prompt"`
}

// EmbeddingConfig 嵌入配置
type EmbeddingConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

// RetrievalConfig 分块与混合检索配置
type RetrievalConfig struct {
	// 块大小（tokens）
	ChunkSize int `yaml:"chunk_size"`
	// 重叠大小（tokens）
	ChunkOverlap int `yaml:"chunk_overlap"`
	// 每次检索返回的候选数
	TopK int `yaml:"top_k"`
	// 稠密（语义）排名权重
	DenseWeight float64 `yaml:"dense_weight"`
	// 词法（BM25）排名权重
	LexicalWeight float64 `yaml:"lexical_weight"`
}

// IndexConfig 索引持久化配置
type IndexConfig struct {
	// Dir 稠密子索引持久化目录；为空时关闭热启动
	Dir string `yaml:"dir"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 级别: debug, info, warn, error
	Level string `yaml:"level"`
	// 格式: json, console
	Format string `yaml:"format"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Validate 校验配置合法性
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}
	if c.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Retrieval.ChunkSize)
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.Retrieval.ChunkOverlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.DenseWeight < 0 || c.Retrieval.LexicalWeight < 0 {
		return fmt.Errorf("retrieval weights must be non-negative")
	}
	if c.Retrieval.DenseWeight+c.Retrieval.LexicalWeight == 0 {
		return fmt.Errorf("at least one retrieval weight must be positive")
	}
	return nil
}

// Loader 配置加载器
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: "PAPERQA"}
}

// WithConfigPath 设置 YAML 配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load 加载配置：默认值 → YAML → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	l.applyEnv(cfg)
	return cfg, nil
}

// applyEnv 应用环境变量覆盖（密钥类配置主要走这里）
func (l *Loader) applyEnv(cfg *Config) {
	l.envString("PRIMARY_API_KEY", &cfg.LLM.Primary.APIKey)
	l.envString("PRIMARY_BASE_URL", &cfg.LLM.Primary.BaseURL)
	l.envString("PRIMARY_MODEL", &cfg.LLM.Primary.Model)
	l.envString("BACKUP_API_KEY", &cfg.LLM.Backup.APIKey)
	l.envString("BACKUP_BASE_URL", &cfg.LLM.Backup.BaseURL)
	l.envString("BACKUP_MODEL", &cfg.LLM.Backup.Model)
	l.envString("EMBEDDING_API_KEY", &cfg.Embedding.APIKey)
	l.envString("EMBEDDING_BASE_URL", &cfg.Embedding.BaseURL)
	l.envString("EMBEDDING_MODEL", &cfg.Embedding.Model)
	l.envString("INDEX_DIR", &cfg.Index.Dir)
	l.envString("LOG_LEVEL", &cfg.Log.Level)
	l.envString("OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	l.envInt("HTTP_PORT", &cfg.Server.HTTPPort)
	l.envInt("METRICS_PORT", &cfg.Server.MetricsPort)
	l.envBool("TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
}

func (l *Loader) envString(key string, dst *string) {
	if v, ok := os.LookupEnv(l.envPrefix + "_" + key); ok {
		*dst = v
	}
}

func (l *Loader) envInt(key string, dst *int) {
	if v, ok := os.LookupEnv(l.envPrefix + "_" + key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (l *Loader) envBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(l.envPrefix + "_" + key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
