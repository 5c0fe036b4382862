// =============================================================================
// 📦 paperqa 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		LLM:       DefaultLLMConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Retrieval: DefaultRetrievalConfig(),
		Index:     IndexConfig{},
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
// 主后端为 Together 风格的 OpenAI 兼容端点，备用为 OpenAI gpt-4o-mini
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Primary: BackendConfig{
			Name:    "together",
			BaseURL: "https://api.together.xyz",
			Model:   "meta-llama/Llama-3.3-70B-Instruct-Turbo",
			Timeout: 60 * time.Second,
		},
		Backup: BackendConfig{
			Name:    "openai",
			BaseURL: "https://api.openai.com",
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		ProbeTimeout: 3 * time.Second,
		SystemPrompt: "You are a Research Paper Agent, built for a research paper chatbot. " +
			"Always maintain a professional, academic tone while being helpful and clear.",
	}
}

// DefaultEmbeddingConfig 返回默认嵌入配置
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		BaseURL:    "https://api.openai.com",
		Model:      "text-embedding-3-small",
		Dimensions: 1536,
		Timeout:    30 * time.Second,
	}
}

// DefaultRetrievalConfig 返回默认检索配置
// 1000/200 的块大小与重叠保证相邻块共享上下文；融合权重偏向语义排名
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		ChunkSize:     1000,
		ChunkOverlap:  200,
		TopK:          6,
		DenseWeight:   0.7,
		LexicalWeight: 0.3,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		ServiceName:  "paperqa",
		OTLPEndpoint: "localhost:4317",
		SampleRate:   1.0,
	}
}
