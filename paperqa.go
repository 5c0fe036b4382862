// Package paperqa provides a top-level convenience entry point for building
// the research paper question answering service with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/paperqa"
//
//	svc, err := paperqa.New()
//	svc, err := paperqa.New(paperqa.WithConfig(cfg), paperqa.WithLogger(logger))
//
// This wires the same components as cmd/paperqa, without the HTTP surface.
// Use this package when embedding the pipeline in another program.
package paperqa

import (
	"go.uber.org/zap"

	"github.com/BaSui01/paperqa/agent"
	"github.com/BaSui01/paperqa/config"
	"github.com/BaSui01/paperqa/llm"
	"github.com/BaSui01/paperqa/llm/embedding"
	"github.com/BaSui01/paperqa/llm/tokenizer"
	"github.com/BaSui01/paperqa/rag"
	"github.com/BaSui01/paperqa/rag/loader"
)

// Option configures the service created by [New].
type Option func(*options)

type options struct {
	cfg    *config.Config
	logger *zap.Logger
}

// WithConfig sets the full configuration. Defaults to [config.DefaultConfig].
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a fully wired [agent.Service]: two-tier LLM oracle, hybrid
// index, intent router, and the answering pipeline.
func New(opts ...Option) (*agent.Service, error) {
	o := &options{
		cfg:    config.DefaultConfig(),
		logger: zap.NewNop(),
	}
	for _, fn := range opts {
		fn(o)
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, err
	}
	cfg := o.cfg

	primary := llm.NewOpenAICompatProvider(llm.OpenAICompatConfig{
		ProviderName: cfg.LLM.Primary.Name,
		APIKey:       cfg.LLM.Primary.APIKey,
		BaseURL:      cfg.LLM.Primary.BaseURL,
		DefaultModel: cfg.LLM.Primary.Model,
		Timeout:      cfg.LLM.Primary.Timeout,
	}, o.logger)
	backup := llm.NewOpenAICompatProvider(llm.OpenAICompatConfig{
		ProviderName: cfg.LLM.Backup.Name,
		APIKey:       cfg.LLM.Backup.APIKey,
		BaseURL:      cfg.LLM.Backup.BaseURL,
		DefaultModel: cfg.LLM.Backup.Model,
		Timeout:      cfg.LLM.Backup.Timeout,
	}, o.logger)

	oracle := llm.NewOracle(primary, backup, llm.OracleConfig{
		ProbeTimeout: cfg.LLM.ProbeTimeout,
		SystemPrompt: cfg.LLM.SystemPrompt,
	}, o.logger)

	embedder := embedding.NewOpenAIProvider(embedding.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	}, o.logger)

	chunker := rag.NewChunker(rag.ChunkerConfig{
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
	}, tokenizer.New(cfg.LLM.Primary.Model), o.logger)

	index := rag.NewHybridIndex(rag.HybridIndexConfig{
		DenseWeight:   cfg.Retrieval.DenseWeight,
		LexicalWeight: cfg.Retrieval.LexicalWeight,
	}, chunker, embedder, o.logger)

	router := agent.NewRouter(oracle, o.logger)
	pipelineCfg := agent.DefaultPipelineConfig()
	pipelineCfg.TopK = cfg.Retrieval.TopK
	pipeline := agent.NewPipeline(index, oracle, pipelineCfg, nil, o.logger)

	return agent.NewService(router, pipeline, oracle, index,
		loader.NewRegistry(), nil, o.logger).
		WithIndexDir(cfg.Index.Dir), nil
}
