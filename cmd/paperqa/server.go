package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/paperqa/agent"
	"github.com/BaSui01/paperqa/api/handlers"
	"github.com/BaSui01/paperqa/config"
	"github.com/BaSui01/paperqa/internal/metrics"
	"github.com/BaSui01/paperqa/internal/server"
	"github.com/BaSui01/paperqa/internal/telemetry"
	"github.com/BaSui01/paperqa/llm"
	"github.com/BaSui01/paperqa/llm/embedding"
	"github.com/BaSui01/paperqa/llm/tokenizer"
	"github.com/BaSui01/paperqa/rag"
	"github.com/BaSui01/paperqa/rag/loader"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 paperqa 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	otelProviders *telemetry.Providers

	httpManager    *server.Manager
	metricsManager *server.Manager

	registry  *prometheus.Registry
	collector *metrics.Collector

	service *agent.Service
	primary llm.Provider
	backup  llm.Provider
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollector(s.registry)

	if err := s.initService(); err != nil {
		return fmt.Errorf("failed to init service: %w", err)
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// initService 组装问答服务的全部组件
func (s *Server) initService() error {
	s.primary = llm.NewOpenAICompatProvider(llm.OpenAICompatConfig{
		ProviderName: s.cfg.LLM.Primary.Name,
		APIKey:       s.cfg.LLM.Primary.APIKey,
		BaseURL:      s.cfg.LLM.Primary.BaseURL,
		DefaultModel: s.cfg.LLM.Primary.Model,
		Timeout:      s.cfg.LLM.Primary.Timeout,
	}, s.logger)

	s.backup = llm.NewOpenAICompatProvider(llm.OpenAICompatConfig{
		ProviderName: s.cfg.LLM.Backup.Name,
		APIKey:       s.cfg.LLM.Backup.APIKey,
		BaseURL:      s.cfg.LLM.Backup.BaseURL,
		DefaultModel: s.cfg.LLM.Backup.Model,
		Timeout:      s.cfg.LLM.Backup.Timeout,
	}, s.logger)

	oracle := llm.NewOracle(s.primary, s.backup, llm.OracleConfig{
		ProbeTimeout: s.cfg.LLM.ProbeTimeout,
		SystemPrompt: s.cfg.LLM.SystemPrompt,
	}, s.logger).WithObserver(s.collector.ObserveOracle)

	index := buildIndex(s.cfg, s.logger)
	if s.cfg.Index.Dir != "" {
		if err := index.LoadFrom(s.cfg.Index.Dir); err != nil {
			s.logger.Warn("warm start unavailable, starting with empty index",
				zap.String("dir", s.cfg.Index.Dir),
				zap.Error(err))
		} else {
			docs, chunks := index.Stats()
			s.collector.SetIndexSize(docs, chunks)
		}
	}

	router := agent.NewRouter(oracle, s.logger)
	pipelineCfg := agent.DefaultPipelineConfig()
	pipelineCfg.TopK = s.cfg.Retrieval.TopK
	pipeline := agent.NewPipeline(index, oracle, pipelineCfg, s.collector, s.logger)

	s.service = agent.NewService(router, pipeline, oracle, index,
		loader.NewRegistry(), s.collector, s.logger).
		WithIndexDir(s.cfg.Index.Dir)

	s.logger.Info("Service initialized",
		zap.String("primary", s.cfg.LLM.Primary.Name),
		zap.String("backup", s.cfg.LLM.Backup.Name),
		zap.String("embedding_model", s.cfg.Embedding.Model))
	return nil
}

// buildIndex 构建混合索引（分块器 + 嵌入后端）
func buildIndex(cfg *config.Config, logger *zap.Logger) *rag.HybridIndex {
	embedder := embedding.NewOpenAIProvider(embedding.Config{
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    cfg.Embedding.Timeout,
	}, logger)

	chunker := rag.NewChunker(rag.ChunkerConfig{
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
	}, tokenizer.New(cfg.LLM.Primary.Model), logger)

	return rag.NewHybridIndex(rag.HybridIndexConfig{
		DenseWeight:   cfg.Retrieval.DenseWeight,
		LexicalWeight: cfg.Retrieval.LexicalWeight,
	}, chunker, embedder, logger)
}

// buildIndexOffline 离线建立索引并落盘
func buildIndexOffline(cfg *config.Config, dir string, logger *zap.Logger) error {
	index := buildIndex(cfg, logger)

	docs, err := loader.NewRegistry().LoadDir(context.Background(), dir)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	if err := index.Rebuild(context.Background(), docs); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	return index.SaveTo(cfg.Index.Dir)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	queryHandler := handlers.NewQueryHandler(s.service, s.logger)
	docsHandler := handlers.NewDocsHandler(s.service, s.logger)
	healthHandler := handlers.NewHealthHandler(s.service, s.primary, s.backup, s.logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", healthHandler.Liveness)
	mux.HandleFunc("GET /readyz", healthHandler.Readiness)

	mux.HandleFunc("POST /api/v1/query", queryHandler.Query)
	mux.HandleFunc("GET /api/v1/threads/{id}", queryHandler.Thread)
	mux.HandleFunc("DELETE /api/v1/threads/{id}", queryHandler.ResetThread)

	mux.HandleFunc("POST /api/v1/documents/rebuild", docsHandler.Rebuild)
	mux.HandleFunc("POST /api/v1/documents/reset", docsHandler.Reset)
	mux.HandleFunc("GET /api/v1/documents/status", docsHandler.Status)

	handler := Chain(mux,
		Recovery(s.logger),
		Tracing(),
		MetricsMiddleware(s.collector),
		RequestLogger(s.logger),
	)

	s.httpManager = server.NewManager(handler, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)

	return s.httpManager.Start()
}

// startMetricsServer 启动 Prometheus 指标服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.metricsManager = server.NewManager(mux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger.With(zap.String("server", "metrics")))

	return s.metricsManager.Start()
}

// WaitForShutdown 等待关闭信号并依次关闭所有组件
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()

	ctx := context.Background()
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("metrics server shutdown failed", zap.Error(err))
		}
	}
	if err := s.otelProviders.Shutdown(ctx); err != nil {
		s.logger.Error("telemetry shutdown failed", zap.Error(err))
	}
}
