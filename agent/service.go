package agent

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/paperqa/internal/metrics"
	"github.com/BaSui01/paperqa/llm"
	"github.com/BaSui01/paperqa/rag"
	"github.com/BaSui01/paperqa/rag/loader"
	"github.com/BaSui01/paperqa/types"
)

// Service 对外的问答服务门面
type Service struct {
	router   *Router
	pipeline *Pipeline
	oracle   *llm.Oracle
	index    *rag.HybridIndex
	loaders  *loader.Registry
	threads  *ThreadStore
	metrics  *metrics.Collector
	tracer   trace.Tracer
	logger   *zap.Logger

	// indexDir 非空时，重建成功后把索引落盘用于热启动
	indexDir string
}

// NewService 创建问答服务
func NewService(
	router *Router,
	pipeline *Pipeline,
	oracle *llm.Oracle,
	index *rag.HybridIndex,
	loaders *loader.Registry,
	collector *metrics.Collector,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		router:   router,
		pipeline: pipeline,
		oracle:   oracle,
		index:    index,
		loaders:  loaders,
		threads:  NewThreadStore(),
		metrics:  collector,
		tracer:   otel.Tracer("paperqa/agent"),
		logger:   logger,
	}
}

// WithIndexDir 设置索引持久化目录
func (s *Service) WithIndexDir(dir string) *Service {
	s.indexDir = dir
	return s
}

// AnswerQuestion 回答一个问题。threadID 为空时创建新会话。
func (s *Service) AnswerQuestion(ctx context.Context, threadID, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "question must not be empty").
			WithHTTPStatus(400)
	}
	if threadID == "" {
		threadID = NewThreadID()
	}

	ctx, span := s.tracer.Start(ctx, "agent.answer_question",
		trace.WithAttributes(attribute.String("thread_id", threadID)))
	defer span.End()

	decision := s.router.Route(ctx, question)
	span.SetAttributes(attribute.String("route", string(decision.Route)))

	var (
		answer *Answer
		err    error
	)
	switch decision.Route {
	case RouteMemory:
		answer = s.answerFromMemory(ctx, threadID, question)
	case RouteGeneral:
		answer, err = s.answerGeneral(ctx, threadID, question)
	default:
		state := &QueryState{
			ThreadID: threadID,
			Question: question,
			Route:    RouteKnowledgeBase,
		}
		answer, err = s.pipeline.Run(ctx, state)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.threads.Append(threadID, TurnUser, question)
	s.threads.Append(threadID, TurnAssistant, answer.Text)
	s.metrics.ObserveQuestion(string(answer.Route))

	s.logger.Info("question answered",
		zap.String("thread_id", threadID),
		zap.String("route", string(answer.Route)),
		zap.Int("references", len(answer.References)),
		zap.Bool("degraded", answer.Degraded))
	return answer, nil
}

const memoryPrompt = `You are an expert at analyzing questions about the conversation history.

Determine the appropriate response type:
- "count" for questions about the number of interactions
- "list" for requests to see previous questions
- "history" for general conversation history requests

Question: %s

Conversation History:
%s

Return a JSON object: {"response_type": "<count|list|history>", "content": "<the formatted reply>"}`

// memoryReply 会话历史问题的结构化回答
type memoryReply struct {
	ResponseType string `json:"response_type"`
	Content      string `json:"content"`
}

// answerFromMemory 把会话历史交给生成后端做结构化问答。
// 空会话直接返回固定答复；后端失败时回退到本地的已问问题清单。
func (s *Service) answerFromMemory(ctx context.Context, threadID, question string) *Answer {
	turns := s.threads.Turns(threadID)
	if len(turns) == 0 {
		return &Answer{
			Text:     "This conversation has no previous questions yet.",
			Route:    RouteMemory,
			ThreadID: threadID,
		}
	}

	var hb strings.Builder
	for _, t := range turns {
		role := "User"
		if t.Role == TurnAssistant {
			role = "Assistant"
		}
		fmt.Fprintf(&hb, "%s: %s\n", role, t.Content)
	}

	var reply memoryReply
	err := s.oracle.InvokeStructured(ctx,
		fmt.Sprintf(memoryPrompt, question, hb.String()), &reply)
	if err != nil || strings.TrimSpace(reply.Content) == "" {
		s.logger.Warn("memory reply failed, falling back to question list", zap.Error(err))
		return &Answer{
			Text:     questionListSummary(turns),
			Route:    RouteMemory,
			ThreadID: threadID,
		}
	}

	s.logger.Debug("memory question answered",
		zap.String("thread_id", threadID),
		zap.String("response_type", reply.ResponseType))
	return &Answer{
		Text:     strings.TrimSpace(reply.Content),
		Route:    RouteMemory,
		ThreadID: threadID,
	}
}

// questionListSummary 后端不可用时的确定性历史摘要
func questionListSummary(turns []Turn) string {
	var questions []string
	for _, t := range turns {
		if t.Role == TurnUser {
			questions = append(questions, t.Content)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You have asked %d question(s) in this conversation:\n", len(questions))
	for i, q := range questions {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, q)
	}
	return strings.TrimSpace(sb.String())
}

// answerGeneral 普通对话，直接交给生成后端
func (s *Service) answerGeneral(ctx context.Context, threadID, question string) (*Answer, error) {
	text, err := s.oracle.Invoke(ctx, question,
		llm.InvokeOptions{Temperature: 0.7, MaxTokens: 1000, Tags: []string{"general"}})
	if err != nil {
		return nil, err
	}
	return &Answer{
		Text:     strings.TrimSpace(text),
		Route:    RouteGeneral,
		ThreadID: threadID,
	}, nil
}

// RebuildIndex 用给定文档全量重建索引
func (s *Service) RebuildIndex(ctx context.Context, docs []rag.Document) error {
	ctx, span := s.tracer.Start(ctx, "agent.rebuild_index",
		trace.WithAttributes(attribute.Int("documents", len(docs))))
	defer span.End()

	if err := s.index.Rebuild(ctx, docs); err != nil {
		span.RecordError(err)
		return err
	}
	d, c := s.index.Stats()
	s.metrics.SetIndexSize(d, c)

	// 落盘失败不影响在线索引
	if s.indexDir != "" {
		if err := s.index.SaveTo(s.indexDir); err != nil {
			s.logger.Warn("failed to persist index snapshot",
				zap.String("dir", s.indexDir), zap.Error(err))
		}
	}
	return nil
}

// RebuildIndexFromDir 加载目录下所有支持的文件并重建索引
func (s *Service) RebuildIndexFromDir(ctx context.Context, dir string) (int, error) {
	docs, err := s.loaders.LoadDir(ctx, dir)
	if err != nil {
		return 0, types.NewError(types.ErrInvalidRequest, "load documents").
			WithCause(err).WithHTTPStatus(400)
	}
	if err := s.RebuildIndex(ctx, docs); err != nil {
		return 0, err
	}
	return len(docs), nil
}

// ResetIndex 清空索引并删除落盘快照，防止重启热加载旧语料
func (s *Service) ResetIndex() {
	s.index.Reset()
	s.metrics.SetIndexSize(0, 0)

	if s.indexDir != "" {
		if err := s.index.SaveTo(s.indexDir); err != nil {
			s.logger.Warn("failed to remove index snapshot",
				zap.String("dir", s.indexDir), zap.Error(err))
		}
	}
}

// IndexStatus 返回索引状态
func (s *Service) IndexStatus() (ready bool, docs int, chunks int) {
	docs, chunks = s.index.Stats()
	return s.index.HasDocuments(), docs, chunks
}

// ResetThread 删除会话，不存在时返回 NOT_FOUND
func (s *Service) ResetThread(threadID string) error {
	return s.threads.Clear(threadID)
}

// ThreadTurns 返回会话历史，不存在时返回 NOT_FOUND
func (s *Service) ThreadTurns(threadID string) ([]Turn, error) {
	if !s.threads.Exists(threadID) {
		return nil, types.NewError(types.ErrNotFound, "thread not found").WithHTTPStatus(404)
	}
	return s.threads.Turns(threadID), nil
}
