package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/paperqa/llm"
)

// RouteDecision 路由结果
type RouteDecision struct {
	Route  Route  `json:"route"`
	Reason string `json:"reason"`
}

// Router 用生成后端对问题做意图分类
type Router struct {
	oracle *llm.Oracle
	logger *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(oracle *llm.Oracle, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{oracle: oracle, logger: logger}
}

const routePrompt = `Classify the user's message into exactly one route:

- "memory": the user asks about the conversation itself (what was said, previous questions, chat history).
- "knowledge_base": the user asks about research papers, studies, methods, findings, or any topic that should be answered from the loaded documents.
- "general": greetings, small talk, or questions clearly unrelated to research content.

When a message could be both research-related and something else, prefer "knowledge_base".

User message: %q

Return JSON: {"route": "...", "reason": "..."}`

// Route 对问题分类。后端不可用或输出不可解析时回退 knowledge_base，
// 检索流水线自己能处理非研究问题，反向的漏检才是真正的失败。
func (r *Router) Route(ctx context.Context, question string) RouteDecision {
	var decision RouteDecision
	err := r.oracle.InvokeStructured(ctx, fmt.Sprintf(routePrompt, question), &decision)
	if err != nil {
		r.logger.Warn("intent routing failed, defaulting to knowledge_base",
			zap.Error(err))
		return RouteDecision{Route: RouteKnowledgeBase, Reason: "routing unavailable"}
	}

	switch decision.Route {
	case RouteMemory, RouteKnowledgeBase, RouteGeneral:
	default:
		r.logger.Warn("unknown route from classifier, defaulting to knowledge_base",
			zap.String("route", string(decision.Route)))
		return RouteDecision{Route: RouteKnowledgeBase, Reason: "unknown route"}
	}

	r.logger.Debug("question routed",
		zap.String("route", string(decision.Route)),
		zap.String("reason", decision.Reason))
	return decision
}
