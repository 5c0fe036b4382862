// Package agent 实现问答流水线：路由、改写、检索、评分、筛选、合成。
package agent

import "github.com/BaSui01/paperqa/rag"

// Route 问题路由目标
type Route string

const (
	// RouteKnowledgeBase 走检索问答流水线
	RouteKnowledgeBase Route = "knowledge_base"
	// RouteMemory 查询会话历史
	RouteMemory Route = "memory"
	// RouteGeneral 普通对话，直接交给生成后端
	RouteGeneral Route = "general"
)

// GradedChunk 检索候选与它的 LLM 相关性评分
type GradedChunk struct {
	rag.ScoredChunk
	// Grade 相关性评分 [0,1]；评分失败时等于融合检索得分
	Grade float64
	// RetrievalRank 候选在检索结果中的原始名次，评分相同时的次序依据
	RetrievalRank int
}

// QueryState 流水线的阶段间状态。每个阶段读取前序字段、写入自己的字段。
type QueryState struct {
	// ThreadID 会话标识
	ThreadID string
	// Question 用户原始问题
	Question string
	// Route 路由决策
	Route Route
	// RewrittenQuery 改写后的检索查询；改写失败时等于原问题
	RewrittenQuery string
	// Retrieved 检索候选，按融合得分降序
	Retrieved []rag.ScoredChunk
	// Graded 评分后的候选，按评分降序，同分按检索名次
	Graded []GradedChunk
	// Selected 通过筛选进入合成的块，保持 Graded 的次序
	Selected []GradedChunk
	// Degraded 是否走了降级单轮回答
	Degraded bool
}

// Reference 答案引用的文档块
type Reference struct {
	// SourceName 来源文档名称
	SourceName string `json:"source_name"`
	// SequenceIndex 块在文档内的序号
	SequenceIndex int `json:"sequence_index"`
	// Score 相关性评分；降级回答时为融合检索得分
	Score float64 `json:"score"`
	// Snippet 块内容摘录，最多 500 个字符
	Snippet string `json:"snippet"`
}

// Answer 一次问答的完整结果
type Answer struct {
	// Text 答案正文
	Text string `json:"text"`
	// Route 实际路由
	Route Route `json:"route"`
	// References 引用列表，按得分降序
	References []Reference `json:"references,omitempty"`
	// ThreadID 会话标识
	ThreadID string `json:"thread_id"`
	// Degraded 是否为降级回答
	Degraded bool `json:"degraded,omitempty"`
}
