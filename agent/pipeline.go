// =============================================================================
// 🧪 问答流水线：改写 → 检索 → 评分 → 筛选 → 合成
// =============================================================================
// 改写与评分都是尽力而为：改写失败用原问题，单块评分失败用检索
// 融合得分兜底。只有合成失败才触发降级：用原始检索块单轮回答。
// =============================================================================
package agent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/paperqa/internal/metrics"
	"github.com/BaSui01/paperqa/llm"
	"github.com/BaSui01/paperqa/rag"
	"github.com/BaSui01/paperqa/types"
)

// NoDocumentsMessage 空索引时的固定答复
const NoDocumentsMessage = "I cannot answer research questions as no documents " +
	"have been loaded. Please upload research papers first."

// PipelineConfig 流水线配置
type PipelineConfig struct {
	// TopK 检索候选数
	TopK int
	// GradeThreshold 评分筛选阈值，严格大于才入选
	GradeThreshold float64
	// MinSelected 无块过阈值时保底入选的候选数
	MinSelected int
	// SnippetRunes 引用摘录的最大字符数
	SnippetRunes int
}

// DefaultPipelineConfig 默认流水线配置
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		TopK:           6,
		GradeThreshold: 0.5,
		MinSelected:    2,
		SnippetRunes:   500,
	}
}

// Pipeline 检索问答流水线
type Pipeline struct {
	index   *rag.HybridIndex
	oracle  *llm.Oracle
	config  PipelineConfig
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewPipeline 创建流水线
func NewPipeline(index *rag.HybridIndex, oracle *llm.Oracle, config PipelineConfig, collector *metrics.Collector, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		index:   index,
		oracle:  oracle,
		config:  config,
		metrics: collector,
		logger:  logger,
	}
}

// Run 执行完整流水线并返回答案
func (p *Pipeline) Run(ctx context.Context, state *QueryState) (*Answer, error) {
	p.rewrite(ctx, state)

	terminal, err := p.retrieve(ctx, state)
	if err != nil {
		return nil, err
	}
	if terminal != nil {
		return terminal, nil
	}

	p.grade(ctx, state)
	p.selectChunks(state)

	text, err := p.synthesize(ctx, state)
	if err != nil {
		p.logger.Warn("synthesis failed, attempting degraded answer", zap.Error(err))
		return p.degraded(ctx, state, err)
	}

	return &Answer{
		Text:       text,
		Route:      RouteKnowledgeBase,
		References: p.references(state.Selected),
		ThreadID:   state.ThreadID,
	}, nil
}

const rewritePrompt = `Rewrite the user's question into a concise search query for retrieving relevant passages from research papers.

Rules:
- Keep all technical terms, paper names, and author names.
- Remove conversational filler.
- Do not answer the question.
- Return only the rewritten query, nothing else.

Question: %s`

// rewrite 把口语化问题改写成检索查询。尽力而为，失败用原问题。
func (p *Pipeline) rewrite(ctx context.Context, state *QueryState) {
	text, err := p.oracle.Invoke(ctx, fmt.Sprintf(rewritePrompt, state.Question),
		llm.InvokeOptions{Temperature: 0.3, Tags: []string{"rewrite"}})
	if err != nil || strings.TrimSpace(text) == "" {
		p.logger.Warn("query rewrite failed, using original question", zap.Error(err))
		state.RewrittenQuery = state.Question
		return
	}
	state.RewrittenQuery = strings.TrimSpace(text)
}

// retrieve 执行混合检索。索引未就绪返回固定的无文档答复，
// 这是预期空态而非错误。
func (p *Pipeline) retrieve(ctx context.Context, state *QueryState) (*Answer, error) {
	start := time.Now()
	chunks, err := p.index.Query(ctx, state.RewrittenQuery, p.config.TopK)
	p.metrics.ObserveRetrieval(time.Since(start))
	if err != nil {
		if types.IsNotReady(err) {
			return &Answer{
				Text:     NoDocumentsMessage,
				Route:    RouteKnowledgeBase,
				ThreadID: state.ThreadID,
			}, nil
		}
		return nil, err
	}
	state.Retrieved = chunks
	return nil, nil
}

const gradePrompt = `You are a grader assessing the relevance of a retrieved document excerpt to a user question.

Question: %s

Excerpt:
%s

Give a relevance score between 0 and 1, where 1 means highly relevant and 0 means completely irrelevant. Return ONLY the numerical score.`

var numberRe = regexp.MustCompile(`[0-9]*\.?[0-9]+`)

// grade 并发为每个候选相对改写后的查询评分，单块失败回退到
// 该块的融合得分。评分写回与候选同序的切片，随后整体按评分
// 降序排列，同分保持检索名次。
func (p *Pipeline) grade(ctx context.Context, state *QueryState) {
	grades := make([]float64, len(state.Retrieved))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, sc := range state.Retrieved {
		g.Go(func() error {
			text, err := p.oracle.Invoke(gctx,
				fmt.Sprintf(gradePrompt, state.RewrittenQuery, sc.Chunk.Content),
				llm.InvokeOptions{Temperature: 0, Tags: []string{"grade"}})
			if err != nil {
				p.metrics.ObserveGradeFallback()
				grades[i] = sc.FusedScore
				return nil
			}
			score, ok := parseGrade(text)
			if !ok {
				p.metrics.ObserveGradeFallback()
				p.logger.Debug("unparseable grade, falling back to fused score",
					zap.String("raw", text))
				grades[i] = sc.FusedScore
				return nil
			}
			grades[i] = score
			return nil
		})
	}
	// goroutine 不返回错误，Wait 只做同步
	_ = g.Wait()

	graded := make([]GradedChunk, len(state.Retrieved))
	for i, sc := range state.Retrieved {
		graded[i] = GradedChunk{ScoredChunk: sc, Grade: grades[i], RetrievalRank: i}
	}
	sort.SliceStable(graded, func(a, b int) bool {
		if graded[a].Grade != graded[b].Grade {
			return graded[a].Grade > graded[b].Grade
		}
		return graded[a].RetrievalRank < graded[b].RetrievalRank
	})
	state.Graded = graded
}

// parseGrade 从模型输出中提取 [0,1] 的评分
func parseGrade(text string) (float64, bool) {
	m := numberRe.FindString(strings.TrimSpace(text))
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return v, true
}

// selectChunks 筛选评分过阈值的候选；全部落选时保底取评分
// 最高的 MinSelected 个。Graded 已按评分降序。
func (p *Pipeline) selectChunks(state *QueryState) {
	var selected []GradedChunk
	for _, gc := range state.Graded {
		if gc.Grade > p.config.GradeThreshold {
			selected = append(selected, gc)
		}
	}

	if len(selected) == 0 {
		n := p.config.MinSelected
		if n > len(state.Graded) {
			n = len(state.Graded)
		}
		selected = append(selected, state.Graded[:n]...)
	}

	state.Selected = selected
}

const synthesizePrompt = `Answer the user's question using ONLY the following excerpts from research papers.

Instructions:
- Base your answer strictly on the excerpts. Do not use outside knowledge.
- Cite the paper name when you use information from an excerpt.
- If the excerpts do not fully answer the question, say what is missing.
- Be concise and keep an academic tone.

Excerpts:
%s

Question: %s`

// synthesize 基于入选块合成最终答案，每块标注来源与评分
func (p *Pipeline) synthesize(ctx context.Context, state *QueryState) (string, error) {
	var sb strings.Builder
	for i, gc := range state.Selected {
		fmt.Fprintf(&sb, "[%d] From %q (relevance: %.2f):\n%s\n\n",
			i+1, gc.Chunk.SourceName, gc.Grade, gc.Chunk.Content)
	}

	text, err := p.oracle.Invoke(ctx,
		fmt.Sprintf(synthesizePrompt, sb.String(), state.Question),
		llm.InvokeOptions{Temperature: 0.2, MaxTokens: 1000, Tags: []string{"synthesize"}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

const degradedPrompt = `Based ONLY on the provided research papers, answer the following question. Provide a clear and concise answer, focusing on key findings and conclusions.

Context from papers:
%s

Question: %s`

// degraded 合成失败后的降级路径：跳过改写和评分，用未评分的
// 原始检索块单轮回答，引用带检索融合得分。降级也失败时向
// 调用方返回原始合成错误。
func (p *Pipeline) degraded(ctx context.Context, state *QueryState, cause error) (*Answer, error) {
	var sb strings.Builder
	for _, sc := range state.Retrieved {
		fmt.Fprintf(&sb, "From %q:\n%s\n\n", sc.Chunk.SourceName, sc.Chunk.Content)
	}

	text, err := p.oracle.Invoke(ctx,
		fmt.Sprintf(degradedPrompt, sb.String(), state.Question),
		llm.InvokeOptions{Temperature: 0.2, MaxTokens: 1000, Tags: []string{"degraded"}})
	if err != nil {
		return nil, cause
	}

	refs := make([]Reference, 0, len(state.Retrieved))
	for _, sc := range state.Retrieved {
		refs = append(refs, Reference{
			SourceName:    sc.Chunk.SourceName,
			SequenceIndex: sc.Chunk.SequenceIndex,
			Score:         sc.FusedScore,
			Snippet:       truncateRunes(sc.Chunk.Content, p.config.SnippetRunes),
		})
	}

	return &Answer{
		Text:       strings.TrimSpace(text),
		Route:      RouteKnowledgeBase,
		References: refs,
		ThreadID:   state.ThreadID,
		Degraded:   true,
	}, nil
}

// references 构造引用列表，入选块已按评分降序
func (p *Pipeline) references(selected []GradedChunk) []Reference {
	refs := make([]Reference, 0, len(selected))
	for _, gc := range selected {
		refs = append(refs, Reference{
			SourceName:    gc.Chunk.SourceName,
			SequenceIndex: gc.Chunk.SequenceIndex,
			Score:         gc.Grade,
			Snippet:       truncateRunes(gc.Chunk.Content, p.config.SnippetRunes),
		})
	}
	return refs
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
