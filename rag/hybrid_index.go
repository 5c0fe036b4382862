// =============================================================================
// 🔍 混合检索索引：BM25 词法 + 稠密语义，归一化加权融合
// =============================================================================
// 索引以不可变快照形式存在。Rebuild 在锁外构建新快照后原子替换，
// 查询只读当前快照，重建期间的查询继续命中旧快照。
// =============================================================================
package rag

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/BaSui01/paperqa/llm/embedding"
	"github.com/BaSui01/paperqa/types"
)

// BM25 参数，标准取值
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// HybridIndexConfig 混合索引配置
type HybridIndexConfig struct {
	// DenseWeight 语义得分权重
	DenseWeight float64 `json:"dense_weight"`
	// LexicalWeight 词法得分权重
	LexicalWeight float64 `json:"lexical_weight"`
}

// DefaultHybridIndexConfig 默认融合权重，偏向语义
func DefaultHybridIndexConfig() HybridIndexConfig {
	return HybridIndexConfig{DenseWeight: 0.7, LexicalWeight: 0.3}
}

// snapshot 一次 Rebuild 产出的不可变索引状态
type snapshot struct {
	chunks     []Chunk
	embeddings [][]float64

	// BM25 统计
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	docFreq   map[string]int

	docCount int
}

// HybridIndex 混合检索索引
type HybridIndex struct {
	mu   sync.RWMutex
	snap *snapshot

	config   HybridIndexConfig
	chunker  *Chunker
	embedder embedding.Provider
	logger   *zap.Logger
}

// NewHybridIndex 创建混合索引
func NewHybridIndex(config HybridIndexConfig, chunker *Chunker, embedder embedding.Provider, logger *zap.Logger) *HybridIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridIndex{
		config:   config,
		chunker:  chunker,
		embedder: embedder,
		logger:   logger,
	}
}

// Rebuild 全量重建索引并原子替换快照。
// 构建全程不持锁，重建失败时保留旧快照不变。
// 空文档集也会产出快照，此时 HasDocuments 为 false。
func (h *HybridIndex) Rebuild(ctx context.Context, docs []Document) error {
	var chunks []Chunk
	for _, doc := range docs {
		chunks = append(chunks, h.chunker.ChunkDocument(doc)...)
	}

	snap := &snapshot{
		chunks:   chunks,
		docFreq:  make(map[string]int),
		docCount: len(docs),
	}

	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Content
		}
		vecs, err := h.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return types.NewError(types.ErrUpstreamError, "embed chunks during rebuild").
				WithCause(err)
		}
		snap.embeddings = vecs

		snap.termFreqs = make([]map[string]int, len(chunks))
		snap.docLens = make([]int, len(chunks))
		totalLen := 0
		for i, c := range chunks {
			terms := tokenizeLexical(c.Content)
			tf := make(map[string]int, len(terms))
			for _, t := range terms {
				tf[t]++
			}
			snap.termFreqs[i] = tf
			snap.docLens[i] = len(terms)
			totalLen += len(terms)
			for t := range tf {
				snap.docFreq[t]++
			}
		}
		snap.avgDocLen = float64(totalLen) / float64(len(chunks))
	}

	h.mu.Lock()
	h.snap = snap
	h.mu.Unlock()

	h.logger.Info("hybrid index rebuilt",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)))
	return nil
}

// Reset 清空索引，后续查询返回 INDEX_NOT_READY
func (h *HybridIndex) Reset() {
	h.mu.Lock()
	h.snap = nil
	h.mu.Unlock()
	h.logger.Info("hybrid index reset")
}

// HasDocuments 报告索引是否包含至少一个块
func (h *HybridIndex) HasDocuments() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap != nil && len(h.snap.chunks) > 0
}

// Stats 返回当前索引规模（文档数、块数）
func (h *HybridIndex) Stats() (docs int, chunks int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.snap == nil {
		return 0, 0
	}
	return h.snap.docCount, len(h.snap.chunks)
}

// Query 混合检索：BM25 与余弦得分各自 min-max 归一化后加权融合，
// 返回按融合得分降序的前 k 个块。融合得分相同时词法排名靠前者优先。
func (h *HybridIndex) Query(ctx context.Context, query string, k int) ([]ScoredChunk, error) {
	h.mu.RLock()
	snap := h.snap
	h.mu.RUnlock()

	if snap == nil {
		return nil, types.NewError(types.ErrIndexNotReady, "no documents indexed")
	}
	if len(snap.chunks) == 0 {
		return nil, types.NewError(types.ErrIndexNotReady, "index is empty")
	}
	if k <= 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "k must be positive")
	}

	qvec, err := h.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "embed query").WithCause(err)
	}

	n := len(snap.chunks)
	dense := make([]float64, n)
	lexical := make([]float64, n)

	queryTerms := tokenizeLexical(query)
	for i := 0; i < n; i++ {
		dense[i] = cosineSimilarity(qvec, snap.embeddings[i])
		lexical[i] = snap.bm25Score(queryTerms, i)
	}

	// 词法排名在归一化之前确定，作为稳定决胜依据
	lexRank := rankDescending(lexical)

	denseNorm := minMaxNormalize(dense)
	lexNorm := minMaxNormalize(lexical)

	scored := make([]ScoredChunk, n)
	for i := 0; i < n; i++ {
		scored[i] = ScoredChunk{
			Chunk:        snap.chunks[i],
			FusedScore:   h.config.DenseWeight*denseNorm[i] + h.config.LexicalWeight*lexNorm[i],
			DenseScore:   dense[i],
			LexicalScore: lexical[i],
			LexicalRank:  lexRank[i],
		}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].FusedScore != scored[b].FusedScore {
			return scored[a].FusedScore > scored[b].FusedScore
		}
		return scored[a].LexicalRank < scored[b].LexicalRank
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// bm25Score 计算查询词项对单个块的 BM25 得分
func (s *snapshot) bm25Score(queryTerms []string, idx int) float64 {
	tf := s.termFreqs[idx]
	docLen := float64(s.docLens[idx])
	n := float64(len(s.chunks))

	var score float64
	for _, term := range queryTerms {
		f := float64(tf[term])
		if f == 0 {
			continue
		}
		df := float64(s.docFreq[term])
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)
		score += idf * (f * (bm25K1 + 1)) /
			(f + bm25K1*(1-bm25B+bm25B*docLen/s.avgDocLen))
	}
	return score
}

// tokenizeLexical BM25 分词：小写化，按非字母数字切分
func tokenizeLexical(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// cosineSimilarity 余弦相似度；零向量返回 0
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// minMaxNormalize 把得分缩放到 [0,1]；所有得分相同时全部归一为 1
func minMaxNormalize(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	out := make([]float64, len(scores))
	if hi == lo {
		for i := range out {
			out[i] = 1
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - lo) / (hi - lo)
	}
	return out
}

// rankDescending 返回每个位置的降序排名（0 为最高分），同分按下标稳定
func rankDescending(scores []float64) []int {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	ranks := make([]int, len(scores))
	for rank, idx := range order {
		ranks[idx] = rank
	}
	return ranks
}
