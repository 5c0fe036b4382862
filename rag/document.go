// Package rag 提供文档分块与混合（词法 + 语义）检索。
package rag

// Document 一份已加载的源文档
type Document struct {
	// ID 文档唯一标识
	ID string `json:"id"`
	// Name 来源名称（文件名或论文标题），引用时展示给用户
	Name string `json:"name"`
	// Content 全文内容
	Content string `json:"content"`
	// Metadata 附加元数据
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunk 文档块，检索与引用的最小单位
type Chunk struct {
	// Content 块文本
	Content string `json:"content"`
	// SourceID 所属文档 ID
	SourceID string `json:"source_id"`
	// SourceName 所属文档名称
	SourceName string `json:"source_name"`
	// SequenceIndex 在所属文档内的序号，从 0 开始
	SequenceIndex int `json:"sequence_index"`
	// TokenCount 块的 token 数
	TokenCount int `json:"token_count"`
}

// ScoredChunk 带检索得分的块
type ScoredChunk struct {
	Chunk Chunk `json:"chunk"`
	// FusedScore 归一化加权融合后的最终得分
	FusedScore float64 `json:"fused_score"`
	// DenseScore 语义（余弦）原始得分
	DenseScore float64 `json:"dense_score"`
	// LexicalScore 词法（BM25）原始得分
	LexicalScore float64 `json:"lexical_score"`
	// LexicalRank 词法排名，同分时的稳定决胜依据
	LexicalRank int `json:"lexical_rank"`
}
