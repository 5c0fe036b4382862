package rag

import (
	"strings"

	"go.uber.org/zap"
)

// Tokenizer 分词计数接口，由 llm/tokenizer 适配
type Tokenizer interface {
	CountTokens(text string) int
}

// ChunkerConfig 分块配置
type ChunkerConfig struct {
	// ChunkSize 块大小上限（tokens）
	ChunkSize int `json:"chunk_size"`
	// ChunkOverlap 相邻块的重叠（tokens）
	ChunkOverlap int `json:"chunk_overlap"`
}

// DefaultChunkerConfig 默认分块配置
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Chunker 级联分隔符分块器。
// 依次尝试段落、行、空格边界，实在切不开才按字符硬切。
// 相同输入必然产生相同输出。
type Chunker struct {
	config     ChunkerConfig
	separators []string
	tokenizer  Tokenizer
	logger     *zap.Logger
}

// NewChunker 创建分块器
func NewChunker(config ChunkerConfig, tokenizer Tokenizer, logger *zap.Logger) *Chunker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{
		config:     config,
		separators: []string{"\n\n", "\n", " "},
		tokenizer:  tokenizer,
		logger:     logger,
	}
}

// ChunkDocument 把文档切成带序号的块。
// 空白文档返回空切片。
func (c *Chunker) ChunkDocument(doc Document) []Chunk {
	if strings.TrimSpace(doc.Content) == "" {
		return nil
	}

	pieces := c.splitRecursive(doc.Content, c.separators)

	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		chunks = append(chunks, Chunk{
			Content:       p,
			SourceID:      doc.ID,
			SourceName:    doc.Name,
			SequenceIndex: len(chunks),
			TokenCount:    c.tokenizer.CountTokens(p),
		})
	}

	c.logger.Debug("document chunked",
		zap.String("source", doc.Name),
		zap.Int("chunks", len(chunks)),
		zap.Int("chunk_size", c.config.ChunkSize),
		zap.Int("overlap", c.config.ChunkOverlap))

	return chunks
}

// splitRecursive 级联分割：用当前级分隔符切开，超限的片段
// 降级到下一级分隔符，相邻小片段合并回接近块大小的块。
func (c *Chunker) splitRecursive(text string, separators []string) []string {
	if len(separators) == 0 {
		return c.splitByTokens(text)
	}

	separator := separators[0]
	parts := strings.Split(text, separator)

	var result []string
	var pending []string

	flush := func() {
		if len(pending) > 0 {
			result = append(result, c.mergePieces(pending, separator)...)
			pending = nil
		}
	}

	for _, part := range parts {
		if c.tokenizer.CountTokens(part) <= c.config.ChunkSize {
			pending = append(pending, part)
			continue
		}
		// 片段本身超限，先合并已积累的小片段，再降级分割
		flush()
		result = append(result, c.splitRecursive(part, separators[1:])...)
	}
	flush()

	return result
}

// mergePieces 把相邻小片段合并到不超过块大小，
// 换块时保留尾部片段作为重叠。
func (c *Chunker) mergePieces(pieces []string, separator string) []string {
	sepTokens := c.tokenizer.CountTokens(separator)

	var merged []string
	var window []string
	var total int

	for _, p := range pieces {
		n := c.tokenizer.CountTokens(p)

		if len(window) > 0 && total+sepTokens+n > c.config.ChunkSize {
			merged = append(merged, strings.Join(window, separator))

			// 从窗口头部弹出，直到剩余部分缩到重叠大小以内
			for len(window) > 0 && total > c.config.ChunkOverlap {
				total -= c.tokenizer.CountTokens(window[0])
				if len(window) > 1 {
					total -= sepTokens
				}
				window = window[1:]
			}
		}

		if len(window) > 0 {
			total += sepTokens
		}
		window = append(window, p)
		total += n
	}

	if len(window) > 0 {
		merged = append(merged, strings.Join(window, separator))
	}
	return merged
}

// splitByTokens 最后手段：按估算字符数硬切，保证 rune 边界。
func (c *Chunker) splitByTokens(text string) []string {
	runes := []rune(text)
	charsPerChunk := c.config.ChunkSize * 4
	overlapChars := c.config.ChunkOverlap * 4
	step := charsPerChunk - overlapChars
	if step <= 0 {
		step = charsPerChunk
	}

	var out []string
	for i := 0; i < len(runes); i += step {
		end := i + charsPerChunk
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
		if end >= len(runes) {
			break
		}
	}
	return out
}
