// Package tokenizer 提供统一的 token 计数接口。
// 分块器用它决定切分边界，确保块大小以 token 为单位而不是字符。
package tokenizer

// Tokenizer token 计数接口
type Tokenizer interface {
	// CountTokens 返回文本的 token 数
	CountTokens(text string) int

	// Name 返回 tokenizer 标识
	Name() string
}

// New 返回默认 tokenizer：优先 tiktoken，编码表不可用时退回估算器。
func New(model string) Tokenizer {
	if t, err := NewTiktoken(model); err == nil {
		return t
	}
	return NewEstimator()
}
