package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Tiktoken 基于 BPE 编码表的精确计数器
type Tiktoken struct {
	encoding *tiktoken.Tiktoken
	name     string
}

// NewTiktoken 按模型名加载编码表；未知模型回退 cl100k_base。
func NewTiktoken(model string) (*Tiktoken, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load tiktoken encoding: %w", err)
		}
	}
	return &Tiktoken{encoding: enc, name: "tiktoken"}, nil
}

// CountTokens 返回文本的精确 token 数
func (t *Tiktoken) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// Name 返回 tokenizer 标识
func (t *Tiktoken) Name() string { return t.name }
