package tokenizer

import "unicode"

// Estimator 无编码表时的启发式计数器。
// 英文约 4 字符一个 token，CJK 约 1.5 字符一个 token。
type Estimator struct{}

// NewEstimator 创建估算器
func NewEstimator() *Estimator { return &Estimator{} }

// CountTokens 估算文本 token 数
func (e *Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	var ascii, cjk int
	for _, r := range text {
		if unicode.Is(unicode.Han, r) ||
			unicode.Is(unicode.Hiragana, r) ||
			unicode.Is(unicode.Katakana, r) ||
			unicode.Is(unicode.Hangul, r) {
			cjk++
		} else {
			ascii++
		}
	}
	n := ascii/4 + cjk*2/3
	if n == 0 {
		n = 1
	}
	return n
}

// Name 返回 tokenizer 标识
func (e *Estimator) Name() string { return "estimator" }
