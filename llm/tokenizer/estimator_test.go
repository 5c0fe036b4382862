package tokenizer

import "testing"

func TestEstimatorEmpty(t *testing.T) {
	e := NewEstimator()
	if got := e.CountTokens(""); got != 0 {
		t.Errorf("empty text must count 0, got %d", got)
	}
}

func TestEstimatorASCII(t *testing.T) {
	e := NewEstimator()
	// 40 个 ASCII 字符约 10 个 token
	text := "the quick brown fox jumps over the dog!"
	got := e.CountTokens(text)
	if got < 5 || got > 15 {
		t.Errorf("unreasonable estimate %d for %d chars", got, len(text))
	}
}

func TestEstimatorCJK(t *testing.T) {
	e := NewEstimator()
	ascii := e.CountTokens("hello world, this is a test sentence")
	cjk := e.CountTokens("注意力机制让模型按相关性加权输入")

	// CJK 文本的每字符 token 密度应明显高于 ASCII
	if cjk == 0 || ascii == 0 {
		t.Fatalf("estimates must be positive: ascii=%d cjk=%d", ascii, cjk)
	}
	if cjk < 8 {
		t.Errorf("expected CJK-heavy estimate, got %d", cjk)
	}
}

func TestEstimatorNeverZeroForNonEmpty(t *testing.T) {
	e := NewEstimator()
	if got := e.CountTokens("a"); got != 1 {
		t.Errorf("short text must count at least 1, got %d", got)
	}
}

func TestNewFallsBackToEstimator(t *testing.T) {
	tok := New("definitely-not-a-real-model")
	if tok == nil {
		t.Fatal("New must always return a tokenizer")
	}
	if tok.CountTokens("some text here") <= 0 {
		t.Error("expected positive count")
	}
}
