package rag

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/BaSui01/paperqa/types"
)

// stubEmbedder 按预置映射返回向量，未命中时返回默认向量
type stubEmbedder struct {
	vectors     map[string][]float64
	fallbackVec []float64
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{
		vectors:     make(map[string][]float64),
		fallbackVec: []float64{0.1, 0.1, 0.1},
	}
}

func (s *stubEmbedder) vector(text string) []float64 {
	if v, ok := s.vectors[text]; ok {
		return v
	}
	return s.fallbackVec
}

func (s *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float64, error) {
	return s.vector(text), nil
}

func (s *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = s.vector(t)
	}
	return out, nil
}

func (s *stubEmbedder) Name() string    { return "stub" }
func (s *stubEmbedder) Dimensions() int { return 3 }

func newTestIndex(embedder *stubEmbedder) *HybridIndex {
	chunker := newTestChunker(1000, 0)
	return NewHybridIndex(DefaultHybridIndexConfig(), chunker, embedder, zap.NewNop())
}

func TestQueryBeforeRebuildReturnsNotReady(t *testing.T) {
	index := newTestIndex(newStubEmbedder())

	_, err := index.Query(context.Background(), "anything", 3)
	if !types.IsNotReady(err) {
		t.Fatalf("expected INDEX_NOT_READY, got %v", err)
	}
	if index.HasDocuments() {
		t.Error("expected HasDocuments to be false before rebuild")
	}
}

func TestRebuildAndQuery(t *testing.T) {
	embedder := newStubEmbedder()
	index := newTestIndex(embedder)

	docs := []Document{
		{ID: "a", Name: "attention.txt", Content: "attention is all you need for translation"},
		{ID: "b", Name: "resnet.txt", Content: "deep residual networks enable image recognition"},
	}
	if err := index.Rebuild(context.Background(), docs); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if !index.HasDocuments() {
		t.Fatal("expected HasDocuments after rebuild")
	}

	d, c := index.Stats()
	if d != 2 || c != 2 {
		t.Errorf("expected 2 docs and 2 chunks, got %d/%d", d, c)
	}

	results, err := index.Query(context.Background(), "attention translation", 2)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// 词法匹配应把 attention 文档排到前面
	if results[0].Chunk.SourceName != "attention.txt" {
		t.Errorf("expected attention.txt first, got %s", results[0].Chunk.SourceName)
	}
}

func TestRebuildEmptyThenHasDocumentsFalse(t *testing.T) {
	index := newTestIndex(newStubEmbedder())

	if err := index.Rebuild(context.Background(), nil); err != nil {
		t.Fatalf("empty rebuild failed: %v", err)
	}
	if index.HasDocuments() {
		t.Error("expected HasDocuments false after empty rebuild")
	}
	// 空快照下查询仍是 NotReady
	_, err := index.Query(context.Background(), "anything", 1)
	if !types.IsNotReady(err) {
		t.Fatalf("expected INDEX_NOT_READY on empty snapshot, got %v", err)
	}
}

func TestResetClearsIndex(t *testing.T) {
	index := newTestIndex(newStubEmbedder())

	docs := []Document{{ID: "a", Name: "a.txt", Content: "some research content"}}
	if err := index.Rebuild(context.Background(), docs); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}

	index.Reset()
	if index.HasDocuments() {
		t.Error("expected HasDocuments false after reset")
	}
	_, err := index.Query(context.Background(), "anything", 1)
	if !types.IsNotReady(err) {
		t.Fatalf("expected INDEX_NOT_READY after reset, got %v", err)
	}
}

func TestQueryFusionPrefersDense(t *testing.T) {
	embedder := newStubEmbedder()
	// 两个块词法得分相同（都不含查询词），稠密得分应决定排序
	embedder.vectors["first candidate passage"] = []float64{1, 0, 0}
	embedder.vectors["second candidate passage"] = []float64{0, 1, 0}
	embedder.vectors["target query"] = []float64{0, 1, 0}

	index := newTestIndex(embedder)
	docs := []Document{
		{ID: "a", Name: "a.txt", Content: "first candidate passage"},
		{ID: "b", Name: "b.txt", Content: "second candidate passage"},
	}
	if err := index.Rebuild(context.Background(), docs); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}

	results, err := index.Query(context.Background(), "target query", 2)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if results[0].Chunk.SourceName != "b.txt" {
		t.Errorf("expected dense match first, got %s", results[0].Chunk.SourceName)
	}
	if results[0].FusedScore < results[1].FusedScore {
		t.Error("results not sorted by fused score")
	}
}

func TestQueryDeterministicOrder(t *testing.T) {
	embedder := newStubEmbedder()
	index := newTestIndex(embedder)

	docs := []Document{
		{ID: "a", Name: "a.txt", Content: "neural networks"},
		{ID: "b", Name: "b.txt", Content: "neural networks"},
		{ID: "c", Name: "c.txt", Content: "neural networks"},
	}
	if err := index.Rebuild(context.Background(), docs); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}

	first, err := index.Query(context.Background(), "neural", 3)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := index.Query(context.Background(), "neural", 3)
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
		for j := range first {
			if again[j].Chunk.SourceID != first[j].Chunk.SourceID {
				t.Fatalf("run %d: order differs at position %d", i, j)
			}
		}
	}
}

func TestQueryInvalidK(t *testing.T) {
	index := newTestIndex(newStubEmbedder())
	docs := []Document{{ID: "a", Name: "a.txt", Content: "content"}}
	if err := index.Rebuild(context.Background(), docs); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}

	_, err := index.Query(context.Background(), "q", 0)
	if !types.IsCode(err, types.ErrInvalidRequest) {
		t.Fatalf("expected INVALID_REQUEST for k=0, got %v", err)
	}
}

func TestConcurrentQueryDuringRebuild(t *testing.T) {
	embedder := newStubEmbedder()
	index := newTestIndex(embedder)

	docs := []Document{
		{ID: "a", Name: "a.txt", Content: "concurrent retrieval testing"},
	}
	if err := index.Rebuild(context.Background(), docs); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := index.Query(context.Background(), "retrieval", 1)
				if err != nil && !types.IsNotReady(err) {
					t.Errorf("unexpected query error: %v", err)
					return
				}
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := index.Rebuild(context.Background(), docs); err != nil {
					t.Errorf("rebuild failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
