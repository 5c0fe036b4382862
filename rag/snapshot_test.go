package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoadSnapshot(t *testing.T) {
	dir := t.TempDir()
	embedder := newStubEmbedder()

	index := newTestIndex(embedder)
	docs := []Document{
		{ID: "a", Name: "a.txt", Content: "hybrid retrieval with lexical and dense scoring"},
	}
	if err := index.Rebuild(context.Background(), docs); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if err := index.SaveTo(dir); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	restored := newTestIndex(embedder)
	if err := restored.LoadFrom(dir); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !restored.HasDocuments() {
		t.Fatal("expected restored index to have documents")
	}

	results, err := restored.Query(context.Background(), "lexical scoring", 1)
	if err != nil {
		t.Fatalf("query on restored index failed: %v", err)
	}
	if results[0].Chunk.SourceName != "a.txt" {
		t.Errorf("unexpected result: %+v", results[0].Chunk)
	}
	// BM25 统计要从落盘的块文本重建出来
	if results[0].LexicalScore <= 0 {
		t.Errorf("expected positive lexical score, got %f", results[0].LexicalScore)
	}
}

func TestLoadFromMissingDir(t *testing.T) {
	index := newTestIndex(newStubEmbedder())
	if err := index.LoadFrom(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing snapshot")
	}
	if index.HasDocuments() {
		t.Error("failed load must leave the index empty")
	}
}

func TestLoadFromCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	index := newTestIndex(newStubEmbedder())
	if err := index.LoadFrom(dir); err == nil {
		t.Fatal("expected error for corrupt snapshot")
	}
}

func TestSaveEmptyIndexIsNoop(t *testing.T) {
	dir := t.TempDir()
	index := newTestIndex(newStubEmbedder())

	if err := index.SaveTo(dir); err != nil {
		t.Fatalf("save on empty index should be a no-op, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "index.json")); !os.IsNotExist(err) {
		t.Error("empty index must not write a snapshot file")
	}
}

func TestSaveAfterResetRemovesDump(t *testing.T) {
	dir := t.TempDir()
	index := newTestIndex(newStubEmbedder())
	docs := []Document{
		{ID: "a", Name: "a.txt", Content: "hybrid retrieval with lexical and dense scoring"},
	}
	if err := index.Rebuild(context.Background(), docs); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}
	if err := index.SaveTo(dir); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "index.json")); err != nil {
		t.Fatalf("expected snapshot file: %v", err)
	}

	// 清空后再落盘要删掉旧快照，否则重启会热加载过期语料
	index.Reset()
	if err := index.SaveTo(dir); err != nil {
		t.Fatalf("save after reset failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "index.json")); !os.IsNotExist(err) {
		t.Error("stale snapshot must be removed after reset")
	}

	restored := newTestIndex(newStubEmbedder())
	if err := restored.LoadFrom(dir); err == nil {
		t.Fatal("expected load to fail after snapshot removal")
	}
}
