package rag

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// indexDump 索引持久化格式。嵌入向量最贵，落盘后重启可热启动；
// BM25 统计从块文本重算，不落盘。
type indexDump struct {
	Version    int         `json:"version"`
	DocCount   int         `json:"doc_count"`
	Chunks     []Chunk     `json:"chunks"`
	Embeddings [][]float64 `json:"embeddings"`
}

const dumpVersion = 1

// SaveTo 把当前快照写入目录下的 index.json。
// 索引为空时删除既有文件，避免重启后热加载到过期语料。
func (h *HybridIndex) SaveTo(dir string) error {
	h.mu.RLock()
	snap := h.snap
	h.mu.RUnlock()

	if snap == nil || len(snap.chunks) == 0 {
		path := filepath.Join(dir, "index.json")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale index dump: %w", err)
		}
		return nil
	}

	dump := indexDump{
		Version:    dumpVersion,
		DocCount:   snap.docCount,
		Chunks:     snap.chunks,
		Embeddings: snap.embeddings,
	}
	data, err := json.Marshal(dump)
	if err != nil {
		return fmt.Errorf("marshal index dump: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	// 先写临时文件再改名，避免半截文件
	path := filepath.Join(dir, "index.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index dump: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize index dump: %w", err)
	}

	h.logger.Info("index snapshot saved",
		zap.String("path", path),
		zap.Int("chunks", len(snap.chunks)))
	return nil
}

// LoadFrom 从目录热启动索引。文件缺失、损坏或版本不符时
// 返回错误，调用方记一条 warn 后冷启动即可。
func (h *HybridIndex) LoadFrom(dir string) error {
	path := filepath.Join(dir, "index.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read index dump: %w", err)
	}

	var dump indexDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return fmt.Errorf("parse index dump: %w", err)
	}
	if dump.Version != dumpVersion {
		return fmt.Errorf("unsupported index dump version %d", dump.Version)
	}
	if len(dump.Chunks) != len(dump.Embeddings) {
		return fmt.Errorf("index dump corrupt: %d chunks, %d embeddings",
			len(dump.Chunks), len(dump.Embeddings))
	}
	if len(dump.Chunks) == 0 {
		return fmt.Errorf("index dump is empty")
	}

	snap := &snapshot{
		chunks:     dump.Chunks,
		embeddings: dump.Embeddings,
		docFreq:    make(map[string]int),
		docCount:   dump.DocCount,
	}

	// BM25 统计从块文本重建
	snap.termFreqs = make([]map[string]int, len(snap.chunks))
	snap.docLens = make([]int, len(snap.chunks))
	totalLen := 0
	for i, c := range snap.chunks {
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
	snap.avgDocLen = float64(totalLen) / float64(len(snap.chunks))

	h.mu.Lock()
	h.snap = snap
	h.mu.Unlock()

	h.logger.Info("index snapshot loaded",
		zap.String("path", path),
		zap.Int("chunks", len(snap.chunks)))
	return nil
}
