// Package loader loads source documents (papers) from disk.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/BaSui01/paperqa/rag"
)

// DocumentLoader is the unified interface for loading documents from a source.
type DocumentLoader interface {
	// Load reads the source file and returns documents.
	Load(ctx context.Context, source string) ([]rag.Document, error)

	// SupportedTypes returns the file extensions this loader handles (e.g. ".txt", ".pdf").
	SupportedTypes() []string
}

// Registry routes Load calls to the appropriate DocumentLoader based on file extension.
type Registry struct {
	mu      sync.RWMutex
	loaders map[string]DocumentLoader // extension (lowercase, with dot) -> loader
}

// NewRegistry creates a registry pre-populated with the built-in loaders.
func NewRegistry() *Registry {
	r := &Registry{
		loaders: make(map[string]DocumentLoader),
	}

	builtins := []DocumentLoader{
		NewTextLoader(),
		NewPDFLoader(),
	}
	for _, l := range builtins {
		for _, ext := range l.SupportedTypes() {
			r.loaders[strings.ToLower(ext)] = l
		}
	}

	return r
}

// Register adds or replaces a loader for the given file extension.
// ext should include the leading dot (e.g. ".pdf").
func (r *Registry) Register(ext string, loader DocumentLoader) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[strings.ToLower(ext)] = loader
}

// Load determines the loader from the source's file extension and delegates to it.
func (r *Registry) Load(ctx context.Context, source string) ([]rag.Document, error) {
	ext := strings.ToLower(filepath.Ext(source))
	if ext == "" {
		return nil, fmt.Errorf("loader: cannot determine file type for %q (no extension)", source)
	}

	r.mu.RLock()
	l, ok := r.loaders[ext]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("loader: no loader registered for extension %q", ext)
	}

	return l.Load(ctx, source)
}

// LoadDir loads every supported file directly under dir, sorted by name.
// Unsupported extensions are skipped.
func (r *Registry) LoadDir(ctx context.Context, dir string) ([]rag.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loader: read dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var docs []rag.Document
	for _, name := range names {
		ext := strings.ToLower(filepath.Ext(name))
		r.mu.RLock()
		_, supported := r.loaders[ext]
		r.mu.RUnlock()
		if !supported {
			continue
		}
		loaded, err := r.Load(ctx, filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		docs = append(docs, loaded...)
	}
	return docs, nil
}

// SupportedTypes returns all registered extensions, sorted.
func (r *Registry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]string, 0, len(r.loaders))
	for ext := range r.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
