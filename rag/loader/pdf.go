package loader

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/BaSui01/paperqa/rag"
)

// PDFLoader extracts plain text from PDF papers.
type PDFLoader struct{}

// NewPDFLoader creates a PDFLoader.
func NewPDFLoader() *PDFLoader {
	return &PDFLoader{}
}

var multiSpaceRe = regexp.MustCompile(`[ \t]+`)
var multiNewlineRe = regexp.MustCompile(`\n\s*\n+`)

// Load extracts text from a PDF file and returns it as a single Document.
func (l *PDFLoader) Load(ctx context.Context, source string) ([]rag.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, r, err := pdf.Open(source)
	if err != nil {
		return nil, fmt.Errorf("pdf loader: open %q: %w", source, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	b, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("pdf loader: extract text from %q: %w", source, err)
	}
	if _, err := buf.ReadFrom(b); err != nil {
		return nil, fmt.Errorf("pdf loader: read text: %w", err)
	}

	text := normalizeExtractedText(buf.String())
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("pdf loader: no extractable text in %q", source)
	}

	doc := rag.Document{
		ID:      source,
		Name:    filepath.Base(source),
		Content: text,
		Metadata: map[string]string{
			"source_path":  source,
			"content_type": "application/pdf",
			"loader":       "pdf",
		},
	}

	return []rag.Document{doc}, nil
}

// SupportedTypes returns the extensions handled by PDFLoader.
func (l *PDFLoader) SupportedTypes() []string {
	return []string{".pdf"}
}

// normalizeExtractedText collapses runs of spaces and keeps paragraph breaks
// as double newlines. PDF extraction tends to produce ragged whitespace.
func normalizeExtractedText(text string) string {
	text = strings.ReplaceAll(text, "\f", "\n\n")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
