// Package multiformat turns pdf, docx, xlsx and plain text payloads into bounded
// plain text.
package multiformat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/document-classifier/internal/core/domain"
)

const DefaultMaxChars = 30000

type formatExtractor func(payload []byte) (string, error)

type Extractor struct {
	maxChars   int
	extractors map[domain.DocumentFormat]formatExtractor
}

func NewExtractor(maxChars int) *Extractor {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Extractor{
		maxChars: maxChars,
		extractors: map[domain.DocumentFormat]formatExtractor{
			domain.FormatPDF:      extractPDF,
			domain.FormatDOCX:     extractDOCX,
			domain.FormatText:     extractPlainText,
			domain.FormatMarkdown: extractPlainText,
			domain.FormatXLSX:     extractXLSX,
		},
	}
}

// Extract never fails. A format-level error is logged and yields an empty string.
func (e *Extractor) Extract(_ context.Context, doc domain.Document) string {
	extract, ok := e.extractors[doc.Format]
	if !ok {
		slog.Warn("extract_unsupported_format", "format", string(doc.Format), "filename", doc.Filename)
		return ""
	}

	text, err := safeExtract(extract, doc.Payload)
	if err != nil {
		slog.Warn("extract_failed",
			"format", string(doc.Format),
			"filename", doc.Filename,
			"error", err,
		)
		return ""
	}

	text = domain.TruncateRunes(text, e.maxChars, domain.TruncationMarker)
	return strings.TrimSpace(text)
}

// safeExtract converts parser panics on malformed containers into errors.
func safeExtract(extract formatExtractor, payload []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()
	return extract(payload)
}
