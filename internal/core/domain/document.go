package domain

import (
	"path/filepath"
	"strings"
)

type DocumentFormat string

const (
	FormatPDF      DocumentFormat = "pdf"
	FormatDOCX     DocumentFormat = "docx"
	FormatText     DocumentFormat = "txt"
	FormatMarkdown DocumentFormat = "md"
	FormatXLSX     DocumentFormat = "xlsx"
)

var supportedFormats = map[DocumentFormat]struct{}{
	FormatPDF:      {},
	FormatDOCX:     {},
	FormatText:     {},
	FormatMarkdown: {},
	FormatXLSX:     {},
}

// FormatFromFilename derives the container format from a file extension.
// The second result is false for extensions outside the supported set.
func FormatFromFilename(filename string) (DocumentFormat, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	format := DocumentFormat(ext)
	_, ok := supportedFormats[format]
	return format, ok
}

func (f DocumentFormat) IsSupported() bool {
	_, ok := supportedFormats[f]
	return ok
}

func SupportedFormats() []DocumentFormat {
	return []DocumentFormat{FormatPDF, FormatDOCX, FormatText, FormatMarkdown, FormatXLSX}
}

// Document is a request-scoped payload. It is never persisted.
type Document struct {
	Filename string
	Format   DocumentFormat
	Payload  []byte
}

// Upload is the inbound representation of a document before it is staged.
type Upload struct {
	Filename string
	Format   DocumentFormat
	Size     int64
}
