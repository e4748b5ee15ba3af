package httpadapter

import (
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/kirillkom/document-classifier/internal/core/domain"
)

const (
	degradedHeader       = "X-Classification-Degraded"
	defaultMaxUploadSize = 16 << 20
)

func (rt *Router) classifySync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	upload, file, err := rt.readUpload(w, r)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	defer file.Close()

	trace := traceFromContext(r.Context())
	trace.begin(domain.ModeSync, upload)
	result, err := rt.classifier.Classify(r.Context(), upload, file)
	if err != nil {
		logPipelineError(r, err)
		writeMappedError(w, err)
		return
	}

	trace.finish(result)
	if degraded := result.DegradedHeader(); degraded != "" {
		w.Header().Set(degradedHeader, degraded)
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) classifyStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	upload, file, err := rt.readUpload(w, r)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	defer file.Close()

	stream, err := newEventStream(w)
	if err != nil {
		writeMappedError(w, err)
		return
	}

	trace := traceFromContext(r.Context())
	trace.begin(domain.ModeStream, upload)
	send := func(event domain.StageEvent) error {
		trace.observe(event)
		return stream.Send(event)
	}
	if err := rt.classifier.ClassifyStream(r.Context(), upload, file, send); err != nil {
		logPipelineError(r, err)
		if !stream.Started() {
			writeMappedError(w, err)
		}
	}
}

// readUpload validates the multipart "file" field before any pipeline work starts.
func (rt *Router) readUpload(w http.ResponseWriter, r *http.Request) (domain.Upload, multipart.File, error) {
	maxBytes := rt.cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxUploadSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.Upload{}, nil, errUploadTooLarge
		}
		return domain.Upload{}, nil, domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("no file provided"))
	}

	filename := strings.TrimSpace(header.Filename)
	if filename == "" {
		file.Close()
		return domain.Upload{}, nil, domain.WrapError(domain.ErrInvalidInput, "read upload", errors.New("no file selected"))
	}
	format, ok := domain.FormatFromFilename(filename)
	if !ok {
		file.Close()
		return domain.Upload{}, nil, domain.WrapError(
			domain.ErrUnsupportedFormat,
			"read upload",
			fmt.Errorf("invalid file type %q", filename),
		)
	}

	return domain.Upload{Filename: filename, Format: format, Size: header.Size}, file, nil
}

func logPipelineError(r *http.Request, err error) {
	attrs := []any{
		"request_id", requestIDFromContext(r.Context()),
		"path", r.URL.Path,
		"error", err,
	}
	if mapErrorToHTTPStatus(err) >= http.StatusInternalServerError {
		slog.Error("classification_failed", attrs...)
		return
	}
	slog.Warn("classification_rejected", attrs...)
}
