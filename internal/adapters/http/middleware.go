package httpadapter

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/document-classifier/internal/core/domain"
)

const requestIDHeader = "X-Request-Id"

type requestIDContextKey struct{}

type classificationTraceKey struct{}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}

// classificationTrace collects what the classify handlers learned about one
// request so the access log can report it. Handlers running outside the
// access log middleware get a throwaway trace.
type classificationTrace struct {
	mode      domain.ClassificationMode
	fileName  string
	format    domain.DocumentFormat
	label     string
	events    int
	lastStage domain.Stage
	failed    bool
}

func traceFromContext(ctx context.Context) *classificationTrace {
	if trace, ok := ctx.Value(classificationTraceKey{}).(*classificationTrace); ok {
		return trace
	}
	return &classificationTrace{}
}

func (t *classificationTrace) begin(mode domain.ClassificationMode, upload domain.Upload) {
	t.mode = mode
	t.fileName = upload.Filename
	t.format = upload.Format
}

func (t *classificationTrace) finish(result *domain.ClassificationResult) {
	if result != nil {
		t.label = result.Label
	}
}

func (t *classificationTrace) observe(event domain.StageEvent) {
	t.events++
	t.lastStage = event.Stage
	if event.Status == domain.StatusError {
		t.failed = true
	}
	if event.Stage == domain.StageComplete {
		t.label = event.Label
	}
}

func (t *classificationTrace) attrs() []any {
	if t.mode == "" {
		return nil
	}
	out := []any{
		"mode", string(t.mode),
		"file_name", t.fileName,
		"format", string(t.format),
	}
	if t.label != "" {
		out = append(out, "label", t.label)
	}
	if t.mode == domain.ModeStream {
		out = append(out, "stage_events", t.events, "last_stage", string(t.lastStage))
	}
	return out
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDContextKey{}, requestID)
		r = r.WithContext(ctx)
		w.Header().Set(requestIDHeader, requestID)

		next.ServeHTTP(w, r)
	})
}

// accessLogMiddleware logs one http_request record per request. Classification
// requests add the upload and outcome; a stream that ended on an error event
// is logged as a warning even though its status is 200.
func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		trace := &classificationTrace{}
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(recorder, r.WithContext(context.WithValue(r.Context(), classificationTraceKey{}, trace)))

		remoteAddr := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			remoteAddr = host
		}

		logAttrs := []any{
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.statusCode,
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"bytes", recorder.bytesWritten,
			"remote_addr", remoteAddr,
		}
		logAttrs = append(logAttrs, trace.attrs()...)
		if degraded := recorder.Header().Get(degradedHeader); degraded != "" {
			logAttrs = append(logAttrs, "degraded", degraded)
		}

		switch {
		case recorder.statusCode >= 500:
			slog.Error("http_request", logAttrs...)
		case recorder.statusCode >= 400, trace.failed:
			slog.Warn("http_request", logAttrs...)
		default:
			slog.Info("http_request", logAttrs...)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += n
	return n, err
}

// Flush keeps server-sent events flowing through the recorder.
func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
