package httpadapter

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/document-classifier/internal/config"
	"github.com/kirillkom/document-classifier/internal/core/domain"
)

func captureAccessLog(t *testing.T, handler http.Handler, req *http.Request) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	handler.ServeHTTP(httptest.NewRecorder(), req)

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if entry["msg"] == "http_request" {
			return entry
		}
	}
	t.Fatalf("no http_request record in %s", buf.String())
	return nil
}

func TestAccessLogReportsSyncClassification(t *testing.T) {
	handler := NewRouter(config.Config{}, &classifierFake{result: earningsResult()}, nil).Handler()

	entry := captureAccessLog(t, handler, multipartRequest(t, "/api/classify", "q3 report.pdf", "%PDF"))
	if entry["level"] != "INFO" || entry["status"] != float64(http.StatusOK) {
		t.Fatalf("unexpected level/status: %v", entry)
	}
	if entry["mode"] != "sync" || entry["format"] != "pdf" || entry["file_name"] != "q3 report.pdf" {
		t.Fatalf("expected upload attributes, got %v", entry)
	}
	if entry["label"] != "financial report" {
		t.Fatalf("expected chosen label, got %v", entry["label"])
	}
	if _, ok := entry["stage_events"]; ok {
		t.Fatalf("sync request must not report stage events: %v", entry)
	}
}

func TestAccessLogWarnsOnStreamEndingInError(t *testing.T) {
	fake := &classifierFake{events: []domain.StageEvent{
		{Stage: domain.StageExtract, Status: domain.StatusRunning},
		{Stage: domain.StageExtract, Status: domain.StatusError, Error: "no text extracted"},
	}}
	handler := NewRouter(config.Config{}, fake, nil).Handler()

	entry := captureAccessLog(t, handler, multipartRequest(t, "/api/classify/stream", "blank.docx", "x"))
	if entry["status"] != float64(http.StatusOK) || entry["level"] != "WARN" {
		t.Fatalf("expected warn-level 200 for failed stream, got %v", entry)
	}
	if entry["mode"] != "stream" || entry["format"] != "docx" {
		t.Fatalf("expected stream upload attributes, got %v", entry)
	}
	if entry["stage_events"] != float64(2) || entry["last_stage"] != "extract" {
		t.Fatalf("unexpected stream progress attributes: %v", entry)
	}
}

func TestAccessLogOmitsClassificationForHealth(t *testing.T) {
	handler := NewRouter(config.Config{}, &classifierFake{}, nil).Handler()

	entry := captureAccessLog(t, handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if _, ok := entry["mode"]; ok {
		t.Fatalf("health check must not carry classification attributes: %v", entry)
	}
}
