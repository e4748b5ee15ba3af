package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/document-classifier/internal/core/domain"
	"github.com/kirillkom/document-classifier/internal/core/ports"
)

func TestCompleterSendsSystemAndUserMessages(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float32 `json:"temperature"`
	}
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		authHeader = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  [\"invoice\",\"receipt\"]\n"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	completer := NewCompleter(Config{APIKey: "hf_test", BaseURL: server.URL, Model: "mistral", Timeout: time.Second})
	out, err := completer.Complete(context.Background(), ports.ChatRequest{
		System:      "sys",
		User:        "usr",
		MaxTokens:   128,
		Temperature: 0.3,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != `["invoice","receipt"]` {
		t.Fatalf("unexpected content %q", out)
	}
	if authHeader != "Bearer hf_test" {
		t.Fatalf("unexpected auth header %q", authHeader)
	}
	if captured.Model != "mistral" || captured.MaxTokens != 128 || captured.Temperature != 0.3 {
		t.Fatalf("unexpected request %+v", captured)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Role != "user" {
		t.Fatalf("unexpected messages %+v", captured.Messages)
	}
}

func TestCompleterMarksRateLimitTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit"}}`))
	}))
	defer server.Close()

	completer := NewCompleter(Config{APIKey: "hf_test", BaseURL: server.URL, Model: "mistral", Timeout: time.Second})
	_, err := completer.Complete(context.Background(), ports.ChatRequest{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestCompleterRejectsEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	completer := NewCompleter(Config{APIKey: "k", BaseURL: server.URL, Model: "m", Timeout: time.Second})
	if _, err := completer.Complete(context.Background(), ports.ChatRequest{}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}
