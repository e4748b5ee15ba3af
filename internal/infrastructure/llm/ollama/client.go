package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-classifier/internal/core/ports"
)

type Client struct {
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
}

func New(baseURL, model string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature float32 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatResponse struct {
	Message chatMessage `json:"message"`
}

// Completer adapts the Ollama chat endpoint to ports.ChatCompleter.
type Completer struct {
	client *Client
}

var _ ports.ChatCompleter = (*Completer)(nil)

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (c *Completer) Complete(ctx context.Context, req ports.ChatRequest) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.client.timeout)
	defer cancel()

	payload := chatRequest{
		Model: c.client.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Stream: false,
		Options: chatOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}

	var response chatResponse
	if err := c.client.postJSON(callCtx, "/api/chat", payload, &response, "chat"); err != nil {
		return "", wrapTemporaryIfNeeded("ollama chat", err)
	}
	content := strings.TrimSpace(response.Message.Content)
	if content == "" {
		return "", fmt.Errorf("ollama chat: empty response content")
	}
	return content, nil
}
