package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/doc-scanner/pkg/client"
)

// DefaultModel is used when a request names no model
const DefaultModel = "llama3.1"

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
	model  string
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL, model string) (*Client, error) {
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %s", ollamaURL)
	}

	// Drop any path such as /api/chat, the SDK adds its own
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}
	if model == "" {
		model = DefaultModel
	}

	return &Client{client: api.NewClient(baseURL, http.DefaultClient), model: model}, nil
}

// Rewrite asks the model to clean up OCR text
func (c *Client) Rewrite(ctx context.Context, req client.RewriteRequest) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 60*time.Second)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	streamFalse := false
	chatReq := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{Role: "system", Content: client.RewritePrompt},
			{Role: "user", Content: client.UserMessage(req.Text)},
		},
		Stream: &streamFalse,
		Options: map[string]any{
			"num_predict": req.MaxTokensOrDefault(),
			"temperature": 0.2,
		},
	}

	var responseContent string
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}

	text := client.CleanCompletion(responseContent)
	if text == "" {
		return "", client.ErrEmptyCompletion
	}
	return text, nil
}
