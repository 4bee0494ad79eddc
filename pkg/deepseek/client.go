// Package deepseek implements the hosted rewrite backend on DeepSeek's
// OpenAI-compatible chat completions API.
package deepseek

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/menta2k/doc-scanner/pkg/client"
)

const (
	// DefaultBaseURL is the DeepSeek API root
	DefaultBaseURL = "https://api.deepseek.com"

	// DefaultModel is the DeepSeek chat model
	DefaultModel = "deepseek-chat"
)

// ErrMissingAPIKey is returned when no API key is configured
var ErrMissingAPIKey = errors.New("DEEPSEEK_API_KEY not configured")

// Client rewrites OCR text with DeepSeek
type Client struct {
	api   *openai.Client
	model string
}

// NewClient creates a client. An empty baseURL selects the public endpoint.
func NewClient(apiKey, baseURL, model string) (*Client, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg.BaseURL = baseURL
	if model == "" {
		model = DefaultModel
	}
	return &Client{api: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Rewrite asks the model to clean up OCR text
func (c *Client) Rewrite(ctx context.Context, req client.RewriteRequest) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = c.model
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: client.RewritePrompt},
			{Role: openai.ChatMessageRoleUser, Content: client.UserMessage(req.Text)},
		},
		MaxTokens: req.MaxTokensOrDefault(),
		Stream:    false,
	})
	if err != nil {
		return "", fmt.Errorf("deepseek chat error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	text := client.CleanCompletion(resp.Choices[0].Message.Content)
	if text == "" {
		return "", client.ErrEmptyCompletion
	}
	return text, nil
}
