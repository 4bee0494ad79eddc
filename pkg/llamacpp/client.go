package llamacpp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/menta2k/doc-scanner/pkg/client"
)

// Client talks to a llama.cpp server through its OpenAI-compatible API
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// Message is an OpenAI-compatible chat message
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string, or an array of text parts in responses
}

// ChatCompletionRequest is an OpenAI-compatible chat completion request
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// ChatCompletionResponse is an OpenAI-compatible chat completion response
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// NewClient creates a client for the server at serverURL
func NewClient(serverURL, model string) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}

	return &Client{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}, nil
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

	payload := ChatCompletionRequest{
		Model: model,
		Messages: []Message{
			{Role: "system", Content: client.RewritePrompt},
			{Role: "user", Content: client.UserMessage(req.Text)},
		},
		Temperature: 0.2,
		MaxTokens:   req.MaxTokensOrDefault(),
		Stream:      false,
	}

	respBody, err := c.sendRequest(ctx, "/v1/chat/completions", payload)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	text := client.CleanCompletion(messageText(resp.Choices[0].Message))
	if text == "" {
		return "", client.ErrEmptyCompletion
	}
	return text, nil
}

// messageText handles both string and array content formats
func messageText(m Message) string {
	switch content := m.Content.(type) {
	case string:
		return content
	case []interface{}:
		var sb strings.Builder
		for _, item := range content {
			if part, ok := item.(map[string]interface{}); ok {
				if text, ok := part["text"].(string); ok {
					sb.WriteString(text)
				}
			}
		}
		return sb.String()
	}
	return ""
}

func (c *Client) sendRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	return body, nil
}
