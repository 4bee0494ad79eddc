package enhance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/menta2k/doc-scanner/internal/logger"
	"github.com/menta2k/doc-scanner/pkg/types"
)

const (
	// DefaultTimeout bounds one enhancement call
	DefaultTimeout = 10 * time.Second

	// DefaultMinLength is the shortest text worth sending
	DefaultMinLength = 10
)

// Status messages returned with EnhancementResult
const (
	MessageTooShort     = "Text too short for enhancement"
	MessageOffline      = "Offline mode - AI enhancement unavailable"
	MessageDisabled     = "AI enhancement disabled"
	MessageUnconfigured = "AI enhancement not configured"
	MessageUnavailable  = "AI enhancement unavailable"
	MessageEnhanced     = "Text enhanced"
)

var errUnconfigured = errors.New("enhancement service not configured")

// RateLimitError is returned by the endpoint when the client is over its quota
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// Config holds configuration for the enhancement client
type Config struct {
	Endpoint   string
	Enabled    bool
	Timeout    time.Duration
	MinLength  int
	Language   string
	HTTPClient *http.Client
	// Online reports connectivity; nil means always online
	Online func() bool
	Logger *zerolog.Logger
}

// Client calls the remote rewriting endpoint. Enhance never fails: every
// problem degrades to the original text with a status explaining why.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

// New creates a client
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	c := &Client{cfg: cfg, http: cfg.HTTPClient, logger: logger.WithComponent("enhance")}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if cfg.Logger != nil {
		c.logger = *cfg.Logger
	}
	return c
}

// Online reports whether the client believes it can reach the network
func (c *Client) Online() bool {
	return c.cfg.Online == nil || c.cfg.Online()
}

// Enabled reports whether enhancement is switched on and configured
func (c *Client) Enabled() bool {
	return c.cfg.Enabled && c.cfg.Endpoint != ""
}

type request struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

type response struct {
	Text       string `json:"text"`
	Enhanced   bool   `json:"enhanced"`
	Original   string `json:"original,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	ResetAfter int    `json:"resetAfter,omitempty"`
}

// Enhance sends text for rewriting. Short text, offline mode and a disabled or
// unconfigured client return immediately without a network call.
func (c *Client) Enhance(ctx context.Context, text string) types.EnhancementResult {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < c.cfg.MinLength {
		return fallback(text, types.StatusTooShort, MessageTooShort)
	}
	if !c.cfg.Enabled {
		return fallback(text, types.StatusDisabled, MessageDisabled)
	}
	if c.cfg.Endpoint == "" {
		return fallback(text, types.StatusUnconfigured, MessageUnconfigured)
	}
	if !c.Online() {
		return fallback(text, types.StatusOffline, MessageOffline)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.post(ctx, text)
	if err != nil {
		var rl *RateLimitError
		switch {
		case errors.As(err, &rl):
			c.logger.Warn().Dur("retry_after", rl.RetryAfter).Msg("Enhancement rate limited")
			r := fallback(text, types.StatusRateLimited, rl.Message)
			r.RetryAfter = rl.RetryAfter
			return r
		case errors.Is(err, errUnconfigured):
			c.logger.Info().Msg("Enhancement service not configured")
			return fallback(text, types.StatusUnconfigured, MessageUnconfigured)
		default:
			c.logger.Warn().Err(err).Msg("Enhancement failed, using original text")
			return fallback(text, types.StatusUnavailable, MessageUnavailable)
		}
	}

	if !resp.Enhanced || strings.TrimSpace(resp.Text) == "" {
		msg := resp.Message
		if msg == "" {
			msg = resp.Error
		}
		if msg == "" {
			msg = MessageUnavailable
		}
		c.logger.Info().Str("reason", msg).Msg("Enhancement declined by server")
		return fallback(text, types.StatusDeclined, msg)
	}

	return types.EnhancementResult{
		Text:          resp.Text,
		WasEnhanced:   true,
		OriginalText:  text,
		StatusMessage: MessageEnhanced,
		Status:        types.StatusEnhanced,
	}
}

func (c *Client) post(ctx context.Context, text string) (*response, error) {
	body, err := json.Marshal(request{Text: text, Language: c.cfg.Language})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp response
	decodeErr := json.Unmarshal(data, &resp)

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		return nil, rateLimitFrom(httpResp.Header.Get("Retry-After"), resp)
	case httpResp.StatusCode == http.StatusServiceUnavailable:
		return nil, errUnconfigured
	case httpResp.StatusCode < 200 || httpResp.StatusCode > 299:
		return nil, fmt.Errorf("server returned status %d", httpResp.StatusCode)
	case decodeErr != nil:
		return nil, fmt.Errorf("invalid response: %w", decodeErr)
	}
	return &resp, nil
}

func rateLimitFrom(header string, resp response) *RateLimitError {
	secs := resp.ResetAfter
	if secs <= 0 {
		if v, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
			secs = v
		}
	}
	if secs <= 0 {
		secs = 60
	}
	msg := resp.Message
	if msg == "" {
		msg = fmt.Sprintf("Please try again in %d seconds", secs)
	}
	return &RateLimitError{RetryAfter: time.Duration(secs) * time.Second, Message: msg}
}

func fallback(text string, status types.EnhancementStatus, msg string) types.EnhancementResult {
	return types.EnhancementResult{
		Text:          text,
		WasEnhanced:   false,
		OriginalText:  text,
		StatusMessage: msg,
		Status:        status,
	}
}

// RetryAfterSeconds rounds a retry duration up to whole seconds
func RetryAfterSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
