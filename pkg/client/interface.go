package client

import (
	"context"
	"errors"
	"strings"
)

// DefaultMaxTokens caps the rewritten completion
const DefaultMaxTokens = 4000

// RewritePrompt is the system instruction given to every rewrite backend
const RewritePrompt = "You are a professional document editor. I will give you raw OCR text from a scanned document. Your job is to:\n" +
	"1. Fix common OCR typos (misspelled words, broken lines).\n" +
	"2. Format the text nicely (headers, bullet points, paragraphs).\n" +
	"3. Do NOT summarize or change the meaning. Keep all information.\n" +
	"4. Output ONLY the corrected text, no conversational filler.\n" +
	"5. Preserve the original language of the text."

// ErrEmptyCompletion is returned when a backend answers without any text
var ErrEmptyCompletion = errors.New("empty completion")

// RewriteRequest is one OCR clean-up request
type RewriteRequest struct {
	Model     string
	Text      string
	Language  string
	MaxTokens int
}

// TextClient rewrites raw OCR text through a language model
type TextClient interface {
	Rewrite(ctx context.Context, req RewriteRequest) (string, error)
}

// UserMessage wraps the raw text for the user turn of the conversation
func UserMessage(text string) string {
	return "Here is the raw text:\n\n" + text
}

// MaxTokensOrDefault returns the request limit or the default
func (r RewriteRequest) MaxTokensOrDefault() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return DefaultMaxTokens
}

// CleanCompletion strips code fences that some models wrap around plain text
func CleanCompletion(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		} else {
			raw = strings.TrimPrefix(raw, "```")
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	return strings.TrimSpace(raw)
}
