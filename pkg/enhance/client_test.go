package enhance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/menta2k/doc-scanner/pkg/types"
)

const sample = "Th1s is s0me OCR text from a scan"

func newTestClient(endpoint string, mutate ...func(*Config)) *Client {
	nop := zerolog.Nop()
	cfg := Config{Endpoint: endpoint, Enabled: true, Logger: &nop}
	for _, m := range mutate {
		m(&cfg)
	}
	return New(cfg)
}

func countingServer(t *testing.T, h http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestShortTextSkipsNetwork(t *testing.T) {
	srv, calls := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("network call for short text")
	})
	c := newTestClient(srv.URL)

	res := c.Enhance(context.Background(), "hello")
	if res.WasEnhanced || res.Text != "hello" || res.Status != types.StatusTooShort {
		t.Errorf("unexpected result %+v", res)
	}
	if atomic.LoadInt32(calls) != 0 {
		t.Errorf("expected no network calls, got %d", *calls)
	}

	// whitespace does not count towards the minimum
	if res := c.Enhance(context.Background(), "   abc    def    "); res.Status != types.StatusTooShort {
		t.Errorf("expected too short, got %s", res.Status)
	}
}

func TestSkipReasons(t *testing.T) {
	srv, calls := countingServer(t, func(w http.ResponseWriter, r *http.Request) {})

	tests := []struct {
		name   string
		client *Client
		status types.EnhancementStatus
		msg    string
	}{
		{"disabled", newTestClient(srv.URL, func(c *Config) { c.Enabled = false }), types.StatusDisabled, MessageDisabled},
		{"unconfigured", newTestClient(""), types.StatusUnconfigured, MessageUnconfigured},
		{"offline", newTestClient(srv.URL, func(c *Config) { c.Online = func() bool { return false } }), types.StatusOffline, MessageOffline},
	}

	for _, tt := range tests {
		res := tt.client.Enhance(context.Background(), sample)
		if res.WasEnhanced || res.Text != sample || res.Status != tt.status || res.StatusMessage != tt.msg {
			t.Errorf("%s: unexpected result %+v", tt.name, res)
		}
	}
	if atomic.LoadInt32(calls) != 0 {
		t.Errorf("expected no network calls, got %d", *calls)
	}
}

func TestEnhanceSuccess(t *testing.T) {
	var got request
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(response{Text: "This is some OCR text from a scan", Enhanced: true, Original: got.Text})
	})

	c := newTestClient(srv.URL, func(c *Config) { c.Language = "eng" })
	res := c.Enhance(context.Background(), sample)

	if !res.WasEnhanced || res.Status != types.StatusEnhanced {
		t.Fatalf("expected enhanced result, got %+v", res)
	}
	if res.Text != "This is some OCR text from a scan" || res.OriginalText != sample {
		t.Errorf("unexpected texts %+v", res)
	}
	if got.Text != sample || got.Language != "eng" {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestEnhanceRateLimited(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{"error": "Rate limit exceeded", "resetAfter": 42})
	})

	res := newTestClient(srv.URL).Enhance(context.Background(), sample)
	if res.Status != types.StatusRateLimited || res.WasEnhanced {
		t.Fatalf("expected rate limited, got %+v", res)
	}
	if res.RetryAfter != 42*time.Second {
		t.Errorf("expected 42s retry, got %s", res.RetryAfter)
	}
	if res.Text != sample {
		t.Error("original text lost on rate limit")
	}
}

func TestEnhanceRateLimitedHeaderOnly(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	res := newTestClient(srv.URL).Enhance(context.Background(), sample)
	if res.Status != types.StatusRateLimited || res.RetryAfter != 7*time.Second {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestEnhanceFailuresKeepText(t *testing.T) {
	handlers := map[string]http.HandlerFunc{
		"500": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
		"invalid json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>oops</html>"))
		},
	}

	for name, h := range handlers {
		srv, _ := countingServer(t, h)
		res := newTestClient(srv.URL).Enhance(context.Background(), sample)
		if res.WasEnhanced || res.Text != sample || res.Status != types.StatusUnavailable || res.StatusMessage != MessageUnavailable {
			t.Errorf("%s: unexpected result %+v", name, res)
		}
	}
}

func TestEnhanceServiceNotConfigured(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"AI enhancement not configured. Please set DEEPSEEK_API_KEY."}`))
	})

	res := newTestClient(srv.URL).Enhance(context.Background(), sample)
	if res.Status != types.StatusUnconfigured || res.Text != sample {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestEnhanceDeclined(t *testing.T) {
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(response{Text: sample, Enhanced: false, Error: "AI enhancement failed. Using original OCR text."})
	})

	res := newTestClient(srv.URL).Enhance(context.Background(), sample)
	if res.Status != types.StatusDeclined || res.WasEnhanced {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.StatusMessage != "AI enhancement failed. Using original OCR text." {
		t.Errorf("unexpected message %q", res.StatusMessage)
	}
}

func TestEnhanceTimeout(t *testing.T) {
	release := make(chan struct{})
	srv, _ := countingServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	c := newTestClient(srv.URL, func(c *Config) { c.Timeout = 50 * time.Millisecond })
	start := time.Now()
	res := c.Enhance(context.Background(), sample)

	if res.Status != types.StatusUnavailable || res.Text != sample {
		t.Errorf("unexpected result %+v", res)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout not enforced")
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	if got := RetryAfterSeconds(1500 * time.Millisecond); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
}
