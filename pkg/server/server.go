// Package server exposes the text enhancement endpoint consumed by
// enhance.Client, plus the one-shot OCR upload endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/menta2k/doc-scanner/internal/logger"
	"github.com/menta2k/doc-scanner/pkg/client"
	"github.com/menta2k/doc-scanner/pkg/ocr"
	"github.com/menta2k/doc-scanner/pkg/processing"
	"github.com/menta2k/doc-scanner/pkg/ratelimit"
)

const (
	// DefaultAddr is the listen address used when none is configured
	DefaultAddr = ":5000"

	// DefaultMinLength is the shortest trimmed text the endpoint rewrites
	DefaultMinLength = 10

	// DefaultRewriteTimeout bounds one backend call
	DefaultRewriteTimeout = 30 * time.Second

	maxJSONBody   = 1 << 20
	maxUploadBody = 32 << 20
)

// Response messages
const (
	MsgMethodNotAllowed = "Method not allowed"
	MsgNotConfigured    = "AI enhancement not configured. Please set DEEPSEEK_API_KEY."
	MsgRateLimited      = "Rate limit exceeded"
	MsgInvalidInput     = "Invalid input: text is required"
	MsgTooShort         = "Text too short for enhancement"
	MsgRewriteFailed    = "AI enhancement failed. Using original OCR text."
	MsgNoImage          = "No image file provided"
	MsgOCRFailed        = "Failed to process image"
)

// Config holds configuration for the server
type Config struct {
	Addr           string
	Rewriter       client.TextClient
	Model          string
	Limiter        ratelimit.Limiter
	MinLength      int
	RewriteTimeout time.Duration

	// OCR and Processor serve /api/ocr; without them the route answers 503
	OCR       *ocr.Engine
	Processor *processing.Processor
	Language  string

	Logger *zerolog.Logger
}

// Server is the HTTP front of the rewriting backends
type Server struct {
	cfg    Config
	logger zerolog.Logger
	mux    *http.ServeMux
}

// New creates a server. A nil Limiter gets the in-memory default.
func New(cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.RewriteTimeout <= 0 {
		cfg.RewriteTimeout = DefaultRewriteTimeout
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NewMemory(ratelimit.DefaultLimit, ratelimit.DefaultWindow)
	}
	if cfg.Processor == nil {
		cfg.Processor = processing.NewProcessor()
	}

	s := &Server{cfg: cfg, logger: logger.WithComponent("server"), mux: http.NewServeMux()}
	if cfg.Logger != nil {
		s.logger = *cfg.Logger
	}

	s.mux.HandleFunc("/enhance", s.handleEnhance)
	s.mux.HandleFunc("/api/enhance-text", s.handleEnhance)
	s.mux.HandleFunc("/api/ocr", s.handleOCR)
	s.mux.HandleFunc("/health", s.handleHealth)
	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		l := s.logger.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(l.WithContext(r.Context())))
	})
}

func setCORS(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error      string `json:"error"`
	ResetAfter int    `json:"resetAfter,omitempty"`
	Message    string `json:"message,omitempty"`
}

type enhanceRequest struct {
	Text     *string `json:"text"`
	Language string  `json:"language,omitempty"`
}

// EnhanceResponse is the body of a 200 answer from the enhancement endpoint
type EnhanceResponse struct {
	Text     string `json:"text"`
	Enhanced bool   `json:"enhanced"`
	Original string `json:"original,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	log := zerolog.Ctx(r.Context())

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: MsgMethodNotAllowed})
		return
	}
	if s.cfg.Rewriter == nil {
		log.Error().Msg("No rewrite backend configured")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: MsgNotConfigured})
		return
	}

	clientID := ClientID(r)
	limit, err := s.cfg.Limiter.Allow(r.Context(), clientID)
	if err != nil {
		// fail open
		log.Warn().Err(err).Msg("Rate limiter unavailable, allowing request")
		limit = ratelimit.Result{Allowed: true}
	}
	if !limit.Allowed {
		secs := int((limit.ResetAfter + time.Second - 1) / time.Second)
		log.Warn().Str("client", clientID).Int("reset_after", secs).Msg("Rate limit exceeded")
		w.Header().Set("Retry-After", fmt.Sprint(secs))
		writeJSON(w, http.StatusTooManyRequests, errorBody{
			Error:      MsgRateLimited,
			ResetAfter: secs,
			Message:    fmt.Sprintf("Please try again in %d seconds", secs),
		})
		return
	}

	var req enhanceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil || req.Text == nil || *req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: MsgInvalidInput})
		return
	}
	text := *req.Text

	if utf8.RuneCountInString(strings.TrimSpace(text)) < s.cfg.MinLength {
		writeJSON(w, http.StatusOK, EnhanceResponse{Text: text, Message: MsgTooShort})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RewriteTimeout)
	defer cancel()

	start := time.Now()
	out, err := s.cfg.Rewriter.Rewrite(ctx, client.RewriteRequest{Model: s.cfg.Model, Text: text, Language: req.Language})
	if err == nil && strings.TrimSpace(out) == "" {
		err = client.ErrEmptyCompletion
	}
	if err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Rewrite failed, returning original text")
		writeJSON(w, http.StatusOK, EnhanceResponse{Text: text, Error: MsgRewriteFailed})
		return
	}

	log.Info().Int("chars_in", len(text)).Int("chars_out", len(out)).Dur("elapsed", time.Since(start)).Msg("Text enhanced")
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprint(limit.Remaining))
	writeJSON(w, http.StatusOK, EnhanceResponse{Text: out, Enhanced: true, Original: text})
}

func (s *Server) handleOCR(w http.ResponseWriter, r *http.Request) {
	setCORS(w)
	log := zerolog.Ctx(r.Context())

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: MsgMethodNotAllowed})
		return
	}
	if !s.cfg.OCR.Available() {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: ocr.ErrUnavailable.Error()})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	file, _, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: MsgNoImage})
		return
	}
	defer file.Close()

	img, err := s.cfg.Processor.LoadImageFromReader(file)
	if err != nil {
		log.Error().Err(err).Msg("Failed to decode upload")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: MsgOCRFailed})
		return
	}

	res, err := s.cfg.OCR.Recognize(r.Context(), img, ocr.Options{Language: s.cfg.Language})
	if err == nil && res.Empty() {
		err = errors.New("no text detected in image")
	}
	if err != nil {
		log.Error().Err(err).Msg("OCR failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: MsgOCRFailed})
		return
	}

	text := res.Text
	if s.cfg.Rewriter != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RewriteTimeout)
		out, err := s.cfg.Rewriter.Rewrite(ctx, client.RewriteRequest{Model: s.cfg.Model, Text: text, Language: s.cfg.Language})
		cancel()
		if err != nil || strings.TrimSpace(out) == "" {
			log.Warn().Err(err).Msg("Rewrite failed, falling back to raw OCR text")
		} else {
			text = out
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok", "rewrite": s.cfg.Rewriter != nil}
	if s.cfg.OCR != nil {
		body["ocr"] = s.cfg.OCR.Status()
	}
	writeJSON(w, http.StatusOK, body)
}

// ClientID identifies the caller for rate limiting: the client-ip header,
// then the first X-Forwarded-For entry, then the remote host.
func ClientID(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("client-ip")); v != "" {
		return v
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		if first := strings.TrimSpace(strings.Split(v, ",")[0]); first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "anonymous"
}
