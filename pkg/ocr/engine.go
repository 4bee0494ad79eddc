package ocr

import (
	"context"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/menta2k/doc-scanner/internal/logger"
	"github.com/menta2k/doc-scanner/pkg/types"
)

// DefaultLanguage is used when a call does not name one
const DefaultLanguage = "eng"

// ProgressFunc receives recognition progress in [0,1]
type ProgressFunc func(p float64)

// Backend is an initialized recognition worker bound to one language
type Backend interface {
	Recognize(ctx context.Context, img image.Image, progress ProgressFunc) (types.OCRResult, error)
	Close() error
}

// Factory creates a worker for a language. It is called lazily on the first
// recognition and again after Shutdown or a language change.
type Factory func(ctx context.Context, language string) (Backend, error)

// Options for a single recognition
type Options struct {
	Language string
	// Progress receives phase "ocr" events with non-decreasing values.
	// Sends block until received or ctx is done, so the channel should be
	// buffered or drained concurrently. The engine never closes it.
	Progress chan<- types.Progress
}

// Status describes the engine without initializing it
type Status struct {
	Available         bool   `json:"available"`
	WorkerInitialized bool   `json:"worker_initialized"`
	Language          string `json:"language,omitempty"`
	Busy              bool   `json:"busy"`
	References        int    `json:"references"`
}

// Engine owns a single lazily created recognition worker. At most one
// recognition runs at a time; concurrent callers get ErrEngineBusy.
type Engine struct {
	factory   Factory
	available bool
	logger    zerolog.Logger

	mu       sync.Mutex
	backend  Backend
	language string
	busy     bool
	closing  bool
	refs     int
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithLogger sets the engine logger
func WithLogger(l zerolog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithAvailability overrides whether the engine reports itself available
func WithAvailability(available bool) EngineOption {
	return func(e *Engine) {
		e.available = available
	}
}

// NewEngine creates an engine. No worker is started until the first recognition.
func NewEngine(factory Factory, opts ...EngineOption) *Engine {
	e := &Engine{
		factory:   factory,
		available: factory != nil,
		logger:    logger.WithComponent("ocr"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Available reports whether recognition can run at all
func (e *Engine) Available() bool {
	return e != nil && e.available && e.factory != nil
}

// Status returns the current engine status
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Available:         e.Available(),
		WorkerInitialized: e.backend != nil,
		Language:          e.language,
		Busy:              e.busy,
		References:        e.refs,
	}
}

// Acquire registers an owner of the worker. Every Acquire must be paired with
// a Release; the worker is shut down when the last owner releases it.
func (e *Engine) Acquire() {
	e.mu.Lock()
	e.refs++
	e.mu.Unlock()
}

// Release drops an owner and shuts the worker down when none remain
func (e *Engine) Release() error {
	e.mu.Lock()
	if e.refs > 0 {
		e.refs--
	}
	last := e.refs == 0
	e.mu.Unlock()

	if last {
		return e.Shutdown()
	}
	return nil
}

// Shutdown releases the worker. A later Recognize starts a new one.
// A worker in the middle of a recognition is closed when that call returns.
func (e *Engine) Shutdown() error {
	e.mu.Lock()
	if e.busy {
		e.closing = true
		e.mu.Unlock()
		return nil
	}
	b := e.backend
	e.backend = nil
	e.language = ""
	e.mu.Unlock()

	if b == nil {
		return nil
	}
	e.logger.Info().Msg("OCR worker terminated")
	return b.Close()
}

// Recognize runs OCR on img. An image without text is not an error: the
// result is returned with empty Text. Hard failures are RecognitionErrors.
func (e *Engine) Recognize(ctx context.Context, img image.Image, opts Options) (types.OCRResult, error) {
	if !e.Available() {
		return types.OCRResult{}, ErrUnavailable
	}
	if img == nil || img.Bounds().Empty() {
		return types.OCRResult{}, NewRecognitionError("Recognize", ErrEmptyImage, "")
	}

	lang := opts.Language
	if lang == "" {
		lang = DefaultLanguage
	}

	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return types.OCRResult{}, ErrEngineBusy
	}
	e.busy = true
	e.mu.Unlock()
	defer e.finish()

	start := time.Now()
	backend, err := e.worker(ctx, lang)
	if err != nil {
		return types.OCRResult{}, err
	}

	rep := newReporter(ctx, opts.Progress)
	rep.report(0)

	result, err := backend.Recognize(ctx, img, rep.report)
	if err != nil {
		e.logger.Error().Err(err).Str("language", lang).Msg("OCR recognition failed")
		return types.OCRResult{}, WrapRecognitionError("Recognize", err, "")
	}
	rep.report(1)

	result.Text = strings.TrimSpace(result.Text)
	result.Language = lang
	result.Elapsed = time.Since(start)
	if result.Confidence < 0 {
		result.Confidence = 0
	} else if result.Confidence > 100 {
		result.Confidence = 100
	}

	e.logger.Debug().
		Str("language", lang).
		Int("chars", len(result.Text)).
		Float64("confidence", result.Confidence).
		Dur("elapsed", result.Elapsed).
		Msg("OCR completed")
	return result, nil
}

// worker returns the current backend, creating or re-creating it when needed
func (e *Engine) worker(ctx context.Context, lang string) (Backend, error) {
	e.mu.Lock()
	current, currentLang := e.backend, e.language
	e.mu.Unlock()

	if current != nil && currentLang == lang {
		return current, nil
	}
	if current != nil {
		e.logger.Info().Str("from", currentLang).Str("to", lang).Msg("Reinitializing OCR worker")
		current.Close()
	}

	e.logger.Info().Str("language", lang).Msg("Initializing OCR worker")
	b, err := e.factory(ctx, lang)
	if err != nil {
		e.mu.Lock()
		e.backend, e.language = nil, ""
		e.mu.Unlock()
		return nil, WrapRecognitionError("Init", err, lang)
	}

	e.mu.Lock()
	e.backend, e.language = b, lang
	e.mu.Unlock()
	return b, nil
}

// finish clears the busy flag and honours a Shutdown requested mid-call,
// including one that arrived while the worker was still being created
func (e *Engine) finish() {
	e.mu.Lock()
	e.busy = false
	var stale Backend
	if e.closing {
		stale, e.backend, e.language = e.backend, nil, ""
		e.closing = false
	}
	e.mu.Unlock()

	if stale != nil {
		e.logger.Info().Msg("OCR worker terminated")
		stale.Close()
	}
}

// reporter forwards monotonically non-decreasing progress to a channel
type reporter struct {
	ctx  context.Context
	ch   chan<- types.Progress
	mu   sync.Mutex
	last float64
}

func newReporter(ctx context.Context, ch chan<- types.Progress) *reporter {
	return &reporter{ctx: ctx, ch: ch, last: -1}
}

func (r *reporter) report(p float64) {
	if r.ch == nil {
		return
	}
	if p < 0 {
		p = 0
	} else if p > 1 {
		p = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p <= r.last {
		return
	}
	r.last = p

	select {
	case r.ch <- types.Progress{Phase: types.PhaseOCR, Value: p}:
	case <-r.ctx.Done():
	}
}
