// Package pipeline chains recognition and text enhancement into one operation
// with a single progress stream and a fixed fallback policy.
package pipeline

import (
	"context"
	"image"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/menta2k/doc-scanner/internal/logger"
	"github.com/menta2k/doc-scanner/pkg/enhance"
	"github.com/menta2k/doc-scanner/pkg/ocr"
	"github.com/menta2k/doc-scanner/pkg/types"
)

// EnhanceMinLength is the length the recognized text must exceed before the
// enhancer is consulted
const EnhanceMinLength = 10

// Status messages
const (
	MsgNoText   = "No text detected in image"
	MsgComplete = "OCR complete"
)

// ErrOCRUnavailable is returned before any work when recognition cannot run
var ErrOCRUnavailable = ocr.ErrUnavailable

// Enhancer rewrites recognized text. It must never fail; problems are
// reported through the result status.
type Enhancer interface {
	Enhance(ctx context.Context, text string) types.EnhancementResult
	Online() bool
}

// Options for one Process call
type Options struct {
	Enhance  bool
	Language string
	// Progress receives phase events in order: ocr, ocr-complete, enhancing, done.
	// Sends give up when ctx is done. The orchestrator never closes it.
	Progress chan<- types.Progress
}

// Result is the merged outcome of recognition and enhancement
type Result struct {
	Text          string                  `json:"text"`
	OriginalText  string                  `json:"original_text,omitempty"`
	Confidence    float64                 `json:"confidence"`
	Enhanced      bool                    `json:"enhanced"`
	StatusMessage string                  `json:"message"`
	Status        types.EnhancementStatus `json:"status,omitempty"`
	RetryAfter    time.Duration           `json:"retry_after,omitempty"`
	Lines         []types.Line            `json:"lines,omitempty"`
	Elapsed       time.Duration           `json:"elapsed"`
}

// Status describes the orchestrator without starting anything
type Status struct {
	Available         bool `json:"available"`
	WorkerInitialized bool `json:"worker_initialized"`
	Offline           bool `json:"offline"`
	Busy              bool `json:"busy"`
}

// Orchestrator owns a reference to the OCR engine for its lifetime
type Orchestrator struct {
	engine   *ocr.Engine
	enhancer Enhancer
	logger   zerolog.Logger

	mu     sync.Mutex
	busy   bool
	closed bool
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger
func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// New creates an orchestrator and acquires the engine. A nil enhancer
// disables enhancement. Close releases the engine.
func New(engine *ocr.Engine, enhancer Enhancer, opts ...Option) *Orchestrator {
	o := &Orchestrator{engine: engine, enhancer: enhancer, logger: logger.WithComponent("pipeline")}
	for _, opt := range opts {
		opt(o)
	}
	if engine != nil {
		engine.Acquire()
	}
	return o
}

// Close releases the engine reference. Safe to call more than once.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	if o.engine == nil {
		return nil
	}
	return o.engine.Release()
}

// Status reports availability, worker state and connectivity
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	busy := o.busy
	o.mu.Unlock()

	st := Status{Busy: busy, Offline: o.enhancer != nil && !o.enhancer.Online()}
	if o.engine != nil {
		es := o.engine.Status()
		st.Available = es.Available
		st.WorkerInitialized = es.WorkerInitialized
		st.Busy = st.Busy || es.Busy
	}
	return st
}

// Process recognizes text in img and optionally enhances it. Recognition
// always finishes before enhancement starts. A second call while one is in
// flight gets ocr.ErrEngineBusy. An image without text is not an error.
func (o *Orchestrator) Process(ctx context.Context, img image.Image, opts Options) (Result, error) {
	if o.engine == nil || !o.engine.Available() {
		return Result{}, ErrOCRUnavailable
	}

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return Result{}, ocr.ErrEngineBusy
	}
	o.busy = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.busy = false
		o.mu.Unlock()
	}()

	start := time.Now()
	ocrResult, err := o.engine.Recognize(ctx, img, ocr.Options{Language: opts.Language, Progress: opts.Progress})
	if err != nil {
		return Result{}, err
	}
	emit(ctx, opts.Progress, types.PhaseOCRComplete, 1)

	if ocrResult.Empty() {
		emit(ctx, opts.Progress, types.PhaseDone, 1)
		return Result{StatusMessage: MsgNoText, Elapsed: time.Since(start)}, nil
	}

	res := Result{
		Text:          ocrResult.Text,
		Confidence:    ocrResult.Confidence,
		StatusMessage: MsgComplete,
		Lines:         ocrResult.Lines,
	}

	if opts.Enhance {
		o.enhanceInto(ctx, &res, opts.Progress)
	}

	res.Elapsed = time.Since(start)
	emit(ctx, opts.Progress, types.PhaseDone, 1)

	o.logger.Debug().
		Int("chars", len(res.Text)).
		Bool("enhanced", res.Enhanced).
		Str("status", string(res.Status)).
		Dur("elapsed", res.Elapsed).
		Msg("Pipeline completed")
	return res, nil
}

func (o *Orchestrator) enhanceInto(ctx context.Context, res *Result, progress chan<- types.Progress) {
	raw := res.Text
	res.OriginalText = raw

	if o.enhancer == nil {
		res.Status = types.StatusDisabled
		res.StatusMessage = enhance.MessageDisabled
		return
	}
	if utf8.RuneCountInString(strings.TrimSpace(raw)) <= EnhanceMinLength {
		res.Status = types.StatusTooShort
		res.StatusMessage = enhance.MessageTooShort
		return
	}

	// offline is decided by the enhancer so the status names the reason
	emit(ctx, progress, types.PhaseEnhancing, 0)
	er := o.enhancer.Enhance(ctx, raw)
	emit(ctx, progress, types.PhaseEnhancing, 1)

	res.Enhanced = er.WasEnhanced
	res.Status = er.Status
	res.StatusMessage = er.StatusMessage
	res.RetryAfter = er.RetryAfter
	if er.WasEnhanced {
		res.Text = er.Text
	}
}

func emit(ctx context.Context, ch chan<- types.Progress, phase types.Phase, v float64) {
	if ch == nil {
		return
	}
	select {
	case ch <- types.Progress{Phase: phase, Value: v}:
	case <-ctx.Done():
	}
}
