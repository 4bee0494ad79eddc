package session

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"github.com/menta2k/doc-scanner/internal/logger"
	"github.com/menta2k/doc-scanner/pkg/capture"
	"github.com/menta2k/doc-scanner/pkg/cropper"
	"github.com/menta2k/doc-scanner/pkg/exporter"
	"github.com/menta2k/doc-scanner/pkg/pipeline"
	"github.com/menta2k/doc-scanner/pkg/processing"
	"github.com/menta2k/doc-scanner/pkg/store"
	"github.com/menta2k/doc-scanner/pkg/types"
	"github.com/menta2k/doc-scanner/pkg/vision"
)

// Config wires a session to its collaborators. Only Processor is required;
// a missing Capture disables camera capture, a missing Pipeline disables
// recognition and a missing Exporter uses exporter defaults.
type Config struct {
	Capture   *capture.Session
	Processor *processing.Processor
	Pipeline  *pipeline.Orchestrator
	Exporter  *exporter.Exporter
	Detector  *vision.PageDetector
	// Settings supplies the aiEnhancement toggle; nil means enabled
	Settings store.Store
	Language string
	Logger   *zerolog.Logger
}

func (c *Config) defaults(component string) zerolog.Logger {
	if c.Processor == nil {
		c.Processor = processing.NewProcessor()
	}
	if c.Exporter == nil {
		c.Exporter = exporter.New()
	}
	if c.Detector == nil {
		c.Detector = vision.New()
	}
	if c.Logger != nil {
		return *c.Logger
	}
	return logger.WithComponent(component)
}

// PageSession is the multi-page document workflow
type PageSession struct {
	cfg    Config
	logger zerolog.Logger

	mu    sync.Mutex
	state PageState
	text  string
}

// NewPageSession creates an empty document session. The session owns the
// pipeline and capture session it is given and releases them on Close.
func NewPageSession(cfg Config) *PageSession {
	l := cfg.defaults("page-session")
	return &PageSession{cfg: cfg, logger: l, state: NewPageState()}
}

// State returns a snapshot of the current state
func (p *PageSession) State() PageState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Dispatch applies an event
func (p *PageSession) Dispatch(ev PageEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, err := ReducePage(p.state, ev)
	if err != nil {
		return err
	}
	p.state = next
	return nil
}

// Capture takes one frame from the camera and stages it for cropping.
// The camera is released before Capture returns, even on error.
func (p *PageSession) Capture(ctx context.Context) error {
	img, err := captureFrame(ctx, p.cfg.Capture)
	if err != nil {
		return err
	}
	return p.Dispatch(Stage{Image: img})
}

// Upload decodes an image and stages it for cropping
func (p *PageSession) Upload(r io.Reader) error {
	img, err := p.cfg.Processor.LoadImageFromReader(r)
	if err != nil {
		return err
	}
	return p.Dispatch(Stage{Image: img})
}

// UploadFile loads an image from a path or http(s) URL and stages it for
// cropping
func (p *PageSession) UploadFile(ctx context.Context, source string) error {
	img, err := p.cfg.Processor.LoadImageSmart(ctx, source)
	if err != nil {
		return err
	}
	return p.Dispatch(Stage{Image: img})
}

// Crop crops the staged image to a region in native pixels
func (p *PageSession) Crop(region types.CropRegion) error {
	return p.Dispatch(CropConfirm{Region: region})
}

// CropDisplay crops the staged image to a selection made on a scaled preview
func (p *PageSession) CropDisplay(rect cropper.DisplayRect, display cropper.Size) error {
	p.mu.Lock()
	staged := p.state.Staged
	p.mu.Unlock()
	if staged == nil {
		return fmt.Errorf("crop: %w", ErrNothingStaged)
	}
	region, err := cropper.ScaleToNative(rect, display, cropper.SizeOf(staged))
	if err != nil {
		return err
	}
	return p.Dispatch(CropConfirm{Region: region})
}

// SuggestCrop returns the detected page of the staged image, or the whole
// image when no page is found
func (p *PageSession) SuggestCrop() (types.CropRegion, bool, error) {
	p.mu.Lock()
	staged := p.state.Staged
	p.mu.Unlock()
	if staged == nil {
		return types.CropRegion{}, false, fmt.Errorf("suggest crop: %w", ErrNothingStaged)
	}
	if r, ok := p.cfg.Detector.DetectPage(staged); ok {
		return r.CropRegion(), true, nil
	}
	return cropper.FullRegion(staged), false, nil
}

// AutoCrop crops the staged image to the detected page. It reports false and
// leaves the staged image uncropped when no page is found.
func (p *PageSession) AutoCrop() (bool, error) {
	region, found, err := p.SuggestCrop()
	if err != nil {
		return false, err
	}
	if !found {
		p.logger.Debug().Msg("No page detected, keeping full image")
		return false, p.CancelCrop()
	}
	p.logger.Debug().Int("x", region.X).Int("y", region.Y).Int("width", region.Width).Int("height", region.Height).Msg("Page detected")
	return true, p.Crop(region)
}

// CancelCrop keeps the staged image uncropped
func (p *PageSession) CancelCrop() error {
	return p.Dispatch(CropCancel{})
}

// AddPage commits the staged image as the last page
func (p *PageSession) AddPage() error {
	return p.Dispatch(Commit{})
}

// ApplyFilter sets the filter of page index
func (p *PageSession) ApplyFilter(index int, kind types.FilterKind) error {
	return p.Dispatch(ApplyFilter{Index: index, Kind: kind})
}

// DeletePage removes page index
func (p *PageSession) DeletePage(index int) error {
	return p.Dispatch(DeletePage{Index: index})
}

// Recognize runs the pipeline on page index, or on the current page when
// index is negative, or on the staged image when there are no pages. The
// session state is left untouched on failure.
func (p *PageSession) Recognize(ctx context.Context, index int, progress chan<- types.Progress) (pipeline.Result, error) {
	if p.cfg.Pipeline == nil {
		return pipeline.Result{}, pipeline.ErrOCRUnavailable
	}

	p.mu.Lock()
	img, err := p.target(index)
	p.mu.Unlock()
	if err != nil {
		return pipeline.Result{}, err
	}

	enhance := true
	if p.cfg.Settings != nil {
		enhance = store.BoolSetting(ctx, p.cfg.Settings, store.SettingAIEnhancement, true)
	}

	res, err := p.cfg.Pipeline.Process(ctx, img, pipeline.Options{
		Enhance:  enhance,
		Language: p.cfg.Language,
		Progress: progress,
	})
	if err != nil {
		p.logger.Error().Err(err).Msg("Recognition failed")
		return pipeline.Result{}, err
	}

	if res.Text != "" {
		p.mu.Lock()
		p.text = res.Text
		p.mu.Unlock()
	}
	return res, nil
}

func (p *PageSession) target(index int) (image.Image, error) {
	s := p.state
	switch {
	case index >= 0:
		if index >= len(s.Pages) {
			return nil, ErrPageIndex
		}
		return s.Pages[index].Image, nil
	case len(s.Pages) > 0:
		return s.Pages[s.Current].Image, nil
	case s.Staged != nil:
		return s.Staged, nil
	}
	return nil, fmt.Errorf("recognize: %w", ErrNothingStaged)
}

// Text returns the last recognized (or edited) text
func (p *PageSession) Text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text
}

// SetText replaces the text exported with the document
func (p *PageSession) SetText(text string) {
	p.mu.Lock()
	p.text = text
	p.mu.Unlock()
}

// Export builds the document PDF from the committed pages and the current
// text and shares or downloads it
func (p *PageSession) Export(ctx context.Context) (exporter.Result, error) {
	p.mu.Lock()
	pages := p.state.Images()
	text := p.text
	p.mu.Unlock()

	if len(pages) == 0 {
		return exporter.Result{}, exporter.ErrEmptyExport
	}
	res, err := p.cfg.Exporter.ExportDocument(ctx, pages, text)
	if err != nil {
		return exporter.Result{}, err
	}
	p.logger.Info().Str("outcome", string(res.Outcome)).Int("pages", len(pages)).Msg("Document exported")
	return res, nil
}

// ShareText shares the recognized text
func (p *PageSession) ShareText(ctx context.Context) (exporter.Outcome, error) {
	return p.cfg.Exporter.ShareText(ctx, p.Text())
}

// Reset clears pages, staging and text
func (p *PageSession) Reset() {
	p.mu.Lock()
	p.state = NewPageState()
	p.text = ""
	p.mu.Unlock()
}

// Close stops the camera and releases the recognition pipeline
func (p *PageSession) Close() error {
	var firstErr error
	if p.cfg.Capture != nil {
		firstErr = p.cfg.Capture.Stop()
	}
	if p.cfg.Pipeline != nil {
		if err := p.cfg.Pipeline.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CardSession is the two-sided ID card workflow
type CardSession struct {
	cfg    Config
	logger zerolog.Logger

	mu    sync.Mutex
	state CardState
}

// NewCardSession creates a card session waiting for the front side
func NewCardSession(cfg Config) *CardSession {
	l := cfg.defaults("card-session")
	return &CardSession{cfg: cfg, logger: l, state: NewCardState()}
}

// State returns a snapshot of the current state
func (c *CardSession) State() CardState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dispatch applies an event
func (c *CardSession) Dispatch(ev CardEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, err := ReduceCard(c.state, ev)
	if err != nil {
		return err
	}
	c.state = next
	return nil
}

// Capture fills the current side from the camera
func (c *CardSession) Capture(ctx context.Context) error {
	img, err := captureFrame(ctx, c.cfg.Capture)
	if err != nil {
		return err
	}
	return c.Dispatch(CaptureSide{Image: img})
}

// Upload fills the current side from an encoded image
func (c *CardSession) Upload(r io.Reader) error {
	img, err := c.cfg.Processor.LoadImageFromReader(r)
	if err != nil {
		return err
	}
	return c.Dispatch(CaptureSide{Image: img})
}

// UploadFile fills the current side from a path or http(s) URL
func (c *CardSession) UploadFile(ctx context.Context, source string) error {
	img, err := c.cfg.Processor.LoadImageSmart(ctx, source)
	if err != nil {
		return err
	}
	return c.Dispatch(CaptureSide{Image: img})
}

// SetColorMode selects color or grayscale output
func (c *CardSession) SetColorMode(mode types.ColorMode) error {
	return c.Dispatch(SetColorMode{Mode: mode})
}

// SetStep selects which side the next capture fills
func (c *CardSession) SetStep(step CardStep) error {
	return c.Dispatch(SetStep{Step: step})
}

// Combined renders both sides into one image
func (c *CardSession) Combined() (*image.NRGBA, error) {
	s := c.State()
	if !s.Complete() {
		return nil, ErrIncompleteCard
	}
	return exporter.CombineCardSides(s.Front, s.Back, s.ColorMode)
}

// Export combines both sides into a one-page PDF and shares or downloads it
func (c *CardSession) Export(ctx context.Context) (exporter.Result, error) {
	s := c.State()
	if !s.Complete() {
		return exporter.Result{}, ErrIncompleteCard
	}
	res, err := c.cfg.Exporter.ExportIDCard(ctx, s.Front, s.Back, s.ColorMode)
	if err != nil {
		return exporter.Result{}, err
	}
	c.logger.Info().Str("outcome", string(res.Outcome)).Str("mode", string(s.ColorMode)).Msg("ID card exported")
	return res, nil
}

// Reset clears both sides
func (c *CardSession) Reset() {
	c.mu.Lock()
	c.state = NewCardState()
	c.mu.Unlock()
}

// Close stops the camera
func (c *CardSession) Close() error {
	if c.cfg.Capture != nil {
		return c.cfg.Capture.Stop()
	}
	return nil
}

func captureFrame(ctx context.Context, cs *capture.Session) (*image.NRGBA, error) {
	if cs == nil {
		return nil, capture.NewCaptureError("Capture", capture.ErrDeviceNotFound, "no camera configured")
	}
	return cs.CaptureOnce(ctx)
}
