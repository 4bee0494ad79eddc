// Package docscanner turns camera frames and uploaded photos into cleaned-up
// documents: crop, filter, recognize text, optionally have the text rewritten
// by a language model, and export everything as a PDF.
//
// Basic usage:
//
//	s, err := docscanner.New(ctx, docscanner.DefaultOptions())
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close()
//
//	page := s.NewPageSession()
//	if err := page.UploadFile(ctx, "receipt.jpg"); err != nil {
//		log.Fatal(err)
//	}
//	page.Crop(types.CropRegion{X: 40, Y: 60, Width: 900, Height: 1200})
//	page.AddPage()
//	page.ApplyFilter(0, types.FilterGrayscale)
//
//	res, err := page.Recognize(ctx, 0, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(res.Text)
//
//	out, err := page.Export(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println("saved to", out.Location)
//
// The package consists of these components:
//
//  1. Capture (pkg/capture): camera sessions with profile fallback
//  2. Cropper and Processing (pkg/cropper, pkg/processing): crop and page filters
//  3. OCR (pkg/ocr): a single lazily started worker backed by Tesseract or Google Cloud Vision
//  4. Enhance (pkg/enhance): client of the text rewriting endpoint served by pkg/server
//  5. Pipeline (pkg/pipeline): OCR followed by enhancement with progress events
//  6. Session (pkg/session): document and ID card workflows
//  7. Exporter (pkg/exporter): PDF building, sharing and downloads
//  8. Store (pkg/store): scan history and settings
package docscanner

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/menta2k/doc-scanner/internal/logger"
	"github.com/menta2k/doc-scanner/pkg/capture"
	"github.com/menta2k/doc-scanner/pkg/enhance"
	"github.com/menta2k/doc-scanner/pkg/exporter"
	"github.com/menta2k/doc-scanner/pkg/ocr"
	"github.com/menta2k/doc-scanner/pkg/ocr/gcv"
	"github.com/menta2k/doc-scanner/pkg/ocr/tesseract"
	"github.com/menta2k/doc-scanner/pkg/pipeline"
	"github.com/menta2k/doc-scanner/pkg/processing"
	"github.com/menta2k/doc-scanner/pkg/session"
	"github.com/menta2k/doc-scanner/pkg/store"
	"github.com/menta2k/doc-scanner/pkg/types"
)

// Version of the doc scanner library
const Version = "1.0.0"

// OCR backends
const (
	BackendTesseract = "tesseract"
	BackendGCV       = "gcv"
)

// Options configure a Scanner. The override fields (OCRFactory, Enhancer,
// Store, Device and the export surfaces) take precedence over the settings
// they replace.
type Options struct {
	Processing processing.Config

	OCRBackend            string
	Language              string
	GoogleCredentialsJSON string
	GoogleCredentialsFile string

	EnhanceEnabled bool
	EnhanceURL     string
	EnhanceTimeout time.Duration

	StoreDriver    string
	DatabaseURL    string
	RetentionHours int
	HistoryLimit   int

	OutputDir string
	// TextFontFile is a UTF-8 TrueType font for PDF text pages
	TextFontFile string

	FacingMode    string
	CaptureWidth  int
	CaptureHeight int

	OCRFactory   ocr.Factory
	Enhancer     pipeline.Enhancer
	Store        store.Store
	Device       capture.Device
	ShareSurface exporter.ShareSurface
	Clipboard    exporter.Clipboard
	Downloader   exporter.Downloader

	Logger *zerolog.Logger
}

// DefaultOptions returns options for a local Tesseract scanner with an
// in-memory history
func DefaultOptions() Options {
	return Options{
		Processing:     processing.DefaultConfig(),
		OCRBackend:     BackendTesseract,
		Language:       ocr.DefaultLanguage,
		EnhanceEnabled: true,
		EnhanceTimeout: enhance.DefaultTimeout,
		StoreDriver:    "memory",
		RetentionHours: store.DefaultRetentionHours,
		HistoryLimit:   store.DefaultHistoryLimit,
		OutputDir:      ".",
		FacingMode:     capture.FacingEnvironment,
		CaptureWidth:   1920,
		CaptureHeight:  1080,
	}
}

// Scanner owns the long-lived parts of the application and hands out
// workflow sessions. Only one session is active at a time; opening a new one
// closes the previous session and releases its camera.
type Scanner struct {
	opts      Options
	processor *processing.Processor
	engine    *ocr.Engine
	enhancer  pipeline.Enhancer
	store     store.Store
	exporter  *exporter.Exporter
	logger    zerolog.Logger

	mu     sync.Mutex
	active interface{ Close() error }
}

// New creates a Scanner. It connects to the history store but does not start
// the OCR worker or the camera.
func New(ctx context.Context, opts Options) (*Scanner, error) {
	s := &Scanner{opts: opts, logger: logger.WithComponent("scanner")}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	}

	if opts.Processing.JPEGQuality == 0 {
		opts.Processing = processing.DefaultConfig()
	}
	s.processor = processing.NewProcessorWithConfig(opts.Processing)

	factory, available, err := ocrFactory(opts)
	if err != nil {
		return nil, err
	}
	s.engine = ocr.NewEngine(factory, ocr.WithAvailability(available), ocr.WithLogger(s.logger.With().Str("component", "ocr").Logger()))

	s.enhancer = opts.Enhancer
	if s.enhancer == nil {
		s.enhancer = enhance.New(enhance.Config{
			Endpoint: opts.EnhanceURL,
			Enabled:  opts.EnhanceEnabled,
			Timeout:  opts.EnhanceTimeout,
			Language: opts.Language,
		})
	}

	var textFont []byte
	if opts.TextFontFile != "" {
		if textFont, err = os.ReadFile(opts.TextFontFile); err != nil {
			return nil, fmt.Errorf("failed to read PDF font: %w", err)
		}
	}

	s.store = opts.Store
	if s.store == nil {
		if s.store, err = OpenStore(ctx, opts.StoreDriver, opts.DatabaseURL); err != nil {
			return nil, err
		}
	}

	downloader := opts.Downloader
	if downloader == nil {
		downloader = exporter.DirDownloader{Dir: opts.OutputDir}
	}
	exportOpts := []exporter.Option{
		exporter.WithDownloader(downloader),
		exporter.WithStore(s.store),
		exporter.WithProcessor(s.processor),
		exporter.WithLogger(s.logger.With().Str("component", "exporter").Logger()),
	}
	if opts.ShareSurface != nil {
		exportOpts = append(exportOpts, exporter.WithShareSurface(opts.ShareSurface))
	}
	if opts.Clipboard != nil {
		exportOpts = append(exportOpts, exporter.WithClipboard(opts.Clipboard))
	}
	if len(textFont) > 0 {
		exportOpts = append(exportOpts, exporter.WithTextFont(textFont))
	}
	s.exporter = exporter.New(exportOpts...)

	return s, nil
}

func ocrFactory(opts Options) (ocr.Factory, bool, error) {
	if opts.OCRFactory != nil {
		return opts.OCRFactory, true, nil
	}
	switch opts.OCRBackend {
	case BackendTesseract, "":
		return tesseract.NewFactory(), tesseract.Available(), nil
	case BackendGCV:
		return gcv.NewFactory(gcv.Config{
			CredentialsJSON: opts.GoogleCredentialsJSON,
			CredentialsFile: opts.GoogleCredentialsFile,
		}), true, nil
	}
	return nil, false, fmt.Errorf("unknown OCR backend: %s (use 'tesseract' or 'gcv')", opts.OCRBackend)
}

// OpenStore opens the history store named by driver
func OpenStore(ctx context.Context, driver, databaseURL string) (store.Store, error) {
	switch driver {
	case "memory", "":
		return store.NewMemoryStore(), nil
	case "postgres":
		return store.NewPostgresStore(ctx, databaseURL)
	}
	return nil, fmt.Errorf("unknown store driver: %s (use 'memory' or 'postgres')", driver)
}

// Processor returns the shared image processor
func (s *Scanner) Processor() *processing.Processor {
	return s.processor
}

// Store returns the history store
func (s *Scanner) Store() store.Store {
	return s.store
}

// Exporter returns the exporter shared by all sessions
func (s *Scanner) Exporter() *exporter.Exporter {
	return s.exporter
}

// OCRStatus reports the recognition engine without starting it
func (s *Scanner) OCRStatus() ocr.Status {
	return s.engine.Status()
}

func (s *Scanner) sessionConfig(component string, withPipeline bool) session.Config {
	l := s.logger.With().Str("component", component).Logger()
	cfg := session.Config{
		Processor: s.processor,
		Exporter:  s.exporter,
		Settings:  s.store,
		Language:  s.opts.Language,
		Logger:    &l,
	}
	if s.opts.Device != nil {
		cfg.Capture = capture.NewSession(s.opts.Device,
			capture.WithProfiles(capture.DefaultProfiles(s.opts.FacingMode, s.opts.CaptureWidth, s.opts.CaptureHeight)...),
			capture.WithLogger(l))
	}
	if withPipeline {
		cfg.Pipeline = pipeline.New(s.engine, s.enhancer, pipeline.WithLogger(l))
	}
	return cfg
}

func (s *Scanner) activate(next interface{ Close() error }) {
	s.mu.Lock()
	prev := s.active
	s.active = next
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to close previous session")
		}
	}
}

// NewPageSession opens the document workflow, closing any active session
func (s *Scanner) NewPageSession() *session.PageSession {
	ps := session.NewPageSession(s.sessionConfig("page-session", true))
	s.activate(ps)
	return ps
}

// NewCardSession opens the ID card workflow, closing any active session
func (s *Scanner) NewCardSession() *session.CardSession {
	cs := session.NewCardSession(s.sessionConfig("card-session", false))
	s.activate(cs)
	return cs
}

// History returns the newest scan records. A non-positive limit uses the
// configured history limit.
func (s *Scanner) History(ctx context.Context, recordType types.ScanType, limit int) ([]types.ScanRecord, error) {
	if limit <= 0 {
		limit = s.opts.HistoryLimit
	}
	return s.store.List(ctx, store.ListOptions{Type: recordType, Limit: limit})
}

// Cleanup deletes records older than the retention period
func (s *Scanner) Cleanup(ctx context.Context) (int, error) {
	hours := s.opts.RetentionHours
	if hours <= 0 {
		hours = store.DefaultRetentionHours
	}
	n, err := s.store.DeleteOlderThan(ctx, hours)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info().Int("deleted", n).Int("retention_hours", hours).Msg("Old scans cleaned up")
	}
	return n, nil
}

// AIEnhancement reports whether recognized text is sent for rewriting
func (s *Scanner) AIEnhancement(ctx context.Context) bool {
	return store.BoolSetting(ctx, s.store, store.SettingAIEnhancement, true)
}

// SetAIEnhancement switches text rewriting on or off
func (s *Scanner) SetAIEnhancement(ctx context.Context, on bool) error {
	return store.SetBoolSetting(ctx, s.store, store.SettingAIEnhancement, on)
}

// Close closes the active session, stops the OCR worker and closes the store
func (s *Scanner) Close() error {
	s.activate(nil)

	var firstErr error
	if err := s.engine.Shutdown(); err != nil {
		firstErr = err
	}
	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
