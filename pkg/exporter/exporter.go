package exporter

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/menta2k/doc-scanner/internal/logger"
	"github.com/menta2k/doc-scanner/internal/utils"
	"github.com/menta2k/doc-scanner/pkg/processing"
	"github.com/menta2k/doc-scanner/pkg/store"
	"github.com/menta2k/doc-scanner/pkg/types"
)

// Default share titles
const (
	DefaultDocumentTitle = "Scanned Document"
	DefaultIDCardTitle   = "Scanned ID Card"
	DefaultTextTitle     = "Scanned Text"
)

// Outcome says how an export reached the user
type Outcome string

const (
	OutcomeShared     Outcome = "shared"
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeCopied     Outcome = "copied"
	OutcomeCancelled  Outcome = "cancelled"
)

// Metadata describes a shared document
type Metadata struct {
	Filename string
	Title    string
	Text     string
}

// Result of an export
type Result struct {
	Outcome  Outcome
	Filename string
	// Location is the download path when Outcome is OutcomeDownloaded
	Location string
	Size     int
	Record   *types.ScanRecord
}

// Exporter builds documents and delivers them
type Exporter struct {
	share     ShareSurface
	download  Downloader
	clipboard Clipboard
	store     store.Store
	processor *processing.Processor
	textFont  []byte
	now       func() time.Time
	logger    zerolog.Logger
}

// Option configures an Exporter
type Option func(*Exporter)

// WithShareSurface sets the share surface tried first
func WithShareSurface(s ShareSurface) Option {
	return func(e *Exporter) { e.share = s }
}

// WithDownloader sets the download fallback
func WithDownloader(d Downloader) Option {
	return func(e *Exporter) { e.download = d }
}

// WithClipboard sets the clipboard used for text sharing
func WithClipboard(c Clipboard) Option {
	return func(e *Exporter) { e.clipboard = c }
}

// WithStore records completed exports in s
func WithStore(s store.Store) Option {
	return func(e *Exporter) { e.store = s }
}

// WithProcessor sets the processor used to encode pages
func WithProcessor(p *processing.Processor) Option {
	return func(e *Exporter) { e.processor = p }
}

// WithTextFont sets a UTF-8 TrueType font for the text pages, replacing the
// cp1252-only default
func WithTextFont(ttf []byte) Option {
	return func(e *Exporter) { e.textFont = ttf }
}

// WithClock overrides the time source used for filenames and records
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithLogger sets the exporter logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// New creates an exporter. Without options it downloads into the working directory.
func New(opts ...Option) *Exporter {
	e := &Exporter{
		download:  DirDownloader{Dir: "."},
		processor: processing.NewProcessor(),
		now:       time.Now,
		logger:    logger.WithComponent("exporter"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildPDF renders pages and text with the exporter's processor
func (e *Exporter) BuildPDF(pages []image.Image, text string) ([]byte, error) {
	return buildPDF(e.processor, e.textFont, pages, text)
}

// ShareOrDownload offers the PDF to the share surface and downloads it when
// there is none, the user cancels, or sharing fails.
func (e *Exporter) ShareOrDownload(ctx context.Context, pdf []byte, meta Metadata) (Result, error) {
	if len(pdf) == 0 {
		return Result{}, ErrEmptyExport
	}
	if meta.Title == "" {
		meta.Title = DefaultDocumentTitle
	}
	res := Result{Filename: meta.Filename, Size: len(pdf)}

	if e.share != nil {
		err := e.share.Share(ctx, Payload{
			Title: meta.Title,
			Text:  meta.Text,
			Files: []File{{Name: meta.Filename, MIMEType: MIMETypePDF, Data: pdf}},
		})
		if err == nil {
			e.logger.Info().Str("filename", meta.Filename).Msg("Document shared")
			res.Outcome = OutcomeShared
			return res, nil
		}
		if errors.Is(err, ErrShareCancelled) {
			e.logger.Info().Msg("Share cancelled, downloading instead")
		} else {
			e.logger.Warn().Err(err).Msg("Share failed, downloading instead")
		}
	}

	if e.download == nil {
		return Result{}, fmt.Errorf("no downloader configured")
	}
	loc, err := e.download.Download(ctx, meta.Filename, pdf)
	if err != nil {
		return Result{}, err
	}
	e.logger.Info().Str("path", loc).Int("bytes", len(pdf)).Msg("Document downloaded")
	res.Outcome = OutcomeDownloaded
	res.Location = loc
	return res, nil
}

// ExportDocument builds a document PDF, delivers it and records it in history
func (e *Exporter) ExportDocument(ctx context.Context, pages []image.Image, text string) (Result, error) {
	pdf, err := e.BuildPDF(pages, text)
	if err != nil {
		return Result{}, err
	}

	shareText := strings.TrimSpace(text)
	if shareText == "" {
		shareText = fmt.Sprintf("Scanned document with %d page(s)", len(pages))
	}
	meta := Metadata{
		Filename: utils.ExportFilename("scan", e.now(), "pdf"),
		Title:    DefaultDocumentTitle,
		Text:     shareText,
	}

	res, err := e.ShareOrDownload(ctx, pdf, meta)
	if err != nil {
		return Result{}, err
	}
	res.Record = e.record(ctx, types.ScanRecord{
		Type:      types.ScanTypeDocument,
		PageCount: len(pages),
		Filename:  meta.Filename,
		OCRText:   strings.TrimSpace(text),
	})
	return res, nil
}

// ExportIDCard combines both card sides into one page and delivers it
func (e *Exporter) ExportIDCard(ctx context.Context, front, back image.Image, mode types.ColorMode) (Result, error) {
	combined, err := CombineCardSides(front, back, mode)
	if err != nil {
		return Result{}, err
	}
	pdf, err := e.BuildPDF([]image.Image{combined}, "")
	if err != nil {
		return Result{}, err
	}

	meta := Metadata{Filename: utils.ExportFilename("idcard", e.now(), "pdf"), Title: DefaultIDCardTitle}
	res, err := e.ShareOrDownload(ctx, pdf, meta)
	if err != nil {
		return Result{}, err
	}
	res.Record = e.record(ctx, types.ScanRecord{
		Type:      types.ScanTypeIDCard,
		PageCount: 1,
		Filename:  meta.Filename,
	})
	return res, nil
}

// ShareText shares plain text, copying it to the clipboard when there is no
// share surface or sharing fails. A cancelled share is not an error.
func (e *Exporter) ShareText(ctx context.Context, text string) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyExport
	}

	if e.share != nil {
		err := e.share.Share(ctx, Payload{Title: DefaultTextTitle, Text: text})
		switch {
		case err == nil:
			return OutcomeShared, nil
		case errors.Is(err, ErrShareCancelled):
			return OutcomeCancelled, nil
		default:
			e.logger.Warn().Err(err).Msg("Text share failed, copying instead")
		}
	}

	if e.clipboard == nil {
		return "", ErrShareUnavailable
	}
	if err := e.clipboard.WriteText(ctx, text); err != nil {
		return "", fmt.Errorf("failed to copy text: %w", err)
	}
	e.logger.Info().Int("chars", len(text)).Msg("Text copied to clipboard")
	return OutcomeCopied, nil
}

// record saves a history entry; failures are logged and do not fail the export
func (e *Exporter) record(ctx context.Context, rec types.ScanRecord) *types.ScanRecord {
	if e.store == nil {
		return nil
	}
	rec.Date = e.now()
	if err := e.store.Save(ctx, &rec); err != nil {
		e.logger.Error().Err(err).Str("filename", rec.Filename).Msg("Failed to record scan")
		return nil
	}
	return &rec
}
