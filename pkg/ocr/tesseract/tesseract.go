//go:build ocr

// Package tesseract provides the local recognition worker backed by Tesseract
// through gosseract. It requires the "ocr" build tag and an installed
// Tesseract with the needed traineddata:
//
//	go build -tags ocr ./...
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/menta2k/doc-scanner/pkg/ocr"
	"github.com/menta2k/doc-scanner/pkg/types"
)

// Available reports whether Tesseract support was compiled in
func Available() bool {
	return true
}

// Worker is a gosseract client bound to one language
type Worker struct {
	client   *gosseract.Client
	language string
}

// NewFactory returns an ocr.Factory creating Tesseract workers
func NewFactory() ocr.Factory {
	return func(ctx context.Context, language string) (ocr.Backend, error) {
		return New(language)
	}
}

// New creates a worker for a Tesseract language code such as "eng" or "eng+fra"
func New(language string) (*Worker, error) {
	client := gosseract.NewClient()
	langs := strings.Split(language, "+")
	if err := client.SetLanguage(langs...); err != nil {
		client.Close()
		return nil, fmt.Errorf("set languages: %w", err)
	}
	return &Worker{client: client, language: language}, nil
}

// Recognize performs OCR on a single bitmap
func (w *Worker) Recognize(ctx context.Context, img image.Image, progress ocr.ProgressFunc) (types.OCRResult, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return types.OCRResult{}, fmt.Errorf("encode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return types.OCRResult{}, err
	}
	if err := w.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return types.OCRResult{}, fmt.Errorf("set image: %w", err)
	}
	progress(0.1)

	text, err := w.client.Text()
	if err != nil {
		return types.OCRResult{}, fmt.Errorf("recognize text: %w", err)
	}
	progress(0.8)

	lines, conf := extractLines(w.client)
	progress(1)

	return types.OCRResult{
		Text:       strings.TrimSpace(text),
		Confidence: conf,
		Lines:      lines,
		Language:   w.language,
	}, nil
}

// Close releases the Tesseract handle
func (w *Worker) Close() error {
	return w.client.Close()
}

func extractLines(c *gosseract.Client) ([]types.Line, float64) {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil || len(boxes) == 0 {
		return nil, 0
	}

	lines := make([]types.Line, 0, len(boxes))
	var sum float64
	for _, b := range boxes {
		txt := strings.TrimSpace(b.Word)
		if txt == "" {
			continue
		}
		sum += b.Confidence
		lines = append(lines, types.Line{
			Text:       txt,
			Confidence: b.Confidence,
			BoundingBox: types.BoundingBox{
				X0: b.Box.Min.X,
				Y0: b.Box.Min.Y,
				X1: b.Box.Max.X,
				Y1: b.Box.Max.Y,
			},
		})
	}
	if len(lines) == 0 {
		return lines, 0
	}
	return lines, sum / float64(len(lines))
}
