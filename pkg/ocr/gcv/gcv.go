// Package gcv provides a recognition worker backed by Google Cloud Vision
// document text detection.
package gcv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"github.com/menta2k/doc-scanner/pkg/ocr"
	"github.com/menta2k/doc-scanner/pkg/types"
)

// ErrMissingCredentials is returned when neither inline JSON nor a credentials
// file is configured and default credentials cannot be found.
var ErrMissingCredentials = errors.New("missing Google Cloud credentials: set GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS")

// Config selects Google credentials
type Config struct {
	CredentialsJSON string
	CredentialsFile string
}

// Annotator is the subset of the Vision client used by the worker
type Annotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)
	Close() error
}

type visionAnnotator struct {
	client *vision.ImageAnnotatorClient
}

func (a *visionAnnotator) BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
	return a.client.BatchAnnotateImages(ctx, req)
}

func (a *visionAnnotator) Close() error {
	return a.client.Close()
}

// Dial creates a Vision client, preferring inline credentials over a file
func Dial(ctx context.Context, cfg Config) (Annotator, error) {
	var (
		client *vision.ImageAnnotatorClient
		err    error
	)
	switch {
	case cfg.CredentialsJSON != "":
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		client, err = vision.NewImageAnnotatorClient(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		client, err = vision.NewImageAnnotatorClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingCredentials, err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create vision client: %w", err)
	}
	return &visionAnnotator{client: client}, nil
}

// NewFactory returns an ocr.Factory creating Vision-backed workers
func NewFactory(cfg Config) ocr.Factory {
	return func(ctx context.Context, language string) (ocr.Backend, error) {
		a, err := Dial(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewWorker(a, language), nil
	}
}

// Worker sends bitmaps to Vision with language hints derived from a
// Tesseract-style language code
type Worker struct {
	annotator Annotator
	language  string
	hints     []string
}

// NewWorker wraps an annotator
func NewWorker(a Annotator, language string) *Worker {
	return &Worker{annotator: a, language: language, hints: LanguageHints(language)}
}

// Recognize performs document text detection on a bitmap
func (w *Worker) Recognize(ctx context.Context, img image.Image, progress ocr.ProgressFunc) (types.OCRResult, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return types.OCRResult{}, fmt.Errorf("encode image: %w", err)
	}
	progress(0.1)

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: buf.Bytes()},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
				ImageContext: &visionpb.ImageContext{LanguageHints: w.hints},
			},
		},
	}

	resp, err := w.annotator.BatchAnnotateImages(ctx, req)
	if err != nil {
		return types.OCRResult{}, fmt.Errorf("vision API call failed: %w", err)
	}
	progress(0.9)

	if len(resp.GetResponses()) == 0 {
		return types.OCRResult{}, fmt.Errorf("no response from vision API")
	}
	r := resp.GetResponses()[0]
	if r.GetError() != nil && r.GetError().GetMessage() != "" {
		return types.OCRResult{}, fmt.Errorf("vision API error: %s", r.GetError().GetMessage())
	}

	full := r.GetFullTextAnnotation()
	if full == nil {
		return types.OCRResult{Language: w.language}, nil
	}

	lines, conf := paragraphs(full)
	return types.OCRResult{
		Text:       strings.TrimSpace(full.GetText()),
		Confidence: conf,
		Lines:      lines,
		Language:   w.language,
	}, nil
}

// Close releases the Vision client
func (w *Worker) Close() error {
	return w.annotator.Close()
}

func paragraphs(full *visionpb.TextAnnotation) ([]types.Line, float64) {
	var (
		lines []types.Line
		sum   float64
	)
	for _, page := range full.GetPages() {
		for _, block := range page.GetBlocks() {
			for _, para := range block.GetParagraphs() {
				var sb strings.Builder
				for i, word := range para.GetWords() {
					if i > 0 {
						sb.WriteByte(' ')
					}
					for _, sym := range word.GetSymbols() {
						sb.WriteString(sym.GetText())
					}
				}
				text := strings.TrimSpace(sb.String())
				if text == "" {
					continue
				}
				conf := float64(para.GetConfidence()) * 100
				sum += conf
				lines = append(lines, types.Line{
					Text:        text,
					Confidence:  conf,
					BoundingBox: boundingBox(para.GetBoundingBox()),
				})
			}
		}
	}
	if len(lines) == 0 {
		return nil, 0
	}
	return lines, sum / float64(len(lines))
}

func boundingBox(poly *visionpb.BoundingPoly) types.BoundingBox {
	vs := poly.GetVertices()
	if len(vs) == 0 {
		return types.BoundingBox{}
	}
	bb := types.BoundingBox{X0: int(vs[0].GetX()), Y0: int(vs[0].GetY()), X1: int(vs[0].GetX()), Y1: int(vs[0].GetY())}
	for _, v := range vs[1:] {
		x, y := int(v.GetX()), int(v.GetY())
		if x < bb.X0 {
			bb.X0 = x
		}
		if y < bb.Y0 {
			bb.Y0 = y
		}
		if x > bb.X1 {
			bb.X1 = x
		}
		if y > bb.Y1 {
			bb.Y1 = y
		}
	}
	return bb
}

var iso639 = map[string]string{
	"eng": "en", "fra": "fr", "deu": "de", "spa": "es", "ita": "it", "por": "pt",
	"nld": "nl", "rus": "ru", "pol": "pl", "tur": "tr", "ara": "ar", "hin": "hi",
	"jpn": "ja", "kor": "ko", "chi_sim": "zh", "chi_tra": "zh-Hant", "ukr": "uk",
	"bul": "bg", "ell": "el", "swe": "sv",
}

// LanguageHints converts "eng+fra" into Vision hints ["en", "fr"].
// Unknown codes are passed through unchanged.
func LanguageHints(language string) []string {
	var hints []string
	for _, code := range strings.Split(language, "+") {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if h, ok := iso639[code]; ok {
			code = h
		}
		hints = append(hints, code)
	}
	return hints
}
