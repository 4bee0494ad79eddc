package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// DefaultJPEGQuality is used whenever a bitmap is persisted or handed to OCR/PDF stages
const DefaultJPEGQuality = 90

// Config holds configuration for the image processor
type Config struct {
	JPEGQuality      int
	SupportedFormats []string
	MinImageSize     int
}

// DefaultConfig returns the processor defaults
func DefaultConfig() Config {
	return Config{
		JPEGQuality:      DefaultJPEGQuality,
		SupportedFormats: []string{"jpeg", "jpg", "png", "webp", "gif"},
		MinImageSize:     1,
	}
}

// ErrImageTooSmall is returned for images below the configured minimum size
var ErrImageTooSmall = errors.New("image too small")

// Processor handles image decoding, encoding and validation
type Processor struct {
	config Config
}

// NewProcessor creates a new image processor with default configuration
func NewProcessor() *Processor {
	return &Processor{config: DefaultConfig()}
}

// NewProcessorWithConfig creates a new image processor with custom configuration
func NewProcessorWithConfig(config Config) *Processor {
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = DefaultJPEGQuality
	}
	if len(config.SupportedFormats) == 0 {
		config.SupportedFormats = DefaultConfig().SupportedFormats
	}
	return &Processor{config: config}
}

// Config returns the active configuration
func (p *Processor) Config() Config {
	return p.config
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer f.Close()

	img, err := p.LoadImageFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadImageFromReader decodes an image from a reader
func (p *Processor) LoadImageFromReader(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return p.DecodeBytes(data)
}

// LoadImageFromURL downloads and decodes an image
func (p *Processor) LoadImageFromURL(ctx context.Context, imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Doc-Scanner/1.0")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", ct)
	}

	return p.LoadImageFromReader(resp.Body)
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(ctx, source)
	}
	return p.LoadImage(source)
}

// DecodeBytes fully decodes an encoded image buffer and checks it against the
// format allow-list and the minimum size
func (p *Processor) DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		// chai2010/webp handles extended WebP variants the x/image decoder rejects
		wimg, werr := webp.Decode(bytes.NewReader(data))
		if werr != nil {
			return nil, fmt.Errorf("failed to decode image: %w", err)
		}
		img, format = wimg, "webp"
	}

	if !p.isFormatSupported(format) {
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}
	if err := p.ValidateImage(img); err != nil {
		return nil, err
	}
	return img, nil
}

// EncodeJPEG encodes a bitmap as JPEG at the configured quality
func (p *Processor) EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: p.config.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveImage saves an image to a file. The format is taken from the argument,
// or from the file extension when format is empty.
func (p *Processor) SaveImage(img image.Image, path, format string) error {
	if format == "" {
		if i := strings.LastIndex(path, "."); i >= 0 {
			format = path[i+1:]
		}
	}

	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Quality: float32(p.config.JPEGQuality)})
	case "png":
		return imaging.Save(img, path)
	case "jpg", "jpeg", "":
		return imaging.Save(img, path, imaging.JPEGQuality(p.config.JPEGQuality))
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
}

// GetImageInfo returns basic information about an image
func (p *Processor) GetImageInfo(img image.Image) ImageInfo {
	b := img.Bounds()
	info := ImageInfo{Width: b.Dx(), Height: b.Dy(), Area: b.Dx() * b.Dy()}
	if b.Dy() > 0 {
		info.AspectRatio = float64(b.Dx()) / float64(b.Dy())
	}
	return info
}

// ValidateImage checks if an image meets minimum requirements
func (p *Processor) ValidateImage(img image.Image) error {
	if img == nil {
		return fmt.Errorf("nil image")
	}
	b := img.Bounds()
	if b.Dx() < p.config.MinImageSize || b.Dy() < p.config.MinImageSize {
		return fmt.Errorf("%w: %dx%d (minimum: %d)", ErrImageTooSmall, b.Dx(), b.Dy(), p.config.MinImageSize)
	}
	return nil
}

func (p *Processor) isFormatSupported(format string) bool {
	for _, supported := range p.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}
