//go:build !ocr

package tesseract

import (
	"context"

	"github.com/menta2k/doc-scanner/pkg/ocr"
)

// Available reports whether Tesseract support was compiled in.
// Rebuild with -tags ocr to enable it.
func Available() bool {
	return false
}

// NewFactory returns a factory that always fails with ocr.ErrUnavailable
func NewFactory() ocr.Factory {
	return func(ctx context.Context, language string) (ocr.Backend, error) {
		return nil, ocr.ErrUnavailable
	}
}
