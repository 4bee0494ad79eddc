package processing

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/doc-scanner/pkg/types"
)

const (
	// Threshold is the luma above which a black-and-white pixel becomes white
	Threshold = 128

	enhanceBrightness = 1.2
	enhanceContrast   = 1.3
)

// contrastFactor maps the enhance contrast through 259*(255c+255) / (255*(259-255c)).
// For c = 1.3 the factor is negative, so the enhanced filter produces an inverted,
// high-contrast grayscale.
var contrastFactor = (259 * (enhanceContrast*255 + 255)) / (255 * (259 - enhanceContrast*255))

// Luma returns 0.299R + 0.587G + 0.114B. Integer weights keep equal-channel
// inputs exact (128,128,128 yields exactly 128).
func Luma(r, g, b uint8) float64 {
	return float64(299*int(r)+587*int(g)+114*int(b)) / 1000
}

// ApplyFilter returns a new bitmap with the filter applied. The source is never
// modified; FilterOriginal returns a copy.
func ApplyFilter(img image.Image, kind types.FilterKind) (*image.NRGBA, error) {
	if img == nil {
		return nil, fmt.Errorf("nil image")
	}

	switch kind {
	case types.FilterOriginal, "":
		return imaging.Clone(img), nil
	case types.FilterGrayscale:
		return imaging.AdjustFunc(img, grayscalePixel), nil
	case types.FilterBlackAndWhite:
		return imaging.AdjustFunc(img, thresholdPixel), nil
	case types.FilterEnhanced:
		return imaging.AdjustFunc(img, enhancePixel), nil
	default:
		return nil, fmt.Errorf("unknown filter: %s", kind)
	}
}

func grayscalePixel(c color.NRGBA) color.NRGBA {
	v := clampByte(Luma(c.R, c.G, c.B))
	return color.NRGBA{R: v, G: v, B: v, A: c.A}
}

func thresholdPixel(c color.NRGBA) color.NRGBA {
	var v uint8
	if Luma(c.R, c.G, c.B) > Threshold {
		v = 255
	}
	return color.NRGBA{R: v, G: v, B: v, A: c.A}
}

func enhancePixel(c color.NRGBA) color.NRGBA {
	v := clampByte(EnhancedValue(Luma(c.R, c.G, c.B)))
	return color.NRGBA{R: v, G: v, B: v, A: c.A}
}

// EnhancedValue applies the enhance contrast and brightness to a luma value,
// centered at 128. The result is not clamped.
func EnhancedValue(luma float64) float64 {
	return (contrastFactor*(luma-128) + 128) * enhanceBrightness
}

// clampByte stores v the way a clamped 8-bit canvas buffer does: halves round
// to even
func clampByte(v float64) uint8 {
	return uint8(clamp(math.RoundToEven(v), 0, 255))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
