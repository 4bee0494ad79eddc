package cropper

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/doc-scanner/pkg/types"
)

// ErrInvalidRegion is returned when a crop region has no area after clamping
var ErrInvalidRegion = errors.New("invalid crop region")

// DisplayRect is a selection made on a scaled, on-screen rendering of a bitmap
type DisplayRect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Size is a width/height pair
type Size struct {
	Width  int
	Height int
}

// SizeOf returns the dimensions of an image
func SizeOf(img image.Image) Size {
	b := img.Bounds()
	return Size{Width: b.Dx(), Height: b.Dy()}
}

// ScaleToNative converts a display selection into native pixel coordinates:
// every component is multiplied by naturalSize / displaySize on its axis.
func ScaleToNative(rect DisplayRect, display, natural Size) (types.CropRegion, error) {
	if display.Width <= 0 || display.Height <= 0 {
		return types.CropRegion{}, fmt.Errorf("invalid display size %dx%d", display.Width, display.Height)
	}
	scaleX := float64(natural.Width) / float64(display.Width)
	scaleY := float64(natural.Height) / float64(display.Height)

	return types.CropRegion{
		X:      int(math.Round(rect.X * scaleX)),
		Y:      int(math.Round(rect.Y * scaleY)),
		Width:  int(math.Round(rect.Width * scaleX)),
		Height: int(math.Round(rect.Height * scaleY)),
	}, nil
}

// Clamp restricts a region to 0 <= x,y and x+w <= width, y+h <= height.
// The result may have zero area.
func Clamp(region types.CropRegion, bounds Size) types.CropRegion {
	x0 := clampInt(region.X, 0, bounds.Width)
	y0 := clampInt(region.Y, 0, bounds.Height)
	x1 := clampInt(region.X+region.Width, x0, bounds.Width)
	y1 := clampInt(region.Y+region.Height, y0, bounds.Height)

	return types.CropRegion{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Crop copies the clamped region of img into a new bitmap of exactly
// region.Width x region.Height (after clamping). The source is never modified.
func Crop(img image.Image, region types.CropRegion) (*image.NRGBA, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrInvalidRegion)
	}
	size := SizeOf(img)
	clamped := Clamp(region, size)
	if clamped.Width <= 0 || clamped.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d at %d,%d on %dx%d image", ErrInvalidRegion,
			region.Width, region.Height, region.X, region.Y, size.Width, size.Height)
	}

	origin := img.Bounds().Min
	rect := image.Rect(
		origin.X+clamped.X,
		origin.Y+clamped.Y,
		origin.X+clamped.X+clamped.Width,
		origin.Y+clamped.Y+clamped.Height,
	)
	return imaging.Crop(img, rect), nil
}

// CropDisplay scales a display selection to native space and crops
func CropDisplay(img image.Image, rect DisplayRect, display Size) (*image.NRGBA, error) {
	region, err := ScaleToNative(rect, display, SizeOf(img))
	if err != nil {
		return nil, err
	}
	return Crop(img, region)
}

// FullRegion returns the region covering the whole image
func FullRegion(img image.Image) types.CropRegion {
	s := SizeOf(img)
	return types.CropRegion{Width: s.Width, Height: s.Height}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
