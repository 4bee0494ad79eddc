package exporter

import (
	"errors"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/menta2k/doc-scanner/pkg/processing"
	"github.com/menta2k/doc-scanner/pkg/types"
)

// CardGap is the vertical space between the two sides of a combined card
const CardGap = 20

var captionColor = color.NRGBA{R: 0x66, G: 0x66, B: 0x66, A: 0xff}

// ErrIncompleteCard is returned when a card side is missing
var ErrIncompleteCard = errors.New("both sides of the ID card are required")

// CombineCardSides stacks front above back on a white canvas as wide as the
// wider side and twice the taller side plus CardGap. Each side is stretched to
// that card size and captioned. In grayscale mode both sides are filtered
// first; the inputs are never modified.
func CombineCardSides(front, back image.Image, mode types.ColorMode) (*image.NRGBA, error) {
	if front == nil || back == nil || front.Bounds().Empty() || back.Bounds().Empty() {
		return nil, ErrIncompleteCard
	}

	if mode == types.ColorModeGrayscale {
		var err error
		if front, err = processing.ApplyFilter(front, types.FilterGrayscale); err != nil {
			return nil, err
		}
		if back, err = processing.ApplyFilter(back, types.FilterGrayscale); err != nil {
			return nil, err
		}
	}

	fb, bb := front.Bounds(), back.Bounds()
	cardW := max(fb.Dx(), bb.Dx())
	cardH := max(fb.Dy(), bb.Dy())

	canvas := imaging.New(cardW, cardH*2+CardGap, color.White)
	canvas = imaging.Paste(canvas, fit(front, cardW, cardH), image.Pt(0, 0))
	canvas = imaging.Paste(canvas, fit(back, cardW, cardH), image.Pt(0, cardH+CardGap))

	caption(canvas, "FRONT", cardW/2, cardH-10)
	caption(canvas, "BACK", cardW/2, canvas.Bounds().Dy()-10)
	return canvas, nil
}

func fit(img image.Image, w, h int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// caption draws text horizontally centred on cx with its baseline at y
func caption(dst *image.NRGBA, text string, cx, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(captionColor),
		Face: basicfont.Face7x13,
	}
	w := d.MeasureString(text).Ceil()
	d.Dot = fixed.P(cx-w/2, y)
	d.DrawString(text)
}
