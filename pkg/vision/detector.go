// Package vision finds the sheet of paper in a photo so a crop can be
// suggested before the user adjusts it.
package vision

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/menta2k/doc-scanner/pkg/processing"
	"github.com/menta2k/doc-scanner/pkg/types"
)

// PageDetector locates a bright, low-saturation page on a darker background
type PageDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for page detection
type DetectionConfig struct {
	// CellSize is the side in pixels of the grid cells that are classified
	CellSize int
	// BrightnessThreshold is the luma (0-1) a paper cell must reach
	BrightnessThreshold float64
	// MaxSaturation is the channel spread (0-1) above which a cell is not paper
	MaxSaturation float64
	// MinPageRatio is the smallest page area accepted, relative to the image
	MinPageRatio float64
	// Margin in pixels added around the detected page
	Margin int
}

// New creates a new PageDetector with default configuration
func New() *PageDetector {
	return &PageDetector{
		config: DetectionConfig{
			CellSize:            8,
			BrightnessThreshold: 0.55,
			MaxSaturation:       0.25,
			MinPageRatio:        0.1,
			Margin:              0,
		},
	}
}

// NewWithConfig creates a new PageDetector with custom configuration
func NewWithConfig(config DetectionConfig) *PageDetector {
	if config.CellSize < 1 {
		config.CellSize = 1
	}
	return &PageDetector{config: config}
}

// Region is a detected page in image pixels. Score is the share of cells
// inside the region that were classified as paper.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// CropRegion converts the region for cropper.Crop
func (r Region) CropRegion() types.CropRegion {
	return types.CropRegion{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

// DetectPage returns the bounding box of the largest connected paper area.
// The second result is false when no area is large enough.
func (d *PageDetector) DetectPage(img image.Image) (Region, bool) {
	if img == nil {
		return Region{}, false
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	cell := d.config.CellSize
	cols, rows := (width+cell-1)/cell, (height+cell-1)/cell
	if cols == 0 || rows == 0 {
		return Region{}, false
	}

	// one pixel per cell, averaged
	grid := imaging.Resize(img, cols, rows, imaging.Box)
	paper := make([]bool, cols*rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			paper[y*cols+x] = d.isPaper(grid.NRGBAAt(x, y))
		}
	}

	best, bestCells := component{}, 0
	seen := make([]bool, len(paper))
	for i := range paper {
		if !paper[i] || seen[i] {
			continue
		}
		c := flood(paper, seen, cols, rows, i)
		if c.cells > bestCells {
			best, bestCells = c, c.cells
		}
	}
	if bestCells == 0 {
		return Region{}, false
	}

	r := Region{
		X:      best.x0 * cell,
		Y:      best.y0 * cell,
		Width:  (best.x1 - best.x0 + 1) * cell,
		Height: (best.y1 - best.y0 + 1) * cell,
		Score:  float64(bestCells) / float64((best.x1-best.x0+1)*(best.y1-best.y0+1)),
	}
	r = d.expand(r, width, height)

	if float64(r.Area()) < d.config.MinPageRatio*float64(width*height) {
		return Region{}, false
	}
	return r, true
}

func (d *PageDetector) isPaper(c color.NRGBA) bool {
	luma := processing.Luma(c.R, c.G, c.B) / 255
	hi := max(c.R, c.G, c.B)
	lo := min(c.R, c.G, c.B)
	return luma >= d.config.BrightnessThreshold && float64(hi-lo)/255 <= d.config.MaxSaturation
}

func (d *PageDetector) expand(r Region, width, height int) Region {
	m := d.config.Margin
	x0, y0 := max(0, r.X-m), max(0, r.Y-m)
	x1, y1 := min(width, r.X+r.Width+m), min(height, r.Y+r.Height+m)
	r.X, r.Y, r.Width, r.Height = x0, y0, x1-x0, y1-y0
	return r
}

type component struct {
	x0, y0, x1, y1 int
	cells          int
}

// flood collects the 4-connected paper cells reachable from start
func flood(paper, seen []bool, cols, rows, start int) component {
	c := component{x0: cols, y0: rows, x1: -1, y1: -1}
	stack := []int{start}
	seen[start] = true
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := i%cols, i/cols
		c.cells++
		c.x0, c.y0 = min(c.x0, x), min(c.y0, y)
		c.x1, c.y1 = max(c.x1, x), max(c.y1, y)

		for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
			nx, ny := n[0], n[1]
			if nx < 0 || ny < 0 || nx >= cols || ny >= rows {
				continue
			}
			j := ny*cols + nx
			if paper[j] && !seen[j] {
				seen[j] = true
				stack = append(stack, j)
			}
		}
	}
	return c
}
