package types

import (
	"fmt"
	"strings"
	"time"
)

// CropRegion is an axis-aligned rectangle in a bitmap's native pixel space
type CropRegion struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// FilterKind selects one of the fixed page filters
type FilterKind string

const (
	FilterOriginal      FilterKind = "original"
	FilterGrayscale     FilterKind = "grayscale"
	FilterBlackAndWhite FilterKind = "bw"
	FilterEnhanced      FilterKind = "magic"
)

// FilterKinds returns every supported filter in display order
func FilterKinds() []FilterKind {
	return []FilterKind{FilterOriginal, FilterGrayscale, FilterBlackAndWhite, FilterEnhanced}
}

// ParseFilterKind accepts the canonical names plus a few aliases used on the command line
func ParseFilterKind(s string) (FilterKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "original", "none":
		return FilterOriginal, nil
	case "grayscale", "gray", "grey":
		return FilterGrayscale, nil
	case "bw", "blackandwhite", "black-and-white", "threshold":
		return FilterBlackAndWhite, nil
	case "magic", "enhanced", "enhance":
		return FilterEnhanced, nil
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// ColorMode is the output style of a combined ID card
type ColorMode string

const (
	ColorModeColor     ColorMode = "color"
	ColorModeGrayscale ColorMode = "grayscale"
)

// BoundingBox is a pixel rectangle reported by the recognizer
type BoundingBox struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// Line is one recognized line of text
type Line struct {
	Text        string      `json:"text"`
	Confidence  float64     `json:"confidence"`
	BoundingBox BoundingBox `json:"bbox"`
}

// OCRResult is the outcome of recognizing a single bitmap.
// Confidence is in the 0..100 range.
type OCRResult struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Lines      []Line        `json:"lines"`
	Language   string        `json:"language,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Empty reports whether no text was found
func (r OCRResult) Empty() bool {
	return strings.TrimSpace(r.Text) == ""
}

// EnhancementStatus explains why an enhancement did or did not happen
type EnhancementStatus string

const (
	StatusEnhanced     EnhancementStatus = "enhanced"
	StatusTooShort     EnhancementStatus = "too_short"
	StatusOffline      EnhancementStatus = "offline"
	StatusDisabled     EnhancementStatus = "disabled"
	StatusUnconfigured EnhancementStatus = "unconfigured"
	StatusUnavailable  EnhancementStatus = "unavailable"
	StatusDeclined     EnhancementStatus = "declined"
	StatusRateLimited  EnhancementStatus = "rate_limited"
)

// EnhancementResult is returned by the text enhancer. When WasEnhanced is false
// Text equals OriginalText.
type EnhancementResult struct {
	Text          string            `json:"text"`
	WasEnhanced   bool              `json:"enhanced"`
	OriginalText  string            `json:"original,omitempty"`
	StatusMessage string            `json:"message,omitempty"`
	Status        EnhancementStatus `json:"status"`
	RetryAfter    time.Duration     `json:"retry_after,omitempty"`
}

// ScanType distinguishes document exports from ID card exports
type ScanType string

const (
	ScanTypeDocument ScanType = "document"
	ScanTypeIDCard   ScanType = "idcard"
)

// ScanRecord is an entry in the export history
type ScanRecord struct {
	ID        string    `json:"id"`
	Type      ScanType  `json:"type"`
	PageCount int       `json:"page_count"`
	Filename  string    `json:"filename"`
	OCRText   string    `json:"ocr_text,omitempty"`
	Date      time.Time `json:"date"`
}

// Phase names a stage of the recognition pipeline
type Phase string

const (
	PhaseOCR         Phase = "ocr"
	PhaseOCRComplete Phase = "ocr-complete"
	PhaseEnhancing   Phase = "enhancing"
	PhaseDone        Phase = "done"
)

// Progress is a single progress event. Value is in [0,1] within its phase.
type Progress struct {
	Phase Phase   `json:"phase"`
	Value float64 `json:"value"`
}
