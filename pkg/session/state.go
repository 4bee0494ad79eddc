// Package session holds the document and ID card workflows. Each workflow is
// an explicit state value advanced by a pure reducer; PageSession and
// CardSession wrap those reducers with capture, recognition and export.
package session

import (
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/doc-scanner/pkg/cropper"
	"github.com/menta2k/doc-scanner/pkg/exporter"
	"github.com/menta2k/doc-scanner/pkg/processing"
	"github.com/menta2k/doc-scanner/pkg/types"
)

var (
	// ErrNothingStaged is returned when an event needs a staged image and there is none
	ErrNothingStaged = errors.New("no image staged")

	// ErrPageIndex is returned for an index outside the page list
	ErrPageIndex = errors.New("page index out of range")

	// ErrIncompleteCard is returned when exporting a card with a missing side
	ErrIncompleteCard = exporter.ErrIncompleteCard
)

// Page is one committed page. Image is Original with Filter applied; filters
// are always re-derived from Original.
type Page struct {
	Original *image.NRGBA
	Image    *image.NRGBA
	Filter   types.FilterKind
}

// PageState is the document workflow. Staged holds a captured or uploaded
// image not yet committed; Cropping is set while it awaits a crop decision.
type PageState struct {
	Pages        []Page
	Current      int
	Staged       *image.NRGBA
	Cropping     bool
	ActiveFilter types.FilterKind
}

// NewPageState returns the empty document state
func NewPageState() PageState {
	return PageState{ActiveFilter: types.FilterOriginal}
}

// Empty reports whether there is neither a staged image nor any page
func (s PageState) Empty() bool {
	return s.Staged == nil && len(s.Pages) == 0
}

// Images returns the filtered page images in export order
func (s PageState) Images() []image.Image {
	out := make([]image.Image, len(s.Pages))
	for i, p := range s.Pages {
		out[i] = p.Image
	}
	return out
}

// PageEvent is an input to ReducePage
type PageEvent interface {
	pageEvent()
}

// Stage puts a captured or uploaded image up for cropping
type Stage struct{ Image image.Image }

// CropConfirm crops the staged image to Region, in native pixels. The region
// is clamped to the image bounds.
type CropConfirm struct{ Region types.CropRegion }

// CropCancel keeps the staged image as is
type CropCancel struct{}

// Commit appends the staged image as a new page
type Commit struct{}

// ApplyFilter re-derives page Index from its original with Kind
type ApplyFilter struct {
	Index int
	Kind  types.FilterKind
}

// DeletePage removes page Index
type DeletePage struct{ Index int }

// SetCurrent selects page Index
type SetCurrent struct{ Index int }

// ResetPages clears the whole document
type ResetPages struct{}

func (Stage) pageEvent()       {}
func (CropConfirm) pageEvent() {}
func (CropCancel) pageEvent()  {}
func (Commit) pageEvent()      {}
func (ApplyFilter) pageEvent() {}
func (DeletePage) pageEvent()  {}
func (SetCurrent) pageEvent()  {}
func (ResetPages) pageEvent()  {}

// ReducePage applies ev to s and returns the next state. s is not modified;
// on error the returned state equals s.
func ReducePage(s PageState, ev PageEvent) (PageState, error) {
	switch ev := ev.(type) {
	case Stage:
		if ev.Image == nil || ev.Image.Bounds().Empty() {
			return s, fmt.Errorf("stage: %w", ErrNothingStaged)
		}
		s.Staged = imaging.Clone(ev.Image)
		s.Cropping = true
		return s, nil

	case CropConfirm:
		if s.Staged == nil {
			return s, fmt.Errorf("crop: %w", ErrNothingStaged)
		}
		cropped, err := cropper.Crop(s.Staged, ev.Region)
		if err != nil {
			return s, err
		}
		s.Staged = cropped
		s.Cropping = false
		return s, nil

	case CropCancel:
		s.Cropping = false
		return s, nil

	case Commit:
		if s.Staged == nil {
			return s, fmt.Errorf("commit: %w", ErrNothingStaged)
		}
		pages := make([]Page, len(s.Pages), len(s.Pages)+1)
		copy(pages, s.Pages)
		s.Pages = append(pages, Page{Original: s.Staged, Image: s.Staged, Filter: types.FilterOriginal})
		s.Current = len(s.Pages) - 1
		s.Staged = nil
		s.Cropping = false
		s.ActiveFilter = types.FilterOriginal
		return s, nil

	case ApplyFilter:
		if ev.Index < 0 || ev.Index >= len(s.Pages) {
			return s, ErrPageIndex
		}
		kind := ev.Kind
		if kind == "" {
			kind = types.FilterOriginal
		}
		page := s.Pages[ev.Index]
		img := page.Original
		if kind != types.FilterOriginal {
			filtered, err := processing.ApplyFilter(page.Original, kind)
			if err != nil {
				return s, err
			}
			img = filtered
		}
		pages := make([]Page, len(s.Pages))
		copy(pages, s.Pages)
		pages[ev.Index] = Page{Original: page.Original, Image: img, Filter: kind}
		s.Pages = pages
		s.ActiveFilter = kind
		return s, nil

	case DeletePage:
		if ev.Index < 0 || ev.Index >= len(s.Pages) {
			return s, ErrPageIndex
		}
		pages := make([]Page, 0, len(s.Pages)-1)
		pages = append(pages, s.Pages[:ev.Index]...)
		pages = append(pages, s.Pages[ev.Index+1:]...)
		s.Pages = pages
		s.Current = max(0, ev.Index-1)
		return s, nil

	case SetCurrent:
		if ev.Index < 0 || ev.Index >= len(s.Pages) {
			return s, ErrPageIndex
		}
		s.Current = ev.Index
		s.ActiveFilter = s.Pages[ev.Index].Filter
		return s, nil

	case ResetPages:
		return NewPageState(), nil
	}
	return s, fmt.Errorf("unknown page event %T", ev)
}

// CardStep is the side the next capture fills
type CardStep string

const (
	StepFront CardStep = "front"
	StepBack  CardStep = "back"
)

// CardState is the ID card workflow. Sides are kept unfiltered; ColorMode is
// applied only when the card is combined.
type CardState struct {
	Front     *image.NRGBA
	Back      *image.NRGBA
	ColorMode types.ColorMode
	Step      CardStep
}

// NewCardState returns an empty card waiting for its front
func NewCardState() CardState {
	return CardState{ColorMode: types.ColorModeColor, Step: StepFront}
}

// Complete reports whether both sides are present
func (s CardState) Complete() bool {
	return s.Front != nil && s.Back != nil
}

// CardEvent is an input to ReduceCard
type CardEvent interface {
	cardEvent()
}

// CaptureSide fills the side named by the current step
type CaptureSide struct{ Image image.Image }

// SetStep selects which side the next capture fills
type SetStep struct{ Step CardStep }

// SetColorMode selects the combined output style
type SetColorMode struct{ Mode types.ColorMode }

// ResetCard clears both sides
type ResetCard struct{}

func (CaptureSide) cardEvent()  {}
func (SetStep) cardEvent()      {}
func (SetColorMode) cardEvent() {}
func (ResetCard) cardEvent()    {}

// ReduceCard applies ev to s and returns the next state. Capturing the front
// advances to the back; capturing the back does not advance further.
func ReduceCard(s CardState, ev CardEvent) (CardState, error) {
	switch ev := ev.(type) {
	case CaptureSide:
		if ev.Image == nil || ev.Image.Bounds().Empty() {
			return s, fmt.Errorf("capture %s: %w", s.Step, ErrNothingStaged)
		}
		img := imaging.Clone(ev.Image)
		if s.Step == StepBack {
			s.Back = img
		} else {
			s.Front = img
			s.Step = StepBack
		}
		return s, nil

	case SetStep:
		if ev.Step != StepFront && ev.Step != StepBack {
			return s, fmt.Errorf("unknown card step %q", ev.Step)
		}
		s.Step = ev.Step
		return s, nil

	case SetColorMode:
		if ev.Mode != types.ColorModeColor && ev.Mode != types.ColorModeGrayscale {
			return s, fmt.Errorf("unknown color mode %q", ev.Mode)
		}
		s.ColorMode = ev.Mode
		return s, nil

	case ResetCard:
		return NewCardState(), nil
	}
	return s, fmt.Errorf("unknown card event %T", ev)
}
