// Package exporter assembles scanned pages into PDF documents and hands them
// to a share surface, falling back to a download.
package exporter

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/menta2k/doc-scanner/pkg/processing"
)

const (
	footerFontSize = 8
	textFontSize   = 12
	textColumnMM   = 180
	textMarginMM   = 10
	textHeading    = "Scanned Text:"
	textFontFamily = "text"
)

// ErrEmptyExport is returned when there is nothing to export
var ErrEmptyExport = errors.New("nothing to export: add at least one page or some text")

// BuildPDF renders one A4 page per image, scaled to the page width, followed
// by the text on one or more pages when text is not blank. The text uses the
// core Helvetica font, which covers cp1252 only: other characters are written
// as '?'. Use an Exporter with WithTextFont for other scripts.
func BuildPDF(pages []image.Image, text string) ([]byte, error) {
	return buildPDF(processing.NewProcessor(), nil, pages, text)
}

// buildPDF writes the text with the UTF-8 TrueType font ttf when given
func buildPDF(proc *processing.Processor, ttf []byte, pages []image.Image, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if len(pages) == 0 && text == "" {
		return nil, ErrEmptyExport
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreator("doc-scanner", true)
	pdf.SetAutoPageBreak(false, 0)
	pageW, pageH := pdf.GetPageSize()

	for i, img := range pages {
		if img == nil || img.Bounds().Empty() {
			return nil, fmt.Errorf("page %d: empty image", i+1)
		}
		data, err := proc.EncodeJPEG(img)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i+1, err)
		}

		pdf.AddPage()
		name := fmt.Sprintf("page-%d", i+1)
		opts := fpdf.ImageOptions{ImageType: "JPG"}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))

		b := img.Bounds()
		h := float64(b.Dy()) * pageW / float64(b.Dx())
		pdf.ImageOptions(name, 0, 0, pageW, h, false, opts, 0, "")

		if h+5 <= pageH {
			pdf.SetFont("Helvetica", "", footerFontSize)
			pdf.SetXY(0, h+2)
			pdf.CellFormat(pageW, 5, fmt.Sprintf("Page %d of %d", i+1, len(pages)), "", 0, "C", false, 0, "")
		}
	}

	if text != "" {
		family, tr := "Helvetica", pdf.UnicodeTranslatorFromDescriptor("")
		if len(ttf) > 0 {
			pdf.AddUTF8FontFromBytes(textFontFamily, "", ttf)
			family, tr = textFontFamily, func(s string) string { return s }
		}
		pdf.SetMargins(textMarginMM, textMarginMM, pageW-textMarginMM-textColumnMM)
		pdf.SetAutoPageBreak(true, 15)
		pdf.AddPage()
		pdf.SetFont(family, "", textFontSize)
		pdf.Text(textMarginMM, 20, textHeading)
		pdf.SetXY(textMarginMM, 25)
		pdf.MultiCell(textColumnMM, 6, tr(text), "", "L", false)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("failed to build PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}
