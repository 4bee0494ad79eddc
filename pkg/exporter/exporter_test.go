package exporter

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/menta2k/doc-scanner/pkg/store"
	"github.com/menta2k/doc-scanner/pkg/types"
)

func createTestImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 90, A: 255})
		}
	}
	return img
}

func pageCount(t *testing.T, data []byte) int {
	t.Helper()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("produced PDF is unreadable: %v", err)
	}
	return r.NumPage()
}

func TestBuildPDFPageCount(t *testing.T) {
	pages := []image.Image{createTestImage(400, 300), createTestImage(300, 400)}

	tests := []struct {
		name  string
		pages []image.Image
		text  string
		want  int
	}{
		{"images only", pages, "", 2},
		{"image and text", pages[:1], "Invoice 42\nTotal due: 10 EUR", 2},
		{"blank text ignored", pages, "  \n ", 2},
		{"text only", nil, "hello", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := BuildPDF(tt.pages, tt.text)
			if err != nil {
				t.Fatalf("BuildPDF failed: %v", err)
			}
			if got := pageCount(t, data); got != tt.want {
				t.Errorf("expected %d pages, got %d", tt.want, got)
			}
		})
	}
}

func TestBuildPDFLongTextSpansPages(t *testing.T) {
	text := strings.Repeat("A line of recognized text that goes on for a while.\n", 150)
	data, err := BuildPDF([]image.Image{createTestImage(100, 100)}, text)
	if err != nil {
		t.Fatal(err)
	}
	if got := pageCount(t, data); got < 3 {
		t.Errorf("expected text to wrap onto several pages, got %d pages", got)
	}
}

func TestBuildPDFWithTextFont(t *testing.T) {
	text := "Паспорт Ελληνικά naïve"
	e := New(WithTextFont(goregular.TTF))

	data, err := e.BuildPDF([]image.Image{createTestImage(100, 100)}, text)
	if err != nil {
		t.Fatalf("BuildPDF failed: %v", err)
	}
	if got := pageCount(t, data); got != 2 {
		t.Errorf("expected 2 pages, got %d", got)
	}
	if !bytes.Contains(data, []byte("/FontFile2")) {
		t.Error("TrueType font not embedded")
	}

	plain, err := BuildPDF([]image.Image{createTestImage(100, 100)}, text)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(plain, []byte("/FontFile2")) {
		t.Error("default text font should be the core font")
	}
}

func TestBuildPDFEmpty(t *testing.T) {
	if _, err := BuildPDF(nil, ""); !errors.Is(err, ErrEmptyExport) {
		t.Errorf("expected ErrEmptyExport, got %v", err)
	}
}

func TestCombineCardSidesDimensions(t *testing.T) {
	front := createTestImage(100, 60)
	back := createTestImage(80, 70)
	frontCopy := append([]uint8(nil), front.Pix...)

	for _, mode := range []types.ColorMode{types.ColorModeColor, types.ColorModeGrayscale} {
		out, err := CombineCardSides(front, back, mode)
		if err != nil {
			t.Fatal(err)
		}
		if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 70*2+CardGap {
			t.Errorf("%s: unexpected size %v", mode, out.Bounds())
		}
	}

	if !bytes.Equal(front.Pix, frontCopy) {
		t.Error("front image was modified")
	}
}

func TestCombineCardSidesGrayscale(t *testing.T) {
	out, err := CombineCardSides(createTestImage(50, 30), createTestImage(50, 30), types.ColorModeGrayscale)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] != out.Pix[i+1] || out.Pix[i+1] != out.Pix[i+2] {
			t.Fatalf("pixel %d not gray: %v", i/4, out.Pix[i:i+3])
		}
	}

	// gap between the sides stays white
	if c := out.NRGBAAt(25, 30+CardGap/2); c != (color.NRGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Errorf("expected white gap, got %v", c)
	}
}

func TestCombineCardSidesCaptions(t *testing.T) {
	white := image.NewNRGBA(image.Rect(0, 0, 120, 60))
	for i := range white.Pix {
		white.Pix[i] = 255
	}
	out, err := CombineCardSides(white, white, types.ColorModeColor)
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for y := 35; y < 52 && !found; y++ {
		for x := 40; x < 80; x++ {
			if out.NRGBAAt(x, y).R < 200 {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("FRONT caption not drawn")
	}
}

func TestCombineCardSidesIncomplete(t *testing.T) {
	if _, err := CombineCardSides(createTestImage(10, 10), nil, types.ColorModeColor); !errors.Is(err, ErrIncompleteCard) {
		t.Errorf("expected ErrIncompleteCard, got %v", err)
	}
}

type fakeShare struct {
	err      error
	payloads []Payload
}

func (f *fakeShare) Share(ctx context.Context, p Payload) error {
	f.payloads = append(f.payloads, p)
	return f.err
}

type memDownloader struct {
	files map[string][]byte
}

func (d *memDownloader) Download(ctx context.Context, filename string, data []byte) (string, error) {
	if d.files == nil {
		d.files = make(map[string][]byte)
	}
	d.files[filename] = data
	return "mem://" + filename, nil
}

type memClipboard struct{ text string }

func (c *memClipboard) WriteText(ctx context.Context, text string) error {
	c.text = text
	return nil
}

var fixedDay = time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)

func newTestExporter(opts ...Option) *Exporter {
	base := []Option{WithClock(func() time.Time { return fixedDay }), WithLogger(zerolog.Nop())}
	return New(append(base, opts...)...)
}

func TestShareOrDownload(t *testing.T) {
	data := []byte("%PDF-1.3 fake")

	t.Run("shared", func(t *testing.T) {
		sh := &fakeShare{}
		dl := &memDownloader{}
		res, err := newTestExporter(WithShareSurface(sh), WithDownloader(dl)).ShareOrDownload(context.Background(), data, Metadata{Filename: "scan.pdf"})
		if err != nil {
			t.Fatal(err)
		}
		if res.Outcome != OutcomeShared || len(dl.files) != 0 {
			t.Errorf("unexpected result %+v", res)
		}
		p := sh.payloads[0]
		if p.Title != DefaultDocumentTitle || len(p.Files) != 1 || p.Files[0].MIMEType != MIMETypePDF {
			t.Errorf("unexpected payload %+v", p)
		}
	})

	for name, sh := range map[string]ShareSurface{
		"no surface": nil,
		"cancelled":  &fakeShare{err: ErrShareCancelled},
		"failed":     &fakeShare{err: errors.New("boom")},
	} {
		t.Run(name, func(t *testing.T) {
			dl := &memDownloader{}
			opts := []Option{WithDownloader(dl)}
			if sh != nil {
				opts = append(opts, WithShareSurface(sh))
			}
			res, err := newTestExporter(opts...).ShareOrDownload(context.Background(), data, Metadata{Filename: "scan.pdf"})
			if err != nil {
				t.Fatal(err)
			}
			if res.Outcome != OutcomeDownloaded || res.Location != "mem://scan.pdf" || !bytes.Equal(dl.files["scan.pdf"], data) {
				t.Errorf("unexpected result %+v", res)
			}
		})
	}

	if _, err := newTestExporter().ShareOrDownload(context.Background(), nil, Metadata{}); !errors.Is(err, ErrEmptyExport) {
		t.Errorf("expected ErrEmptyExport, got %v", err)
	}
}

func TestExportDocumentRecordsHistory(t *testing.T) {
	st := store.NewMemoryStore()
	sh := &fakeShare{}
	e := newTestExporter(WithShareSurface(sh), WithStore(st))

	res, err := e.ExportDocument(context.Background(), []image.Image{createTestImage(80, 60), createTestImage(80, 60)}, "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Filename != "scan_2026-10-15.pdf" {
		t.Errorf("unexpected filename %q", res.Filename)
	}
	if sh.payloads[0].Text != "Scanned document with 2 page(s)" {
		t.Errorf("unexpected share text %q", sh.payloads[0].Text)
	}

	recs, _ := st.List(context.Background(), store.ListOptions{})
	if len(recs) != 1 || recs[0].Type != types.ScanTypeDocument || recs[0].PageCount != 2 || recs[0].Filename != res.Filename {
		t.Errorf("unexpected history %+v", recs)
	}
	if got := pageCount(t, sh.payloads[0].Files[0].Data); got != 2 {
		t.Errorf("expected 2 pages, got %d", got)
	}
}

func TestExportIDCard(t *testing.T) {
	st := store.NewMemoryStore()
	dir := t.TempDir()
	e := newTestExporter(WithDownloader(DirDownloader{Dir: dir}), WithStore(st))

	res, err := e.ExportIDCard(context.Background(), createTestImage(90, 55), createTestImage(90, 55), types.ColorModeGrayscale)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeDownloaded || res.Filename != "idcard_2026-10-15.pdf" {
		t.Errorf("unexpected result %+v", res)
	}
	data, err := os.ReadFile(res.Location)
	if err != nil {
		t.Fatal(err)
	}
	if got := pageCount(t, data); got != 1 {
		t.Errorf("expected 1 page, got %d", got)
	}
	if res.Record == nil || res.Record.Type != types.ScanTypeIDCard || res.Record.PageCount != 1 {
		t.Errorf("unexpected record %+v", res.Record)
	}

	if _, err := e.ExportIDCard(context.Background(), createTestImage(9, 5), nil, types.ColorModeColor); !errors.Is(err, ErrIncompleteCard) {
		t.Errorf("expected ErrIncompleteCard, got %v", err)
	}
}

func TestShareText(t *testing.T) {
	ctx := context.Background()

	out, err := newTestExporter(WithShareSurface(&fakeShare{})).ShareText(ctx, "hello")
	if err != nil || out != OutcomeShared {
		t.Errorf("expected shared, got %s %v", out, err)
	}

	out, err = newTestExporter(WithShareSurface(&fakeShare{err: ErrShareCancelled})).ShareText(ctx, "hello")
	if err != nil || out != OutcomeCancelled {
		t.Errorf("expected cancelled, got %s %v", out, err)
	}

	cb := &memClipboard{}
	out, err = newTestExporter(WithClipboard(cb)).ShareText(ctx, "hello")
	if err != nil || out != OutcomeCopied || cb.text != "hello" {
		t.Errorf("expected copied, got %s %v %q", out, err, cb.text)
	}

	if _, err := newTestExporter().ShareText(ctx, "hello"); !errors.Is(err, ErrShareUnavailable) {
		t.Errorf("expected ErrShareUnavailable, got %v", err)
	}
	if _, err := newTestExporter(WithClipboard(cb)).ShareText(ctx, "  "); !errors.Is(err, ErrEmptyExport) {
		t.Errorf("expected ErrEmptyExport, got %v", err)
	}
}

func TestDirDownloaderDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	d := DirDownloader{Dir: dir}
	a, _ := d.Download(context.Background(), "scan.pdf", []byte("a"))
	b, _ := d.Download(context.Background(), "scan.pdf", []byte("b"))
	if a == b {
		t.Fatalf("second download overwrote the first: %s", a)
	}
}
