package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExportFilename(t *testing.T) {
	day := time.Date(2026, 3, 7, 23, 59, 0, 0, time.UTC)
	if got := ExportFilename("scan", day, "pdf"); got != "scan_2026-03-07.pdf" {
		t.Errorf("unexpected name %q", got)
	}
	if got := ExportFilename("idcard", day, ".pdf"); got != "idcard_2026-03-07.pdf" {
		t.Errorf("unexpected name %q", got)
	}
}

func TestPageFilename(t *testing.T) {
	if got := PageFilename("/in/receipt.png", "out", 0, "jpg"); got != filepath.Join("out", "receipt_p1.jpg") {
		t.Errorf("unexpected name %q", got)
	}
	if got := PageFilename("", "out", 2, ""); got != filepath.Join("out", "page_p3.jpg") {
		t.Errorf("unexpected name %q", got)
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()
	first := UniquePath(dir, "scan.pdf")
	if first != filepath.Join(dir, "scan.pdf") {
		t.Fatalf("unexpected path %q", first)
	}
	os.WriteFile(first, []byte("x"), 0o644)

	if second := UniquePath(dir, "scan.pdf"); second != filepath.Join(dir, "scan_1.pdf") {
		t.Errorf("unexpected path %q", second)
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := SanitizeFilename(" a/b:c?.pdf. "); got != "a_b_c_.pdf" {
		t.Errorf("unexpected %q", got)
	}
}

func TestFormatFileSize(t *testing.T) {
	tests := map[int64]string{512: "512 B", 2048: "2.0 KB", 5 << 20: "5.0 MB"}
	for in, want := range tests {
		if got := FormatFileSize(in); got != want {
			t.Errorf("%d: expected %q, got %q", in, want, got)
		}
	}
}

func TestIsImageFile(t *testing.T) {
	if !IsImageFile("a.JPG") || IsImageFile("a.pdf") {
		t.Error("unexpected classification")
	}
}
