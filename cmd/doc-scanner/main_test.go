package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/doc-scanner/pkg/types"
)

func TestParseCrop(t *testing.T) {
	got, err := parseCrop("10, 20,300,400")
	if err != nil {
		t.Fatal(err)
	}
	if got != (types.CropRegion{X: 10, Y: 20, Width: 300, Height: 400}) {
		t.Errorf("unexpected region %+v", got)
	}

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "1,2,3,4,5"} {
		if _, err := parseCrop(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestPreview(t *testing.T) {
	if got := preview("short\ntext", 40); got != "short text" {
		t.Errorf("unexpected preview %q", got)
	}
	if got := preview("abcdefghij", 5); got != "abcd…" {
		t.Errorf("unexpected preview %q", got)
	}
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.png", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := expandInputs([]string{dir})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 images, got %v", got)
	}

	if _, err := expandInputs([]string{filepath.Join(dir, "missing.jpg")}); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := expandInputs([]string{t.TempDir()}); err == nil {
		t.Error("expected error for directory without images")
	}

	got, err = expandInputs([]string{"https://example.com/scan.png"})
	if err != nil || len(got) != 1 {
		t.Errorf("URL not passed through: %v %v", got, err)
	}
}

func TestNewRewriterBackends(t *testing.T) {
	saved := *cfg
	defer func() { *cfg = saved }()

	cfg.Server.Backend = "llamacpp"
	if c, err := newRewriter(); err != nil || c == nil {
		t.Errorf("llamacpp: %v", err)
	}
	cfg.Server.Backend = "ollama"
	if c, err := newRewriter(); err != nil || c == nil {
		t.Errorf("ollama: %v", err)
	}
	cfg.Server.Backend = "deepseek"
	cfg.Server.APIKey = ""
	if _, err := newRewriter(); err == nil {
		t.Error("deepseek without key should fail")
	}
	cfg.Server.Backend = "gpt"
	if _, err := newRewriter(); err == nil {
		t.Error("unknown backend should fail")
	}
}
