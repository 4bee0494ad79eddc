package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if c.Server.Window().Seconds() != 60 || c.Enhance.Timeout().Seconds() != 10 {
		t.Errorf("unexpected durations %s %s", c.Server.Window(), c.Enhance.Timeout())
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"OCR_BACKEND":      "gcv",
		"OCR_LANGUAGE":     "eng+fra",
		"DEEPSEEK_API_KEY": "sk-test",
		"ENHANCE_ENABLED":  "false",
		"STORE_DRIVER":     "postgres",
		"DATABASE_URL":     "postgres://localhost/scans",
		"LOG_LEVEL":        "debug",
		"PDF_FONT_FILE":    "/usr/share/fonts/DejaVuSans.ttf",
	}
	c := Default()
	if err := c.ApplyEnv(func(k string) string { return env[k] }); err != nil {
		t.Fatal(err)
	}

	if c.OCR.Backend != "gcv" || c.OCR.Language != "eng+fra" {
		t.Errorf("ocr not applied: %+v", c.OCR)
	}
	if c.Server.APIKey != "sk-test" || c.Enhance.Enabled {
		t.Errorf("server/enhance not applied: %+v %+v", c.Server, c.Enhance)
	}
	if c.Output.TextFontFile != "/usr/share/fonts/DejaVuSans.ttf" {
		t.Errorf("font not applied: %q", c.Output.TextFontFile)
	}
	if c.Log.Level != "debug" {
		t.Errorf("log level not applied: %s", c.Log.Level)
	}
	// untouched
	if c.Server.Addr != ":5000" {
		t.Errorf("unexpected addr %s", c.Server.Addr)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	bad := Default()
	if err := bad.ApplyEnv(func(k string) string {
		if k == "ENHANCE_ENABLED" {
			return "sometimes"
		}
		return ""
	}); err == nil {
		t.Error("expected error for malformed bool")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"quality", func(c *Config) { c.Processing.JPEGQuality = 0 }},
		{"formats", func(c *Config) { c.Processing.SupportedFormats = nil }},
		{"ocr backend", func(c *Config) { c.OCR.Backend = "paddle" }},
		{"rewrite backend", func(c *Config) { c.Server.Backend = "gpt" }},
		{"postgres without url", func(c *Config) { c.Store.Driver = "postgres" }},
		{"store driver", func(c *Config) { c.Store.Driver = "sqlite" }},
		{"rate limit", func(c *Config) { c.Server.RateLimit = 0 }},
	}
	for _, tt := range tests {
		c := Default()
		tt.mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tt.name)
		}
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	c := Default()
	c.OCR.Language = "deu"
	c.Server.APIKey = "secret"
	if err := c.SaveToFile(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.OCR.Language != "deu" {
		t.Errorf("expected deu, got %s", loaded.OCR.Language)
	}
	if loaded.Server.APIKey != "" {
		t.Error("secret persisted to disk")
	}

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
