package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func createTestImage(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), 0, 255})
		}
	}
	return img
}

// failingDevice returns the configured error for every Open call
type failingDevice struct {
	mu    sync.Mutex
	errs  []error
	calls []Constraints
}

func (d *failingDevice) ID() string { return "failing" }

func (d *failingDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, c)
	i := len(d.calls) - 1
	if i >= len(d.errs) {
		i = len(d.errs) - 1
	}
	return nil, d.errs[i]
}

func newTestSession(d Device, opts ...Option) *Session {
	base := []Option{WithArbiter(NewArbiter()), WithLogger(zerolog.Nop())}
	return NewSession(d, append(base, opts...)...)
}

func TestStartAndCapture(t *testing.T) {
	dev := NewStillDevice("cam0", createTestImage(64, 48))
	s := newTestSession(dev)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.State() != StateLive {
		t.Fatalf("expected live, got %s", s.State())
	}
	if s.Profile().Name != "preferred" {
		t.Errorf("expected preferred profile, got %q", s.Profile().Name)
	}

	frame, err := s.CaptureFrame(context.Background())
	if err != nil {
		t.Fatalf("CaptureFrame failed: %v", err)
	}
	if frame.Bounds().Dx() != 64 || frame.Bounds().Dy() != 48 {
		t.Errorf("expected 64x48, got %v", frame.Bounds())
	}
	if s.State() != StateLive {
		t.Errorf("expected live after capture, got %s", s.State())
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if dev.OpenStreams() != 0 {
		t.Errorf("expected no open streams, got %d", dev.OpenStreams())
	}
}

func TestStartFallsBackToMinimalProfile(t *testing.T) {
	dev := NewStillDevice("cam0", createTestImage(8, 8))
	dev.Unsupported = []Constraints{{FacingMode: FacingEnvironment, Width: 1920, Height: 1080}}
	s := newTestSession(dev)

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	if s.Profile().Name != "minimal" {
		t.Errorf("expected minimal profile, got %q", s.Profile().Name)
	}
	if !dev.LastConstraints().Minimal() {
		t.Errorf("expected minimal constraints, got %+v", dev.LastConstraints())
	}
}

func TestStartPermissionDenied(t *testing.T) {
	dev := &failingDevice{errs: []error{ErrorFromName("NotAllowedError", "Permission denied")}}
	s := newTestSession(dev)

	err := s.Start(context.Background())
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if s.State() != StateIdle {
		t.Errorf("expected idle, got %s", s.State())
	}
	if len(dev.calls) != 1 {
		t.Errorf("permission failure should not retry, got %d attempts", len(dev.calls))
	}
	if s.HasLight() {
		t.Error("idle session reports a light")
	}

	var capErr *CaptureError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected *CaptureError, got %T", err)
	}
	if !strings.Contains(strings.ToLower(capErr.Suggestion()), "camera access") {
		t.Errorf("suggestion does not mention permission: %q", capErr.Suggestion())
	}
}

func TestStartAllProfilesFail(t *testing.T) {
	dev := &failingDevice{errs: []error{ErrUnsupportedConstraints, ErrDeviceNotFound}}
	s := newTestSession(dev)

	err := s.Start(context.Background())
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("expected device not found, got %v", err)
	}
	if len(dev.calls) != 2 {
		t.Errorf("expected 2 attempts, got %d", len(dev.calls))
	}
	if s.State() != StateIdle {
		t.Errorf("expected idle, got %s", s.State())
	}
}

func TestStartInsecureContext(t *testing.T) {
	dev := NewStillDevice("cam0", createTestImage(8, 8))
	s := newTestSession(dev, WithSecureContext(false))

	if err := s.Start(context.Background()); !errors.Is(err, ErrInsecureContext) {
		t.Fatalf("expected insecure context error, got %v", err)
	}
	if dev.OpenStreams() != 0 {
		t.Error("stream opened in insecure context")
	}
}

func TestCaptureNotReady(t *testing.T) {
	s := newTestSession(NewStillDevice("cam0", createTestImage(8, 8)))

	if _, err := s.CaptureFrame(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected not ready, got %v", err)
	}
}

func TestStopIdempotent(t *testing.T) {
	dev := NewStillDevice("cam0", createTestImage(8, 8))
	s := newTestSession(dev)

	if err := s.Stop(); err != nil {
		t.Errorf("Stop on idle session failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Stop(); err != nil {
			t.Errorf("Stop #%d failed: %v", i, err)
		}
	}
	if dev.OpenStreams() != 0 {
		t.Errorf("expected no open streams, got %d", dev.OpenStreams())
	}
}

func TestToggleLight(t *testing.T) {
	dev := NewStillDevice("cam0", createTestImage(8, 8))
	s := newTestSession(dev)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.ToggleLight(true); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected unsupported, got %v", err)
	}
	s.Stop()

	dev.Torch = true
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	if !s.HasLight() {
		t.Error("expected torch capability")
	}
	if err := s.ToggleLight(true); err != nil {
		t.Errorf("ToggleLight failed: %v", err)
	}
}

func TestArbiterStopsPreviousSession(t *testing.T) {
	arb := NewArbiter()
	dev := NewStillDevice("cam0", createTestImage(8, 8))
	first := newTestSession(dev, WithArbiter(arb))
	second := newTestSession(dev, WithArbiter(arb))

	if err := first.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := second.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	if first.State() != StateIdle {
		t.Errorf("first session should be stopped, got %s", first.State())
	}
	if arb.Owner("cam0") != second {
		t.Error("second session should own the device")
	}
	if dev.OpenStreams() != 1 {
		t.Errorf("expected exactly one open stream, got %d", dev.OpenStreams())
	}

	second.Stop()
	if arb.Owner("cam0") != nil {
		t.Error("device still owned after stop")
	}
}

func TestCaptureOnceReleasesCamera(t *testing.T) {
	dev := NewStillDevice("cam0", createTestImage(30, 20))
	dev.Rotation = 90
	s := newTestSession(dev)

	frame, err := s.CaptureOnce(context.Background())
	if err != nil {
		t.Fatalf("CaptureOnce failed: %v", err)
	}
	if frame.Bounds().Dx() != 20 || frame.Bounds().Dy() != 30 {
		t.Errorf("expected rotated 20x30 frame, got %v", frame.Bounds())
	}
	if s.State() != StateIdle || dev.OpenStreams() != 0 {
		t.Error("camera not released after CaptureOnce")
	}
}

func TestUpright(t *testing.T) {
	img := createTestImage(30, 20)

	tests := []struct {
		orientation int
		w, h        int
	}{
		{0, 30, 20},
		{90, 20, 30},
		{180, 30, 20},
		{270, 20, 30},
		{-90, 20, 30},
	}

	for _, tt := range tests {
		out := Upright(img, tt.orientation)
		if out.Bounds().Dx() != tt.w || out.Bounds().Dy() != tt.h {
			t.Errorf("Upright(%d): expected %dx%d, got %v", tt.orientation, tt.w, tt.h, out.Bounds())
		}
	}

	// sensor at 90 degrees clockwise: the top-left source pixel ends up top-right
	out := Upright(img, 90)
	if c := out.NRGBAAt(19, 0); c.R != 0 || c.G != 0 {
		t.Errorf("unexpected pixel after rotation: %+v", c)
	}
}

func TestErrorFromName(t *testing.T) {
	tests := []struct {
		name string
		want error
	}{
		{"NotAllowedError", ErrPermissionDenied},
		{"NotFoundError", ErrDeviceNotFound},
		{"NotReadableError", ErrDeviceBusy},
		{"OverconstrainedError", ErrUnsupportedConstraints},
		{"SecurityError", ErrInsecureContext},
		{"AbortError", ErrCancelled},
	}

	for _, tt := range tests {
		if err := ErrorFromName(tt.name, ""); !errors.Is(err, tt.want) {
			t.Errorf("ErrorFromName(%s) = %v, want %v", tt.name, err, tt.want)
		}
	}

	if err := ErrorFromName("TypeError", "boom"); err == nil || err.Error() != "boom" {
		t.Errorf("unexpected error for unknown name: %v", err)
	}
}
