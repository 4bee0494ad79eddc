package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/menta2k/doc-scanner/pkg/enhance"
	"github.com/menta2k/doc-scanner/pkg/ocr"
	"github.com/menta2k/doc-scanner/pkg/types"
)

const rawText = "Th1s is s0me OCR text from a scan"

type fakeBackend struct {
	text  string
	err   error
	block chan struct{}
}

func (b *fakeBackend) Recognize(ctx context.Context, img image.Image, progress ocr.ProgressFunc) (types.OCRResult, error) {
	if b.block != nil {
		<-b.block
	}
	progress(0.5)
	if b.err != nil {
		return types.OCRResult{}, b.err
	}
	return types.OCRResult{Text: b.text, Confidence: 87}, nil
}

func (b *fakeBackend) Close() error { return nil }

func newEngine(b *fakeBackend) *ocr.Engine {
	return ocr.NewEngine(func(ctx context.Context, language string) (ocr.Backend, error) {
		return b, nil
	}, ocr.WithLogger(zerolog.Nop()))
}

type fakeEnhancer struct {
	online bool
	calls  int32
	result func(text string) types.EnhancementResult
}

func (f *fakeEnhancer) Enhance(ctx context.Context, text string) types.EnhancementResult {
	atomic.AddInt32(&f.calls, 1)
	return f.result(text)
}

func (f *fakeEnhancer) Online() bool { return f.online }

func testImage() image.Image {
	return image.NewNRGBA(image.Rect(0, 0, 40, 20))
}

func drain(ch chan types.Progress) []types.Progress {
	var out []types.Progress
	for {
		select {
		case p := <-ch:
			out = append(out, p)
		default:
			return out
		}
	}
}

func enhanceServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct{ Text string }
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{"text": text, "enhanced": true, "original": req.Text})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProcessWithEnhancement(t *testing.T) {
	srv := enhanceServer(t, "This is some OCR text from a scan")
	nop := zerolog.Nop()
	enh := enhance.New(enhance.Config{Endpoint: srv.URL, Enabled: true, Logger: &nop})

	o := New(newEngine(&fakeBackend{text: rawText}), enh, WithLogger(nop))
	defer o.Close()

	progress := make(chan types.Progress, 32)
	res, err := o.Process(context.Background(), testImage(), Options{Enhance: true, Progress: progress})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !res.Enhanced || res.Text != "This is some OCR text from a scan" || res.OriginalText != rawText {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Confidence != 87 || res.Status != types.StatusEnhanced {
		t.Errorf("unexpected confidence/status %v %s", res.Confidence, res.Status)
	}

	events := drain(progress)
	var phases []types.Phase
	for _, e := range events {
		if len(phases) == 0 || phases[len(phases)-1] != e.Phase {
			phases = append(phases, e.Phase)
		}
	}
	want := []types.Phase{types.PhaseOCR, types.PhaseOCRComplete, types.PhaseEnhancing, types.PhaseDone}
	if len(phases) != len(want) {
		t.Fatalf("expected phases %v, got %v", want, phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d: expected %s, got %s", i, want[i], phases[i])
		}
	}

	last := -1.0
	for _, e := range events {
		if e.Phase != types.PhaseOCR {
			break
		}
		if e.Value < last {
			t.Errorf("ocr progress decreased: %v after %v", e.Value, last)
		}
		last = e.Value
	}
}

func TestProcessWithoutEnhancement(t *testing.T) {
	enh := &fakeEnhancer{online: true}
	o := New(newEngine(&fakeBackend{text: rawText}), enh)
	defer o.Close()

	res, err := o.Process(context.Background(), testImage(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != rawText || res.Enhanced || res.StatusMessage != MsgComplete || res.OriginalText != "" {
		t.Errorf("unexpected result %+v", res)
	}
	if enh.calls != 0 {
		t.Error("enhancer called without request")
	}
}

func TestProcessNoText(t *testing.T) {
	enh := &fakeEnhancer{online: true}
	o := New(newEngine(&fakeBackend{text: "  \n "}), enh)
	defer o.Close()

	res, err := o.Process(context.Background(), testImage(), Options{Enhance: true})
	if err != nil {
		t.Fatalf("expected soft result, got %v", err)
	}
	if res.Text != "" || res.Confidence != 0 || res.Enhanced || res.StatusMessage != MsgNoText {
		t.Errorf("unexpected result %+v", res)
	}
	if enh.calls != 0 {
		t.Error("enhancer called for empty text")
	}
}

func TestProcessFallbackReasons(t *testing.T) {
	nop := zerolog.Nop()
	offline := enhance.New(enhance.Config{Endpoint: "http://127.0.0.1:1", Enabled: true, Logger: &nop, Online: func() bool { return false }})
	disabled := enhance.New(enhance.Config{Endpoint: "http://127.0.0.1:1", Enabled: false, Logger: &nop})

	tests := []struct {
		name     string
		text     string
		enhancer Enhancer
		status   types.EnhancementStatus
		msg      string
	}{
		{"offline", rawText, offline, types.StatusOffline, enhance.MessageOffline},
		{"disabled", rawText, disabled, types.StatusDisabled, enhance.MessageDisabled},
		{"no enhancer", rawText, nil, types.StatusDisabled, enhance.MessageDisabled},
		{"too short", "0123456789", offline, types.StatusTooShort, enhance.MessageTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := New(newEngine(&fakeBackend{text: tt.text}), tt.enhancer)
			defer o.Close()

			res, err := o.Process(context.Background(), testImage(), Options{Enhance: true})
			if err != nil {
				t.Fatal(err)
			}
			if res.Enhanced || res.Text != tt.text || res.OriginalText != tt.text {
				t.Errorf("text not preserved: %+v", res)
			}
			if res.Status != tt.status || res.StatusMessage != tt.msg {
				t.Errorf("expected %s/%q, got %s/%q", tt.status, tt.msg, res.Status, res.StatusMessage)
			}
		})
	}
}

func TestProcessRateLimitedSurfacesRetry(t *testing.T) {
	enh := &fakeEnhancer{online: true, result: func(text string) types.EnhancementResult {
		return types.EnhancementResult{Text: text, OriginalText: text, Status: types.StatusRateLimited, StatusMessage: "Please try again in 30 seconds", RetryAfter: 30 * time.Second}
	}}
	o := New(newEngine(&fakeBackend{text: rawText}), enh)
	defer o.Close()

	res, err := o.Process(context.Background(), testImage(), Options{Enhance: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != types.StatusRateLimited || res.RetryAfter != 30*time.Second || res.Text != rawText {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestProcessUnavailable(t *testing.T) {
	o := New(ocr.NewEngine(nil), nil)
	defer o.Close()

	if _, err := o.Process(context.Background(), testImage(), Options{}); !errors.Is(err, ErrOCRUnavailable) {
		t.Errorf("expected ErrOCRUnavailable, got %v", err)
	}
	if o.Status().Available {
		t.Error("status reports available")
	}
}

func TestProcessRecognitionFailure(t *testing.T) {
	o := New(newEngine(&fakeBackend{err: errors.New("worker crashed")}), nil)
	defer o.Close()

	_, err := o.Process(context.Background(), testImage(), Options{})
	if !errors.Is(err, ocr.ErrRecognitionFailed) {
		t.Errorf("expected recognition failure, got %v", err)
	}

	// a failed run leaves the orchestrator usable
	if o.Status().Busy {
		t.Error("still busy after failure")
	}
}

func TestProcessRejectsConcurrentCall(t *testing.T) {
	b := &fakeBackend{text: rawText, block: make(chan struct{})}
	o := New(newEngine(b), nil)
	defer o.Close()

	done := make(chan error, 1)
	go func() {
		_, err := o.Process(context.Background(), testImage(), Options{})
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !o.Status().Busy {
		if time.Now().After(deadline) {
			t.Fatal("first call never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := o.Process(context.Background(), testImage(), Options{}); !errors.Is(err, ocr.ErrEngineBusy) {
		t.Errorf("expected ErrEngineBusy, got %v", err)
	}

	close(b.block)
	if err := <-done; err != nil {
		t.Errorf("first call failed: %v", err)
	}
}

func TestStatusAndClose(t *testing.T) {
	engine := newEngine(&fakeBackend{text: rawText})
	o := New(engine, &fakeEnhancer{online: false})

	st := o.Status()
	if !st.Available || st.WorkerInitialized || !st.Offline {
		t.Errorf("unexpected initial status %+v", st)
	}

	if _, err := o.Process(context.Background(), testImage(), Options{}); err != nil {
		t.Fatal(err)
	}
	if !o.Status().WorkerInitialized {
		t.Error("worker not initialized after Process")
	}

	if err := o.Close(); err != nil {
		t.Fatal(err)
	}
	if err := o.Close(); err != nil {
		t.Fatal(err)
	}
	if engine.Status().WorkerInitialized {
		t.Error("worker still alive after Close")
	}
}
