package capture

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"github.com/menta2k/doc-scanner/internal/logger"
)

// State is the lifecycle state of a capture session
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateLive
	StateCapturing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateLive:
		return "live"
	case StateCapturing:
		return "capturing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Option configures a Session
type Option func(*Session)

// WithProfiles replaces the ordered list of constraint profiles
func WithProfiles(profiles ...Profile) Option {
	return func(s *Session) {
		if len(profiles) > 0 {
			s.profiles = profiles
		}
	}
}

// WithSecureContext records whether the caller runs in a secure transport context
func WithSecureContext(secure bool) Option {
	return func(s *Session) {
		s.secure = secure
	}
}

// WithArbiter sets the arbiter enforcing one live stream per device
func WithArbiter(a *Arbiter) Option {
	return func(s *Session) {
		s.arbiter = a
	}
}

// WithLogger sets the session logger
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// Session owns the lifecycle of one live capture stream:
// Idle -> Requesting -> Live -> (Capturing) -> Live | Idle.
type Session struct {
	mu       sync.Mutex
	device   Device
	profiles []Profile
	secure   bool
	arbiter  *Arbiter
	logger   zerolog.Logger

	state   State
	stream  Stream
	profile Profile
	gen     uint64
}

// NewSession creates an idle session on device
func NewSession(device Device, opts ...Option) *Session {
	s := &Session{
		device:   device,
		profiles: DefaultProfiles(FacingEnvironment, 1920, 1080),
		secure:   true,
		arbiter:  DefaultArbiter,
		logger:   logger.WithComponent("capture"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Profile returns the profile the live stream was opened with
func (s *Session) Profile() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// HasLight reports whether the live stream exposes a torch
func (s *Session) HasLight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil && s.stream.HasTorch()
}

// Start acquires a stream, trying each profile in order. Only unsupported
// constraints and missing devices move on to the next profile; every other
// failure ends the attempt. On failure the session is Idle and holds nothing.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateLive || s.state == StateCapturing {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateRequesting {
		s.mu.Unlock()
		return NewCaptureError("Start", ErrDeviceBusy, "request already in progress")
	}
	if !s.secure {
		s.mu.Unlock()
		return NewCaptureError("Start", ErrInsecureContext, "")
	}
	if s.device == nil {
		s.mu.Unlock()
		return NewCaptureError("Start", ErrDeviceNotFound, "")
	}
	s.state = StateRequesting
	gen := s.gen
	s.mu.Unlock()

	if s.arbiter != nil {
		s.arbiter.claim(s.device.ID(), s)
	}

	var (
		stream  Stream
		profile Profile
		err     error
	)
	for _, p := range s.profiles {
		stream, err = s.device.Open(ctx, p.Constraints)
		if err == nil {
			profile = p
			break
		}
		s.logger.Warn().Err(err).Str("device", s.device.ID()).Str("profile", p.Name).Msg("Camera profile rejected")
		if !retryable(err) {
			break
		}
	}

	s.mu.Lock()
	if err != nil {
		if s.gen == gen {
			s.state = StateIdle
		}
		s.mu.Unlock()
		s.releaseClaim()
		return WrapCaptureError("Start", err, "")
	}
	if s.gen != gen {
		// Stop was called while the request was in flight
		s.mu.Unlock()
		stream.Close()
		s.releaseClaim()
		return NewCaptureError("Start", ErrCancelled, "stopped during acquisition")
	}
	s.stream = stream
	s.profile = profile
	s.state = StateLive
	s.mu.Unlock()

	s.logger.Info().
		Str("device", s.device.ID()).
		Str("profile", profile.Name).
		Bool("torch", stream.HasTorch()).
		Msg("Camera started")
	return nil
}

// CaptureFrame grabs the current frame, rotated upright when the sensor is
// mounted at 90 or 270 degrees. It fails with ErrNotReady unless the session
// is Live and the stream has produced a decodable frame.
func (s *Session) CaptureFrame(ctx context.Context) (*image.NRGBA, error) {
	s.mu.Lock()
	if s.state != StateLive || s.stream == nil {
		s.mu.Unlock()
		return nil, NewCaptureError("CaptureFrame", ErrNotReady, "")
	}
	s.state = StateCapturing
	stream := s.stream
	s.mu.Unlock()

	frame, err := stream.Frame(ctx)

	s.mu.Lock()
	if s.state == StateCapturing {
		s.state = StateLive
	}
	s.mu.Unlock()

	if err != nil {
		return nil, WrapCaptureError("CaptureFrame", err, "")
	}
	if frame == nil || frame.Bounds().Empty() {
		return nil, NewCaptureError("CaptureFrame", ErrNotReady, "no decodable frame")
	}
	return Upright(frame, stream.Orientation()), nil
}

// ToggleLight switches the torch. It fails with ErrUnsupported when the
// stream has no torch.
func (s *Session) ToggleLight(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return NewCaptureError("ToggleLight", ErrNotReady, "")
	}
	if !s.stream.HasTorch() {
		return NewCaptureError("ToggleLight", ErrUnsupported, "torch")
	}
	if err := s.stream.SetTorch(on); err != nil {
		return WrapCaptureError("ToggleLight", err, "")
	}
	return nil
}

// Stop releases the stream and returns to Idle. It is safe to call from any
// state and any number of times; the session is Idle afterwards even when
// closing the stream fails.
func (s *Session) Stop() error {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.profile = Profile{}
	s.state = StateIdle
	s.gen++
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	s.releaseClaim()

	err := stream.Close()
	s.logger.Info().Str("device", s.device.ID()).Msg("Camera stopped")
	if err != nil {
		return WrapCaptureError("Stop", err, "")
	}
	return nil
}

func (s *Session) releaseClaim() {
	if s.arbiter != nil && s.device != nil {
		s.arbiter.release(s.device.ID(), s)
	}
}

// Run starts the session, calls fn and always stops the session afterwards
func (s *Session) Run(ctx context.Context, fn func(ctx context.Context, s *Session) error) (err error) {
	if err := s.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if stopErr := s.Stop(); err == nil {
			err = stopErr
		}
	}()
	return fn(ctx, s)
}

// CaptureOnce starts the camera, grabs one frame and releases the camera
func (s *Session) CaptureOnce(ctx context.Context) (*image.NRGBA, error) {
	var frame *image.NRGBA
	err := s.Run(ctx, func(ctx context.Context, s *Session) error {
		var err error
		frame, err = s.CaptureFrame(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// Upright rotates a frame captured from a sensor mounted at the given
// clockwise orientation. Only 90 and 270 degrees are corrected.
func Upright(frame image.Image, orientation int) *image.NRGBA {
	switch ((orientation % 360) + 360) % 360 {
	case 90:
		return imaging.Rotate270(frame)
	case 270:
		return imaging.Rotate90(frame)
	default:
		return imaging.Clone(frame)
	}
}
