package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
)

// Facing modes understood by devices
const (
	FacingEnvironment = "environment"
	FacingUser        = "user"
)

// Constraints describe the stream a device is asked to produce. A zero value
// means "any video stream".
type Constraints struct {
	FacingMode string
	Width      int
	Height     int
}

// Minimal reports whether no specific constraint is requested
func (c Constraints) Minimal() bool {
	return c == Constraints{}
}

// Profile is a named set of constraints tried during Start
type Profile struct {
	Name        string
	Constraints Constraints
}

// DefaultProfiles prefers the rear camera at width x height, then falls back
// to any video stream.
func DefaultProfiles(facing string, width, height int) []Profile {
	return []Profile{
		{Name: "preferred", Constraints: Constraints{FacingMode: facing, Width: width, Height: height}},
		{Name: "minimal", Constraints: Constraints{}},
	}
}

// Device opens video streams. Implementations translate platform failures into
// the sentinel errors of this package (see ErrorFromName).
type Device interface {
	ID() string
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Stream is a live video track
type Stream interface {
	// Frame returns the most recent decoded frame, or ErrNotReady if none has
	// been produced yet.
	Frame(ctx context.Context) (image.Image, error)
	// Orientation is the sensor rotation in degrees (0, 90, 180, 270).
	Orientation() int
	HasTorch() bool
	SetTorch(on bool) error
	// Close stops every underlying track. It must be safe to call more than once.
	Close() error
}

// StillDevice is a virtual camera that serves a fixed image, for library
// callers and tests without camera hardware.
type StillDevice struct {
	Name        string
	Image       image.Image
	Rotation    int
	Torch       bool
	Unsupported []Constraints

	mu      sync.Mutex
	open    int
	lastReq Constraints
}

// NewStillDevice creates a virtual camera serving img
func NewStillDevice(name string, img image.Image) *StillDevice {
	return &StillDevice{Name: name, Image: img}
}

// ID returns the device name
func (d *StillDevice) ID() string {
	return d.Name
}

// Open starts a stream unless the constraints are listed as unsupported
func (d *StillDevice) Open(ctx context.Context, c Constraints) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastReq = c
	for _, u := range d.Unsupported {
		if u == c {
			return nil, ErrUnsupportedConstraints
		}
	}
	if d.Image == nil {
		return nil, ErrDeviceNotFound
	}

	d.open++
	return &stillStream{device: d}, nil
}

// OpenStreams returns the number of streams not yet closed
func (d *StillDevice) OpenStreams() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// LastConstraints returns the constraints of the most recent Open call
func (d *StillDevice) LastConstraints() Constraints {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastReq
}

type stillStream struct {
	device *StillDevice
	once   sync.Once
	closed bool
	torch  bool
	mu     sync.Mutex
}

func (s *stillStream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrNotReady
	}
	return s.device.Image, nil
}

func (s *stillStream) Orientation() int {
	return s.device.Rotation
}

func (s *stillStream) HasTorch() bool {
	return s.device.Torch
}

func (s *stillStream) SetTorch(on bool) error {
	if !s.device.Torch {
		return ErrUnsupported
	}
	s.mu.Lock()
	s.torch = on
	s.mu.Unlock()
	return nil
}

func (s *stillStream) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.device.mu.Lock()
		s.device.open--
		s.device.mu.Unlock()
	})
	return nil
}
