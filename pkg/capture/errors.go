package capture

import (
	"errors"
	"fmt"
)

// Capture failure kinds
var (
	// ErrPermissionDenied is returned when the user or platform refuses camera access.
	ErrPermissionDenied = errors.New("camera permission denied")

	// ErrDeviceNotFound is returned when no camera matches the request.
	ErrDeviceNotFound = errors.New("no camera device found")

	// ErrDeviceBusy is returned when the camera is held by another process.
	ErrDeviceBusy = errors.New("camera is in use by another application")

	// ErrUnsupportedConstraints is returned when the device cannot satisfy the requested profile.
	ErrUnsupportedConstraints = errors.New("camera does not support the requested constraints")

	// ErrInsecureContext is returned when capture is attempted outside a secure transport context.
	ErrInsecureContext = errors.New("camera access requires a secure context")

	// ErrCancelled is returned when acquisition is aborted before a stream is produced.
	ErrCancelled = errors.New("camera request was cancelled")

	// ErrNotReady is returned when a frame is requested before the stream is live and decodable.
	ErrNotReady = errors.New("camera is not ready")

	// ErrUnsupported is returned when a capability such as the torch is absent.
	ErrUnsupported = errors.New("capability not supported by this camera")
)

var suggestions = map[error]string{
	ErrPermissionDenied:       "Allow camera access in your settings, or use file upload instead.",
	ErrDeviceNotFound:         "No camera was found. Please upload a file instead.",
	ErrDeviceBusy:             "Close other applications using the camera and try again, or upload a file.",
	ErrUnsupportedConstraints: "This camera does not support the requested mode. Please upload a file instead.",
	ErrInsecureContext:        "Camera access needs a secure (HTTPS or local) connection. Please upload a file instead.",
	ErrCancelled:              "Camera request was cancelled. Try again or upload a file.",
	ErrNotReady:               "Wait for the camera preview to appear before capturing.",
	ErrUnsupported:            "This camera has no flash.",
}

// CaptureError wraps a capture failure with the operation that produced it.
type CaptureError struct {
	// Op is the operation that failed (e.g., "Start", "CaptureFrame").
	Op string

	// Err is the underlying error, normally one of the sentinel errors above.
	Err error

	// Details provides additional context such as the profile being tried.
	Details string
}

// Error implements the error interface.
func (e *CaptureError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("capture: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("capture: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CaptureError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *CaptureError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// Suggestion returns a corrective hint suitable for showing to the user.
func (e *CaptureError) Suggestion() string {
	return Suggestion(e)
}

// NewCaptureError creates a new CaptureError.
func NewCaptureError(op string, err error, details string) *CaptureError {
	return &CaptureError{Op: op, Err: err, Details: details}
}

// WrapCaptureError wraps err as a CaptureError if it isn't already one.
func WrapCaptureError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var capErr *CaptureError
	if errors.As(err, &capErr) {
		return err
	}

	return NewCaptureError(op, err, details)
}

// Suggestion maps any capture error to a user-facing hint.
func Suggestion(err error) string {
	for kind, hint := range suggestions {
		if errors.Is(err, kind) {
			return hint
		}
	}
	return "Could not access camera. Please upload a file instead."
}

// ErrorFromName maps a platform media error name to a capture error kind.
// Unknown names are returned as plain errors carrying the message.
func ErrorFromName(name, message string) error {
	var kind error
	switch name {
	case "NotAllowedError", "PermissionDeniedError":
		kind = ErrPermissionDenied
	case "NotFoundError", "DevicesNotFoundError":
		kind = ErrDeviceNotFound
	case "NotReadableError", "TrackStartError":
		kind = ErrDeviceBusy
	case "OverconstrainedError", "ConstraintNotSatisfiedError":
		kind = ErrUnsupportedConstraints
	case "SecurityError":
		kind = ErrInsecureContext
	case "AbortError":
		kind = ErrCancelled
	default:
		if message == "" {
			message = name
		}
		return errors.New(message)
	}
	if message == "" {
		return kind
	}
	return fmt.Errorf("%w: %s", kind, message)
}

// retryable reports whether the next constraint profile should be tried
func retryable(err error) bool {
	return errors.Is(err, ErrUnsupportedConstraints) || errors.Is(err, ErrDeviceNotFound)
}
