// Package liveerr defines the error kinds surfaced by the live session core.
//
// Every failure is either absorbed locally (a dropped frame or message) or
// returned exactly once as one of these kinds. Use errors.Is against the
// sentinels or errors.As against the concrete types.
package liveerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds for errors.Is.
var (
	ErrConnection        = errors.New("connection error")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrDecode            = errors.New("decode error")
)

// ConnectionError reports a failure to open or use the session connection.
type ConnectionError struct {
	Op  string // "dial", "setup", "write", "read"
	URL string // redacted endpoint
	Err error
}

func (e *ConnectionError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("connection %s %s: %v", e.Op, e.URL, e.Err)
	}
	return fmt.Sprintf("connection %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *ConnectionError) Unwrap() error { return e.Err }

// Is matches ErrConnection.
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// DeviceUnavailableError reports a microphone, camera or screen that could not be acquired.
type DeviceUnavailableError struct {
	Device string // "microphone", "camera", "screen", "speaker"
	Err    error
}

func (e *DeviceUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Device, e.Err)
}

// Unwrap returns the underlying device error.
func (e *DeviceUnavailableError) Unwrap() error { return e.Err }

// Is matches ErrDeviceUnavailable.
func (e *DeviceUnavailableError) Is(target error) bool { return target == ErrDeviceUnavailable }

// DecodeError reports a malformed inbound payload. The offending message is dropped.
type DecodeError struct {
	What string // "message", "audio", "pcm"
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.What, e.Err)
}

// Unwrap returns the underlying parse error.
func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches ErrDecode.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Connection wraps err as a ConnectionError.
func Connection(op, url string, err error) error {
	return &ConnectionError{Op: op, URL: url, Err: err}
}

// DeviceUnavailable wraps err as a DeviceUnavailableError.
func DeviceUnavailable(device string, err error) error {
	return &DeviceUnavailableError{Device: device, Err: err}
}

// Decode wraps err as a DecodeError.
func Decode(what string, err error) error {
	return &DecodeError{What: what, Err: err}
}
