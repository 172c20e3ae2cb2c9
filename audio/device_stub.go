//go:build !portaudio

package audio

import (
	"context"
	"errors"
)

// ErrNoAudioBackend is returned by the device constructors in builds
// without the portaudio tag.
var ErrNoAudioBackend = errors.New("built without audio device support (rebuild with -tags portaudio)")

// InitializeHost reports that no audio host is available.
func InitializeHost() (func() error, error) {
	return nil, ErrNoAudioBackend
}

// PortAudioInput is unavailable in this build.
type PortAudioInput struct{}

// NewPortAudioInput returns a device whose Open always fails.
func NewPortAudioInput() *PortAudioInput {
	return &PortAudioInput{}
}

// Open implements InputDevice.
func (PortAudioInput) Open(InputConfig, func([]float32)) (InputStream, error) {
	return nil, ErrNoAudioBackend
}

// PortAudioSink is unavailable in this build.
type PortAudioSink struct {
	sampleRate int
}

// NewPortAudioSink returns a sink whose Resume always fails.
func NewPortAudioSink(sampleRate int) *PortAudioSink {
	if sampleRate <= 0 {
		sampleRate = DefaultPlaybackSampleRate
	}
	return &PortAudioSink{sampleRate: sampleRate}
}

// Resume implements Sink.
func (s *PortAudioSink) Resume(context.Context) error { return ErrNoAudioBackend }

// CurrentTime implements Sink.
func (s *PortAudioSink) CurrentTime() float64 { return 0 }

// SampleRate implements Sink.
func (s *PortAudioSink) SampleRate() int { return s.sampleRate }

// Schedule implements Sink.
func (s *PortAudioSink) Schedule([]float32, float64, func()) error { return ErrNoAudioBackend }

// Close implements Sink.
func (s *PortAudioSink) Close() error { return nil }
