package audio

import "context"

// InputConfig describes the microphone stream the capture pipeline requests.
type InputConfig struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int

	// EchoCancellation and NoiseSuppression are requests. Devices that cannot
	// honour them report false in InputStream.Config.
	EchoCancellation bool
	NoiseSuppression bool
}

// InputDevice opens microphone streams.
type InputDevice interface {
	// Open prepares a stream that will deliver mono float blocks to process
	// once started. process runs on the device's real-time thread.
	Open(cfg InputConfig, process func(block []float32)) (InputStream, error)
}

// InputStream is an opened microphone stream.
type InputStream interface {
	Start() error
	// Close stops the stream and releases the device. No process call is
	// in flight or made after Close returns.
	Close() error
	// Config reports the settings actually in effect.
	Config() InputConfig
}

// Sink is an output device with its own clock, onto which sample buffers are
// scheduled at absolute times.
type Sink interface {
	// Resume makes the sink's clock run.
	Resume(ctx context.Context) error
	// CurrentTime returns the sink clock in seconds.
	CurrentTime() float64
	// SampleRate returns the output rate in Hz.
	SampleRate() int
	// Schedule plays samples starting at the given sink time. onEnded is
	// called once, asynchronously, when the segment's end is close enough
	// that a successor scheduled at that end still starts on time. It may
	// fire before the last sample is audible.
	Schedule(samples []float32, at float64, onEnded func()) error
	Close() error
}
