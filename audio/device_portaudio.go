//go:build portaudio

package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/royans/GeminiLiveSupport/logger"
)

// InitializeHost initializes the PortAudio host API. The returned function
// terminates it.
func InitializeHost() (func() error, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return portaudio.Terminate, nil
}

// PortAudioInput opens the default PortAudio input device.
type PortAudioInput struct{}

// NewPortAudioInput returns the default microphone.
func NewPortAudioInput() *PortAudioInput {
	return &PortAudioInput{}
}

// Open implements InputDevice. PortAudio offers no echo cancellation or
// noise suppression, so the effective config reports both as off.
func (PortAudioInput) Open(cfg InputConfig, process func(block []float32)) (InputStream, error) {
	stream, err := portaudio.OpenDefaultStream(
		cfg.Channels, // input channels
		0,            // output channels
		float64(cfg.SampleRate),
		cfg.FramesPerBuffer,
		func(in, _ []float32) { process(in) },
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}
	effective := cfg
	effective.EchoCancellation = false
	effective.NoiseSuppression = false
	return &portAudioInputStream{stream: stream, cfg: effective}, nil
}

type portAudioInputStream struct {
	stream *portaudio.Stream
	cfg    InputConfig
}

func (s *portAudioInputStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	return nil
}

func (s *portAudioInputStream) Close() error {
	_ = s.stream.Stop()
	return s.stream.Close()
}

func (s *portAudioInputStream) Config() InputConfig { return s.cfg }

// PortAudioSink renders scheduled segments on the default output device.
// Its clock is the number of frames rendered since Resume.
type PortAudioSink struct {
	sampleRate int

	mu       sync.Mutex
	stream   *portaudio.Stream
	tl       *timeline
	ended    chan func()
	rendered atomic.Int64
}

// NewPortAudioSink creates a mono output sink at sampleRate.
func NewPortAudioSink(sampleRate int) *PortAudioSink {
	if sampleRate <= 0 {
		sampleRate = DefaultPlaybackSampleRate
	}
	return &PortAudioSink{
		sampleRate: sampleRate,
		tl:         newTimeline(sampleRate, OutputFramesPerBuffer),
	}
}

// Resume opens and starts the output stream if it is not running.
func (s *PortAudioSink) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream != nil {
		return nil
	}

	stream, err := portaudio.OpenDefaultStream(0, 1, float64(s.sampleRate), OutputFramesPerBuffer, s.render)
	if err != nil {
		return fmt.Errorf("failed to open output stream: %w", err)
	}
	s.ended = make(chan func(), 64)
	go dispatchEnded(s.ended)
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		close(s.ended)
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	s.stream = stream

	logger.DebugContext(ctx, "🔊 Output stream started", "sample_rate", s.sampleRate)
	return nil
}

func dispatchEnded(ch <-chan func()) {
	for fn := range ch {
		fn()
	}
}

// notifyLocked hands completions to the dispatch goroutine. Callers hold mu.
func (s *PortAudioSink) notifyLocked(done []func()) {
	for _, fn := range done {
		select {
		case s.ended <- fn:
		default:
			go fn()
		}
	}
}

// render is the output callback.
func (s *PortAudioSink) render(_, out []float32) {
	s.mu.Lock()
	done := s.tl.render(out)
	s.rendered.Store(s.tl.rendered)
	s.notifyLocked(done)
	s.mu.Unlock()
}

// CurrentTime implements Sink.
func (s *PortAudioSink) CurrentTime() float64 {
	return float64(s.rendered.Load()) / float64(s.sampleRate)
}

// SampleRate implements Sink.
func (s *PortAudioSink) SampleRate() int {
	return s.sampleRate
}

// Schedule implements Sink.
func (s *PortAudioSink) Schedule(samples []float32, at float64, onEnded func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil {
		return fmt.Errorf("output stream not running")
	}
	_, done := s.tl.add(samples, at, onEnded)
	s.notifyLocked(done)
	return nil
}

// Close stops the output stream. Pending completions are not delivered.
func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	if stream == nil {
		return nil
	}
	_ = stream.Stop()
	err := stream.Close()

	s.mu.Lock()
	s.tl.reset()
	close(s.ended)
	s.mu.Unlock()
	return err
}
