package audio

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/royans/GeminiLiveSupport/liveerr"
	"github.com/royans/GeminiLiveSupport/logger"
	metrics "github.com/royans/GeminiLiveSupport/metrics/prometheus"
)

const (
	// DefaultRingFrames is the capacity of the capture hand-off ring.
	DefaultRingFrames = 32
	// DefaultFramesPerBuffer is the device block size requested from the input device.
	DefaultFramesPerBuffer = 512
)

// Frame is one outbound microphone frame.
type Frame struct {
	Seq     uint64
	PCM     []byte // FrameSamples little-endian PCM16 samples
	Payload string // base64 of PCM
}

// CaptureOption configures a CapturePipeline.
type CaptureOption func(*CapturePipeline)

// WithRingFrames sets the capacity of the hand-off ring.
func WithRingFrames(n int) CaptureOption {
	return func(p *CapturePipeline) {
		if n > 0 {
			p.ringFrames = n
		}
	}
}

// WithFramesPerBuffer sets the device block size.
func WithFramesPerBuffer(n int) CaptureOption {
	return func(p *CapturePipeline) {
		if n > 0 {
			p.cfg.FramesPerBuffer = n
		}
	}
}

// WithProcessing sets the echo cancellation and noise suppression requests.
func WithProcessing(echoCancellation, noiseSuppression bool) CaptureOption {
	return func(p *CapturePipeline) {
		p.cfg.EchoCancellation = echoCancellation
		p.cfg.NoiseSuppression = noiseSuppression
	}
}

// CapturePipeline turns microphone blocks into fixed-size PCM16 frames.
//
// The device callback quantizes into an accumulator and copies full frames
// into a lock-free ring. A drain goroutine encodes them and calls onFrame.
// The callback never blocks; when the ring is full the frame is dropped.
type CapturePipeline struct {
	dev        InputDevice
	cfg        InputConfig
	ringFrames int

	mu     sync.Mutex
	stream InputStream
	done   chan struct{}

	// callback-owned state
	acc   accumulator
	ring  *frameRing
	wake  chan struct{}
	flush func(frame *[FrameSamples]int16)

	active   atomic.Bool
	muted    atomic.Bool
	buffered atomic.Int64
	dropped  atomic.Uint64
	level    atomic.Uint64 // math.Float64bits of the last frame level

	dropWarn rate.Sometimes
}

// NewCapturePipeline creates a pipeline reading from dev at 16 kHz mono.
func NewCapturePipeline(dev InputDevice, opts ...CaptureOption) *CapturePipeline {
	p := &CapturePipeline{
		dev: dev,
		cfg: InputConfig{
			SampleRate:       CaptureSampleRate,
			Channels:         1,
			FramesPerBuffer:  DefaultFramesPerBuffer,
			EchoCancellation: true,
			NoiseSuppression: true,
		},
		ringFrames: DefaultRingFrames,
		dropWarn:   rate.Sometimes{Interval: time.Second},
	}
	p.flush = p.enqueue
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start acquires the microphone and begins delivering frames to onFrame,
// in capture order, from a dedicated goroutine. Starting an active
// pipeline is a no-op.
func (p *CapturePipeline) Start(ctx context.Context, onFrame func(Frame)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return nil
	}
	if p.dev == nil {
		return liveerr.DeviceUnavailable("microphone", errors.New("no input device"))
	}

	p.acc.reset()
	p.buffered.Store(0)
	p.dropped.Store(0)
	p.muted.Store(false)
	p.ring = newFrameRing(p.ringFrames)
	p.wake = make(chan struct{}, 1)

	stream, err := p.dev.Open(p.cfg, p.process)
	if err != nil {
		return liveerr.DeviceUnavailable("microphone", err)
	}
	p.logProcessing(stream.Config())

	done := make(chan struct{})
	p.active.Store(true)
	if err := stream.Start(); err != nil {
		p.active.Store(false)
		_ = stream.Close()
		return liveerr.DeviceUnavailable("microphone", err)
	}

	p.stream = stream
	p.done = done
	go p.drain(ctx, p.ring, p.wake, done, onFrame)

	logger.InfoContext(ctx, "🎙️ Microphone capture started",
		"sample_rate", p.cfg.SampleRate, "frame_samples", FrameSamples)
	return nil
}

func (p *CapturePipeline) logProcessing(got InputConfig) {
	if p.cfg.EchoCancellation && !got.EchoCancellation {
		logger.Debug("Input device does not support echo cancellation; continuing without it")
	}
	if p.cfg.NoiseSuppression && !got.NoiseSuppression {
		logger.Debug("Input device does not support noise suppression; continuing without it")
	}
}

// process runs on the device thread.
func (p *CapturePipeline) process(block []float32) {
	if !p.active.Load() {
		return
	}
	p.acc.push(block, p.muted.Load(), p.flush)
	p.buffered.Store(int64(p.acc.buffered()))
}

func (p *CapturePipeline) enqueue(frame *[FrameSamples]int16) {
	if !p.ring.push(frame) {
		p.dropped.Add(1)
		return
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *CapturePipeline) drain(ctx context.Context, ring *frameRing, wake, done <-chan struct{}, onFrame func(Frame)) {
	var (
		buf         [FrameSamples]int16
		seq         uint64
		lastDropped uint64
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-wake:
		}

		for ring.pop(&buf) {
			select {
			case <-done:
				return
			default:
			}
			p.level.Store(math.Float64bits(frameLevel(buf[:])))
			pcm := Int16ToPCM16(buf[:])
			onFrame(Frame{Seq: seq, PCM: pcm, Payload: EncodePayload(pcm)})
			seq++
			metrics.RecordCaptureFrames(metrics.StatusSuccess, 1)
		}

		if d := p.dropped.Load(); d != lastDropped {
			metrics.RecordCaptureFrames(metrics.StatusDropped, int(d-lastDropped))
			lastDropped = d
			p.dropWarn.Do(func() {
				logger.Warn("Capture ring full, dropping microphone frames", "dropped_total", d)
			})
		}
	}
}

// Stop releases the device and halts delivery. The partial frame is
// discarded. Stop does not wait for a frame already being delivered.
func (p *CapturePipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return
	}
	p.active.Store(false)
	if err := p.stream.Close(); err != nil {
		logger.Warn("Failed to close input stream", "error", err)
	}
	close(p.done)
	p.stream = nil
	p.done = nil
	p.buffered.Store(0)
	p.level.Store(0)

	if d := p.dropped.Load(); d > 0 {
		logger.Info("Microphone capture stopped", "dropped_frames", d)
	} else {
		logger.Info("Microphone capture stopped")
	}
}

// ToggleMic mutes or unmutes the microphone without releasing it and
// returns whether it is now enabled. While muted the pipeline produces
// silent frames. Without an active stream it returns false.
func (p *CapturePipeline) ToggleMic() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream == nil {
		return false
	}
	enabled := p.muted.Load()
	p.muted.Store(!enabled)
	logger.Debug("Microphone toggled", "enabled", enabled)
	return enabled
}

// IsRecording reports whether the microphone is acquired.
func (p *CapturePipeline) IsRecording() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream != nil
}

// IsMuted reports whether the microphone is muted.
func (p *CapturePipeline) IsMuted() bool {
	return p.muted.Load()
}

// Buffered returns the number of samples in the partial frame.
func (p *CapturePipeline) Buffered() int {
	return int(p.buffered.Load())
}

// Dropped returns the number of frames dropped because the ring was full.
func (p *CapturePipeline) Dropped() uint64 {
	return p.dropped.Load()
}

// Level returns the normalized energy (0..1) of the most recent frame.
func (p *CapturePipeline) Level() float64 {
	return math.Float64frombits(p.level.Load())
}

// frameLevel returns the mean absolute amplitude normalized so that typical
// speech (about 10000) reads as 1.0.
func frameLevel(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum int64
	for _, s := range samples {
		if s < 0 {
			sum -= int64(s)
		} else {
			sum += int64(s)
		}
	}
	normalized := float64(sum) / float64(len(samples)) / 10000.0
	if normalized > 1.0 {
		normalized = 1.0
	}
	return normalized
}
