package audio

import (
	"context"
	"sync"

	"github.com/royans/GeminiLiveSupport/liveerr"
	"github.com/royans/GeminiLiveSupport/logger"
	metrics "github.com/royans/GeminiLiveSupport/metrics/prometheus"
)

// PlaybackOption configures a PlaybackScheduler.
type PlaybackOption func(*PlaybackScheduler)

// WithSampleRate sets the rate of inbound PCM16 audio.
func WithSampleRate(hz int) PlaybackOption {
	return func(s *PlaybackScheduler) {
		if hz > 0 {
			s.sampleRate = hz
		}
	}
}

// PlaybackScheduler plays inbound audio segments back to back on a Sink.
//
// Each segment starts at max(cursor, sink time) and advances the cursor by
// its duration, so segments never overlap and leave no gap while the queue
// is fed faster than real time. Scheduling is driven by segment completion:
// only one segment is outstanding on the sink at a time.
type PlaybackScheduler struct {
	sink       Sink
	sampleRate int

	mu          sync.Mutex
	queue       [][]float32
	cursor      float64
	playing     bool
	initialized bool
	generation  uint64
}

// NewPlaybackScheduler creates a scheduler for 24 kHz audio on sink.
func NewPlaybackScheduler(sink Sink, opts ...PlaybackOption) *PlaybackScheduler {
	s := &PlaybackScheduler{
		sink:       sink,
		sampleRate: DefaultPlaybackSampleRate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize starts the sink clock. Audio streamed before Initialize is ignored.
func (s *PlaybackScheduler) Initialize(ctx context.Context) error {
	if err := s.sink.Resume(ctx); err != nil {
		return liveerr.DeviceUnavailable("speaker", err)
	}
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	logger.DebugContext(ctx, "Playback scheduler initialized", "sample_rate", s.sampleRate)
	return nil
}

// StreamAudio decodes little-endian PCM16 and queues it for playback,
// starting the scheduling loop when idle. Odd-length input is rejected.
func (s *PlaybackScheduler) StreamAudio(pcm []byte) error {
	samples, err := PCM16ToFloat32(pcm)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		logger.Debug("Dropping audio received before playback was initialized", "bytes", len(pcm))
		return nil
	}
	if len(samples) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.queue = append(s.queue, samples)
	metrics.SetPlaybackQueueDepth(len(s.queue))
	if s.playing {
		s.mu.Unlock()
		return nil
	}
	s.playing = true
	gen := s.generation
	s.mu.Unlock()

	s.scheduleNext(gen)
	return nil
}

// scheduleNext hands the next queued segment to the sink, or ends the loop
// when the queue is empty. A call from a stale generation does nothing.
func (s *PlaybackScheduler) scheduleNext(gen uint64) {
	for {
		s.mu.Lock()
		if gen != s.generation {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.playing = false
			s.mu.Unlock()
			return
		}
		segment := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		metrics.SetPlaybackQueueDepth(len(s.queue))

		start := s.cursor
		if now := s.sink.CurrentTime(); now > start {
			start = now
		}
		s.cursor = start + float64(len(segment))/float64(s.sampleRate)
		s.mu.Unlock()

		err := s.sink.Schedule(segment, start, func() { s.scheduleNext(gen) })
		if err == nil {
			metrics.RecordPlaybackSegment()
			return
		}
		logger.Warn("Failed to schedule audio segment", "error", err)
	}
}

// Stop clears pending segments and ends the loop. Segments already handed
// to the sink finish playing; the cursor is kept.
func (s *PlaybackScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.playing = false
	s.generation++
	metrics.SetPlaybackQueueDepth(0)
}

// Close stops scheduling and releases the sink.
func (s *PlaybackScheduler) Close() error {
	s.Stop()
	s.mu.Lock()
	s.initialized = false
	s.mu.Unlock()
	return s.sink.Close()
}

// Cursor returns the sink time at which the next segment may start.
func (s *PlaybackScheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Queued returns the number of segments waiting to be scheduled.
func (s *PlaybackScheduler) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// IsPlaying reports whether the scheduling loop is running.
func (s *PlaybackScheduler) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}
