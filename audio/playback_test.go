package audio

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/royans/GeminiLiveSupport/liveerr"
)

type scheduled struct {
	samples []float32
	at      float64
	onEnded func()
}

// fakeSink records scheduled segments against a test-controlled clock.
type fakeSink struct {
	mu          sync.Mutex
	now         float64
	resumed     bool
	resumeErr   error
	scheduleErr error
	closed      bool
	segments    []scheduled
}

func (f *fakeSink) Resume(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumed = f.resumeErr == nil
	return f.resumeErr
}

func (f *fakeSink) CurrentTime() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeSink) SampleRate() int { return DefaultPlaybackSampleRate }

func (f *fakeSink) Schedule(samples []float32, at float64, onEnded func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduleErr != nil {
		err := f.scheduleErr
		f.scheduleErr = nil
		return err
	}
	f.segments = append(f.segments, scheduled{samples: samples, at: at, onEnded: onEnded})
	return nil
}

func (f *fakeSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSink) setTime(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

func (f *fakeSink) scheduledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.segments)
}

func (f *fakeSink) segment(i int) scheduled {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.segments[i]
}

// pcmSamples returns n samples of PCM16 silence.
func pcmSamples(n int) []byte {
	return make([]byte, n*BytesPerSample)
}

func newTestScheduler(t *testing.T) (*PlaybackScheduler, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	s := NewPlaybackScheduler(sink)
	require.NoError(t, s.Initialize(context.Background()))
	require.True(t, sink.resumed)
	return s, sink
}

func TestPlaybackScheduler_BackToBack(t *testing.T) {
	s, sink := newTestScheduler(t)

	// 2400 samples at 24 kHz is 100 ms.
	require.NoError(t, s.StreamAudio(pcmSamples(2400)))
	require.NoError(t, s.StreamAudio(pcmSamples(4800)))

	require.Equal(t, 1, sink.scheduledCount(), "only one segment outstanding at a time")
	assert.Equal(t, 0.0, sink.segment(0).at)
	assert.InDelta(t, 0.1, s.Cursor(), 1e-9)
	assert.Equal(t, 1, s.Queued())
	assert.True(t, s.IsPlaying())

	// The first segment's completion arrives slightly early by the sink clock.
	sink.setTime(0.08)
	sink.segment(0).onEnded()

	require.Equal(t, 2, sink.scheduledCount())
	assert.InDelta(t, 0.1, sink.segment(1).at, 1e-9, "starts exactly at the previous end")
	assert.InDelta(t, 0.3, s.Cursor(), 1e-9)

	sink.setTime(0.3)
	sink.segment(1).onEnded()
	assert.False(t, s.IsPlaying())
	assert.Equal(t, 0, s.Queued())
}

func TestPlaybackScheduler_UnderrunStartsAtSinkTime(t *testing.T) {
	s, sink := newTestScheduler(t)

	require.NoError(t, s.StreamAudio(pcmSamples(2400)))
	sink.setTime(0.1)
	sink.segment(0).onEnded()
	assert.False(t, s.IsPlaying())

	sink.setTime(2.5)
	require.NoError(t, s.StreamAudio(pcmSamples(2400)))
	require.Equal(t, 2, sink.scheduledCount())
	assert.InDelta(t, 2.5, sink.segment(1).at, 1e-9)
	assert.InDelta(t, 2.6, s.Cursor(), 1e-9)
}

func TestPlaybackScheduler_StopKeepsCursorAndIgnoresStaleCompletion(t *testing.T) {
	s, sink := newTestScheduler(t)

	require.NoError(t, s.StreamAudio(pcmSamples(2400)))
	require.NoError(t, s.StreamAudio(pcmSamples(2400)))
	require.NoError(t, s.StreamAudio(pcmSamples(2400)))
	cursor := s.Cursor()

	s.Stop()
	assert.Equal(t, 0, s.Queued())
	assert.False(t, s.IsPlaying())
	assert.Equal(t, cursor, s.Cursor())

	// The segment handed over before Stop completes; it must not restart the loop.
	sink.setTime(0.1)
	sink.segment(0).onEnded()
	assert.Equal(t, 1, sink.scheduledCount())
	assert.False(t, s.IsPlaying())

	sink.setTime(0.02)
	require.NoError(t, s.StreamAudio(pcmSamples(2400)))
	require.Equal(t, 2, sink.scheduledCount())
	assert.GreaterOrEqual(t, sink.segment(1).at, cursor)
}

func TestPlaybackScheduler_StaleCompletionAfterRestart(t *testing.T) {
	s, sink := newTestScheduler(t)

	require.NoError(t, s.StreamAudio(pcmSamples(2400)))
	s.Stop()
	require.NoError(t, s.StreamAudio(pcmSamples(2400)))
	require.NoError(t, s.StreamAudio(pcmSamples(2400)))
	require.Equal(t, 2, sink.scheduledCount())

	// Completion of the pre-Stop segment must not pull the queued one early.
	sink.segment(0).onEnded()
	assert.Equal(t, 2, sink.scheduledCount())
	assert.Equal(t, 1, s.Queued())

	sink.segment(1).onEnded()
	assert.Equal(t, 3, sink.scheduledCount())
}

func TestPlaybackScheduler_IgnoredBeforeInitialize(t *testing.T) {
	sink := &fakeSink{}
	s := NewPlaybackScheduler(sink)

	require.NoError(t, s.StreamAudio(pcmSamples(100)))
	assert.Equal(t, 0, sink.scheduledCount())
	assert.Equal(t, 0, s.Queued())
	assert.False(t, s.IsPlaying())
}

func TestPlaybackScheduler_MalformedInput(t *testing.T) {
	s, sink := newTestScheduler(t)

	err := s.StreamAudio([]byte{1, 2, 3})
	require.Error(t, err)
	assert.ErrorIs(t, err, liveerr.ErrDecode)
	assert.Equal(t, 0, sink.scheduledCount())
	assert.False(t, s.IsPlaying())
}

func TestPlaybackScheduler_DecodesSamples(t *testing.T) {
	s, sink := newTestScheduler(t)

	require.NoError(t, s.StreamAudio([]byte{0x00, 0x40, 0x00, 0xC0}))
	assert.Equal(t, []float32{0.5, -0.5}, sink.segment(0).samples)
}

func TestPlaybackScheduler_CustomSampleRate(t *testing.T) {
	sink := &fakeSink{}
	s := NewPlaybackScheduler(sink, WithSampleRate(16000))
	require.NoError(t, s.Initialize(context.Background()))

	require.NoError(t, s.StreamAudio(pcmSamples(1600)))
	assert.InDelta(t, 0.1, s.Cursor(), 1e-9)
}

func TestPlaybackScheduler_ScheduleFailureMovesOn(t *testing.T) {
	s, sink := newTestScheduler(t)

	require.NoError(t, s.StreamAudio(pcmSamples(2400)))
	require.NoError(t, s.StreamAudio(pcmSamples(2400)))

	sink.mu.Lock()
	sink.scheduleErr = errors.New("device lost")
	sink.mu.Unlock()
	require.NoError(t, s.StreamAudio(pcmSamples(2400)))

	sink.segment(0).onEnded()
	require.Equal(t, 2, sink.scheduledCount())
	assert.True(t, s.IsPlaying())
}

func TestPlaybackScheduler_InitializeFailure(t *testing.T) {
	s := NewPlaybackScheduler(&fakeSink{resumeErr: errors.New("no output")})
	err := s.Initialize(context.Background())
	assert.ErrorIs(t, err, liveerr.ErrDeviceUnavailable)
}

func TestPlaybackScheduler_Close(t *testing.T) {
	s, sink := newTestScheduler(t)
	require.NoError(t, s.StreamAudio(pcmSamples(2400)))

	require.NoError(t, s.Close())
	assert.True(t, sink.closed)
	assert.False(t, s.IsPlaying())

	require.NoError(t, s.StreamAudio(pcmSamples(2400)))
	assert.Equal(t, 1, sink.scheduledCount())
}
