package audio

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timelineSink drives a timeline from the test goroutine, running
// completions inline.
type timelineSink struct {
	tl     *timeline
	starts []int64
}

func (s *timelineSink) Resume(context.Context) error { return nil }

func (s *timelineSink) CurrentTime() float64 {
	return float64(s.tl.rendered) / float64(s.tl.sampleRate)
}

func (s *timelineSink) SampleRate() int { return s.tl.sampleRate }

func (s *timelineSink) Schedule(samples []float32, at float64, onEnded func()) error {
	start, done := s.tl.add(samples, at, onEnded)
	s.starts = append(s.starts, start)
	runAll(done)
	return nil
}

func (s *timelineSink) Close() error { return nil }

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

func TestTimeline_CompletionLeavesNoGap(t *testing.T) {
	tl := newTimeline(24000, 960)
	buf := make([]float32, 960)

	var endedA bool
	start, done := tl.add(constantBlock(2400, 0.25), 0, func() { endedA = true })
	assert.Equal(t, int64(0), start)
	assert.Empty(t, done)

	runAll(tl.render(buf))
	assert.False(t, endedA, "end is more than a buffer away")

	runAll(tl.render(buf))
	require.True(t, endedA, "end falls inside the next buffer")
	assert.Equal(t, int64(1920), tl.rendered)

	start, _ = tl.add(constantBlock(2400, 0.5), 0.1, nil)
	assert.Equal(t, int64(2400), start)

	runAll(tl.render(buf))
	assert.Equal(t, float32(0.25), buf[479])
	assert.Equal(t, float32(0.5), buf[480])
}

func TestTimeline_CompletionFiresOnce(t *testing.T) {
	tl := newTimeline(24000, 960)
	buf := make([]float32, 960)

	calls := 0
	_, done := tl.add(constantBlock(100, 1), 0, func() { calls++ })
	runAll(done)
	for range 3 {
		runAll(tl.render(buf))
	}
	assert.Equal(t, 1, calls)
	assert.Empty(t, tl.voices)
}

func TestTimeline_RoundsStartFrame(t *testing.T) {
	tl := newTimeline(24000, 960)

	assert.Equal(t, int64(2400), tl.frameAt(0.09999999))

	start, _ := tl.add(constantBlock(10, 1), 0.09999999, nil)
	assert.Equal(t, int64(2400), start)
}

func TestTimeline_ClampsToRenderPosition(t *testing.T) {
	tl := newTimeline(24000, 960)
	runAll(tl.render(make([]float32, 960)))

	start, _ := tl.add(constantBlock(10, 1), 0, nil)
	assert.Equal(t, int64(960), start)
}

func TestTimeline_SchedulerSegmentsAreContiguous(t *testing.T) {
	sink := &timelineSink{tl: newTimeline(DefaultPlaybackSampleRate, OutputFramesPerBuffer)}
	s := NewPlaybackScheduler(sink)
	require.NoError(t, s.Initialize(context.Background()))

	lengths := []int{1000, 2400, 500, 3000, 700}
	for _, n := range lengths {
		require.NoError(t, s.StreamAudio(pcmSamples(n)))
	}

	buf := make([]float32, OutputFramesPerBuffer)
	for range 20 {
		runAll(sink.tl.render(buf))
	}

	require.Len(t, sink.starts, len(lengths))
	assert.Equal(t, int64(0), sink.starts[0])
	for k := 1; k < len(lengths); k++ {
		assert.Equal(t, sink.starts[k-1]+int64(lengths[k-1]), sink.starts[k], "segment %d", k)
	}
	assert.False(t, s.IsPlaying())
	assert.Empty(t, sink.tl.voices)
}
