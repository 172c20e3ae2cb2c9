package audio

import "math"

// OutputFramesPerBuffer is 40ms of audio at 24kHz.
const OutputFramesPerBuffer = 960

// voice is a segment placed on the output timeline.
type voice struct {
	samples  []float32
	start    int64 // absolute output frame
	onEnded  func()
	notified bool
}

func (v *voice) end() int64 { return v.start + int64(len(v.samples)) }

// timeline mixes segments placed at absolute frames into fixed-size output
// buffers. A segment's completion is released once its last frame falls
// within the next buffer to be rendered, so a successor scheduled from the
// completion lands on the timeline before the render position reaches it.
//
// timeline is not safe for concurrent use.
type timeline struct {
	sampleRate      int
	framesPerBuffer int

	voices   []*voice
	rendered int64
}

func newTimeline(sampleRate, framesPerBuffer int) *timeline {
	return &timeline{sampleRate: sampleRate, framesPerBuffer: framesPerBuffer}
}

// frameAt converts a sink time in seconds to the nearest output frame.
func (tl *timeline) frameAt(at float64) int64 {
	return int64(math.Round(at * float64(tl.sampleRate)))
}

// add places samples at time at, clamped to the render position. It returns
// the start frame and any completions already due.
func (tl *timeline) add(samples []float32, at float64, onEnded func()) (int64, []func()) {
	start := max(tl.frameAt(at), tl.rendered)
	tl.voices = append(tl.voices, &voice{samples: samples, start: start, onEnded: onEnded})
	return start, tl.due()
}

// render mixes every voice overlapping the next buffer into out, advances
// the render position by len(out), and returns the completions now due.
func (tl *timeline) render(out []float32) []func() {
	for i := range out {
		out[i] = 0
	}
	base := tl.rendered
	end := base + int64(len(out))

	for _, v := range tl.voices {
		from, to := max(v.start, base), min(v.end(), end)
		for t := from; t < to; t++ {
			out[t-base] += v.samples[t-v.start]
		}
	}
	tl.rendered = end
	done := tl.due()

	kept := tl.voices[:0]
	for _, v := range tl.voices {
		if v.end() > end {
			kept = append(kept, v)
		}
	}
	for i := len(kept); i < len(tl.voices); i++ {
		tl.voices[i] = nil
	}
	tl.voices = kept
	return done
}

// due marks and returns the completions of voices ending at or before the
// end of the next buffer.
func (tl *timeline) due() []func() {
	horizon := tl.rendered + int64(tl.framesPerBuffer)
	var done []func()
	for _, v := range tl.voices {
		if v.notified || v.end() > horizon {
			continue
		}
		v.notified = true
		if v.onEnded != nil {
			done = append(done, v.onEnded)
		}
	}
	return done
}

// reset drops every voice without reporting completions.
func (tl *timeline) reset() {
	tl.voices = nil
}
