package audio

// accumulator quantizes float blocks into fixed-size frames.
// It is owned by the device callback and never allocates after construction.
type accumulator struct {
	buf [FrameSamples]int16
	n   int
}

// push quantizes block into the buffer, calling flush each time a full
// frame is available. Frames span block boundaries. When silent is true the
// samples are replaced by zeros.
func (a *accumulator) push(block []float32, silent bool, flush func(frame *[FrameSamples]int16)) {
	for _, s := range block {
		if silent {
			a.buf[a.n] = 0
		} else {
			a.buf[a.n] = QuantizeSample(s)
		}
		a.n++
		if a.n == FrameSamples {
			flush(&a.buf)
			a.n = 0
		}
	}
}

// reset discards any partial frame.
func (a *accumulator) reset() {
	a.n = 0
}

// buffered returns the number of samples in the partial frame.
func (a *accumulator) buffered() int {
	return a.n
}
