// Package audio implements the client side of the duplex voice path:
// PCM16 framing, microphone capture, and gap-free playback scheduling.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/royans/GeminiLiveSupport/liveerr"
)

// Audio format constants for the live session.
const (
	// CaptureSampleRate is the microphone rate the server expects.
	CaptureSampleRate = 16000
	// DefaultPlaybackSampleRate is the rate of model audio.
	DefaultPlaybackSampleRate = 24000
	// FrameSamples is the number of samples in one outbound frame.
	FrameSamples = 2048
	// BytesPerSample is the PCM16 sample width.
	BytesPerSample = 2
	// PCMMimeType is the MIME type used for raw PCM audio chunks.
	PCMMimeType = "audio/pcm"
)

const pcmScale = 32768.0

// QuantizeSample converts a normalized float sample to int16.
// Values outside [-1, 1] are clamped first; 1.0 maps to 32767.
func QuantizeSample(f float32) int16 {
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	v := math.Floor(float64(f) * pcmScale)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// Float32ToPCM16 quantizes samples into little-endian PCM16 bytes.
func Float32ToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(QuantizeSample(s)))
	}
	return out
}

// Int16ToPCM16 serializes already-quantized samples.
func Int16ToPCM16(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}

// PCM16ToInt16 parses little-endian PCM16 bytes.
func PCM16ToInt16(pcm []byte) ([]int16, error) {
	if len(pcm)%BytesPerSample != 0 {
		return nil, liveerr.Decode("pcm16", fmt.Errorf("odd byte length %d", len(pcm)))
	}
	out := make([]int16, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
	}
	return out, nil
}

// PCM16ToFloat32 converts little-endian PCM16 bytes to floats in [-1, 1).
func PCM16ToFloat32(pcm []byte) ([]float32, error) {
	if len(pcm)%BytesPerSample != 0 {
		return nil, liveerr.Decode("pcm16", fmt.Errorf("odd byte length %d", len(pcm)))
	}
	out := make([]float32, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))) / pcmScale
	}
	return out, nil
}

// EncodePayload returns the base64 text form used on the wire.
func EncodePayload(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodePayload reverses EncodePayload.
func DecodePayload(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, liveerr.Decode("base64 payload", err)
	}
	return data, nil
}
