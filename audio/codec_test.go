package audio

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/royans/GeminiLiveSupport/liveerr"
)

func TestQuantizeSample(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"full scale positive clamps", 1.0, 32767},
		{"full scale negative", -1.0, -32768},
		{"above range", 1.5, 32767},
		{"below range", -2, -32768},
		{"half", 0.5, 16384},
		{"small negative floors", -0.00001, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, QuantizeSample(tt.in))
		})
	}
}

func TestFloat32ToPCM16_LittleEndian(t *testing.T) {
	pcm := Float32ToPCM16([]float32{0.5, -1})
	assert.Equal(t, []byte{0x00, 0x40, 0x00, 0x80}, pcm)
}

func TestPCM16ToFloat32_RoundTrip(t *testing.T) {
	in := []float32{0, 0.25, -0.25, 0.999, -1}
	out, err := PCM16ToFloat32(Float32ToPCM16(in))
	require.NoError(t, err)
	require.Len(t, out, len(in))
	for i := range in {
		assert.LessOrEqual(t, math.Abs(float64(in[i]-out[i])), 1.0/32768, "sample %d", i)
	}
}

func TestPCM16ToFloat32_OddLength(t *testing.T) {
	_, err := PCM16ToFloat32([]byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errors.Is(err, liveerr.ErrDecode))
}

func TestInt16RoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, math.MaxInt16, math.MinInt16}
	out, err := PCM16ToInt16(Int16ToPCM16(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestPayloadEncoding(t *testing.T) {
	data := []byte{0, 1, 2, 250, 255}
	decoded, err := DecodePayload(EncodePayload(data))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)

	_, err = DecodePayload("not base64!!")
	assert.ErrorIs(t, err, liveerr.ErrDecode)
}
