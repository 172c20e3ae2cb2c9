package liveerr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMatchSentinels(t *testing.T) {
	conn := Connection("dial", "wss://example", io.EOF)
	dev := DeviceUnavailable("camera", errors.New("permission denied"))
	dec := Decode("message", errors.New("bad json"))

	assert.ErrorIs(t, conn, ErrConnection)
	assert.ErrorIs(t, conn, io.EOF)
	assert.NotErrorIs(t, conn, ErrDecode)

	assert.ErrorIs(t, dev, ErrDeviceUnavailable)
	assert.ErrorIs(t, dec, ErrDecode)
}

func TestKindsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("start camera: %w", DeviceUnavailable("camera", io.ErrUnexpectedEOF))

	var devErr *DeviceUnavailableError
	assert.ErrorAs(t, err, &devErr)
	assert.Equal(t, "camera", devErr.Device)
	assert.Equal(t, "start camera: camera unavailable: unexpected EOF", err.Error())
}

func TestConnectionErrorMessage(t *testing.T) {
	assert.Equal(t, "connection write: boom", Connection("write", "", errors.New("boom")).Error())
	assert.Equal(t, "connection dial wss://h: boom", Connection("dial", "wss://h", errors.New("boom")).Error())
}
