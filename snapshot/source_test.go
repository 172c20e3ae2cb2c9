package snapshot

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/royans/GeminiLiveSupport/liveerr"
	"github.com/royans/GeminiLiveSupport/telemetry"
)

func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	return img
}

type fakeTrack struct {
	img     image.Image
	grabErr error
	ended   chan struct{}
	once    sync.Once
	closed  atomic.Int32
}

func newFakeTrack(img image.Image) *fakeTrack {
	return &fakeTrack{img: img, ended: make(chan struct{})}
}

func (t *fakeTrack) Size() (int, int) {
	if t.img == nil {
		return 0, 0
	}
	b := t.img.Bounds()
	return b.Dx(), b.Dy()
}

func (t *fakeTrack) Grab() (image.Image, error) {
	if t.grabErr != nil {
		return nil, t.grabErr
	}
	return t.img, nil
}

func (t *fakeTrack) Ended() <-chan struct{} { return t.ended }

func (t *fakeTrack) Close() error {
	t.closed.Add(1)
	return nil
}

// endExternally simulates the user stopping the share outside the program.
func (t *fakeTrack) endExternally() {
	t.once.Do(func() { close(t.ended) })
}

type fakeDevice struct {
	track   *fakeTrack
	openErr error
	opens   int
}

func (d *fakeDevice) Open(context.Context) (Track, error) {
	d.opens++
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.track, nil
}

func TestCamera_CaptureBeforeInitialize(t *testing.T) {
	cam := NewCamera(&fakeDevice{track: newFakeTrack(solidImage(8, 6))})
	frame, err := cam.Capture(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, frame)
	assert.False(t, cam.IsInitialized())
	assert.Equal(t, KindCamera, cam.Kind())
}

func TestCamera_InitializeAndCapture(t *testing.T) {
	dev := &fakeDevice{track: newFakeTrack(solidImage(1280, 720))}
	cam := NewCamera(dev, WithQuality(0.7))

	require.NoError(t, cam.Initialize(context.Background()))
	require.NoError(t, cam.Initialize(context.Background()))
	assert.Equal(t, 1, dev.opens, "re-initializing is a no-op")
	assert.True(t, cam.IsInitialized())

	frame, err := cam.Capture(context.Background())
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, 640, frame.Width)
	assert.Equal(t, 360, frame.Height)
	assert.Equal(t, KindCamera, frame.Kind)

	img, err := jpeg.Decode(bytes.NewReader(frame.JPEG))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 640, 360), img.Bounds())

	decoded, err := base64.StdEncoding.DecodeString(frame.Payload)
	require.NoError(t, err)
	assert.Equal(t, frame.JPEG, decoded)
}

func TestCamera_CaptureSpanUsesSessionTracer(t *testing.T) {
	orig := otel.GetTracerProvider()
	defer otel.SetTracerProvider(orig)

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	otel.SetTracerProvider(tp)

	cam := NewCamera(&fakeDevice{track: newFakeTrack(solidImage(64, 48))})
	require.NoError(t, cam.Initialize(context.Background()))
	_, err := cam.Capture(context.Background())
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "snapshot.capture", spans[0].Name())
	assert.Equal(t, telemetry.InstrumentationName, spans[0].InstrumentationScope().Name)
}

func TestScreen_DefaultWidthAndCustomWidth(t *testing.T) {
	scr := NewScreen(&fakeDevice{track: newFakeTrack(solidImage(1920, 1080))}, nil)
	require.NoError(t, scr.Initialize(context.Background()))
	frame, err := scr.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1280, frame.Width)
	assert.Equal(t, 720, frame.Height)
	require.NoError(t, scr.Dispose())

	scr = NewScreen(&fakeDevice{track: newFakeTrack(solidImage(1000, 333))}, nil, WithWidth(640))
	require.NoError(t, scr.Initialize(context.Background()))
	frame, err = scr.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 213, frame.Height)
	require.NoError(t, scr.Dispose())
}

func TestSource_InitializeFailures(t *testing.T) {
	cam := NewCamera(&fakeDevice{openErr: errors.New("permission denied")})
	err := cam.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, liveerr.ErrDeviceUnavailable)
	assert.False(t, cam.IsInitialized())

	empty := newFakeTrack(nil)
	cam = NewCamera(&fakeDevice{track: empty})
	assert.ErrorIs(t, cam.Initialize(context.Background()), liveerr.ErrDeviceUnavailable)
	assert.Equal(t, int32(1), empty.closed.Load())

	assert.ErrorIs(t, NewCamera(nil).Initialize(context.Background()), liveerr.ErrDeviceUnavailable)
}

func TestSource_CaptureGrabError(t *testing.T) {
	track := newFakeTrack(solidImage(16, 16))
	cam := NewCamera(&fakeDevice{track: track})
	require.NoError(t, cam.Initialize(context.Background()))

	track.grabErr = ErrNoFrame
	_, err := cam.Capture(context.Background())
	assert.ErrorIs(t, err, ErrNoFrame)
}

func TestCamera_DisposeDoesNotCallOnStop(t *testing.T) {
	track := newFakeTrack(solidImage(16, 16))
	cam := NewCamera(&fakeDevice{track: track})
	require.NoError(t, cam.Initialize(context.Background()))

	require.NoError(t, cam.Dispose())
	require.NoError(t, cam.Dispose())
	assert.Equal(t, int32(1), track.closed.Load())
	assert.False(t, cam.IsInitialized())

	frame, err := cam.Capture(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, frame)
}

func TestScreen_DisposeCallsOnStop(t *testing.T) {
	var stops atomic.Int32
	track := newFakeTrack(solidImage(16, 16))
	scr := NewScreen(&fakeDevice{track: track}, func() { stops.Add(1) })
	require.NoError(t, scr.Initialize(context.Background()))

	require.NoError(t, scr.Dispose())
	require.NoError(t, scr.Dispose())
	assert.Equal(t, int32(1), stops.Load())
	assert.Equal(t, int32(1), track.closed.Load())
}

func TestScreen_TrackEndedDisposes(t *testing.T) {
	stopped := make(chan struct{})
	track := newFakeTrack(solidImage(16, 16))
	scr := NewScreen(&fakeDevice{track: track}, func() { close(stopped) })
	require.NoError(t, scr.Initialize(context.Background()))

	track.endExternally()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("onStop was not called after the track ended")
	}
	assert.False(t, scr.IsInitialized())
	assert.Equal(t, int32(1), track.closed.Load())
}

func TestScreen_ReinitializeAfterDispose(t *testing.T) {
	dev := &fakeDevice{track: newFakeTrack(solidImage(16, 16))}
	scr := NewScreen(dev, nil)
	require.NoError(t, scr.Initialize(context.Background()))
	require.NoError(t, scr.Dispose())

	dev.track = newFakeTrack(solidImage(32, 16))
	require.NoError(t, scr.Initialize(context.Background()))
	assert.Equal(t, 2, dev.opens)
	assert.True(t, scr.IsInitialized())
	require.NoError(t, scr.Dispose())
}

func TestImageDevice(t *testing.T) {
	track, err := (&ImageDevice{Image: solidImage(4, 3)}).Open(context.Background())
	require.NoError(t, err)
	w, h := track.Size()
	assert.Equal(t, 4, w)
	assert.Equal(t, 3, h)
	require.NoError(t, track.Close())
	select {
	case <-track.Ended():
	default:
		t.Fatal("closed track should report ended")
	}

	_, err = (&ImageDevice{}).Open(context.Background())
	assert.Error(t, err)
}
