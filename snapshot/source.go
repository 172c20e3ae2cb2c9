// Package snapshot captures still frames from a camera or the screen,
// scaled and JPEG-encoded for the live session.
package snapshot

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/royans/GeminiLiveSupport/liveerr"
	"github.com/royans/GeminiLiveSupport/logger"
	"github.com/royans/GeminiLiveSupport/media"
	metrics "github.com/royans/GeminiLiveSupport/metrics/prometheus"
	"github.com/royans/GeminiLiveSupport/telemetry"
)

// Kind identifies a snapshot source.
type Kind string

// Source kinds.
const (
	KindCamera Kind = "camera"
	KindScreen Kind = "screen"
)

// Default render widths.
const (
	DefaultCameraWidth = 640
	DefaultScreenWidth = 1280
)

// Frame is one encoded snapshot.
type Frame struct {
	Kind       Kind
	JPEG       []byte
	Payload    string // base64 of JPEG
	Width      int
	Height     int
	CapturedAt time.Time
}

// Source produces snapshots on demand.
type Source interface {
	Initialize(ctx context.Context) error
	// Capture returns nil without error when the source is not initialized.
	Capture(ctx context.Context) (*Frame, error)
	Dispose() error
	IsInitialized() bool
	Kind() Kind
}

// Option configures a source.
type Option func(*source)

// WithWidth sets the render width. Non-positive values keep the default.
func WithWidth(width int) Option {
	return func(s *source) {
		if width > 0 {
			s.width = width
		}
	}
}

// WithQuality sets the JPEG quality on a 0..1 scale. Non-positive values
// keep the default.
func WithQuality(q float64) Option {
	return func(s *source) {
		if q > 0 {
			s.quality = q
		}
	}
}

// source is the shared implementation of Camera and Screen.
type source struct {
	kind    Kind
	dev     Device
	width   int
	quality float64

	// watchEnded disposes the source when its track ends externally.
	watchEnded bool
	onStop     func()

	mu     sync.Mutex
	track  Track
	canvas *media.Canvas
	stop   chan struct{}
}

func newSource(kind Kind, dev Device, width int, opts []Option) *source {
	s := &source{
		kind:    kind,
		dev:     dev,
		width:   width,
		quality: media.DefaultQuality,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Camera captures from a camera device.
type Camera struct {
	*source
}

// NewCamera creates a camera source, 640 pixels wide by default.
func NewCamera(dev Device, opts ...Option) *Camera {
	return &Camera{source: newSource(KindCamera, dev, DefaultCameraWidth, opts)}
}

// Screen captures the display. When the capture ends, whether by Dispose
// or because the track ended externally, onStop is called.
type Screen struct {
	*source
}

// NewScreen creates a screen source, 1280 pixels wide by default.
func NewScreen(dev Device, onStop func(), opts ...Option) *Screen {
	s := newSource(KindScreen, dev, DefaultScreenWidth, opts)
	s.watchEnded = true
	s.onStop = onStop
	return &Screen{source: s}
}

// Kind returns the source kind.
func (s *source) Kind() Kind { return s.kind }

// Initialize opens the track and sizes the render target. Initializing an
// initialized source is a no-op.
func (s *source) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.track != nil {
		return nil
	}
	if s.dev == nil {
		return liveerr.DeviceUnavailable(string(s.kind), fmt.Errorf("no device configured"))
	}

	track, err := s.dev.Open(ctx)
	if err != nil {
		return liveerr.DeviceUnavailable(string(s.kind), err)
	}
	srcW, srcH := track.Size()
	if srcW <= 0 || srcH <= 0 {
		_ = track.Close()
		return liveerr.DeviceUnavailable(string(s.kind), fmt.Errorf("invalid source size %dx%d", srcW, srcH))
	}

	s.track = track
	s.canvas = media.NewCanvas(s.width, media.TargetHeight(srcW, srcH, s.width))
	s.stop = make(chan struct{})
	if s.watchEnded {
		go s.watch(track, s.stop)
	}

	b := s.canvas.Bounds()
	logger.InfoContext(ctx, "📷 Snapshot source initialized",
		"kind", s.kind, "source_size", fmt.Sprintf("%dx%d", srcW, srcH),
		"target_size", fmt.Sprintf("%dx%d", b.Dx(), b.Dy()))
	return nil
}

func (s *source) watch(track Track, stop <-chan struct{}) {
	select {
	case <-stop:
	case <-track.Ended():
		s.mu.Lock()
		current := s.track == track
		s.mu.Unlock()
		if current {
			logger.Info("Snapshot track ended", "kind", s.kind)
			_ = s.Dispose()
		}
	}
}

// Capture draws the current frame into the render target and encodes it.
func (s *source) Capture(ctx context.Context) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.track == nil {
		return nil, nil
	}

	_, span := telemetry.Tracer(nil).Start(ctx, "snapshot.capture")
	defer span.End()
	span.SetAttributes(attribute.String("snapshot.kind", string(s.kind)))

	start := time.Now()
	img, err := s.track.Grab()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grab failed")
		metrics.RecordSnapshot(string(s.kind), metrics.StatusError, 0)
		return nil, fmt.Errorf("grab %s frame: %w", s.kind, err)
	}
	s.canvas.Draw(img)
	data, err := s.canvas.EncodeJPEG(s.quality)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "encode failed")
		metrics.RecordSnapshot(string(s.kind), metrics.StatusError, 0)
		return nil, err
	}
	metrics.RecordSnapshot(string(s.kind), metrics.StatusSuccess, time.Since(start).Seconds())

	b := s.canvas.Bounds()
	span.SetAttributes(attribute.Int("snapshot.bytes", len(data)))
	return &Frame{
		Kind:       s.kind,
		JPEG:       data,
		Payload:    base64.StdEncoding.EncodeToString(data),
		Width:      b.Dx(),
		Height:     b.Dy(),
		CapturedAt: start,
	}, nil
}

// Dispose stops the track and detaches the render target. For a screen
// source that was capturing, onStop is called afterwards. Safe to call
// repeatedly.
func (s *source) Dispose() error {
	s.mu.Lock()
	track := s.track
	if track == nil {
		s.mu.Unlock()
		return nil
	}
	s.track = nil
	s.canvas = nil
	close(s.stop)
	s.mu.Unlock()

	err := track.Close()
	logger.Info("Snapshot source disposed", "kind", s.kind)
	if s.onStop != nil {
		s.onStop()
	}
	return err
}

// IsInitialized reports whether the source holds an open track.
func (s *source) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track != nil
}
