package snapshot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"github.com/royans/GeminiLiveSupport/media"
)

// Device opens a video track for a snapshot source.
type Device interface {
	Open(ctx context.Context) (Track, error)
}

// Track is a live video track.
type Track interface {
	// Size returns the source dimensions.
	Size() (width, height int)
	// Grab returns the current frame.
	Grab() (image.Image, error)
	// Ended is closed when the track stops on its own, for example when
	// the user ends a screen share from outside the program.
	Ended() <-chan struct{}
	Close() error
}

// ErrNoFrame is returned by Grab when the track has not produced a frame.
var ErrNoFrame = errors.New("no frame available")

// ImageDevice serves a fixed image as a never-ending track.
type ImageDevice struct {
	Image image.Image
}

// Open implements Device.
func (d *ImageDevice) Open(context.Context) (Track, error) {
	if d.Image == nil {
		return nil, ErrNoFrame
	}
	return &imageTrack{img: d.Image, ended: make(chan struct{})}, nil
}

// ImageFileDevice serves an image file (JPEG, PNG, GIF or WebP).
type ImageFileDevice struct {
	Path string
}

// Open implements Device.
func (d *ImageFileDevice) Open(ctx context.Context) (Track, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", d.Path, err)
	}
	img, _, err := media.Decode(data)
	if err != nil {
		return nil, err
	}
	return (&ImageDevice{Image: img}).Open(ctx)
}

type imageTrack struct {
	img   image.Image
	once  sync.Once
	ended chan struct{}
}

func (t *imageTrack) Size() (int, int) {
	b := t.img.Bounds()
	return b.Dx(), b.Dy()
}

func (t *imageTrack) Grab() (image.Image, error) { return t.img, nil }

func (t *imageTrack) Ended() <-chan struct{} { return t.ended }

func (t *imageTrack) Close() error {
	t.once.Do(func() { close(t.ended) })
	return nil
}

// ParseDevice maps a device string to a Device. "file:<path>" serves an
// image file; anything else selects an ffmpeg capture input, with the
// platform default when empty.
func ParseDevice(kind Kind, input string, fps int) Device {
	if path, ok := strings.CutPrefix(input, "file:"); ok {
		return &ImageFileDevice{Path: path}
	}
	if kind == KindScreen {
		return NewFFmpegScreen(input, fps)
	}
	return NewFFmpegCamera(input, fps)
}
