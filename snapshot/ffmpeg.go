package snapshot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/royans/GeminiLiveSupport/logger"
)

// FFmpegDevice captures a camera or the screen through an ffmpeg
// subprocess that streams PPM frames on stdout.
type FFmpegDevice struct {
	Kind      Kind
	Input     string // ffmpeg input name; platform default when empty
	FrameRate int    // frames per second requested from ffmpeg
	Binary    string // defaults to "ffmpeg"

	goos string
}

// NewFFmpegCamera returns a camera device.
func NewFFmpegCamera(input string, fps int) *FFmpegDevice {
	return &FFmpegDevice{Kind: KindCamera, Input: input, FrameRate: fps}
}

// NewFFmpegScreen returns a screen capture device.
func NewFFmpegScreen(input string, fps int) *FFmpegDevice {
	return &FFmpegDevice{Kind: KindScreen, Input: input, FrameRate: fps}
}

// Args returns the ffmpeg command line for this device.
func (d *FFmpegDevice) Args() ([]string, error) {
	goos := d.goos
	if goos == "" {
		goos = runtime.GOOS
	}
	fps := d.FrameRate
	if fps <= 0 {
		fps = 5
	}

	var input []string
	switch {
	case goos == "linux" && d.Kind == KindCamera:
		input = []string{"-f", "v4l2", "-i", orDefault(d.Input, "/dev/video0")}
	case goos == "linux" && d.Kind == KindScreen:
		input = []string{"-f", "x11grab", "-draw_mouse", "1", "-i", orDefault(d.Input, displayName())}
	case goos == "darwin" && d.Kind == KindCamera:
		input = []string{"-f", "avfoundation", "-framerate", "30", "-i", orDefault(d.Input, "0")}
	case goos == "darwin" && d.Kind == KindScreen:
		input = []string{"-f", "avfoundation", "-capture_cursor", "1", "-i", orDefault(d.Input, "1")}
	default:
		return nil, fmt.Errorf("%s capture is not implemented for %s; supported platforms: darwin, linux", d.Kind, goos)
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	args = append(args,
		"-vf", "fps="+strconv.Itoa(fps),
		"-f", "image2pipe", "-vcodec", "ppm", "-",
	)
	return args, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func displayName() string {
	if d := os.Getenv("DISPLAY"); d != "" {
		return d
	}
	return ":0.0"
}

// Open starts ffmpeg and waits for the first frame.
func (d *FFmpegDevice) Open(ctx context.Context) (Track, error) {
	bin := orDefault(d.Binary, "ffmpeg")
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("%s is required for %s capture (install ffmpeg and ensure it is in PATH)", bin, d.Kind)
	}
	args, err := d.Args()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg %s capture: %w", d.Kind, err)
	}
	logger.DebugContext(ctx, "Started ffmpeg capture", "kind", d.Kind, "pid", cmd.Process.Pid)

	t := newPipeTrack(cmd, stdout)
	go t.readLoop()

	select {
	case <-t.first:
		return t, nil
	case <-t.ended:
		return nil, fmt.Errorf("ffmpeg %s capture exited before the first frame: %w", d.Kind, t.readErr())
	case <-ctx.Done():
		_ = t.Close()
		return nil, ctx.Err()
	}
}

// pipeTrack keeps the most recent frame decoded from a PPM stream.
type pipeTrack struct {
	cmd    *exec.Cmd
	stdout io.Reader

	latest    atomic.Pointer[image.RGBA]
	first     chan struct{}
	firstOnce sync.Once
	ended     chan struct{}
	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

func newPipeTrack(cmd *exec.Cmd, stdout io.Reader) *pipeTrack {
	return &pipeTrack{
		cmd:    cmd,
		stdout: stdout,
		first:  make(chan struct{}),
		ended:  make(chan struct{}),
	}
}

func (t *pipeTrack) readLoop() {
	defer close(t.ended)

	br := bufio.NewReaderSize(t.stdout, 1<<20)
	for {
		img, err := readPPM(br)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.mu.Lock()
				t.err = err
				t.mu.Unlock()
			}
			break
		}
		t.latest.Store(img)
		t.firstOnce.Do(func() { close(t.first) })
	}
	if t.cmd != nil {
		_ = t.cmd.Wait()
	}
}

func (t *pipeTrack) readErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err == nil {
		return io.EOF
	}
	return t.err
}

func (t *pipeTrack) Size() (int, int) {
	img := t.latest.Load()
	if img == nil {
		return 0, 0
	}
	b := img.Bounds()
	return b.Dx(), b.Dy()
}

func (t *pipeTrack) Grab() (image.Image, error) {
	img := t.latest.Load()
	if img == nil {
		return nil, ErrNoFrame
	}
	return img, nil
}

func (t *pipeTrack) Ended() <-chan struct{} { return t.ended }

// Close kills ffmpeg and waits for the reader to finish.
func (t *pipeTrack) Close() error {
	t.closeOnce.Do(func() {
		if t.cmd != nil && t.cmd.Process != nil {
			_ = t.cmd.Process.Kill()
		}
	})
	<-t.ended
	return nil
}
