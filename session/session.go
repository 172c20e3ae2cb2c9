// Package session composes the protocol client, microphone capture,
// speaker playback and snapshot sources into one live support session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/royans/GeminiLiveSupport/audio"
	"github.com/royans/GeminiLiveSupport/liveerr"
	"github.com/royans/GeminiLiveSupport/live"
	"github.com/royans/GeminiLiveSupport/logger"
	metrics "github.com/royans/GeminiLiveSupport/metrics/prometheus"
	"github.com/royans/GeminiLiveSupport/settings"
	"github.com/royans/GeminiLiveSupport/snapshot"
	"github.com/royans/GeminiLiveSupport/telemetry"
)

// InitialTurnText opens the dialogue so the model speaks first.
const InitialTurnText = "."

var (
	// ErrMissingAPIKey is returned by ConnectAndInitialize when no API key is configured.
	ErrMissingAPIKey = errors.New("please set your Gemini API key in settings first")
	// ErrNotInitialized is returned by media operations before ConnectAndInitialize.
	ErrNotInitialized = errors.New("session is not initialized")
	// ErrConnectInProgress is returned by a concurrent ConnectAndInitialize.
	ErrConnectInProgress = errors.New("connect already in progress")
	// ErrDisconnected is returned by ConnectAndInitialize when Disconnect
	// interrupts it.
	ErrDisconnected = errors.New("disconnected while connecting")
)

// SettingsReader supplies the current settings. It is read once per connect.
type SettingsReader interface {
	Settings() settings.Settings
}

// Devices are the hardware handles a session acquires.
type Devices struct {
	Input audio.InputDevice
	// NewSink creates the speaker for one connection. The sink is closed on
	// disconnect.
	NewSink func(sampleRate int) (audio.Sink, error)
	Camera  snapshot.Device
	Screen  snapshot.Device
}

// Events are raised to the session owner. Nil events are skipped. They may
// be raised from internal goroutines.
type Events struct {
	// ScreenShareStopped fires when a screen share ends, including when the
	// capture ends outside the application.
	ScreenShareStopped func()
	// ConnectionClosed fires when the server closes the connection.
	ConnectionClosed func(err error)
	TurnComplete     func()
}

// Option configures a Session.
type Option func(*options)

type options struct {
	endpoint       string
	heartbeat      time.Duration
	events         Events
	captureOptions []audio.CaptureOption
}

// WithEndpoint overrides the protocol endpoint.
func WithEndpoint(url string) Option {
	return func(o *options) { o.endpoint = url }
}

// WithHeartbeatInterval sets the WebSocket ping period. Negative disables pings.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *options) { o.heartbeat = d }
}

// WithEvents registers the session event handlers.
func WithEvents(e Events) Option {
	return func(o *options) { o.events = e }
}

// WithCaptureOptions passes options to the microphone pipeline.
func WithCaptureOptions(opts ...audio.CaptureOption) Option {
	return func(o *options) { o.captureOptions = append(o.captureOptions, opts...) }
}

// Session is the live session orchestrator. All methods are safe for
// concurrent use.
type Session struct {
	store SettingsReader
	devs  Devices
	opts  options

	mu          sync.Mutex
	gen         uint64
	id          string
	cfg         settings.Settings
	runCtx      context.Context
	cancelRun   context.CancelFunc
	client      *live.Client
	playback    *audio.PlaybackScheduler
	capture     *audio.CapturePipeline
	camera      *snapshot.Camera
	screen      *snapshot.Screen
	connecting  bool
	connected   bool
	initialized bool

	tickStop   chan struct{}
	tickSource snapshot.Source
}

// New creates a disconnected session.
func New(store SettingsReader, deps Devices, opts ...Option) *Session {
	s := &Session{store: store, devs: deps}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s
}

// ConnectAndInitialize connects to the server, wires inbound audio to the
// speaker, prepares the microphone and both snapshot sources without
// starting them, and sends the opening turn. It is a no-op when already
// connected. Any failure tears everything down and is returned.
func (s *Session) ConnectAndInitialize(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	if s.connecting {
		s.mu.Unlock()
		return ErrConnectInProgress
	}

	cfg := s.store.Settings()
	if cfg.APIKey == "" {
		s.mu.Unlock()
		logger.Warn("No API key configured")
		return ErrMissingAPIKey
	}
	if s.devs.NewSink == nil {
		s.mu.Unlock()
		return liveerr.DeviceUnavailable("speaker", errors.New("no output device"))
	}
	sink, err := s.devs.NewSink(cfg.SampleRate)
	if err != nil {
		s.mu.Unlock()
		return liveerr.DeviceUnavailable("speaker", err)
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(logger.WithSessionID(context.Background(), id))
	playback := audio.NewPlaybackScheduler(sink, audio.WithSampleRate(cfg.SampleRate))
	client := live.NewClient(live.ClientConfig{
		Endpoint: s.opts.endpoint,
		APIKey:   cfg.APIKey,
		Setup: live.BuildSetup(live.SetupParams{
			Language:           cfg.Language,
			VoiceName:          cfg.VoiceName,
			SystemInstructions: cfg.SystemInstructions,
			Temperature:        cfg.Temperature,
			TopP:               cfg.TopP,
			TopK:               cfg.TopK,
		}),
		HeartbeatInterval: s.opts.heartbeat,
	}, s.handlers(playback))

	s.gen++
	gen := s.gen
	s.id = id
	s.cfg = cfg
	s.runCtx = runCtx
	s.cancelRun = cancel
	s.playback = playback
	s.client = client
	s.connecting = true
	s.mu.Unlock()

	ctx = logger.WithSessionID(ctx, id)
	ctx, span := telemetry.Tracer(nil).Start(ctx, "session.connect")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", id), attribute.String("session.language", cfg.Language))

	if err := s.initialize(ctx, gen, client, playback); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "initialize failed")
		logger.ErrorContext(ctx, "Connection failed", "error", err)
		s.abort(gen)
		return err
	}
	logger.InfoContext(ctx, "Agent connected and initialized.")
	return nil
}

func (s *Session) initialize(ctx context.Context, gen uint64, client *live.Client, playback *audio.PlaybackScheduler) error {
	if err := client.Connect(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return ErrDisconnected
	}
	s.connected = true
	s.connecting = false

	if err := playback.Initialize(ctx); err != nil {
		return err
	}

	mediaOpts := []snapshot.Option{snapshot.WithWidth(s.cfg.ResizeWidth), snapshot.WithQuality(s.cfg.Quality)}
	s.capture = audio.NewCapturePipeline(s.devs.Input, s.opts.captureOptions...)
	s.camera = snapshot.NewCamera(s.devs.Camera, mediaOpts...)
	var screen *snapshot.Screen
	screen = snapshot.NewScreen(s.devs.Screen, func() { s.screenStopped(screen) }, mediaOpts...)
	s.screen = screen
	s.initialized = true

	return client.SendJSON(live.NewUserTurn(InitialTurnText))
}

// abort tears down a failed connect unless a Disconnect already did.
func (s *Session) abort(gen uint64) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	resources := s.detachLocked()
	s.mu.Unlock()
	if err := resources.release(); err != nil {
		logger.Warn("Teardown after failed connect", "error", err)
	}
}

func (s *Session) handlers(playback *audio.PlaybackScheduler) live.Handlers {
	ev := s.opts.events
	return live.Handlers{
		OnAudio: func(pcm []byte) {
			if err := playback.StreamAudio(pcm); err != nil {
				logger.Warn("Dropping undecodable audio segment", "error", err)
			}
		},
		OnInterrupted: func() {
			metrics.RecordPlaybackInterruption()
			playback.Stop()
		},
		OnTurnComplete: func() {
			if ev.TurnComplete != nil {
				ev.TurnComplete()
			}
		},
		OnClose: func(err error) {
			if ev.ConnectionClosed != nil {
				ev.ConnectionClosed(err)
			}
		},
	}
}

// Disconnect releases the connection, microphone, speaker, both snapshot
// sources and the snapshot timer, and returns to the pre-connect state. It
// is safe to call repeatedly and after a partial initialization.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	resources := s.detachLocked()
	s.mu.Unlock()

	err := resources.release()
	if resources.client != nil {
		logger.Info("Agent disconnected.")
	}
	return err
}

// owned is the set of resources detached from a session for release.
type owned struct {
	client   *live.Client
	capture  *audio.CapturePipeline
	playback *audio.PlaybackScheduler
	camera   *snapshot.Camera
	screen   *snapshot.Screen
	cancel   context.CancelFunc
}

func (s *Session) detachLocked() owned {
	s.gen++
	s.stopTickerLocked()
	r := owned{
		client:   s.client,
		capture:  s.capture,
		playback: s.playback,
		camera:   s.camera,
		screen:   s.screen,
		cancel:   s.cancelRun,
	}
	s.client = nil
	s.capture = nil
	s.playback = nil
	s.camera = nil
	s.screen = nil
	s.cancelRun = nil
	s.connecting = false
	s.connected = false
	s.initialized = false
	return r
}

func (r owned) release() error {
	var g errgroup.Group
	if r.client != nil {
		g.Go(r.client.Disconnect)
	}
	if r.capture != nil {
		g.Go(func() error {
			r.capture.Stop()
			return nil
		})
	}
	if r.playback != nil {
		g.Go(r.playback.Close)
	}
	if r.camera != nil {
		g.Go(r.camera.Dispose)
	}
	if r.screen != nil {
		g.Go(r.screen.Dispose)
	}
	err := g.Wait()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

// StartRecording starts streaming the microphone. Starting an active
// microphone is a no-op.
func (s *Session) StartRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	client := s.client
	return s.capture.Start(s.runCtx, func(f audio.Frame) {
		_ = client.SendAudio(f.Payload)
	})
}

// ToggleMic starts recording on first use and afterwards mutes or unmutes
// the microphone. It reports whether the microphone is now enabled.
func (s *Session) ToggleMic() (bool, error) {
	s.mu.Lock()
	capture := s.capture
	s.mu.Unlock()
	if capture == nil {
		return false, ErrNotInitialized
	}
	if !capture.IsRecording() {
		if err := s.StartRecording(); err != nil {
			return false, err
		}
		return true, nil
	}
	return capture.ToggleMic(), nil
}

// StartCamera opens the camera and starts the snapshot timer on it.
func (s *Session) StartCamera(ctx context.Context) error {
	s.mu.Lock()
	camera := s.camera
	s.mu.Unlock()
	if camera == nil {
		return ErrNotInitialized
	}
	return s.startSnapshots(ctx, camera)
}

// StopCamera stops the snapshot timer and releases the camera.
func (s *Session) StopCamera() error {
	s.mu.Lock()
	camera := s.camera
	s.stopTickerLocked()
	s.mu.Unlock()
	if camera == nil {
		return nil
	}
	return camera.Dispose()
}

// StartScreenShare opens the screen capture and starts the snapshot timer on it.
func (s *Session) StartScreenShare(ctx context.Context) error {
	s.mu.Lock()
	screen := s.screen
	s.mu.Unlock()
	if screen == nil {
		return ErrNotInitialized
	}
	return s.startSnapshots(ctx, screen)
}

// StopScreenShare stops the snapshot timer and releases the screen capture.
// ScreenShareStopped is raised if a share was active.
func (s *Session) StopScreenShare() error {
	s.mu.Lock()
	screen := s.screen
	s.stopTickerLocked()
	s.mu.Unlock()
	if screen == nil || !screen.IsInitialized() {
		return nil
	}
	return screen.Dispose()
}

func (s *Session) startSnapshots(ctx context.Context, src snapshot.Source) error {
	if err := src.Initialize(ctx); err != nil {
		logger.Error("Failed to start snapshot source", "kind", src.Kind(), "error", err)
		return err
	}

	s.mu.Lock()
	if !s.initialized || (src != snapshot.Source(s.camera) && src != snapshot.Source(s.screen)) {
		s.mu.Unlock()
		_ = src.Dispose()
		return ErrNotInitialized
	}
	s.startTickerLocked(src)
	s.mu.Unlock()
	return nil
}

// startTickerLocked re-arms the single snapshot timer on src at the
// configured frame rate.
func (s *Session) startTickerLocked(src snapshot.Source) {
	s.stopTickerLocked()

	fps := s.cfg.FPS
	if fps <= 0 {
		fps = settings.Defaults().FPS
	}
	period := time.Second / time.Duration(fps)
	stop := make(chan struct{})
	s.tickStop = stop
	s.tickSource = src
	go runSnapshots(s.runCtx, period, src, s.client, stop)

	logger.DebugContext(s.runCtx, "Snapshot timer started", "kind", src.Kind(), "period", period)
}

func (s *Session) stopTickerLocked() {
	if s.tickStop == nil {
		return
	}
	close(s.tickStop)
	s.tickStop = nil
	s.tickSource = nil
}

func runSnapshots(ctx context.Context, period time.Duration, src snapshot.Source, client *live.Client, stop <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	warn := rate.Sometimes{Interval: 5 * time.Second}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}

		frame, err := src.Capture(ctx)
		if err != nil {
			warn.Do(func() {
				logger.WarnContext(ctx, "Snapshot capture failed", "kind", src.Kind(), "error", err)
			})
			continue
		}
		if frame == nil {
			continue
		}
		_ = client.SendImage(frame.Payload)
	}
}

// screenStopped is the screen source's stop callback.
func (s *Session) screenStopped(screen *snapshot.Screen) {
	s.mu.Lock()
	if s.tickSource == snapshot.Source(screen) {
		s.stopTickerLocked()
	}
	s.mu.Unlock()

	logger.Info("Screen share stopped")
	if s.opts.events.ScreenShareStopped != nil {
		s.opts.events.ScreenShareStopped()
	}
}

// IsConnected reports whether the protocol connection was opened.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// IsInitialized reports whether media is ready.
func (s *Session) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// ID returns the current session id, empty before the first connect.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Status is a point-in-time view of the session for display.
type Status struct {
	Connected    bool
	Initialized  bool
	Recording    bool
	Muted        bool
	MicLevel     float64
	CameraActive bool
	ScreenActive bool
	Playing      bool
	ClientState  live.State
}

// Status returns the current session status.
func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{Connected: s.connected, Initialized: s.initialized}
	client, capture, playback, camera, screen := s.client, s.capture, s.playback, s.camera, s.screen
	s.mu.Unlock()

	if client != nil {
		st.ClientState = client.State()
	}
	if capture != nil {
		st.Recording = capture.IsRecording()
		st.Muted = capture.IsMuted()
		st.MicLevel = capture.Level()
	}
	if playback != nil {
		st.Playing = playback.IsPlaying()
	}
	if camera != nil {
		st.CameraActive = camera.IsInitialized()
	}
	if screen != nil {
		st.ScreenActive = screen.IsInitialized()
	}
	return st
}

func (st Status) String() string {
	return fmt.Sprintf("connected=%t recording=%t muted=%t camera=%t screen=%t",
		st.Connected, st.Recording, st.Muted, st.CameraActive, st.ScreenActive)
}
