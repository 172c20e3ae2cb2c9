// Package live implements the client side of the Gemini Live bidirectional
// streaming protocol over a single WebSocket.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/royans/GeminiLiveSupport/audio"
	"github.com/royans/GeminiLiveSupport/internal/streaming"
	"github.com/royans/GeminiLiveSupport/liveerr"
	"github.com/royans/GeminiLiveSupport/logger"
	"github.com/royans/GeminiLiveSupport/media"
	metrics "github.com/royans/GeminiLiveSupport/metrics/prometheus"
	"github.com/royans/GeminiLiveSupport/telemetry"
)

// Connection defaults.
const (
	DefaultDialTimeout       = 45 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
)

// ErrClientDone is returned by Connect on a client that has already been
// closed or has failed. Create a new Client to reconnect.
var ErrClientDone = errors.New("client is closed")

// State is the protocol client lifecycle state.
type State int

// Client states. Closed and Failed are terminal.
const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// Endpoint is the WebSocket URL without the key parameter.
	// Defaults to DefaultEndpoint.
	Endpoint string
	APIKey   string
	Setup    SetupConfig

	// DialTimeout bounds the WebSocket handshake. Defaults to DefaultDialTimeout.
	DialTimeout time.Duration
	// HeartbeatInterval is the ping period. Defaults to
	// DefaultHeartbeatInterval; negative disables pings.
	HeartbeatInterval time.Duration
}

// Handlers receive inbound events. Nil handlers are skipped. Handlers run
// on the client's receive goroutine, one message at a time.
type Handlers struct {
	OnAudio         func(pcm []byte)
	OnInterrupted   func()
	OnTurnComplete  func()
	OnSetupComplete func()
	// OnClose is raised once when the server closes an open connection.
	OnClose func(err error)
}

// Client is a single-use protocol client: Idle, Connecting, Open, then
// Closed, or Failed when connecting fails. There are no retries.
type Client struct {
	cfg      ClientConfig
	handlers Handlers

	mu         sync.Mutex
	state      State
	conn       *streaming.Conn
	cancel     context.CancelFunc
	cancelDial context.CancelFunc
}

// NewClient creates an idle client.
func NewClient(cfg ClientConfig, handlers Handlers) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &Client{cfg: cfg, handlers: handlers}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the server and sends the setup message. It returns once the
// setup message is written; it does not wait for the server's
// acknowledgement. Connecting an open client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateOpen:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		c.mu.Unlock()
		return liveerr.Connection("dial", "", errors.New("connect already in progress"))
	case StateClosed, StateFailed:
		c.mu.Unlock()
		return liveerr.Connection("dial", "", ErrClientDone)
	}
	c.state = StateConnecting
	dialCtx, cancelDial := context.WithCancel(ctx)
	c.cancelDial = cancelDial
	c.mu.Unlock()
	defer cancelDial()

	ctx, span := telemetry.Tracer(nil).Start(ctx, "live.connect")
	defer span.End()
	span.SetAttributes(attribute.String("live.model", c.cfg.Setup.Model))

	start := time.Now()
	endpoint := EndpointURL(c.cfg.Endpoint, c.cfg.APIKey)
	redacted := logger.RedactSensitiveData(endpoint)

	headers := http.Header{}
	telemetry.InjectHeaders(ctx, headers)

	conn := streaming.NewConn(&streaming.ConnConfig{
		URL:         endpoint,
		Headers:     headers,
		DialTimeout: c.cfg.DialTimeout,
		Logger:      &liveLoggerAdapter{},
	})

	logger.InfoContext(ctx, "🔗 Establishing WebSocket connection...", "url", redacted)
	if err := conn.Connect(dialCtx); err != nil {
		return c.fail(span, start, liveerr.Connection("dial", redacted, err))
	}

	// setup must be the first message on the connection
	if err := conn.Send(map[string]any{"setup": c.cfg.Setup}); err != nil {
		_ = conn.Close()
		return c.fail(span, start, liveerr.Connection("setup", redacted, err))
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		// Disconnect raced with the dial.
		c.mu.Unlock()
		_ = conn.Close()
		span.SetStatus(codes.Error, "disconnected while connecting")
		return liveerr.Connection("dial", redacted, ErrClientDone)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	c.state = StateOpen
	c.conn = conn
	c.cancel = cancel
	c.cancelDial = nil
	c.mu.Unlock()

	metrics.RecordConnect(metrics.StatusSuccess, time.Since(start).Seconds())
	if c.cfg.HeartbeatInterval > 0 {
		conn.StartHeartbeat(runCtx, c.cfg.HeartbeatInterval)
	}
	go c.receive(runCtx, conn)

	logger.InfoContext(ctx, "🔗 Successfully connected", "model", c.cfg.Setup.Model)
	return nil
}

func (c *Client) fail(span trace.Span, start time.Time, err error) error {
	c.mu.Lock()
	if c.state == StateConnecting {
		c.state = StateFailed
	}
	c.cancelDial = nil
	c.mu.Unlock()

	span.RecordError(err)
	span.SetStatus(codes.Error, "connect failed")
	metrics.RecordConnect(metrics.StatusError, time.Since(start).Seconds())
	logger.Error("WebSocket connection failed", "error", err)
	return err
}

// Disconnect closes the connection. It is safe in every state and does not
// wait for in-flight writes.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	prev := c.state
	switch prev {
	case StateConnecting:
		c.state = StateClosed
		if c.cancelDial != nil {
			c.cancelDial()
		}
		c.mu.Unlock()
		return nil
	case StateOpen:
		c.state = StateClosed
	default:
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	cancel := c.cancel
	c.conn = nil
	c.mu.Unlock()

	cancel()
	err := conn.Close()
	metrics.RecordDisconnect()
	logger.Info("Disconnected")
	return err
}

// SendAudio streams one base64 PCM16 chunk.
func (c *Client) SendAudio(b64 string) error {
	return c.send("audio", RealtimeInputMessage{
		RealtimeInput: RealtimeInput{MediaChunks: []MediaChunk{{MIMEType: audio.PCMMimeType, Data: b64}}},
	})
}

// SendImage streams one base64 JPEG snapshot.
func (c *Client) SendImage(b64 string) error {
	return c.send("image", RealtimeInputMessage{
		RealtimeInput: RealtimeInput{MediaChunks: []MediaChunk{{MIMEType: media.MIMETypeJPEG, Data: b64}}},
	})
}

// SendJSON writes v as a JSON text message.
func (c *Client) SendJSON(v any) error {
	return c.send("json", v)
}

// send marshals and writes v. When the client is not open the message is
// dropped; write failures are logged and dropped. Only a value that cannot
// be marshaled is reported.
func (c *Client) send(kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", kind, err)
	}

	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		metrics.RecordMessageSent(kind, metrics.StatusDropped)
		return nil
	}
	if err := conn.SendRaw(data); err != nil {
		metrics.RecordMessageSent(kind, metrics.StatusError)
		logger.Warn("Dropping outbound message after write failure", "kind", kind, "error", err)
		return nil
	}
	metrics.RecordMessageSent(kind, metrics.StatusSuccess)
	return nil
}

func (c *Client) receive(ctx context.Context, conn *streaming.Conn) {
	err := conn.ReceiveLoop(ctx, c.dispatch)

	c.mu.Lock()
	remote := c.state == StateOpen && c.conn == conn
	if remote {
		c.state = StateClosed
		c.conn = nil
		if c.cancel != nil {
			c.cancel()
		}
	}
	c.mu.Unlock()

	if !remote {
		return
	}
	_ = conn.Close()
	metrics.RecordDisconnect()
	if err != nil {
		logger.Warn("Connection closed by server", "error", err)
	} else {
		logger.Info("Connection closed by server")
	}
	if c.handlers.OnClose != nil {
		c.handlers.OnClose(err)
	}
}

// inbound is a decoded server message ready for dispatch.
type inbound struct {
	pcm           []byte
	setupComplete bool
	interrupted   bool
	turnComplete  bool
}

// decodeMessage parses a server message. The first inline part whose MIME
// type starts with audio/pcm is decoded as audio.
func decodeMessage(data []byte) (inbound, error) {
	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return inbound{}, liveerr.Decode("message", err)
	}

	in := inbound{setupComplete: msg.SetupComplete != nil}
	sc := msg.ServerContent
	if sc == nil {
		return in, nil
	}
	in.interrupted = sc.Interrupted
	in.turnComplete = sc.TurnComplete
	if sc.ModelTurn == nil {
		return in, nil
	}
	for _, p := range sc.ModelTurn.Parts {
		if p.InlineData == nil || !strings.HasPrefix(p.InlineData.MIMEType, audio.PCMMimeType) {
			continue
		}
		pcm, err := audio.DecodePayload(p.InlineData.Data)
		if err != nil {
			return inbound{}, liveerr.Decode("audio", err)
		}
		in.pcm = pcm
		break
	}
	return in, nil
}

func (c *Client) dispatch(data []byte) {
	in, err := decodeMessage(data)
	if err != nil {
		metrics.RecordMessageReceived("invalid")
		logger.Warn("Dropping undecodable server message", "error", err, "bytes", len(data))
		return
	}

	h := c.handlers
	if in.setupComplete {
		metrics.RecordMessageReceived("setup_complete")
		logger.Debug("Setup acknowledged by server")
		if h.OnSetupComplete != nil {
			h.OnSetupComplete()
		}
	}
	if in.pcm != nil {
		metrics.RecordMessageReceived("audio")
		if h.OnAudio != nil {
			h.OnAudio(in.pcm)
		}
	}
	if in.interrupted {
		metrics.RecordMessageReceived("interrupted")
		if h.OnInterrupted != nil {
			h.OnInterrupted()
		}
	}
	if in.turnComplete {
		metrics.RecordMessageReceived("turn_complete")
		if h.OnTurnComplete != nil {
			h.OnTurnComplete()
		}
	}
}

// liveLoggerAdapter adapts the logger package to the streaming.Logger interface.
type liveLoggerAdapter struct{}

// Debug implements streaming.Logger.
func (a *liveLoggerAdapter) Debug(msg string, keysAndValues ...interface{}) {
	logger.Debug(msg, append([]interface{}{"component", "live"}, keysAndValues...)...)
}

// Info implements streaming.Logger.
func (a *liveLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	logger.Info(msg, append([]interface{}{"component", "live"}, keysAndValues...)...)
}

// Warn implements streaming.Logger.
func (a *liveLoggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	logger.Warn(msg, append([]interface{}{"component", "live"}, keysAndValues...)...)
}

// Error implements streaming.Logger.
func (a *liveLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	logger.Error(msg, append([]interface{}{"component", "live"}, keysAndValues...)...)
}
