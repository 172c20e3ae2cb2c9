// Package tui is the terminal control panel for a live session: microphone,
// camera and screen share toggles with a live status line.
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/royans/GeminiLiveSupport/live"
	"github.com/royans/GeminiLiveSupport/session"
)

const (
	tickInterval  = 100 * time.Millisecond
	alertDuration = 3 * time.Second
	levelBarWidth = 20
	labelWidth    = 8
)

// Alert texts.
const (
	alertCameraBusy    = "Stop the screen share before starting the camera."
	alertScreenBusy    = "Stop the camera before starting a screen share."
	alertCameraFailed  = "Camera permission was denied or failed to start."
	alertScreenFailed  = "Screen share permission was denied or failed to start."
	alertMicFailed     = "Microphone is unavailable."
	alertServerClosed  = "Connection closed by server."
	alertScreenStopped = "Screen share ended."
)

// Controller is the session surface the panel drives.
type Controller interface {
	ToggleMic() (bool, error)
	StartCamera(ctx context.Context) error
	StopCamera() error
	StartScreenShare(ctx context.Context) error
	StopScreenShare() error
	Status() session.Status
}

// ScreenShareStoppedMsg reports that the screen share ended.
type ScreenShareStoppedMsg struct{}

// ConnectionClosedMsg reports that the server closed the connection.
type ConnectionClosedMsg struct{ Err error }

// TurnCompleteMsg reports the end of a model turn.
type TurnCompleteMsg struct{}

type tickMsg time.Time

type source int

const (
	sourceCamera source = iota
	sourceScreen
)

type startResultMsg struct {
	source source
	err    error
}

type micResultMsg struct {
	enabled bool
	err     error
}

// Model is the bubbletea model of the control panel.
//
// The panel enforces that at most one snapshot source runs at a time.
type Model struct {
	ctx  context.Context
	ctrl Controller

	width int
	keys  keyMap
	help  help.Model

	status       session.Status
	cameraActive bool
	screenActive bool
	turns        int
	closed       bool

	alert      string
	alertUntil time.Time
	now        func() time.Time
}

// NewModel creates a panel for ctrl. ctx bounds device start-up.
func NewModel(ctx context.Context, ctrl Controller) *Model {
	return &Model{
		ctx:  ctx,
		ctrl: ctrl,
		keys: defaultKeyMap(),
		help: help.New(),
		now:  time.Now,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		m.status = m.ctrl.Status()
		if m.alert != "" && m.now().After(m.alertUntil) {
			m.alert = ""
		}
		return m, tick()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case micResultMsg:
		if msg.err != nil {
			m.showAlert(alertMicFailed)
		}
		m.status = m.ctrl.Status()
		return m, nil

	case startResultMsg:
		m.handleStartResult(msg)
		return m, nil

	case ScreenShareStoppedMsg:
		if m.screenActive {
			m.screenActive = false
			m.showAlert(alertScreenStopped)
		}
		return m, nil

	case ConnectionClosedMsg:
		m.closed = true
		m.cameraActive = false
		m.screenActive = false
		m.showAlert(alertServerClosed)
		return m, nil

	case TurnCompleteMsg:
		m.turns++
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case m.closed:
		return m, nil
	case key.Matches(msg, m.keys.Mic):
		ctrl := m.ctrl
		return m, func() tea.Msg {
			enabled, err := ctrl.ToggleMic()
			return micResultMsg{enabled: enabled, err: err}
		}
	case key.Matches(msg, m.keys.Camera):
		return m, m.toggleCamera()
	case key.Matches(msg, m.keys.Screen):
		return m, m.toggleScreen()
	}
	return m, nil
}

func (m *Model) toggleCamera() tea.Cmd {
	if m.screenActive {
		m.showAlert(alertCameraBusy)
		return nil
	}
	if m.cameraActive {
		m.cameraActive = false
		_ = m.ctrl.StopCamera()
		return nil
	}
	m.cameraActive = true
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return startResultMsg{source: sourceCamera, err: ctrl.StartCamera(ctx)}
	}
}

func (m *Model) toggleScreen() tea.Cmd {
	if m.cameraActive {
		m.showAlert(alertScreenBusy)
		return nil
	}
	if m.screenActive {
		m.screenActive = false
		_ = m.ctrl.StopScreenShare()
		return nil
	}
	m.screenActive = true
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return startResultMsg{source: sourceScreen, err: ctrl.StartScreenShare(ctx)}
	}
}

func (m *Model) handleStartResult(msg startResultMsg) {
	if msg.err == nil {
		return
	}
	switch msg.source {
	case sourceCamera:
		m.cameraActive = false
		m.showAlert(alertCameraFailed)
	case sourceScreen:
		m.screenActive = false
		m.showAlert(alertScreenFailed)
	}
}

func (m *Model) showAlert(text string) {
	m.alert = text
	m.alertUntil = m.now().Add(alertDuration)
}

// View implements tea.Model.
func (m *Model) View() string {
	st := m.status

	conn := offStyle.Render(connectionLabel(st, m.closed))
	if st.Connected && !m.closed {
		conn = onStyle.Render(connectionLabel(st, m.closed))
	}

	mic := offStyle.Render("off")
	switch {
	case st.Recording && st.Muted:
		mic = mutedStyle.Render("muted")
	case st.Recording:
		mic = onStyle.Render("on") + " " + levelBar(st.MicLevel, levelBarWidth)
	}

	rows := []string{
		titleStyle.Render("Gemini Live Support"),
		"",
		labelStyle.Render("Link") + conn,
		labelStyle.Render("Mic") + mic,
		labelStyle.Render("Camera") + onOff(m.cameraActive),
		labelStyle.Render("Screen") + onOff(m.screenActive),
		labelStyle.Render("Turns") + fmt.Sprintf("%d", m.turns),
	}
	if st.Playing {
		rows = append(rows, labelStyle.Render("Voice")+onStyle.Render("speaking"))
	}

	body := panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	alert := ""
	if m.alert != "" {
		alert = alertStyle.Render(m.alert)
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, alert, m.help.View(m.keys)) + "\n"
}

func connectionLabel(st session.Status, closed bool) string {
	switch {
	case closed:
		return live.StateClosed.String()
	case st.Connected:
		return st.ClientState.String()
	default:
		return "disconnected"
	}
}

func onOff(active bool) string {
	if active {
		return onStyle.Render("on")
	}
	return offStyle.Render("off")
}

// levelBar renders a 0..1 level as a horizontal meter.
func levelBar(level float64, width int) string {
	level = math.Max(0, math.Min(1, level))
	filled := int(math.Round(level * float64(width)))
	return onStyle.Render(strings.Repeat("█", filled)) + offStyle.Render(strings.Repeat("░", width-filled))
}

// Bridge forwards session events into a running program. Events raised
// before Attach are dropped.
type Bridge struct {
	mu sync.Mutex
	p  *tea.Program
}

// Attach sets the receiving program.
func (b *Bridge) Attach(p *tea.Program) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.p = p
}

func (b *Bridge) send(msg tea.Msg) {
	b.mu.Lock()
	p := b.p
	b.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Events returns session events that feed the program.
func (b *Bridge) Events() session.Events {
	return session.Events{
		ScreenShareStopped: func() { b.send(ScreenShareStoppedMsg{}) },
		ConnectionClosed:   func(err error) { b.send(ConnectionClosedMsg{Err: err}) },
		TurnComplete:       func() { b.send(TurnCompleteMsg{}) },
	}
}

// ErrNotTerminal is returned by Run when no terminal is attached.
var ErrNotTerminal = errors.New("stdout is not a terminal")

// IsTerminal reports whether stdout or stderr is a terminal.
func IsTerminal() bool {
	for _, fd := range []int{1, 2} {
		if term.IsTerminal(fd) {
			return true
		}
	}
	return false
}

// Run starts the panel and blocks until the user quits or ctx is done.
func Run(ctx context.Context, model *Model, bridge *Bridge) error {
	if !IsTerminal() {
		return ErrNotTerminal
	}

	p := tea.NewProgram(model, tea.WithContext(ctx))
	if bridge != nil {
		bridge.Attach(p)
		defer bridge.Attach(nil)
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
