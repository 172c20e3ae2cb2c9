package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Mic    key.Binding
	Camera key.Binding
	Screen key.Binding
	Help   key.Binding
	Quit   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Mic:    key.NewBinding(key.WithKeys("m", " "), key.WithHelp("m/space", "mic")),
		Camera: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "camera")),
		Screen: key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "screen share")),
		Help:   key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "disconnect")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Mic, k.Camera, k.Screen, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Mic, k.Camera, k.Screen}, {k.Help, k.Quit}}
}
