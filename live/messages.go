package live

// Outbound messages.

// RealtimeInputMessage streams a media chunk.
type RealtimeInputMessage struct {
	RealtimeInput RealtimeInput `json:"realtimeInput"`
}

// RealtimeInput carries media chunks.
type RealtimeInput struct {
	MediaChunks []MediaChunk `json:"mediaChunks"`
}

// MediaChunk is one base64-encoded media payload.
type MediaChunk struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// ClientContentMessage sends conversation turns.
type ClientContentMessage struct {
	ClientContent ClientContent `json:"clientContent"`
}

// ClientContent is a batch of turns.
type ClientContent struct {
	Turns        []Turn `json:"turns"`
	TurnComplete bool   `json:"turnComplete"`
}

// Turn is a single user turn. The server accepts a single part object here.
type Turn struct {
	Role  string   `json:"role"`
	Parts TextPart `json:"parts"`
}

// TextPart is a text content part.
type TextPart struct {
	Text string `json:"text"`
}

// NewUserTurn builds a complete single-turn text message.
func NewUserTurn(text string) ClientContentMessage {
	return ClientContentMessage{
		ClientContent: ClientContent{
			Turns:        []Turn{{Role: "user", Parts: TextPart{Text: text}}},
			TurnComplete: true,
		},
	}
}

// Inbound messages.

// ServerMessage represents a message from the server.
type ServerMessage struct {
	SetupComplete *SetupComplete `json:"setupComplete,omitempty"`
	ServerContent *ServerContent `json:"serverContent,omitempty"`
}

// SetupComplete indicates setup is complete (empty object per docs)
type SetupComplete struct{}

// ServerContent represents the server content
type ServerContent struct {
	ModelTurn    *ModelTurn `json:"modelTurn,omitempty"`
	TurnComplete bool       `json:"turnComplete,omitempty"`
	Interrupted  bool       `json:"interrupted,omitempty"`
}

// ModelTurn represents a model response turn
type ModelTurn struct {
	Parts []Part `json:"parts,omitempty"`
}

// Part represents a content part (text or inline data)
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is base64-encoded media.
type InlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}
