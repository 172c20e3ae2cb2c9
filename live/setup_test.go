package live

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSetup_Defaults(t *testing.T) {
	cfg := BuildSetup(SetupParams{
		VoiceName:          "Puck",
		SystemInstructions: "Be helpful.",
		Temperature:        0.9,
		TopP:               1.0,
		TopK:               32,
	})

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"model": "models/gemini-2.0-flash-exp",
		"tools": [{"googleSearchRetrieval": {}}],
		"generationConfig": {
			"temperature": 0.9,
			"top_p": 1,
			"top_k": 32,
			"responseModalities": "audio",
			"speechConfig": {
				"languageCode": "en-US",
				"voiceConfig": {"prebuiltVoiceConfig": {"voiceName": "Puck"}}
			}
		},
		"systemInstruction": {"parts": [{"text": "Be helpful."}]},
		"safetySettings": [
			{"category": "HARM_CATEGORY_HARASSMENT", "threshold": "BLOCK_NONE"},
			{"category": "HARM_CATEGORY_DANGEROUS_CONTENT", "threshold": "BLOCK_NONE"},
			{"category": "HARM_CATEGORY_SEXUALLY_EXPLICIT", "threshold": "BLOCK_NONE"},
			{"category": "HARM_CATEGORY_HATE_SPEECH", "threshold": "BLOCK_NONE"}
		]
	}`, string(data))
}

func TestBuildSetup_LanguageSuffix(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"es-ES", "Base\n\nPlease make sure you are talking to the user using Spanish language which is what the customer requested."},
		{"hi-IN", "Base\n\nPlease make sure you are talking to the user using Hindi language which is what the customer requested."},
		{"en-US", "Base"},
		{"pt-BR", "Base"},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			cfg := BuildSetup(SetupParams{Language: tt.lang, SystemInstructions: "Base"})
			assert.Equal(t, tt.want, cfg.SystemInstruction.Parts[0].Text)
			assert.Equal(t, tt.lang, cfg.GenerationConfig.SpeechConfig.LanguageCode)
		})
	}
}

func TestLanguageName(t *testing.T) {
	name, ok := LanguageName("ja-JP")
	assert.True(t, ok)
	assert.Equal(t, "Japanese", name)

	_, ok = LanguageName("en-US")
	assert.False(t, ok)
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, DefaultEndpoint+"?key=abc", EndpointURL("", "abc"))
	assert.Equal(t, "ws://host/path?x=1&key=a%2Bb", EndpointURL("ws://host/path?x=1", "a+b"))
}
