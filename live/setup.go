package live

import (
	"net/url"
	"strings"
)

// Endpoint and model defaults.
const (
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"
	DefaultModel    = "models/gemini-2.0-flash-exp"
	DefaultLanguage = "en-US"
)

// SetupConfig is the session configuration sent once after connecting.
type SetupConfig struct {
	Model             string           `json:"model"`
	Tools             []Tool           `json:"tools,omitempty"`
	GenerationConfig  GenerationConfig `json:"generationConfig"`
	SystemInstruction *Content         `json:"systemInstruction,omitempty"`
	SafetySettings    []SafetySetting  `json:"safetySettings,omitempty"`
}

// Tool enables a server-side tool.
type Tool struct {
	GoogleSearchRetrieval *struct{} `json:"googleSearchRetrieval,omitempty"`
}

// GenerationConfig controls sampling and the response voice.
type GenerationConfig struct {
	Temperature        float64      `json:"temperature"`
	TopP               float64      `json:"top_p"`
	TopK               int          `json:"top_k"`
	ResponseModalities string       `json:"responseModalities"`
	SpeechConfig       SpeechConfig `json:"speechConfig"`
}

// SpeechConfig selects the response language and voice.
type SpeechConfig struct {
	LanguageCode string      `json:"languageCode"`
	VoiceConfig  VoiceConfig `json:"voiceConfig"`
}

// VoiceConfig wraps the prebuilt voice selection.
type VoiceConfig struct {
	PrebuiltVoiceConfig PrebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

// PrebuiltVoiceConfig names a prebuilt voice.
type PrebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// Content holds instruction parts.
type Content struct {
	Parts []TextPart `json:"parts"`
}

// SafetySetting sets a harm category threshold.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// SetupParams are the user-tunable inputs to BuildSetup.
type SetupParams struct {
	Language           string
	VoiceName          string
	SystemInstructions string
	Temperature        float64
	TopP               float64
	TopK               int
}

var languageNames = map[string]string{
	"es-ES": "Spanish",
	"fr-FR": "French",
	"de-DE": "German",
	"ja-JP": "Japanese",
	"hi-IN": "Hindi",
}

// LanguageName returns the display name of a supported non-default
// response language.
func LanguageName(code string) (string, bool) {
	name, ok := languageNames[code]
	return name, ok
}

var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_HATE_SPEECH",
}

// BuildSetup assembles the setup message. For a supported language other
// than en-US the system instruction asks the model to answer in it.
func BuildSetup(p SetupParams) SetupConfig {
	lang := p.Language
	if lang == "" {
		lang = DefaultLanguage
	}

	instructions := p.SystemInstructions
	if name, ok := LanguageName(lang); ok && lang != DefaultLanguage {
		instructions += "\n\nPlease make sure you are talking to the user using " + name +
			" language which is what the customer requested."
	}

	safety := make([]SafetySetting, 0, len(harmCategories))
	for _, c := range harmCategories {
		safety = append(safety, SafetySetting{Category: c, Threshold: "BLOCK_NONE"})
	}

	return SetupConfig{
		Model: DefaultModel,
		Tools: []Tool{{GoogleSearchRetrieval: &struct{}{}}},
		GenerationConfig: GenerationConfig{
			Temperature:        p.Temperature,
			TopP:               p.TopP,
			TopK:               p.TopK,
			ResponseModalities: "audio",
			SpeechConfig: SpeechConfig{
				LanguageCode: lang,
				VoiceConfig: VoiceConfig{
					PrebuiltVoiceConfig: PrebuiltVoiceConfig{VoiceName: p.VoiceName},
				},
			},
		},
		SystemInstruction: &Content{Parts: []TextPart{{Text: instructions}}},
		SafetySettings:    safety,
	}
}

// EndpointURL appends the API key to the endpoint as the key query parameter.
func EndpointURL(endpoint, apiKey string) string {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + "key=" + url.QueryEscape(apiKey)
}
