// Package settings is the persistent store for user-tunable session
// parameters: a YAML file layered under environment variables.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Setting keys, as they appear in the YAML file.
const (
	KeyAPIKey             = "apiKey"
	KeyLanguage           = "language"
	KeyVoiceName          = "voiceName"
	KeySampleRate         = "sampleRate"
	KeySystemInstructions = "systemInstructions"
	KeyTemperature        = "temperature"
	KeyTopP               = "top_p"
	KeyTopK               = "top_k"
	KeyFPS                = "fps"
	KeyResizeWidth        = "resizeWidth"
	KeyQuality            = "quality"
)

// EnvPrefix prefixes environment overrides, e.g. LIVESUPPORT_FPS.
const EnvPrefix = "LIVESUPPORT"

// DefaultSystemInstructions is the stock Workspace support prompt.
const DefaultSystemInstructions = `
You are an assistant which specializes on Google Workspace Products. 
- In particular you are an expert on, Google Admin tools, Gmail, Calendar, Drive, Gemini App, Notebook LM, Docs, Sheets, etc. These are all products which are part of Google Workspace.
- You are not allowed to discuss any other topic at all.
- Your goal is to help the user to solve a problem related to Google Workspace
- You may answer their questions without screen share, but it needs to be about one of the supported products which I've listed above
- If you are provided a screen share please follow the following instructions
  (a) Try to get very clear problem statement on what the customer is trying to do
  (b) Help the user go through the steps using the screen share... and guide them to press the right buttons and read the right text
  (c) Give the user time to follow each of the steps before you go to the next one. Watch the screen and guide them.
  (c) Help them complete the task and help them be successful with Google Workspace
- You MUST ground your answer to content which is available on URLs which start with : "https://support.google.com/"

  `

// ErrUnknownKey is returned for a key that is not a setting.
var ErrUnknownKey = errors.New("unknown setting")

// Settings is a snapshot of every setting.
type Settings struct {
	APIKey             string  `yaml:"apiKey"`
	Language           string  `yaml:"language"`
	VoiceName          string  `yaml:"voiceName"`
	SampleRate         int     `yaml:"sampleRate"`
	SystemInstructions string  `yaml:"systemInstructions"`
	Temperature        float64 `yaml:"temperature"`
	TopP               float64 `yaml:"top_p"`
	TopK               int     `yaml:"top_k"`
	FPS                int     `yaml:"fps"`
	ResizeWidth        int     `yaml:"resizeWidth"`
	Quality            float64 `yaml:"quality"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Language:           "en-US",
		VoiceName:          "Puck",
		SampleRate:         24000,
		SystemInstructions: DefaultSystemInstructions,
		Temperature:        0.9,
		TopP:               1.0,
		TopK:               32,
		FPS:                5,
		ResizeWidth:        640,
		Quality:            0.7,
	}
}

// Languages lists the supported response languages.
var Languages = []string{"en-US", "es-ES", "fr-FR", "de-DE", "ja-JP", "hi-IN"}

// Voices lists the prebuilt voices.
var Voices = []string{"Puck", "Charon", "Kore", "Fenrir", "Aoede"}

// Validate checks every setting against its allowed range. An empty API key
// is valid here; the session refuses to start without one.
func (s Settings) Validate() error {
	var errs []error
	if s.Language == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", KeyLanguage))
	}
	if s.VoiceName == "" {
		errs = append(errs, fmt.Errorf("%s must not be empty", KeyVoiceName))
	}
	if s.SampleRate < 8000 || s.SampleRate > 48000 {
		errs = append(errs, fmt.Errorf("%s must be between 8000 and 48000, got %d", KeySampleRate, s.SampleRate))
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		errs = append(errs, fmt.Errorf("%s must be between 0 and 2, got %g", KeyTemperature, s.Temperature))
	}
	if s.TopP < 0 || s.TopP > 1 {
		errs = append(errs, fmt.Errorf("%s must be between 0 and 1, got %g", KeyTopP, s.TopP))
	}
	if s.TopK < 1 || s.TopK > 100 {
		errs = append(errs, fmt.Errorf("%s must be between 1 and 100, got %d", KeyTopK, s.TopK))
	}
	if s.FPS < 1 || s.FPS > 10 {
		errs = append(errs, fmt.Errorf("%s must be between 1 and 10, got %d", KeyFPS, s.FPS))
	}
	if s.ResizeWidth < 1 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", KeyResizeWidth, s.ResizeWidth))
	}
	if s.Quality <= 0 || s.Quality > 1 {
		errs = append(errs, fmt.Errorf("%s must be in (0, 1], got %g", KeyQuality, s.Quality))
	}
	return errors.Join(errs...)
}

// Store layers environment variables over a YAML settings file over the
// defaults. Only file-backed values are written back by Save.
type Store struct {
	path string

	mu   sync.RWMutex
	v    *viper.Viper // defaults + file + env
	file *viper.Viper // defaults + file
}

// DefaultPath returns the per-user settings file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "livesupport", "settings.yaml"), nil
}

// Open loads the settings file at path. A missing file is not an error.
// An empty path uses DefaultPath.
func Open(path string) (*Store, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	file := newViper(path)
	if err := readConfig(file); err != nil {
		return nil, err
	}

	v := newViper(path)
	if err := readConfig(v); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	_ = v.BindEnv(KeyAPIKey, EnvPrefix+"_APIKEY", "GEMINI_API_KEY", "GOOGLE_API_KEY")

	return &Store{path: path, v: v, file: file}, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault(KeyAPIKey, d.APIKey)
	v.SetDefault(KeyLanguage, d.Language)
	v.SetDefault(KeyVoiceName, d.VoiceName)
	v.SetDefault(KeySampleRate, d.SampleRate)
	v.SetDefault(KeySystemInstructions, d.SystemInstructions)
	v.SetDefault(KeyTemperature, d.Temperature)
	v.SetDefault(KeyTopP, d.TopP)
	v.SetDefault(KeyTopK, d.TopK)
	v.SetDefault(KeyFPS, d.FPS)
	v.SetDefault(KeyResizeWidth, d.ResizeWidth)
	v.SetDefault(KeyQuality, d.Quality)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	return v
}

func readConfig(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound) {
		return nil
	}
	return fmt.Errorf("read settings %s: %w", v.ConfigFileUsed(), err)
}

// Path returns the settings file location.
func (s *Store) Path() string { return s.path }

// Settings returns the effective settings, environment included.
func (s *Store) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fromViper(s.v)
}

func fromViper(v *viper.Viper) Settings {
	return Settings{
		APIKey:             v.GetString(KeyAPIKey),
		Language:           v.GetString(KeyLanguage),
		VoiceName:          v.GetString(KeyVoiceName),
		SampleRate:         v.GetInt(KeySampleRate),
		SystemInstructions: v.GetString(KeySystemInstructions),
		Temperature:        v.GetFloat64(KeyTemperature),
		TopP:               v.GetFloat64(KeyTopP),
		TopK:               v.GetInt(KeyTopK),
		FPS:                v.GetInt(KeyFPS),
		ResizeWidth:        v.GetInt(KeyResizeWidth),
		Quality:            v.GetFloat64(KeyQuality),
	}
}

var keyKinds = map[string]byte{
	KeyAPIKey:             's',
	KeyLanguage:           's',
	KeyVoiceName:          's',
	KeySampleRate:         'i',
	KeySystemInstructions: 's',
	KeyTemperature:        'f',
	KeyTopP:               'f',
	KeyTopK:               'i',
	KeyFPS:                'i',
	KeyResizeWidth:        'i',
	KeyQuality:            'f',
}

// Keys returns every setting key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(keyKinds))
	for k := range keyKinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set parses value for key and applies it if the result validates.
// Call Save to persist it.
func (s *Store) Set(key, value string) error {
	kind, ok := keyKinds[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	var parsed any
	switch kind {
	case 'i':
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		parsed = n
	case 'f':
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		parsed = f
	default:
		parsed = value
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := viper.New()
	for k, val := range s.file.AllSettings() {
		candidate.Set(k, val)
	}
	candidate.Set(key, parsed)
	if err := fromViper(candidate).Validate(); err != nil {
		return err
	}

	s.file.Set(key, parsed)
	s.v.Set(key, parsed)
	return nil
}

// Save writes the file-backed settings to Path, creating its directory.
// Values that came only from the environment are not written.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := yaml.Marshal(fromViper(s.file))
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are skipped and variables already set are kept. With no paths it loads
// ".env" from the working directory.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}
