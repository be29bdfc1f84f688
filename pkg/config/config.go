package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Request  RequestConfig  `yaml:"request"`
	Backend  BackendConfig  `yaml:"backend"`
	TTS      TTSConfig      `yaml:"tts"`
	Speech   SpeechConfig   `yaml:"speech"`
	Tour     TourConfig     `yaml:"tour"`
	Position PositionConfig `yaml:"position"`
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
	Server   ServerConfig   `yaml:"server"`
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// BackendConfig holds the tour-generation backend settings.
// The bearer token is never read from the config file; it comes from the
// CICERONE_API_TOKEN environment variable (or .env).
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"-"`
}

// TTSConfig holds Text-To-Speech settings.
type TTSConfig struct {
	Engine  string `yaml:"engine"`  // "exec", "mock"
	Command string `yaml:"command"` // synthesizer command line for the exec engine
	Voice   string `yaml:"voice"`
}

// SpeechConfig holds playback and boundary pacing settings.
type SpeechConfig struct {
	BoundaryInterval Duration `yaml:"boundary_interval"` // how often playback position maps to a char offset
	AutoPlay         bool     `yaml:"auto_play"`         // start speaking as soon as a record arrives
}

// TourConfig holds per-tour session settings.
type TourConfig struct {
	StateExpiry  Duration `yaml:"state_expiry"` // persisted state older than this starts fresh
	SessionTTL   Duration `yaml:"session_ttl"`  // idle sessions are torn down after this
	Duration     string   `yaml:"duration"`     // duration hint sent to the backend
	Pace         string   `yaml:"pace"`
	LLMVariant   string   `yaml:"llm_variant"`
	VoiceVariant string   `yaml:"voice_variant"`
}

// PositionConfig holds geolocation trigger settings.
type PositionConfig struct {
	MinMoveMeters  float64  `yaml:"min_move_meters"` // ignore updates closer than this to the last trigger
	CellResolution int      `yaml:"cell_resolution"` // H3 resolution for same-cell dedup
	Retries        int      `yaml:"retries"`         // one-shot acquisition attempts
	RetryDelay     Duration `yaml:"retry_delay"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(60 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(30 * time.Second),
			},
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:8787",
		},
		TTS: TTSConfig{
			Engine: "mock",
			Voice:  "en-US-standard",
		},
		Speech: SpeechConfig{
			BoundaryInterval: Duration(100 * time.Millisecond),
			AutoPlay:         true,
		},
		Tour: TourConfig{
			StateExpiry:  Duration(Day),
			SessionTTL:   Duration(2 * time.Hour),
			Duration:     "100",
			Pace:         "1",
			LLMVariant:   "SIMPLE",
			VoiceVariant: "MOCK",
		},
		Position: PositionConfig{
			MinMoveMeters:  25,
			CellResolution: 10,
			Retries:        3,
			RetryDelay:     Duration(1 * time.Second),
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path: "./data/cicerone.db",
		},
		Server: ServerConfig{
			Address: "localhost:2840",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk, to preserve user formatting and comments.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	// Secrets come from the environment only.
	if tok := os.Getenv("CICERONE_API_TOKEN"); tok != "" {
		cfg.Backend.Token = tok
	}
	if u := os.Getenv("CICERONE_API_URL"); u != "" {
		cfg.Backend.BaseURL = u
	}

	return cfg, nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Cicerone Configuration
# ----------------------
# Supported duration units: ns, us, ms, s, m, h, d (day), w (week)
# The backend bearer token is read from CICERONE_API_TOKEN, not from this file.

`)
	data = append(header, data...)

	// Inject an options comment for the TTS engine enum.
	reEngine := regexp.MustCompile(`(?m)^(\s+)engine:`)
	data = reEngine.ReplaceAll(data, []byte("${1}# Options: mock, exec\n${1}engine:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return Save(path, DefaultConfig())
}
