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
	Request RequestConfig `yaml:"request"`
	TTS     TTSConfig     `yaml:"tts"`
	Output  OutputConfig  `yaml:"output"`
	Player  PlayerConfig  `yaml:"player"`
	Log     LogConfig     `yaml:"log"`
	History HistoryConfig `yaml:"history"`
	DB      DBConfig      `yaml:"db"`
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

// TTSConfig holds Text-To-Speech settings.
type TTSConfig struct {
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`
}

// ElevenLabsConfig holds settings for the ElevenLabs API.
// The API key is deliberately excluded from YAML: it lives in the
// ELEVENLABS_API_KEY environment variable and must never reach disk.
type ElevenLabsConfig struct {
	Key           string              `yaml:"-"`
	VoiceID       string              `yaml:"voice"`
	Model         string              `yaml:"model"`
	Format        string              `yaml:"format"`
	VoiceCacheTTL Duration            `yaml:"voice_cache_ttl"`
	Settings      VoiceSettingsConfig `yaml:"settings"`
}

// VoiceSettingsConfig holds the per-voice synthesis tuning knobs.
type VoiceSettingsConfig struct {
	Stability       float64 `yaml:"stability"`
	SimilarityBoost float64 `yaml:"similarity_boost"`
	Style           float64 `yaml:"style"`
	UseSpeakerBoost bool    `yaml:"use_speaker_boost"`
}

// OutputConfig holds settings for generated audio files.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// PlayerConfig holds audio playback settings.
type PlayerConfig struct {
	Volume float64 `yaml:"volume"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	App      LogSettings `yaml:"app"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// HistoryConfig holds settings for plain-text history files.
type HistoryConfig struct {
	TTS HistorySettings `yaml:"tts"`
}

// HistorySettings holds settings for a single history file.
type HistorySettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(300 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(30 * time.Second),
			},
		},
		TTS: TTSConfig{
			ElevenLabs: ElevenLabsConfig{
				VoiceID:       "21m00Tcm4TlvDq8ikWAM", // Rachel
				Model:         "eleven_monolingual_v1",
				Format:        "mp3_44100_128",
				VoiceCacheTTL: Duration(Day),
				Settings: VoiceSettingsConfig{
					Stability:       0.5,
					SimilarityBoost: 0.8,
					Style:           0.0,
					UseSpeakerBoost: true,
				},
			},
		},
		Output: OutputConfig{
			Dir: "./output",
		},
		Player: PlayerConfig{
			Volume: 1.0,
		},
		Log: LogConfig{
			App: LogSettings{
				Path:  "./logs/audiopages.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		History: HistoryConfig{
			TTS: HistorySettings{
				Enabled: true,
				Path:    "./logs/tts_history.log",
			},
		},
		DB: DBConfig{
			Path: "./data/audiopages.db",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk (to preserve user formatting and comments).
// The ElevenLabs API key is always taken from the environment, never from
// the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Ensure directory exists
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
		// If file does not exist, save defaults
		if err := Save(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to save config file: %w", err)
		}
	}

	if key := os.Getenv("ELEVENLABS_API_KEY"); key != "" {
		cfg.TTS.ElevenLabs.Key = key
	}

	// Runtime override, not saved back to disk
	if logFile := os.Getenv("AUDIOPAGES_LOG_FILE"); logFile != "" {
		cfg.Log.App.Path = logFile
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if v := cfg.Player.Volume; v < 0 || v > 1 {
		return fmt.Errorf("invalid player volume %.2f: must be in [0, 1]", v)
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# AudioPages Configuration
# -----------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#
# The ElevenLabs API key is read from the ELEVENLABS_API_KEY environment
# variable (a .env file in the working directory also works). It is never
# stored in this file.

`)
	data = append(header, data...)

	// Inject comments for Enum fields
	// We use regex to find the keys with indentation to ensure we place comments correctly.

	// Output format options
	reFormat := regexp.MustCompile(`(?m)^(\s+)format:`)
	data = reFormat.ReplaceAll(data, []byte("${1}# Options: mp3_22050_32, mp3_44100_64, mp3_44100_96, mp3_44100_128,\n${1}#          mp3_44100_192, pcm_16000, pcm_22050, pcm_24000, pcm_44100\n${1}format:"))

	// Model options
	reModel := regexp.MustCompile(`(?m)^(\s+)model:`)
	data = reModel.ReplaceAll(data, []byte("${1}# Options: eleven_monolingual_v1, eleven_multilingual_v2, eleven_turbo_v2_5\n${1}model:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, do nothing
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write default config
	return Save(path, DefaultConfig())
}
