package tts

import (
	"context"
)

const (
	// MinAudioSize is the minimum size of a synthesized audio payload (1KB).
	// Smaller responses are almost always JSON error bodies, not audio.
	MinAudioSize = 1024
)

// Synthesizer defines the interface for Text-To-Speech engines.
type Synthesizer interface {
	// Synthesize generates audio from text with the given voice, settings
	// and output format, and returns the raw audio bytes.
	Synthesize(ctx context.Context, text, voiceID string, settings VoiceSettings, format Format) ([]byte, error)
}

// VoiceLister lists the voices available to the account.
type VoiceLister interface {
	Voices(ctx context.Context) ([]Voice, error)
}

// Voice represents an available TTS voice.
type Voice struct {
	ID         string
	Name       string
	Category   string
	Labels     map[string]string
	PreviewURL string
}

// VoiceSettings holds the per-request synthesis tuning knobs.
type VoiceSettings struct {
	Stability       float64
	SimilarityBoost float64
	Style           float64
	UseSpeakerBoost bool
}

// DefaultSettings returns the voice settings used when none are configured.
func DefaultSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.8,
		Style:           0.0,
		UseSpeakerBoost: true,
	}
}
