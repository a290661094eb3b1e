// Package elevenlabs implements the ElevenLabs speech synthesis API.
package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"audiopages/pkg/config"
	"audiopages/pkg/request"
	"audiopages/pkg/tts"
)

// BaseURL is a variable so tests can point the client at a local server.
var BaseURL = "https://api.elevenlabs.io"

// voicesCacheKey keys the cached voice list in the store.
const voicesCacheKey = "elevenlabs_voices"

// Client implements tts.Synthesizer and tts.VoiceLister for ElevenLabs.
type Client struct {
	cfg config.ElevenLabsConfig
	rc  *request.Client
}

// New creates a new ElevenLabs client.
func New(cfg config.ElevenLabsConfig, rc *request.Client) *Client {
	return &Client{cfg: cfg, rc: rc}
}

// SynthesisURL returns the text-to-speech endpoint for a voice and format.
func SynthesisURL(voiceID string, format tts.Format) string {
	return fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		BaseURL, url.PathEscape(voiceID), url.QueryEscape(format.ID))
}

// synthesisRequest is the JSON payload for the text-to-speech endpoint.
type synthesisRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// RequestBody builds the synthesis payload. The manual fallback path uses
// it too, so both requests stay byte-identical.
func RequestBody(text, modelID string, s tts.VoiceSettings) ([]byte, error) {
	return json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: modelID,
		VoiceSettings: &voiceSettings{
			Stability:       s.Stability,
			SimilarityBoost: s.SimilarityBoost,
			Style:           s.Style,
			UseSpeakerBoost: s.UseSpeakerBoost,
		},
	})
}

// Headers returns the headers for one synthesis call.
func Headers(key, accept string) map[string]string {
	return map[string]string{
		"xi-api-key":   key,
		"Content-Type": "application/json",
		"Accept":       accept,
	}
}

// Synthesize generates audio for text. Exactly one attempt, no retry: the
// caller owns fallback behavior.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string, settings tts.VoiceSettings, format tts.Format) ([]byte, error) {
	if c.cfg.Key == "" {
		return nil, tts.ErrMissingAPIKey
	}

	body, err := RequestBody(text, c.cfg.Model, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	audio, err := c.rc.PostOnce(ctx, SynthesisURL(voiceID, format), body, Headers(c.cfg.Key, format.Accept))
	if err != nil {
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) {
			tts.Log("PRIMARY", text, statusErr.Code, nil)
			return nil, tts.NewAPIError(statusErr.Code, statusErr.Snippet)
		}
		tts.Log("PRIMARY", text, 0, err)
		return nil, err
	}

	if err := tts.VerifyAudio(audio); err != nil {
		tts.Log("PRIMARY", text, 200, err)
		return nil, err
	}

	tts.Log("PRIMARY", text, 200, nil)
	return audio, nil
}

// voicesResponse mirrors the GET /v1/voices payload.
type voicesResponse struct {
	Voices []voiceEntry `json:"voices"`
}

type voiceEntry struct {
	VoiceID    string            `json:"voice_id"`
	Name       string            `json:"name"`
	Category   string            `json:"category"`
	Labels     map[string]string `json:"labels"`
	PreviewURL string            `json:"preview_url"`
}

// Voices fetches the voices available to the account. Responses go through
// the request cache, so repeat calls inside the cache TTL stay local.
func (c *Client) Voices(ctx context.Context) ([]tts.Voice, error) {
	if c.cfg.Key == "" {
		return nil, tts.ErrMissingAPIKey
	}

	body, err := c.rc.GetWithHeaders(ctx, BaseURL+"/v1/voices",
		map[string]string{"xi-api-key": c.cfg.Key}, voicesCacheKey)
	if err != nil {
		var statusErr *request.StatusError
		if errors.As(err, &statusErr) {
			tts.Log("VOICES", "voice list fetch", statusErr.Code, nil)
			return nil, tts.NewAPIError(statusErr.Code, statusErr.Snippet)
		}
		tts.Log("VOICES", "voice list fetch", 0, err)
		return nil, err
	}

	var parsed voicesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse voices response: %w", err)
	}

	voices := make([]tts.Voice, 0, len(parsed.Voices))
	for _, v := range parsed.Voices {
		voices = append(voices, tts.Voice{
			ID:         v.VoiceID,
			Name:       v.Name,
			Category:   v.Category,
			Labels:     v.Labels,
			PreviewURL: v.PreviewURL,
		})
	}
	return voices, nil
}
