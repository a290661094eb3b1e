// Package speech orchestrates text-to-speech conversion: it clips input,
// drives the primary synthesis path with a single direct-request fallback,
// writes the audio file and records the outcome.
package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"audiopages/pkg/config"
	"audiopages/pkg/store"
	"audiopages/pkg/tracker"
	"audiopages/pkg/tts"
	"audiopages/pkg/tts/elevenlabs"
)

// lastOutputKey is the persistent-state key holding the most recent file.
const lastOutputKey = "last_output_file"

// Request describes one conversion. Zero-value VoiceID and FormatID fall
// back to the configured defaults.
type Request struct {
	Text     string
	VoiceID  string
	FormatID string
	Settings tts.VoiceSettings
}

// Result is a successful conversion. The caller owns the file.
type Result struct {
	RequestID string
	FilePath  string
	Audio     []byte
	Format    tts.Format
	VoiceID   string
	Chars     int
	Fallback  bool
}

// Recorder persists conversion history. Failures here never fail a
// conversion that already produced audio.
type Recorder interface {
	SaveConversion(ctx context.Context, rec *store.Conversion) error
	SetState(ctx context.Context, key, value string) error
}

// Orchestrator coordinates a conversion from text to an audio file.
type Orchestrator struct {
	cfg        *config.Config
	primary    tts.Synthesizer
	httpClient *http.Client
	recorder   Recorder
	tracker    *tracker.Tracker
}

// New creates an Orchestrator. recorder and t may be nil.
func New(cfg *config.Config, primary tts.Synthesizer, recorder Recorder, t *tracker.Tracker) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		primary:    primary,
		httpClient: &http.Client{Timeout: time.Duration(cfg.Request.Timeout)},
		recorder:   recorder,
		tracker:    t,
	}
}

// SettingsFromConfig converts configured voice settings to request settings.
func SettingsFromConfig(c config.VoiceSettingsConfig) tts.VoiceSettings {
	return tts.VoiceSettings{
		Stability:       c.Stability,
		SimilarityBoost: c.SimilarityBoost,
		Style:           c.Style,
		UseSpeakerBoost: c.UseSpeakerBoost,
	}
}

// Convert turns text into an audio file. The primary path gets exactly one
// attempt; on any primary error a direct request is tried exactly once
// before the combined failure is returned.
func (o *Orchestrator) Convert(ctx context.Context, req Request) (*Result, error) {
	if o.cfg.TTS.ElevenLabs.Key == "" {
		return nil, tts.ErrMissingAPIKey
	}

	formatID := req.FormatID
	if formatID == "" {
		formatID = o.cfg.TTS.ElevenLabs.Format
	}
	if formatID == "" {
		formatID = tts.DefaultFormatID
	}
	format, err := tts.FormatByID(formatID)
	if err != nil {
		return nil, err
	}

	text := tts.Truncate(req.Text)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("nothing to convert: text is empty")
	}

	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = o.cfg.TTS.ElevenLabs.VoiceID
	}

	requestID := uuid.NewString()
	slog.Info("Speech: converting text", "request_id", requestID, "voice", voiceID, "format", format.ID, "chars", len([]rune(text)))

	fellBack := false
	audio, err := o.primary.Synthesize(ctx, text, voiceID, req.Settings, format)
	if err != nil {
		primaryErr := err
		slog.Warn("Speech: primary synthesis failed, retrying with direct request", "request_id", requestID, "error", primaryErr)

		audio, err = o.directSynthesize(ctx, text, voiceID, req.Settings, format)
		if err != nil {
			return nil, fmt.Errorf("synthesis failed (primary: %v): %w", primaryErr, err)
		}
		fellBack = true
		if o.tracker != nil {
			o.tracker.TrackFallback("elevenlabs")
		}
	}

	if len(audio) == 0 {
		return nil, fmt.Errorf("synthesis returned no audio")
	}

	filePath, err := o.writeOutput(audio, format)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RequestID: requestID,
		FilePath:  filePath,
		Audio:     audio,
		Format:    format,
		VoiceID:   voiceID,
		Chars:     len([]rune(text)),
		Fallback:  fellBack,
	}
	o.recordHistory(ctx, res)

	slog.Info("Speech: conversion complete", "request_id", requestID, "file", filePath, "bytes", len(audio), "fallback", fellBack)
	return res, nil
}

// directSynthesize POSTs to the synthesis endpoint with a plain HTTP
// client, bypassing the queued request layer. Same URL, headers and body
// as the primary path, one attempt.
func (o *Orchestrator) directSynthesize(ctx context.Context, text, voiceID string, settings tts.VoiceSettings, format tts.Format) ([]byte, error) {
	body, err := elevenlabs.RequestBody(text, o.cfg.TTS.ElevenLabs.Model, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, elevenlabs.SynthesisURL(voiceID, format), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range elevenlabs.Headers(o.cfg.TTS.ElevenLabs.Key, format.Accept) {
		httpReq.Header.Set(k, v)
	}

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		tts.Log("FALLBACK", text, 0, err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		tts.Log("FALLBACK", text, resp.StatusCode, nil)
		return nil, tts.NewAPIError(resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if err := tts.VerifyAudio(audio); err != nil {
		tts.Log("FALLBACK", text, resp.StatusCode, err)
		return nil, err
	}

	tts.Log("FALLBACK", text, resp.StatusCode, nil)
	return audio, nil
}

// writeOutput writes audio under the output directory using the
// generated_speech naming scheme.
func (o *Orchestrator) writeOutput(audio []byte, format tts.Format) (string, error) {
	dir := o.cfg.Output.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("generated_speech_%d.%s", time.Now().Unix(), format.Ext))
	// Same-second conversions would collide on the timestamp alone
	if _, err := os.Stat(path); err == nil {
		path = filepath.Join(dir, fmt.Sprintf("generated_speech_%d.%s", time.Now().UnixNano(), format.Ext))
	}

	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	return path, nil
}

// recordHistory appends the conversion to the store. Best effort.
func (o *Orchestrator) recordHistory(ctx context.Context, res *Result) {
	if o.recorder == nil {
		return
	}

	status := store.StatusOK
	if res.Fallback {
		status = store.StatusFallback
	}
	rec := &store.Conversion{
		RequestID: res.RequestID,
		VoiceID:   res.VoiceID,
		Model:     o.cfg.TTS.ElevenLabs.Model,
		Chars:     res.Chars,
		Format:    res.Format.ID,
		FilePath:  res.FilePath,
		Status:    status,
	}
	if err := o.recorder.SaveConversion(ctx, rec); err != nil {
		slog.Warn("Speech: failed to record conversion history", "error", err)
	}
	if err := o.recorder.SetState(ctx, lastOutputKey, res.FilePath); err != nil {
		slog.Debug("Speech: failed to update last output state", "error", err)
	}
}
