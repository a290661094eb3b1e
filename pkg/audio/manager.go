// Package audio provides in-process audio playback via gopxl/beep.
package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

// Manager decodes and plays audio files on the default output device.
type Manager struct {
	mu          sync.RWMutex
	volume      float64
	initialized bool
	sampleRate  beep.SampleRate
	ctrl        *beep.Ctrl
	streamer    *effects.Volume
}

// New creates a Manager with the given volume (0.0 to 1.0).
func New(volume float64) *Manager {
	m := &Manager{volume: 1.0}
	m.SetVolume(volume)
	return m
}

// PlayAndWait decodes the file and plays it, blocking until playback
// finishes or ctx is cancelled.
func (m *Manager) PlayAndWait(ctx context.Context, path string) error {
	streamer, format, err := decodeMedia(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if err := m.ensureSpeakerInitialized(); err != nil {
		m.mu.Unlock()
		streamer.Close()
		return err
	}

	resampled := beep.Resample(3, format.SampleRate, m.sampleRate, streamer)
	volStreamer := &effects.Volume{
		Streamer: resampled,
		Base:     2,
		Volume:   volumeToPower(m.volume),
		Silent:   m.volume <= 0.01,
	}
	ctrl := &beep.Ctrl{Streamer: volStreamer}
	m.ctrl = ctrl
	m.streamer = volStreamer
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.ctrl = nil
		m.streamer = nil
		m.mu.Unlock()
		streamer.Close()
	}()

	done := make(chan struct{})
	speaker.Play(beep.Seq(ctrl, beep.Callback(func() {
		close(done)
	})))
	slog.Debug("Audio: playing", "path", path)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// ensureSpeakerInitialized opens the output device once per process at a
// fixed 48kHz; all streams are resampled to it. Caller holds m.mu.
func (m *Manager) ensureSpeakerInitialized() error {
	const targetSampleRate = 48000
	if m.initialized {
		return nil
	}
	sr := beep.SampleRate(targetSampleRate)
	if err := speaker.Init(sr, sr.N(time.Second/10)); err != nil {
		slog.Error("Failed to initialize speaker", "error", err)
		return err
	}
	m.initialized = true
	m.sampleRate = sr
	return nil
}

// SetVolume sets playback volume (0.0 to 1.0), updating a live stream.
func (m *Manager) SetVolume(vol float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if vol < 0 {
		vol = 0
	} else if vol > 1 {
		vol = 1
	}
	m.volume = vol

	if m.streamer != nil {
		speaker.Lock()
		m.streamer.Volume = volumeToPower(vol)
		m.streamer.Silent = vol <= 0.01
		speaker.Unlock()
	}
}

// Volume returns the current volume level.
func (m *Manager) Volume() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.volume
}

// Shutdown stops any active playback.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized && m.ctrl != nil {
		speaker.Clear()
		m.ctrl = nil
		m.streamer = nil
	}
}
