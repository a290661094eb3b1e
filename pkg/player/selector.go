// Package player selects a playback mechanism for an audio file: the
// in-process decoder first, then external CLI players, then the system's
// default opener.
package player

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"audiopages/pkg/logging"
)

// Hooks for tests.
var (
	lookPath   = exec.LookPath
	runCommand = func(ctx context.Context, name string, args ...string) error {
		return exec.CommandContext(ctx, name, args...).Run()
	}
)

// ManagedPlayer decodes and plays audio in-process.
type ManagedPlayer interface {
	PlayAndWait(ctx context.Context, path string) error
}

// Candidate is one external playback mechanism. Args precede the file path.
type Candidate struct {
	Name string
	Bin  string
	Args []string
}

// candidatesFor returns the external candidates for an OS in priority
// order, the generic opener last.
func candidatesFor(goos string) []Candidate {
	switch goos {
	case "darwin":
		return []Candidate{
			{Name: "afplay", Bin: "afplay"},
			{Name: "open", Bin: "open"},
		}
	case "windows":
		return []Candidate{
			{Name: "start", Bin: "cmd", Args: []string{"/c", "start", ""}},
		}
	default:
		return []Candidate{
			{Name: "mpg123", Bin: "mpg123"},
			{Name: "mpv", Bin: "mpv"},
			{Name: "vlc", Bin: "vlc", Args: []string{"--intf", "dummy", "--play-and-exit"}},
			{Name: "mplayer", Bin: "mplayer"},
			{Name: "aplay", Bin: "aplay"},
			{Name: "xdg-open", Bin: "xdg-open"},
		}
	}
}

// Selector tries playback candidates in strict order until one succeeds.
type Selector struct {
	managed ManagedPlayer
	goos    string
}

// New creates a Selector. managed may be nil to disable in-process playback.
func New(managed ManagedPlayer) *Selector {
	return &Selector{managed: managed, goos: runtime.GOOS}
}

// PlaybackError reports that every candidate failed or was unavailable.
type PlaybackError struct {
	Attempted []string
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("all playback candidates failed: tried %s", strings.Join(e.Attempted, ", "))
}

// Play plays the file with the first candidate that works. Candidates whose
// executable is absent count as attempted. Once a candidate succeeds no
// further candidate runs.
func (s *Selector) Play(ctx context.Context, path string) error {
	var attempted []string

	if s.managed != nil && managedSupports(path) {
		attempted = append(attempted, "beep")
		err := s.managed.PlayAndWait(ctx, path)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("Player: in-process playback failed, trying external players", "error", err)
	}

	for _, c := range candidatesFor(s.goos) {
		attempted = append(attempted, c.Name)
		logging.TraceDefault("Player: trying candidate", "name", c.Name)

		if _, err := lookPath(c.Bin); err != nil {
			slog.Debug("Player: candidate not on PATH", "name", c.Name)
			continue
		}

		args := append(append([]string{}, c.Args...), path)
		if err := runCommand(ctx, c.Bin, args...); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("Player: candidate failed", "name", c.Name, "error", err)
			continue
		}

		slog.Debug("Player: playback done", "name", c.Name, "path", path)
		return nil
	}

	return &PlaybackError{Attempted: attempted}
}

// managedSupports reports whether the in-process decoder can handle the
// file. beep decodes MP3 and WAV; raw PCM goes to external players.
func managedSupports(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3", ".wav":
		return true
	default:
		return false
	}
}

// Detect returns the names of external candidates present on PATH.
func Detect() []string {
	return detectFor(runtime.GOOS)
}

func detectFor(goos string) []string {
	var found []string
	for _, c := range candidatesFor(goos) {
		if _, err := lookPath(c.Bin); err == nil {
			found = append(found, c.Name)
		}
	}
	return found
}
