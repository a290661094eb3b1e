package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"audiopages/pkg/audio"
	"audiopages/pkg/config"
	"audiopages/pkg/logging"
	"audiopages/pkg/player"
	"audiopages/pkg/speech"
	"audiopages/pkg/store"
	"audiopages/pkg/textproc"
	"audiopages/pkg/tracker"
	"audiopages/pkg/tts"
	"audiopages/pkg/version"
)

// Converter produces an audio file from text.
type Converter interface {
	Convert(ctx context.Context, req speech.Request) (*speech.Result, error)
}

// AudioPlayer plays an audio file, blocking until done.
type AudioPlayer interface {
	Play(ctx context.Context, path string) error
}

// App drives the interactive menu. Every operation recovers its errors
// and renders them as one-line messages; the loop itself never dies.
type App struct {
	cfg       *config.Config
	cfgPath   string
	converter Converter
	player    AudioPlayer
	voices    tts.VoiceLister
	store     store.Store
	tracker   *tracker.Tracker
	in        *bufio.Reader
	out       io.Writer
}

func newApp(cfg *config.Config, cfgPath string, conv Converter, pl AudioPlayer, voices tts.VoiceLister, st store.Store, tr *tracker.Tracker, in *bufio.Reader, out io.Writer) *App {
	return &App{
		cfg:       cfg,
		cfgPath:   cfgPath,
		converter: conv,
		player:    pl,
		voices:    voices,
		store:     st,
		tracker:   tr,
		in:        in,
		out:       out,
	}
}

// Run shows the menu until the user exits, the input ends, or ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	fmt.Fprintf(a.out, "AudioPages %s\n", version.Version)

	for {
		if ctx.Err() != nil {
			return nil
		}

		a.printMenu()
		choice, err := a.readLine()
		if err != nil {
			return nil
		}

		switch strings.TrimSpace(choice) {
		case "1":
			a.convertText(ctx)
		case "2":
			a.convertFile(ctx)
		case "3":
			a.changeVoice(ctx)
		case "4":
			a.adjustSettings()
		case "5":
			a.listVoices(ctx)
		case "6":
			a.showStats(ctx)
		case "7", "q", "quit", "exit":
			fmt.Fprintln(a.out, "Goodbye.")
			return nil
		default:
			fmt.Fprintln(a.out, "Invalid option. Please try again.")
		}
	}
}

func (a *App) printMenu() {
	fmt.Fprint(a.out, `
=== AudioPages ===
1. Convert text to speech
2. Convert a text/HTML file
3. Change voice
4. Adjust voice settings
5. List available voices
6. Session stats
7. Exit
Choose an option: `)
}

// readLine returns the next input line without the trailing newline.
// A final line without one still comes through before the error.
func (a *App) readLine() (string, error) {
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *App) convertText(ctx context.Context) {
	fmt.Fprint(a.out, "Enter the text to convert: ")
	text, err := a.readLine()
	if err != nil {
		return
	}
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(a.out, "Nothing to convert.")
		return
	}
	a.convert(ctx, text)
}

func (a *App) convertFile(ctx context.Context) {
	fmt.Fprint(a.out, "Path to the text or HTML file: ")
	path, err := a.readLine()
	if err != nil {
		return
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(a.out, "Could not read %s: %v\n", path, err)
		return
	}

	text := string(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		text, err = textproc.ExtractText(bytes.NewReader(data))
		if err != nil {
			fmt.Fprintf(a.out, "Could not parse %s: %v\n", path, err)
			return
		}
	}

	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(a.out, "The file contains no convertible text.")
		return
	}
	a.convert(ctx, text)
}

func (a *App) convert(ctx context.Context, text string) {
	fmt.Fprintln(a.out, "Converting...")
	res, err := a.converter.Convert(ctx, speech.Request{
		Text:     text,
		Settings: speech.SettingsFromConfig(a.cfg.TTS.ElevenLabs.Settings),
	})
	if err != nil {
		fmt.Fprintln(a.out, userMessage(err))
		return
	}

	fmt.Fprintf(a.out, "Done: %s (%d characters, %d bytes", res.FilePath, res.Chars, len(res.Audio))
	if d, err := audio.GetDuration(res.FilePath); err == nil {
		fmt.Fprintf(a.out, ", %s", d.Round(time.Second))
	}
	fmt.Fprintln(a.out, ")")

	a.postConvert(ctx, res)
}

func (a *App) postConvert(ctx context.Context, res *speech.Result) {
	fmt.Fprint(a.out, "1. Play  2. Save to file  3. Both\nChoose an option: ")
	choice, err := a.readLine()
	if err != nil {
		return
	}

	switch strings.TrimSpace(choice) {
	case "1":
		a.play(ctx, res.FilePath)
	case "2":
		a.save(res)
	case "3":
		path := a.save(res)
		a.play(ctx, path)
	default:
		fmt.Fprintf(a.out, "Kept %s\n", res.FilePath)
	}
}

func (a *App) play(ctx context.Context, path string) {
	fmt.Fprintln(a.out, "Playing...")
	if err := a.player.Play(ctx, path); err != nil {
		fmt.Fprintln(a.out, userMessage(err))
		fmt.Fprintf(a.out, "The audio file is still available at %s\n", path)
	}
}

// save moves the generated file to a user-chosen destination and returns
// the final path. Empty input keeps the generated location.
func (a *App) save(res *speech.Result) string {
	fmt.Fprintf(a.out, "Destination [%s]: ", res.FilePath)
	dest, err := a.readLine()
	if err != nil {
		return res.FilePath
	}
	dest = strings.TrimSpace(dest)
	if dest == "" || dest == res.FilePath {
		fmt.Fprintf(a.out, "Saved: %s\n", res.FilePath)
		return res.FilePath
	}

	if err := moveFile(res.FilePath, dest); err != nil {
		fmt.Fprintf(a.out, "Could not save to %s: %v\n", dest, err)
		return res.FilePath
	}
	res.FilePath = dest
	fmt.Fprintf(a.out, "Saved: %s\n", dest)
	return dest
}

// moveFile renames src to dst, copying when rename fails (different
// filesystems).
func moveFile(src, dst string) error {
	if dir := filepath.Dir(dst); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return err
	}
	return os.Remove(src)
}

func (a *App) changeVoice(ctx context.Context) {
	voices, err := a.voices.Voices(ctx)
	if err != nil {
		fmt.Fprintln(a.out, userMessage(err))
		return
	}
	if len(voices) == 0 {
		fmt.Fprintln(a.out, "No voices available.")
		return
	}

	fmt.Fprintln(a.out, "Available voices:")
	for i, v := range voices {
		marker := "  "
		if v.ID == a.cfg.TTS.ElevenLabs.VoiceID {
			marker = "* "
		}
		fmt.Fprintf(a.out, "%s%2d) %s (%s) [%s]\n", marker, i+1, v.Name, v.ID, v.Category)
	}

	fmt.Fprint(a.out, "Select a voice by number (or paste a voice ID): ")
	input, err := a.readLine()
	if err != nil {
		return
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	selected := input
	if n, err := strconv.Atoi(input); err == nil {
		if n < 1 || n > len(voices) {
			fmt.Fprintln(a.out, "Invalid selection.")
			return
		}
		selected = voices[n-1].ID
	}

	a.cfg.TTS.ElevenLabs.VoiceID = selected
	if err := config.Save(a.cfgPath, a.cfg); err != nil {
		fmt.Fprintf(a.out, "Voice changed for this session, but saving failed: %v\n", err)
		return
	}
	fmt.Fprintf(a.out, "Voice set to %s\n", selected)
}

func (a *App) adjustSettings() {
	s := &a.cfg.TTS.ElevenLabs.Settings
	fmt.Fprintln(a.out, "Adjust voice settings (empty input keeps the current value).")
	s.Stability = a.promptFloat("Stability", s.Stability)
	s.SimilarityBoost = a.promptFloat("Similarity boost", s.SimilarityBoost)
	s.Style = a.promptFloat("Style", s.Style)
	s.UseSpeakerBoost = a.promptBool("Use speaker boost", s.UseSpeakerBoost)

	if err := config.Save(a.cfgPath, a.cfg); err != nil {
		fmt.Fprintf(a.out, "Settings changed for this session, but saving failed: %v\n", err)
		return
	}
	fmt.Fprintln(a.out, "Settings saved.")
}

func (a *App) promptFloat(label string, current float64) float64 {
	fmt.Fprintf(a.out, "%s [%.2f]: ", label, current)
	input, err := a.readLine()
	if err != nil {
		return current
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return current
	}

	val, err := strconv.ParseFloat(input, 64)
	if err != nil || val < 0 || val > 1 {
		fmt.Fprintln(a.out, "Values must be between 0 and 1; keeping the current value.")
		return current
	}
	return val
}

func (a *App) promptBool(label string, current bool) bool {
	state := "n"
	if current {
		state = "y"
	}
	fmt.Fprintf(a.out, "%s [%s]: ", label, state)
	input, err := a.readLine()
	if err != nil {
		return current
	}

	switch strings.ToLower(strings.TrimSpace(input)) {
	case "":
		return current
	case "y", "yes", "true":
		return true
	case "n", "no", "false":
		return false
	default:
		fmt.Fprintln(a.out, "Please answer y or n; keeping the current value.")
		return current
	}
}

func (a *App) listVoices(ctx context.Context) {
	voices, err := a.voices.Voices(ctx)
	if err != nil {
		fmt.Fprintln(a.out, userMessage(err))
		return
	}

	fmt.Fprintf(a.out, "%d voices available:\n", len(voices))
	for _, v := range voices {
		fmt.Fprintf(a.out, "  %s (%s) [%s]\n", v.Name, v.ID, v.Category)
	}
}

func (a *App) showStats(ctx context.Context) {
	fmt.Fprintln(a.out, "Session stats:")

	snap := a.tracker.Snapshot()
	if len(snap) == 0 {
		fmt.Fprintln(a.out, "  No API calls made yet.")
	}
	providers := make([]string, 0, len(snap))
	for p := range snap {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	for _, p := range providers {
		s := snap[p]
		fmt.Fprintf(a.out, "  %s: %d ok, %d failed, %d fallbacks, cache %d hits / %d misses\n",
			p, s.APISuccess, s.APIFailures, s.Fallbacks, s.CacheHits, s.CacheMisses)
	}

	if a.store != nil {
		if n, err := a.store.CountConversions(ctx); err == nil {
			fmt.Fprintf(a.out, "  Conversions recorded: %d\n", n)
		}
		if recs, err := a.store.RecentConversions(ctx, 5); err == nil && len(recs) > 0 {
			fmt.Fprintln(a.out, "Recent conversions:")
			for _, r := range recs {
				fmt.Fprintf(a.out, "  %s  %s  %d chars  [%s]  %s\n",
					r.CreatedAt.Format("15:04:05"), r.VoiceID, r.Chars, r.Status, r.FilePath)
			}
		}
	}

	if lines := logging.GlobalLogCapture.Lines(); len(lines) > 0 {
		fmt.Fprintln(a.out, "Recent log lines:")
		for _, l := range lines {
			fmt.Fprintln(a.out, "  "+l)
		}
	}
}

func formatIDs() []string {
	formats := tts.Formats()
	ids := make([]string, len(formats))
	for i, f := range formats {
		ids[i] = f.ID
	}
	return ids
}

// userMessage renders a component error as a one-line console message.
func userMessage(err error) string {
	var pbErr *player.PlaybackError
	var apiErr *tts.APIError

	switch {
	case errors.Is(err, tts.ErrMissingAPIKey):
		return "No API key configured. Set ELEVENLABS_API_KEY (or put it in .env) and restart."
	case errors.Is(err, tts.ErrUnsupportedFormat):
		return fmt.Sprintf("Unsupported output format: %v. Valid formats: %s", err, strings.Join(formatIDs(), ", "))
	case errors.Is(err, tts.ErrMissingDependency):
		return fmt.Sprintf("Missing dependency: %v", err)
	case errors.As(err, &pbErr):
		return fmt.Sprintf("Playback failed: %v", err)
	case tts.IsFatalAPIError(err):
		return "The API rejected the credentials. Check that your ELEVENLABS_API_KEY is valid."
	case errors.As(err, &apiErr):
		return fmt.Sprintf("The API rejected the request: %s", apiErr.Message)
	case tts.IsNetworkError(err):
		return "Network problem while reaching the API. Check your connection and try again."
	case errors.Is(err, context.Canceled):
		return "Cancelled."
	default:
		return fmt.Sprintf("Something went wrong: %v", err)
	}
}
