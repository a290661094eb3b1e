package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiopages/pkg/config"
)

// writeTestConfig saves a config whose every path points inside dir, so a
// full run leaves nothing behind outside the test tree.
func writeTestConfig(t *testing.T, dir string) string {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Output.Dir = filepath.Join(dir, "output")
	cfg.Log.App.Path = filepath.Join(dir, "logs", "audiopages.log")
	cfg.Log.Requests.Path = filepath.Join(dir, "logs", "requests.log")
	cfg.History.TTS.Path = filepath.Join(dir, "logs", "tts_history.log")
	cfg.DB.Path = filepath.Join(dir, "data", "audiopages.db")

	cfgPath := filepath.Join(dir, "audiopages.yaml")
	require.NoError(t, config.Save(cfgPath, cfg))
	return cfgPath
}

func TestRun_ExitsCleanly(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "test-key")
	cfgPath := writeTestConfig(t, t.TempDir())
	out := &bytes.Buffer{}

	err := run(context.Background(), cfgPath, strings.NewReader("7\n"), out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "AudioPages")
	assert.Contains(t, out.String(), "1. Convert text to speech")
	assert.Contains(t, out.String(), "Goodbye.")
	assert.NotContains(t, out.String(), "Enter your ElevenLabs API key",
		"a key in the environment must suppress the prompt")
}

func TestRun_PromptsForKeyWhenMissing(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "")
	cfgPath := writeTestConfig(t, t.TempDir())
	out := &bytes.Buffer{}

	err := run(context.Background(), cfgPath, strings.NewReader("\n7\n"), out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "No ELEVENLABS_API_KEY found")
	assert.Contains(t, out.String(), "No key entered.")
}

func TestRun_EnteredKeyNeverTouchesDisk(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "")
	dir := t.TempDir()
	cfgPath := writeTestConfig(t, dir)
	out := &bytes.Buffer{}

	// Enter a key at the prompt, then save settings so the config file is
	// rewritten with the key held in memory.
	input := "secret-key-123\n4\n\n\n\n\n7\n"
	require.NoError(t, run(context.Background(), cfgPath, strings.NewReader(input), out))
	assert.Contains(t, out.String(), "Settings saved.")

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		assert.NotContains(t, string(data), "secret-key-123",
			"the api key leaked into %s", path)
		return nil
	})
	require.NoError(t, err)
}

func TestRun_StatsOption(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "test-key")
	cfgPath := writeTestConfig(t, t.TempDir())
	out := &bytes.Buffer{}

	err := run(context.Background(), cfgPath, strings.NewReader("6\n7\n"), out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "Session stats:")
	assert.Contains(t, out.String(), "Conversions recorded: 0")
}

func TestRun_BadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("::: not yaml {"), 0o644))

	err := run(context.Background(), cfgPath, strings.NewReader(""), &bytes.Buffer{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
