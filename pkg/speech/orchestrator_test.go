package speech

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiopages/pkg/config"
	"audiopages/pkg/store"
	"audiopages/pkg/tracker"
	"audiopages/pkg/tts"
	"audiopages/pkg/tts/elevenlabs"
)

// --- Mocks ---

type MockSynthesizer struct {
	Audio []byte
	Err   error
	Calls int

	LastText    string
	LastVoiceID string
	LastFormat  tts.Format
}

func (m *MockSynthesizer) Synthesize(ctx context.Context, text, voiceID string, settings tts.VoiceSettings, format tts.Format) ([]byte, error) {
	m.Calls++
	m.LastText = text
	m.LastVoiceID = voiceID
	m.LastFormat = format
	return m.Audio, m.Err
}

type MockRecorder struct {
	Saved []*store.Conversion
	State map[string]string
}

func (m *MockRecorder) SaveConversion(ctx context.Context, rec *store.Conversion) error {
	m.Saved = append(m.Saved, rec)
	return nil
}

func (m *MockRecorder) SetState(ctx context.Context, key, val string) error {
	if m.State == nil {
		m.State = make(map[string]string)
	}
	m.State[key] = val
	return nil
}

// --- Helpers ---

func testConfig(t *testing.T, key string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.TTS.ElevenLabs.Key = key
	cfg.Output.Dir = t.TempDir()
	tts.SetLogPath(filepath.Join(t.TempDir(), "tts.log"))
	return cfg
}

// redirectAPI points the direct-request path at a local server.
func redirectAPI(t *testing.T, url string) {
	t.Helper()
	old := elevenlabs.BaseURL
	elevenlabs.BaseURL = url
	t.Cleanup(func() { elevenlabs.BaseURL = old })
}

func validAudio() []byte {
	return make([]byte, 2048)
}

// --- Tests ---

func TestConvert_Success(t *testing.T) {
	cfg := testConfig(t, "test-key")
	synth := &MockSynthesizer{Audio: validAudio()}
	rec := &MockRecorder{}
	tr := tracker.New()

	o := New(cfg, synth, rec, tr)
	res, err := o.Convert(context.Background(), Request{Text: "Hello world"})
	require.NoError(t, err)

	assert.Equal(t, 1, synth.Calls)
	assert.NotEmpty(t, res.Audio, "Audio bytes should be returned")
	assert.NotEmpty(t, res.RequestID)
	assert.False(t, res.Fallback)
	assert.Equal(t, "21m00Tcm4TlvDq8ikWAM", synth.LastVoiceID, "Default voice should apply")
	assert.Equal(t, "mp3_44100_128", synth.LastFormat.ID, "Default format should apply")

	// The file on disk matches the returned bytes
	data, err := os.ReadFile(res.FilePath)
	require.NoError(t, err)
	assert.Equal(t, res.Audio, data)
	assert.True(t, strings.HasPrefix(filepath.Base(res.FilePath), "generated_speech_"))
	assert.True(t, strings.HasSuffix(res.FilePath, ".mp3"))

	// History row and last-output state
	require.Len(t, rec.Saved, 1)
	assert.Equal(t, store.StatusOK, rec.Saved[0].Status)
	assert.Equal(t, res.RequestID, rec.Saved[0].RequestID)
	assert.Equal(t, 11, rec.Saved[0].Chars)
	assert.Equal(t, res.FilePath, rec.State["last_output_file"])
}

func TestConvert_TruncatesLongText(t *testing.T) {
	cfg := testConfig(t, "test-key")
	synth := &MockSynthesizer{Audio: validAudio()}

	o := New(cfg, synth, nil, nil)
	res, err := o.Convert(context.Background(), Request{Text: strings.Repeat("a", 6000)})
	require.NoError(t, err)

	assert.Equal(t, 5000, len([]rune(synth.LastText)), "Text should be clipped to the submission limit")
	assert.Equal(t, 5000, res.Chars)
}

func TestConvert_MissingKey(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()
	redirectAPI(t, server.URL)

	cfg := testConfig(t, "")
	synth := &MockSynthesizer{Audio: validAudio()}

	o := New(cfg, synth, nil, nil)
	_, err := o.Convert(context.Background(), Request{Text: "Hello"})

	assert.ErrorIs(t, err, tts.ErrMissingAPIKey)
	assert.Equal(t, 0, synth.Calls, "Primary must not be invoked without a key")
	assert.Equal(t, 0, hits, "No network traffic without a key")
}

func TestConvert_UnknownFormat(t *testing.T) {
	cfg := testConfig(t, "test-key")
	synth := &MockSynthesizer{Audio: validAudio()}

	o := New(cfg, synth, nil, nil)
	_, err := o.Convert(context.Background(), Request{Text: "Hello", FormatID: "ogg_vorbis"})

	assert.ErrorIs(t, err, tts.ErrUnsupportedFormat)
	assert.Equal(t, 0, synth.Calls, "No call should be made for an unknown format")
}

func TestConvert_EmptyText(t *testing.T) {
	cfg := testConfig(t, "test-key")
	synth := &MockSynthesizer{Audio: validAudio()}

	o := New(cfg, synth, nil, nil)
	_, err := o.Convert(context.Background(), Request{Text: "   \n\t "})

	assert.Error(t, err)
	assert.Equal(t, 0, synth.Calls)
}

func TestConvert_FallbackExactlyOnce(t *testing.T) {
	hits := 0
	var gotKey, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		gotKey = r.Header.Get("xi-api-key")
		gotPath = r.URL.Path
		w.Write(validAudio())
	}))
	defer server.Close()
	redirectAPI(t, server.URL)

	cfg := testConfig(t, "test-key")
	synth := &MockSynthesizer{Err: fmt.Errorf("primary exploded")}
	rec := &MockRecorder{}
	tr := tracker.New()

	o := New(cfg, synth, rec, tr)
	res, err := o.Convert(context.Background(), Request{Text: "Hello world"})
	require.NoError(t, err, "Fallback should rescue the conversion")

	assert.Equal(t, 1, synth.Calls, "Primary gets exactly one attempt")
	assert.Equal(t, 1, hits, "Direct request happens exactly once")
	assert.True(t, res.Fallback)
	assert.NotEmpty(t, res.Audio)

	// Same endpoint, same credentials as the primary path
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "/v1/text-to-speech/21m00Tcm4TlvDq8ikWAM", gotPath)

	require.Len(t, rec.Saved, 1)
	assert.Equal(t, store.StatusFallback, rec.Saved[0].Status)
	assert.Equal(t, int64(1), tr.Snapshot()["elevenlabs"].Fallbacks)
}

func TestConvert_BothPathsFail(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, `{"detail":"out of quota"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()
	redirectAPI(t, server.URL)

	cfg := testConfig(t, "test-key")
	synth := &MockSynthesizer{Err: fmt.Errorf("primary exploded")}

	o := New(cfg, synth, nil, nil)
	_, err := o.Convert(context.Background(), Request{Text: "Hello"})

	require.Error(t, err)
	assert.Equal(t, 1, synth.Calls)
	assert.Equal(t, 1, hits, "Secondary path must not retry")

	var apiErr *tts.APIError
	require.True(t, errors.As(err, &apiErr), "Secondary failure should surface as APIError")
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "primary exploded", "Primary cause should be retained")
}

func TestConvert_SmallFallbackPayloadRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()
	redirectAPI(t, server.URL)

	cfg := testConfig(t, "test-key")
	synth := &MockSynthesizer{Err: fmt.Errorf("primary exploded")}

	o := New(cfg, synth, nil, nil)
	_, err := o.Convert(context.Background(), Request{Text: "Hello"})

	assert.Error(t, err, "A payload below the audio minimum is a failure")
}

func TestConvert_NetworkErrorClassification(t *testing.T) {
	// Nothing listens on this port, so the direct request fails at dial time.
	redirectAPI(t, "http://127.0.0.1:1")

	cfg := testConfig(t, "test-key")
	synth := &MockSynthesizer{Err: fmt.Errorf("primary exploded")}

	o := New(cfg, synth, nil, nil)
	_, err := o.Convert(context.Background(), Request{Text: "Hello"})

	require.Error(t, err)
	assert.True(t, tts.IsNetworkError(err), "Dial failures should classify as network errors")
}
