package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"audiopages/pkg/cache"
	"audiopages/pkg/config"
	"audiopages/pkg/request"
	"audiopages/pkg/tracker"
	"audiopages/pkg/tts"
)

// memCache is a minimal in-memory Cacher for exercising the voices cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) GetCache(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memCache) SetCache(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func testClient(t *testing.T, serverURL, key string, c cache.Cacher) *Client {
	t.Helper()

	oldBase := BaseURL
	BaseURL = serverURL
	t.Cleanup(func() { BaseURL = oldBase })

	tts.SetLogPath(filepath.Join(t.TempDir(), "tts.log"))

	cfg := config.DefaultConfig().TTS.ElevenLabs
	cfg.Key = key

	rc := request.New(c, tracker.New(), request.ClientConfig{
		Retries:   3,
		Timeout:   5 * time.Second,
		BaseDelay: time.Millisecond,
	})
	return New(cfg, rc)
}

func mustFormat(t *testing.T, id string) tts.Format {
	t.Helper()
	f, err := tts.FormatByID(id)
	if err != nil {
		t.Fatalf("FormatByID(%q): %v", id, err)
	}
	return f
}

func TestSynthesize(t *testing.T) {
	audio := make([]byte, 2048)
	var gotPath, gotQuery, gotKey, gotAccept string
	var gotBody synthesisRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotKey = r.Header.Get("xi-api-key")
		gotAccept = r.Header.Get("Accept")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Write(audio)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "test-key", cache.Nop{})
	format := mustFormat(t, "mp3_44100_128")

	got, err := client.Synthesize(context.Background(), "Hello world", "voice123", tts.DefaultSettings(), format)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(got) != len(audio) {
		t.Errorf("Expected %d audio bytes, got %d", len(audio), len(got))
	}

	if gotPath != "/v1/text-to-speech/voice123" {
		t.Errorf("Unexpected path: %s", gotPath)
	}
	if gotQuery != "output_format=mp3_44100_128" {
		t.Errorf("Unexpected query: %s", gotQuery)
	}
	if gotKey != "test-key" {
		t.Errorf("Expected xi-api-key header, got %q", gotKey)
	}
	if gotAccept != "audio/mpeg" {
		t.Errorf("Expected Accept audio/mpeg, got %q", gotAccept)
	}
	if gotBody.Text != "Hello world" {
		t.Errorf("Unexpected text in body: %q", gotBody.Text)
	}
	if gotBody.ModelID != "eleven_monolingual_v1" {
		t.Errorf("Unexpected model in body: %q", gotBody.ModelID)
	}
	if gotBody.VoiceSettings == nil || gotBody.VoiceSettings.SimilarityBoost != 0.8 {
		t.Errorf("Voice settings not carried in body: %+v", gotBody.VoiceSettings)
	}
}

func TestSynthesize_MissingKey(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	client := testClient(t, server.URL, "", cache.Nop{})

	_, err := client.Synthesize(context.Background(), "Hello", "voice123", tts.DefaultSettings(), mustFormat(t, "mp3_44100_128"))
	if !errors.Is(err, tts.ErrMissingAPIKey) {
		t.Errorf("Expected ErrMissingAPIKey, got %v", err)
	}
	if hits != 0 {
		t.Errorf("Expected no requests without a key, got %d", hits)
	}
}

func TestSynthesize_SingleAttempt(t *testing.T) {
	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		http.Error(w, `{"detail":"server busy"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "test-key", cache.Nop{})

	_, err := client.Synthesize(context.Background(), "Hello", "voice123", tts.DefaultSettings(), mustFormat(t, "mp3_44100_128"))
	if err == nil {
		t.Fatal("Expected error from failing server")
	}
	// The client must not retry on its own, even on retryable statuses.
	if hits != 1 {
		t.Errorf("Expected exactly 1 attempt, got %d", hits)
	}

	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", apiErr.StatusCode)
	}
}

func TestSynthesize_FatalStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := testClient(t, server.URL, "bad-key", cache.Nop{})

	_, err := client.Synthesize(context.Background(), "Hello", "voice123", tts.DefaultSettings(), mustFormat(t, "mp3_44100_128"))
	if !tts.IsFatalAPIError(err) {
		t.Errorf("Expected fatal API error for 401, got %v", err)
	}
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("Expected error to carry the API detail, got %v", err)
	}
}

func TestSynthesize_TinyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, "test-key", cache.Nop{})

	_, err := client.Synthesize(context.Background(), "Hello", "voice123", tts.DefaultSettings(), mustFormat(t, "mp3_44100_128"))
	if err == nil {
		t.Fatal("Expected error for a response too small to be audio")
	}
}

func TestVoices(t *testing.T) {
	payload := `{"voices":[
		{"voice_id":"21m00Tcm4TlvDq8ikWAM","name":"Rachel","category":"premade","labels":{"accent":"american"},"preview_url":"https://example.com/rachel.mp3"},
		{"voice_id":"abc123","name":"Custom","category":"cloned"}
	]}`

	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path != "/v1/voices" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Error("Expected xi-api-key header on voices request")
		}
		w.Write([]byte(payload))
	}))
	defer server.Close()

	client := testClient(t, server.URL, "test-key", newMemCache())

	voices, err := client.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices failed: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("Expected 2 voices, got %d", len(voices))
	}
	if voices[0].ID != "21m00Tcm4TlvDq8ikWAM" || voices[0].Name != "Rachel" {
		t.Errorf("Unexpected first voice: %+v", voices[0])
	}
	if voices[0].Labels["accent"] != "american" {
		t.Errorf("Labels not parsed: %+v", voices[0].Labels)
	}

	// Second call should come from the cache.
	if _, err := client.Voices(context.Background()); err != nil {
		t.Fatalf("Cached Voices failed: %v", err)
	}
	if hits != 1 {
		t.Errorf("Expected 1 server hit with cache, got %d", hits)
	}
}

func TestVoices_MissingKey(t *testing.T) {
	client := testClient(t, "http://127.0.0.1:1", "", cache.Nop{})

	_, err := client.Voices(context.Background())
	if !errors.Is(err, tts.ErrMissingAPIKey) {
		t.Errorf("Expected ErrMissingAPIKey, got %v", err)
	}
}
