package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	logPath = "logs/tts_history.log"
	enabled = true
	mu      sync.RWMutex
)

// SetLogPath configures the path for the TTS history file.
func SetLogPath(path string) {
	mu.Lock()
	defer mu.Unlock()
	logPath = path
}

// SetEnabled toggles history logging.
func SetEnabled(on bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = on
}

// Log appends a synthesis stage and its outcome to the history file.
// Callers pass the stage (PRIMARY, FALLBACK, VOICES), the text sent and the
// HTTP status. Request headers never go in here: they carry the API key.
func Log(stage, text string, status int, err error) {
	mu.RLock()
	path := logPath
	on := enabled
	mu.RUnlock()

	if !on {
		return
	}

	_ = os.MkdirAll(filepath.Dir(path), 0o755)

	f, fileErr := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if fileErr != nil {
		return
	}
	defer f.Close()

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	statusStr := fmt.Sprintf("%d", status)
	if err != nil {
		statusStr = fmt.Sprintf("ERROR(%v)", err)
	}

	// Format: [TIMESTAMP] [STAGE] STATUS: <code> | TEXT: <text>
	entry := fmt.Sprintf("[%s] [%s] STATUS: %s\nTEXT:\n%s\n--------------------------------------------------\n",
		timestamp, stage, statusStr, text)

	_, _ = f.WriteString(entry)
}
