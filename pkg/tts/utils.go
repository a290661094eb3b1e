package tts

import (
	"errors"
	"fmt"
)

// MaxTextLen is the longest text, in characters, one synthesis request accepts.
// Longer input is clipped, not rejected.
const MaxTextLen = 5000

// Truncate clips text to MaxTextLen characters. Counting is rune-based so a
// multi-byte character is never split.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= MaxTextLen {
		return text
	}
	return string(runes[:MaxTextLen])
}

// VerifyAudio checks that a synthesis response looks like real audio.
func VerifyAudio(audio []byte) error {
	if len(audio) == 0 {
		return errors.New("empty audio payload")
	}
	if len(audio) < MinAudioSize {
		return fmt.Errorf("audio payload too small (%d bytes, min %d)", len(audio), MinAudioSize)
	}
	return nil
}
