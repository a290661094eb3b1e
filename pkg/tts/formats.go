package tts

import "fmt"

// Format describes a supported output format of the synthesis API.
type Format struct {
	ID     string // API identifier, e.g. "mp3_44100_128"
	Ext    string // file extension without dot
	Accept string // Accept header value
}

// DefaultFormatID is used when no output format is configured.
const DefaultFormatID = "mp3_44100_128"

// knownFormats lists the output formats the API accepts, in menu order.
var knownFormats = []Format{
	{ID: "mp3_22050_32", Ext: "mp3", Accept: "audio/mpeg"},
	{ID: "mp3_44100_64", Ext: "mp3", Accept: "audio/mpeg"},
	{ID: "mp3_44100_96", Ext: "mp3", Accept: "audio/mpeg"},
	{ID: "mp3_44100_128", Ext: "mp3", Accept: "audio/mpeg"},
	{ID: "mp3_44100_192", Ext: "mp3", Accept: "audio/mpeg"},
	{ID: "pcm_16000", Ext: "pcm", Accept: "application/octet-stream"},
	{ID: "pcm_22050", Ext: "pcm", Accept: "application/octet-stream"},
	{ID: "pcm_24000", Ext: "pcm", Accept: "application/octet-stream"},
	{ID: "pcm_44100", Ext: "pcm", Accept: "application/octet-stream"},
}

// FormatByID resolves an output format identifier.
func FormatByID(id string) (Format, error) {
	for _, f := range knownFormats {
		if f.ID == id {
			return f, nil
		}
	}
	return Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, id)
}

// Formats returns the supported output formats in a stable order.
func Formats() []Format {
	out := make([]Format, len(knownFormats))
	copy(out, knownFormats)
	return out
}
