// Package subtitle renders and parses transcript segments as SRT, WebVTT,
// plain text and JSON.
package subtitle

import (
	"fmt"
	"math"
	"strings"
)

// Segment is one timed span of transcribed text. Times are in seconds.
type Segment struct {
	Start      float64  `json:"start"`
	End        float64  `json:"end"`
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence,omitempty"`
	Speaker    string   `json:"speaker,omitempty"`
}

// Duration returns End-Start.
func (s Segment) Duration() float64 { return s.End - s.Start }

// Format is an output subtitle format.
type Format string

const (
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
	FormatTXT  Format = "txt"
	FormatJSON Format = "json"
	// FormatNone disables writing a subtitle file.
	FormatNone Format = "none"
)

// Formats lists the renderable formats.
var Formats = []Format{FormatSRT, FormatVTT, FormatTXT, FormatJSON}

// ParseFormat normalizes s ("SRT", ".vtt") into a Format.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
	switch f {
	case FormatSRT, FormatVTT, FormatTXT, FormatJSON, FormatNone:
		return f, nil
	case "text":
		return FormatTXT, nil
	case "webvtt":
		return FormatVTT, nil
	}
	return "", fmt.Errorf("unsupported subtitle format %q", s)
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string { return string(f) }

// FormatTimestamp renders seconds as HH:MM:SS,mmm for SRT or HH:MM:SS.mmm
// for VTT. Negative input clamps to zero.
func FormatTimestamp(seconds float64, f Format) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	m := (ms / 60_000) % 60
	s := (ms / 1000) % 60
	frac := ms % 1000
	sep := ","
	if f == FormatVTT {
		sep = "."
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, sep, frac)
}

// JoinText concatenates segment texts with single spaces.
func JoinText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
