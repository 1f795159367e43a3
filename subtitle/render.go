package subtitle

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SRT renders numbered SubRip cues.
func SRT(segments []Segment) string {
	var b strings.Builder
	for i, s := range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n", i+1,
			FormatTimestamp(s.Start, FormatSRT), FormatTimestamp(s.End, FormatSRT), strings.TrimSpace(s.Text))
	}
	return b.String()
}

// VTT renders a WebVTT document. An empty transcript still gets the header.
func VTT(segments []Segment) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for i, s := range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s --> %s\n", FormatTimestamp(s.Start, FormatVTT), FormatTimestamp(s.End, FormatVTT))
		if s.Speaker != "" {
			fmt.Fprintf(&b, "<v %s>%s\n", s.Speaker, strings.TrimSpace(s.Text))
		} else {
			b.WriteString(strings.TrimSpace(s.Text) + "\n")
		}
	}
	return b.String()
}

// Text renders one line per segment.
func Text(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			b.WriteString(t)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// Document is the JSON rendering of a transcript.
type Document struct {
	Text     string         `json:"text"`
	Language string         `json:"language,omitempty"`
	Duration float64        `json:"duration,omitempty"`
	Segments []Segment      `json:"segments"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// JSON renders doc with indentation.
func JSON(doc Document) (string, error) {
	if doc.Segments == nil {
		doc.Segments = []Segment{}
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("render json subtitle: %w", err)
	}
	return string(b) + "\n", nil
}

// Render renders segments in format f. FormatJSON derives the document
// text from the segments.
func Render(f Format, segments []Segment) (string, error) {
	switch f {
	case FormatSRT:
		return SRT(segments), nil
	case FormatVTT:
		return VTT(segments), nil
	case FormatTXT:
		return Text(segments), nil
	case FormatJSON:
		return JSON(Document{Text: JoinText(segments), Segments: segments})
	default:
		return "", fmt.Errorf("unsupported subtitle format %q", f)
	}
}
