package subtitle

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	blockSplit = regexp.MustCompile(`\n\s*\n`)
	voiceTag   = regexp.MustCompile(`^<v\s+([^>]+)>`)
)

// ParseSRT parses SubRip content. Malformed cues are skipped.
func ParseSRT(content string) []Segment {
	var out []Segment
	for _, block := range blocks(content) {
		lines := strings.Split(block, "\n")
		if len(lines) < 2 {
			continue
		}
		i := 0
		if !strings.Contains(lines[0], "-->") {
			i = 1
		}
		if i >= len(lines) {
			continue
		}
		start, end, ok := parseCueTiming(lines[i])
		if !ok {
			continue
		}
		out = append(out, Segment{
			Start: start,
			End:   end,
			Text:  strings.TrimSpace(strings.Join(lines[i+1:], "\n")),
		})
	}
	return out
}

// ParseVTT parses WebVTT content. The header, NOTE and STYLE blocks are
// ignored, and cue identifiers are optional.
func ParseVTT(content string) []Segment {
	var out []Segment
	for _, block := range blocks(content) {
		if strings.HasPrefix(block, "WEBVTT") || strings.HasPrefix(block, "NOTE") || strings.HasPrefix(block, "STYLE") {
			continue
		}
		lines := strings.Split(block, "\n")
		i := 0
		if !strings.Contains(lines[0], "-->") {
			i = 1
		}
		if i >= len(lines) {
			continue
		}
		start, end, ok := parseCueTiming(lines[i])
		if !ok {
			continue
		}
		seg := Segment{Start: start, End: end, Text: strings.TrimSpace(strings.Join(lines[i+1:], "\n"))}
		if m := voiceTag.FindStringSubmatch(seg.Text); m != nil {
			seg.Speaker = m[1]
			seg.Text = strings.TrimSpace(strings.TrimSuffix(seg.Text[len(m[0]):], "</v>"))
		}
		out = append(out, seg)
	}
	return out
}

// Parse parses content in format f.
func Parse(f Format, content string) ([]Segment, error) {
	switch f {
	case FormatSRT:
		return ParseSRT(content), nil
	case FormatVTT:
		return ParseVTT(content), nil
	case FormatJSON:
		var doc Document
		if err := json.Unmarshal([]byte(content), &doc); err != nil {
			return nil, fmt.Errorf("parse json subtitle: %w", err)
		}
		return doc.Segments, nil
	default:
		return nil, fmt.Errorf("cannot parse subtitle format %q", f)
	}
}

// ParseTimestamp accepts HH:MM:SS,mmm, HH:MM:SS.mmm and MM:SS.mmm.
func ParseTimestamp(ts string) (float64, error) {
	ts = strings.TrimSpace(ts)
	if f := strings.Fields(ts); len(f) > 0 {
		ts = f[0]
	}
	ts = strings.Replace(ts, ",", ".", 1)

	var ms float64
	if dot := strings.IndexByte(ts, '.'); dot >= 0 {
		frac := ts[dot+1:]
		n, err := strconv.Atoi(frac)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", ts)
		}
		ms = float64(n)
		for i := len(frac); i < 3; i++ {
			ms *= 10
		}
		ts = ts[:dot]
	}

	parts := strings.Split(ts, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", ts)
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", ts)
		}
		total = total*60 + n
	}
	return float64(total) + ms/1000, nil
}

func parseCueTiming(line string) (float64, float64, bool) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, err := ParseTimestamp(parts[0])
	if err != nil {
		return 0, 0, false
	}
	end, err := ParseTimestamp(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

func blocks(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimPrefix(content, "\ufeff")
	var out []string
	for _, b := range blockSplit.Split(strings.TrimSpace(content), -1) {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Convert parses content in one format and renders it in another.
func Convert(content string, from, to Format) (string, error) {
	segs, err := Parse(from, content)
	if err != nil {
		return "", err
	}
	return Render(to, segs)
}
