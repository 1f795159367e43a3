package subtitle

import "strings"

// Merge joins neighbouring segments while the merged cue stays within
// maxDuration seconds and maxChars characters and the gap between them is
// at most one second.
func Merge(segments []Segment, maxDuration float64, maxChars int) []Segment {
	if len(segments) == 0 {
		return nil
	}
	out := make([]Segment, 0, len(segments))
	cur := segments[0]
	for _, next := range segments[1:] {
		text := cur.Text + " " + next.Text
		if len(text) <= maxChars && next.End-cur.Start <= maxDuration && next.Start-cur.End <= 1.0 {
			cur.End = next.End
			cur.Text = text
			cur.Confidence = nil
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

// Filter drops segments shorter than minDuration seconds or with fewer
// than minChars characters of text.
func Filter(segments []Segment, minDuration float64, minChars int) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if s.Duration() >= minDuration && len(strings.TrimSpace(s.Text)) >= minChars {
			out = append(out, s)
		}
	}
	return out
}
