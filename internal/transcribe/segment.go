package transcribe

import "strings"

// Segment is one timestamped piece of a transcribed recording.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// JoinText concatenates segment texts into a single transcript string.
func JoinText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
