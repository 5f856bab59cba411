package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var errEmptyCompletion = errors.New("completion returned no choices")

// fencePattern strips markdown code fences the model sometimes wraps its
// JSON in, with or without a language tag.
var fencePattern = regexp.MustCompile("(?i)^```(?:json)?|```$")

// parseFencedJSON unmarshals model output into v, tolerating ```json fences.
func parseFencedJSON(raw string, v any) error {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(strings.TrimSpace(raw), ""))
	return json.Unmarshal([]byte(cleaned), v)
}
