// Package prompt holds the heuristic detectors for IVR prompt content: digit
// menu recognition, open-ended prompt recognition, and prompt timing analysis
// over transcribed recording segments.
package prompt

import (
	"log/slog"
	"regexp"
	"strings"
)

// menuDigitPattern matches "press <digit>" in numeral or spelled-out form.
var menuDigitPattern = regexp.MustCompile(`press\s+(?:\d+|one|two|three|four|five|six|seven|eight|nine|zero)`)

// openEndedPatterns are regexes that identify an open-ended "tell me why
// you're calling" style prompt. A single match is decisive.
var openEndedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(in a few words|briefly),?\s?(what.*you.*calling about|how can i help|state.*your.*reason)`),
	regexp.MustCompile(`(say something like|you can say).{0,60}(change flight|check.*status|new reservation|agent)`),
	regexp.MustCompile(`how can (i|we) help`),
	regexp.MustCompile(`what can (i|we) do for you`),
	regexp.MustCompile(`tell me.*(you.*calling about|what.*need)`),
	regexp.MustCompile(`(say|please say) (your|the) reason`),
}

// openEndedKeywords score an open-ended prompt when patterns miss; at least
// two must appear.
var openEndedKeywords = []string{
	"what you're calling about",
	"please tell us",
	"how can i help",
	"how can we help",
	"in a few words",
	"you can say things like",
	"say your reason",
	"briefly tell me",
	"state your request",
}

// Trigger phrases used by the timing analyzer to locate where in a recording
// a prompt begins.
var (
	openEndedTriggers = []string{
		"how can i help",
		"how may i help",
		"how can we assist",
		"how may we assist",
		"what can i do for you",
		"tell me how i can help",
		"please state your request",
		"tell me what you're calling about",
		"how can i assist you today",
		"please describe your issue",
		"what are you calling about",
		"please tell us",
	}
	menuTriggers = []string{
		"press 1",
		"press one",
		"press 2",
		"for reservations",
		"main menu",
		"for more options",
	}
)

// LooksLikeMenu reports whether the text recites a digit menu. A single
// "press 1" may be incidental; two or more distinct digit-press phrases are
// strong menu evidence.
func LooksLikeMenu(text string) bool {
	matches := menuDigitPattern.FindAllString(strings.ToLower(text), -1)
	distinct := map[string]struct{}{}
	for _, m := range matches {
		distinct[m] = struct{}{}
	}
	if len(distinct) >= 2 {
		slog.Debug("menu detected", "digit_phrases", len(distinct))
		return true
	}
	return false
}

// HeardOpenEndedPrompt reports whether the text asks the caller to state a
// request in natural language. Regex patterns take priority and
// short-circuit; otherwise at least two keywords must match.
func HeardOpenEndedPrompt(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))

	for _, pattern := range openEndedPatterns {
		if pattern.MatchString(lower) {
			slog.Debug("open-ended prompt detected", "pattern", pattern.String())
			return true
		}
	}

	matches := 0
	for _, kw := range openEndedKeywords {
		if strings.Contains(lower, kw) {
			matches++
		}
	}
	if matches >= 2 {
		slog.Debug("open-ended prompt detected", "keyword_matches", matches)
		return true
	}
	return false
}
