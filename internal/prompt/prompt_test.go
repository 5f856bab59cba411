package prompt

import (
	"testing"

	"github.com/xdial/xdial/internal/transcribe"
)

func TestLooksLikeMenu(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"two numeral presses", "press 1 for reservations press 2 for baggage", true},
		{"spelled out digits", "Press one for sales, press two for support", true},
		{"mixed forms", "press 1 for English, press nueve... press nine for Spanish", true},
		{"single press is incidental", "press 1 to confirm your appointment", false},
		{"repeated same phrase", "press 1 now. I said press 1 now.", false},
		{"no digits at all", "how can I help you today?", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LooksLikeMenu(tt.text); got != tt.want {
				t.Errorf("LooksLikeMenu(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestHeardOpenEndedPrompt(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"regex hit", "In a few words, what are you calling about?", true},
		{"how can we help", "Thanks for calling. How can we help you?", true},
		{"say your reason", "Please say your reason for calling.", true},
		{"two keywords", "briefly tell me what you're calling about", true},
		{"tell us prompt", "please tell us what you're calling about", true},
		{"single keyword only", "please state your request", false},
		{"menu recitation", "press 1 for reservations press 2 for baggage", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HeardOpenEndedPrompt(tt.text); got != tt.want {
				t.Errorf("HeardOpenEndedPrompt(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestAnalyzeTiming(t *testing.T) {
	tests := []struct {
		name          string
		segments      []transcribe.Segment
		wantMenu      int
		wantOpenEnded int
		wantPause     int
	}{
		{
			name: "menu cue wins over later open-ended cue",
			segments: []transcribe.Segment{
				{Start: 3.7, Text: "Welcome to Delta Airlines."},
				{Start: 8.2, Text: "For reservations, press 1."},
				{Start: 15.9, Text: "Or tell me what you're calling about."},
			},
			wantMenu:      8,
			wantOpenEnded: 15,
			wantPause:     10,
		},
		{
			name: "open-ended only",
			segments: []transcribe.Segment{
				{Start: 2.1, Text: "Thank you for calling."},
				{Start: 12.4, Text: "How can I help you today?"},
			},
			wantMenu:      StartNotFound,
			wantOpenEnded: 12,
			wantPause:     14,
		},
		{
			name: "first occurrence wins",
			segments: []transcribe.Segment{
				{Start: 5, Text: "press 1 to continue"},
				{Start: 20, Text: "press 2 for more options"},
			},
			wantMenu:      5,
			wantOpenEnded: StartNotFound,
			wantPause:     7,
		},
		{
			name:          "no triggers defaults",
			segments:      []transcribe.Segment{{Start: 1, Text: "hold music"}},
			wantMenu:      StartNotFound,
			wantOpenEnded: StartNotFound,
			wantPause:     DefaultPause + PauseBuffer,
		},
		{
			name:      "empty segments",
			segments:  nil,
			wantMenu:  StartNotFound,
			wantPause: DefaultPause + PauseBuffer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeTiming(tt.segments)
			if got.MenuStart != tt.wantMenu {
				t.Errorf("MenuStart = %d, want %d", got.MenuStart, tt.wantMenu)
			}
			if tt.name != "empty segments" && got.OpenEndedStart != tt.wantOpenEnded {
				t.Errorf("OpenEndedStart = %d, want %d", got.OpenEndedStart, tt.wantOpenEnded)
			}
			if got.Pause != tt.wantPause {
				t.Errorf("Pause = %d, want %d", got.Pause, tt.wantPause)
			}
		})
	}
}
