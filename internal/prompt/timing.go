package prompt

import (
	"log/slog"
	"strings"

	"github.com/xdial/xdial/internal/transcribe"
)

const (
	// DefaultPause is the wait, in seconds, applied when no trigger phrase
	// is found in a recording.
	DefaultPause = 30

	// PauseBuffer is added on top of a detected prompt start so the crawler
	// acts just after the prompt finishes opening.
	PauseBuffer = 2

	// StartNotFound marks a timing cue that never appeared.
	StartNotFound = -1
)

// Timing is the result of analyzing one recording's transcript segments.
type Timing struct {
	MenuStart      int // seconds, StartNotFound if no menu cue
	OpenEndedStart int // seconds, StartNotFound if no open-ended cue
	Pause          int // derived wait before acting

	Segments []transcribe.Segment
}

// AnalyzeTiming scans segments in order for the first menu trigger and the
// first open-ended trigger, then derives the pause to wait before acting:
// the menu start if present, else the open-ended start, else DefaultPause,
// plus PauseBuffer. It never fails; absent triggers only default the pause.
func AnalyzeTiming(segments []transcribe.Segment) Timing {
	timing := Timing{
		MenuStart:      StartNotFound,
		OpenEndedStart: StartNotFound,
		Segments:       segments,
	}

	for _, seg := range segments {
		text := strings.ToLower(seg.Text)
		if timing.OpenEndedStart == StartNotFound && containsAny(text, openEndedTriggers) {
			timing.OpenEndedStart = int(seg.Start)
			slog.Info("open-ended prompt timing detected", "start", timing.OpenEndedStart, "text", text)
		}
		if timing.MenuStart == StartNotFound && containsAny(text, menuTriggers) {
			timing.MenuStart = int(seg.Start)
			slog.Info("menu prompt timing detected", "start", timing.MenuStart, "text", text)
		}
	}

	switch {
	case timing.MenuStart != StartNotFound:
		timing.Pause = timing.MenuStart + PauseBuffer
	case timing.OpenEndedStart != StartNotFound:
		timing.Pause = timing.OpenEndedStart + PauseBuffer
	default:
		slog.Warn("no trigger prompt found in recording, using default pause")
		timing.Pause = DefaultPause + PauseBuffer
	}

	return timing
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
