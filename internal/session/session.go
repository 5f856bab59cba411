// Package session defines the mutable state record threaded through an IVR
// crawl. Every field has an explicit default materialized at creation time so
// the state machine never has to branch on a missing value.
package session

import (
	"time"

	"github.com/xdial/xdial/internal/transcribe"
	"github.com/xdial/xdial/internal/tree"
)

// Phase is the crawl phase of a session. Transitions only move forward:
// init_discovery -> active_response, then terminal. digit_branch marks
// sessions re-entered through a specific pressed digit.
type Phase string

const (
	PhaseInitDiscovery  Phase = "init_discovery"
	PhaseActiveResponse Phase = "active_response"
	PhaseDigitBranch    Phase = "digit_branch"
)

// IVRType classifies what kind of prompt the remote system is playing.
type IVRType string

const (
	TypeUnknown      IVRType = "unknown"
	TypeMenu         IVRType = "menu"
	TypeOpenEnded    IVRType = "open-ended"
	TypeConfirmation IVRType = "confirmation"
	TypeRepeat       IVRType = "repeat"
)

// Status is the coarse lifecycle state reported to operators.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusStarting     Status = "starting"
	StatusCrawling     Status = "crawling"
	StatusCompleted    Status = "completed"
	StatusLoopDetected Status = "loop_detected"
)

// SpeechHistorySize bounds the rolling transcript window used for loop
// detection.
const SpeechHistorySize = 3

// TimingDebug records what the prompt-timing analyzer saw on the most recent
// recording. Start values of -1 mean the corresponding cue was not found.
type TimingDebug struct {
	MenuStart       int `json:"menu_start"`
	OpenEndedStart  int `json:"open_ended_start"`
	CalculatedPause int `json:"calculated_pause"`
}

// Session is one query's worth of crawl state. ID, Query, ResolvedNumber and
// CreatedAt are immutable after creation; everything else is mutated by crawl
// steps under the store's per-session lock.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Query          string    `json:"query"`
	ResolvedNumber string    `json:"resolved_number"`
	CreatedAt      time.Time `json:"created_at"`

	Status  Status  `json:"status"`
	Phase   Phase   `json:"ivr_phase"`
	IVRType IVRType `json:"ivr_type"`
	Path    string  `json:"path"`

	QuerySpoken       bool `json:"query_spoken"`
	QueryPending      bool `json:"query_pending"`
	ShouldCheckSpeech bool `json:"should_check_speech"`
	RetryAttempts     int  `json:"retry_attempts"`

	LastSpeech      string            `json:"last_speech"`
	SpeechHistory   []string          `json:"speech_history"`
	LastMenu        map[string]string `json:"last_menu"`
	PendingDigits   []string          `json:"pending_digits"`
	PathStack       []string          `json:"tree_path_stack"`
	MenuRepeatCount int               `json:"menu_repeat_count"`
	VisitedPaths    []string          `json:"visited_paths"`
	LoopDetected    bool              `json:"loop_detected"`

	CalculatedPause int                  `json:"calculated_pause"`
	TimingDebug     *TimingDebug         `json:"timing_debug,omitempty"`
	Segments        []transcribe.Segment `json:"whisper_segments,omitempty"`
	RecordingReady  bool                 `json:"recording_ready"`

	CallSID string     `json:"twilio_call_sid,omitempty"`
	Tree    *tree.Node `json:"tree"`
}

// New creates a session with every field materialized to its default.
func New(id, userID, query, resolvedNumber string) *Session {
	return &Session{
		ID:                id,
		UserID:            userID,
		Query:             query,
		ResolvedNumber:    resolvedNumber,
		CreatedAt:         time.Now().UTC(),
		Status:            StatusInitializing,
		Phase:             PhaseInitDiscovery,
		IVRType:           TypeUnknown,
		Path:              tree.RootKey,
		ShouldCheckSpeech: true,
		SpeechHistory:     []string{},
		LastMenu:          map[string]string{},
		PendingDigits:     []string{},
		PathStack:         []string{},
		VisitedPaths:      []string{},
		Tree:              tree.NewRoot(),
	}
}

// ResetRuntime clears the per-crawl runtime state while preserving identity,
// query, resolved number, and the discovered tree. Called when an operator
// restarts a crawl on an existing session.
func (s *Session) ResetRuntime() {
	s.Status = StatusStarting
	s.Phase = PhaseInitDiscovery
	s.IVRType = TypeUnknown
	s.Path = tree.RootKey
	s.QuerySpoken = false
	s.QueryPending = false
	s.ShouldCheckSpeech = true
	s.RetryAttempts = 0
	s.LastSpeech = ""
	s.SpeechHistory = []string{}
	s.LastMenu = map[string]string{}
	s.PendingDigits = []string{}
	s.PathStack = []string{}
	s.MenuRepeatCount = 0
	s.VisitedPaths = []string{}
	s.LoopDetected = false
	if s.Tree == nil {
		s.Tree = tree.NewRoot()
	}
}

// PushSpeech appends a raw transcript to the rolling history, evicting the
// oldest entry once the window holds SpeechHistorySize transcripts.
func (s *Session) PushSpeech(transcript string) {
	s.SpeechHistory = append(s.SpeechHistory, transcript)
	if len(s.SpeechHistory) > SpeechHistorySize {
		s.SpeechHistory = s.SpeechHistory[len(s.SpeechHistory)-SpeechHistorySize:]
	}
}

// HasVisited reports whether a tree path was already expanded.
func (s *Session) HasVisited(path string) bool {
	for _, p := range s.VisitedPaths {
		if p == path {
			return true
		}
	}
	return false
}

// MarkVisited records a tree path as expanded. Marking a path twice is a
// no-op; the visited set only grows.
func (s *Session) MarkVisited(path string) {
	if !s.HasVisited(path) {
		s.VisitedPaths = append(s.VisitedPaths, path)
	}
}

// Normalize materializes defaults on a session loaded from durable storage,
// so records written by older builds never surface nil collections.
func (s *Session) Normalize() {
	if s.Phase == "" {
		s.Phase = PhaseInitDiscovery
	}
	if s.IVRType == "" {
		s.IVRType = TypeUnknown
	}
	if s.Path == "" {
		s.Path = tree.RootKey
	}
	if s.SpeechHistory == nil {
		s.SpeechHistory = []string{}
	}
	if s.LastMenu == nil {
		s.LastMenu = map[string]string{}
	}
	if s.PendingDigits == nil {
		s.PendingDigits = []string{}
	}
	if s.PathStack == nil {
		s.PathStack = []string{}
	}
	if s.VisitedPaths == nil {
		s.VisitedPaths = []string{}
	}
	if s.Tree == nil {
		s.Tree = tree.NewRoot()
	}
}
