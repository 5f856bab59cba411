package api

import (
	"errors"
	"net/http"

	"github.com/xdial/xdial/internal/crawl"
	"github.com/xdial/xdial/internal/store"
	"github.com/xdial/xdial/internal/telephony"
)

// apology is the terminal document for a leg whose session cannot be found.
// The live call must always receive valid instructions.
func apology() *telephony.Response {
	return telephony.NewResponse().
		Say("We could not find your session. Goodbye.").
		Hangup()
}

// handleTwilioEntry answers a freshly connected outbound leg with its first
// instructions, based on how the leg was placed (discovery, say-query, or
// branch-digit).
func (s *Server) handleTwilioEntry(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	sayQuery := r.URL.Query().Get("say_query") == "true"
	branchDigit := r.URL.Query().Get("branch_digit")

	unlock := s.store.Lock(sessionID)
	defer unlock()

	sess, err := s.store.Get(r.Context(), sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("loading session for entry", "session_id", sessionID, "error", err)
		}
		writeTwiML(w, apology())
		return
	}

	doc := s.crawler.EntryInstructions(r.Context(), sess, sayQuery, branchDigit)
	if err := s.store.Put(r.Context(), sess); err != nil {
		s.logger.Error("saving session after entry", "session_id", sessionID, "error", err)
	}
	writeTwiML(w, doc)
}

// handleTwilioBranch receives the gathered speech/digit result and runs one
// step of the crawl state machine. Every action maps to a terminal TwiML
// document for the live leg.
func (s *Server) handleTwilioBranch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.logger.Error("parsing branch form", "error", err)
		writeTwiML(w, apology())
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	branchDigit := r.URL.Query().Get("branch_digit")
	speech := r.PostForm.Get("SpeechResult")
	digits := r.PostForm.Get("Digits")
	if digits == "" {
		digits = branchDigit
	}

	unlock := s.store.Lock(sessionID)
	defer unlock()

	sess, err := s.store.Get(r.Context(), sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Error("loading session for branch", "session_id", sessionID, "error", err)
		}
		writeTwiML(w, apology())
		return
	}

	action, err := s.crawler.HandleSpeech(r.Context(), sess, speech, digits)
	if err != nil {
		s.logger.Error("advancing crawl", "session_id", sessionID, "error", err)
		writeTwiML(w, telephony.NewResponse().Say("An error occurred. Goodbye.").Hangup())
		return
	}
	s.logger.Info("crawl step", "session_id", sessionID, "action", action, "digits", digits)

	writeTwiML(w, actionTwiML(action))
}

// actionTwiML maps a crawl action to the document acknowledging the live
// leg. Actions that place a new leg have already done so; the current leg
// just ends politely.
func actionTwiML(action crawl.Action) *telephony.Response {
	switch action {
	case crawl.ActionRetryShortSpeech:
		return telephony.NewResponse().Say("Retrying. Please hold.").Hangup()
	case crawl.ActionSpeakQuery:
		return telephony.NewResponse().Say("Redirecting with your request.").Hangup()
	case crawl.ActionRecurse:
		return telephony.NewResponse().Say("Thanks. Response captured. Goodbye.").Hangup()
	case crawl.ActionEndCall:
		return telephony.NewResponse().Say("Ending session. Goodbye.").Hangup()
	default:
		return telephony.NewResponse().Say("Thanks. Goodbye.").Hangup()
	}
}

// handleTwilioRecording processes a recording-completed callback.
func (s *Server) handleTwilioRecording(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	recordingURL := r.PostForm.Get("RecordingUrl")
	callSID := r.PostForm.Get("CallSid")
	if sessionID == "" || recordingURL == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	unlock := s.store.Lock(sessionID)
	defer unlock()

	sess, err := s.store.Get(r.Context(), sessionID)
	if err != nil {
		s.logger.Warn("recording callback for unknown session", "session_id", sessionID)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if err := s.crawler.HandleRecording(r.Context(), sess, recordingURL, callSID); err != nil {
		s.logger.Error("processing recording", "session_id", sessionID, "call_sid", callSID, "error", err)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTwilioStatus links the provider's call identifier to the session for
// observability. It has no crawl-logic effect.
func (s *Server) handleTwilioStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	callSID := r.PostForm.Get("CallSid")
	callStatus := r.PostForm.Get("CallStatus")
	if sessionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	unlock := s.store.Lock(sessionID)
	defer unlock()

	sess, err := s.store.Get(r.Context(), sessionID)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	sess.CallSID = callSID
	if err := s.store.Put(r.Context(), sess); err != nil {
		s.logger.Error("saving session after status callback", "session_id", sessionID, "error", err)
	}
	s.logger.Info("call status", "session_id", sessionID, "call_sid", callSID, "status", callStatus)
	w.WriteHeader(http.StatusNoContent)
}
