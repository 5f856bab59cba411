// Package crawl implements the per-session controller that advances an IVR
// discovery call. Each inbound speech or digit event produces exactly one
// terminal action for the live call leg; descending into a submenu is
// realized as a brand-new outbound leg, never an in-process loop.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xdial/xdial/internal/llm"
	"github.com/xdial/xdial/internal/metrics"
	"github.com/xdial/xdial/internal/prompt"
	"github.com/xdial/xdial/internal/session"
	"github.com/xdial/xdial/internal/store"
	"github.com/xdial/xdial/internal/telephony"
	"github.com/xdial/xdial/internal/transcribe"
	"github.com/xdial/xdial/internal/tree"
)

// Action is the decision taken for the live call leg in response to one
// speech or digit event.
type Action string

const (
	ActionWait             Action = "wait"
	ActionSpeakQuery       Action = "speak_query"
	ActionRecurse          Action = "parse_menu_and_recurse"
	ActionEndCall          Action = "end_call"
	ActionRetryShortSpeech Action = "retry_short_speech"
)

const (
	// Speech results shorter than this are treated as a capture failure
	// worth one retry per session.
	shortSpeechMin = 6

	// Parsing the identical menu this many times in a row terminates the
	// session as a loop even when transcripts differ slightly.
	menuRepeatLimit = 2

	// Phrase some IVRs play when speech recognition gives up; it forces
	// query injection regardless of classified type.
	troublePhrase = "trouble understanding you"
)

// Fetcher downloads a finished recording and returns its local path.
type Fetcher interface {
	Fetch(ctx context.Context, recordingURL, callSID string) (string, error)
}

// Crawler drives crawl sessions. All methods expect the caller to hold the
// store's per-session lock.
type Crawler struct {
	store       *store.Store
	classifier  llm.Classifier
	dialer      telephony.Dialer
	snapshots   *tree.Snapshotter
	fetcher     Fetcher
	transcriber transcribe.Transcriber
	rec         *metrics.Recorder
	logger      *slog.Logger
	gatherWait  int
}

// Config collects the collaborators a Crawler needs.
type Config struct {
	Store       *store.Store
	Classifier  llm.Classifier
	Dialer      telephony.Dialer
	Snapshots   *tree.Snapshotter
	Fetcher     Fetcher
	Transcriber transcribe.Transcriber
	Recorder    *metrics.Recorder
	Logger      *slog.Logger

	// GatherTimeout overrides the per-gather wait in seconds. Zero keeps
	// the default.
	GatherTimeout int
}

// New creates a Crawler.
func New(cfg Config) *Crawler {
	return &Crawler{
		store:       cfg.Store,
		classifier:  cfg.Classifier,
		dialer:      cfg.Dialer,
		snapshots:   cfg.Snapshots,
		fetcher:     cfg.Fetcher,
		transcriber: cfg.Transcriber,
		rec:         cfg.Recorder,
		logger:      cfg.Logger,
		gatherWait:  cfg.GatherTimeout,
	}
}

// HandleSpeech advances the state machine on one speech/digit event and
// returns the action for the live leg. Any new outbound leg required by the
// action has already been placed when this returns.
func (c *Crawler) HandleSpeech(ctx context.Context, sess *session.Session, speech, digits string) (Action, error) {
	speech = strings.TrimSpace(speech)
	sess.Status = session.StatusCrawling

	// Capture-failure retry, at most once per session.
	if len(speech) < shortSpeechMin && sess.RetryAttempts == 0 {
		sess.RetryAttempts = 1
		if err := c.store.Put(ctx, sess); err != nil {
			return "", err
		}
		c.rec.ShortSpeechRetries.Inc()
		c.logger.Info("short speech, retrying capture", "session_id", sess.ID, "speech", speech)
		c.startLeg(ctx, sess, telephony.LegParams{SessionID: sess.ID, To: sess.ResolvedNumber, BranchDigit: digits})
		return ActionRetryShortSpeech, nil
	}

	combined := strings.TrimSpace(sess.LastSpeech + " " + speech)
	sess.LastSpeech = combined

	// Recognition-failure phrase forces the query out immediately.
	if strings.Contains(strings.ToLower(combined), troublePhrase) && !sess.QuerySpoken {
		return c.speakQuery(ctx, sess)
	}

	sess.PushSpeech(speech)
	if transcriptLoop(sess.SpeechHistory) {
		return c.endAsLoop(ctx, sess, "repeated transcript")
	}

	if sess.Phase == session.PhaseInitDiscovery {
		ivrType := c.classifier.ClassifyType(ctx, combined, sess.Query)
		if prompt.LooksLikeMenu(combined) {
			// Digit evidence outranks the semantic answer.
			ivrType = session.TypeMenu
		}
		sess.IVRType = ivrType
		sess.Phase = session.PhaseActiveResponse
		c.logger.Info("phase advanced", "session_id", sess.ID, "ivr_type", ivrType)
	} else if sess.IVRType == session.TypeOpenEnded && prompt.LooksLikeMenu(combined) {
		// Late override: digits appeared after the semantic classification.
		sess.IVRType = session.TypeMenu
		c.logger.Info("late override to menu", "session_id", sess.ID)
	}

	if sess.IVRType == session.TypeOpenEnded && !sess.QuerySpoken {
		if prompt.HeardOpenEndedPrompt(combined) {
			return c.speakQuery(ctx, sess)
		}
		// One semantic speak-now consult per leg; the next discovery leg
		// re-arms the flag on entry.
		if sess.ShouldCheckSpeech {
			sess.ShouldCheckSpeech = false
			if c.classifier.ShouldSpeakNow(ctx, combined) {
				return c.speakQuery(ctx, sess)
			}
		}
	}

	if sess.IVRType == session.TypeMenu {
		return c.parseMenuAndRecurse(ctx, sess, combined, digits)
	}

	// Open-ended prompt suspected but not confirmed yet; let the recording
	// callback inject the query once the transcript arrives.
	if sess.IVRType == session.TypeOpenEnded && !sess.QuerySpoken && !sess.RecordingReady {
		sess.QueryPending = true
	}

	if err := c.store.Put(ctx, sess); err != nil {
		return "", err
	}
	return ActionWait, nil
}

// speakQuery marks the one-shot injection and places the leg that speaks
// the query.
func (c *Crawler) speakQuery(ctx context.Context, sess *session.Session) (Action, error) {
	sess.QuerySpoken = true
	sess.QueryPending = false
	if err := c.store.Put(ctx, sess); err != nil {
		return "", err
	}
	c.rec.QueriesSpoken.Inc()
	c.logger.Info("injecting query", "session_id", sess.ID, "query", sess.Query)
	c.startLeg(ctx, sess, telephony.LegParams{SessionID: sess.ID, To: sess.ResolvedNumber, SayQuery: true})
	return ActionSpeakQuery, nil
}

func (c *Crawler) endAsLoop(ctx context.Context, sess *session.Session, reason string) (Action, error) {
	sess.LoopDetected = true
	sess.Status = session.StatusLoopDetected
	tree.MarkLoop(sess.Tree, sess.Path)
	if err := c.store.Put(ctx, sess); err != nil {
		return "", err
	}
	c.rec.LoopsDetected.Inc()
	c.logger.Warn("loop detected, ending session", "session_id", sess.ID, "reason", reason)
	return ActionEndCall, nil
}

// parseMenuAndRecurse extracts the menu, merges it into the tree, and
// either descends into the best-matching branch or exhausts the node.
func (c *Crawler) parseMenuAndRecurse(ctx context.Context, sess *session.Session, transcript, digits string) (Action, error) {
	options := c.classifier.ExtractMenu(ctx, transcript)
	if llm.IsFallbackMenu(options) {
		// The extractor's placeholder answer means it found nothing real.
		options = map[string]string{}
	}

	if len(options) == 0 && digits == "" {
		sess.Status = session.StatusCompleted
		if err := c.store.Put(ctx, sess); err != nil {
			return "", err
		}
		c.logger.Info("no menu on speech path, ending call", "session_id", sess.ID)
		return ActionEndCall, nil
	}

	if len(options) == 0 {
		// A digit branch with no extractable menu is a leaf we could not
		// read; mark it and move on to the remaining pending digits.
		branchPath := sess.Path + "." + digits
		tree.MarkParseError(sess.Tree, branchPath)
		c.logger.Warn("menu extraction failed on digit branch", "session_id", sess.ID, "path", branchPath)
	}

	if len(options) > 0 {
		childKey := digits
		if childKey == "" {
			childKey = tree.SpeechKey
		}
		childPath := sess.Path + "." + childKey

		if sess.HasVisited(childPath) {
			if err := c.store.Put(ctx, sess); err != nil {
				return "", err
			}
			c.logger.Info("path already visited, no new leg", "session_id", sess.ID, "path", childPath)
			return ActionWait, nil
		}

		if sameMenu(options, sess.LastMenu) {
			sess.MenuRepeatCount++
			if sess.MenuRepeatCount >= menuRepeatLimit {
				return c.endAsLoop(ctx, sess, "repeated menu")
			}
		} else {
			sess.MenuRepeatCount = 0
		}

		sess.MarkVisited(childPath)
		tree.InsertBranch(sess.Tree, childPath, options, string(session.TypeMenu))
		sess.Path = childPath
		sess.LastMenu = options
		sess.PendingDigits = rankDigits(options, sess.Query)
		c.rec.MenusParsed.Inc()
		c.logger.Info("menu merged", "session_id", sess.ID, "path", childPath, "options", len(options), "pending", sess.PendingDigits)

		if c.snapshots != nil {
			if _, err := c.snapshots.Save(sess.Query, sess.ID, sess.Tree); err != nil {
				c.logger.Error("saving tree snapshot", "session_id", sess.ID, "error", err)
			}
		}
	}

	if len(sess.PendingDigits) > 0 {
		next := sess.PendingDigits[0]
		sess.PendingDigits = sess.PendingDigits[1:]
		sess.PathStack = append(sess.PathStack, next)
		if err := c.store.Put(ctx, sess); err != nil {
			return "", err
		}
		c.logger.Info("descending into branch", "session_id", sess.ID, "digit", next, "path", sess.Path)
		c.startLeg(ctx, sess, telephony.LegParams{SessionID: sess.ID, To: sess.ResolvedNumber, BranchDigit: next})
		return ActionRecurse, nil
	}

	tree.MarkExhausted(sess.Tree, sess.Path)
	sess.Status = session.StatusCompleted
	if err := c.store.Put(ctx, sess); err != nil {
		return "", err
	}
	c.logger.Info("branch exhausted, crawl complete", "session_id", sess.ID, "path", sess.Path)
	return ActionEndCall, nil
}

// startLeg places a new outbound leg. The handler does not wait for the
// call to connect; failures are logged and surface as a stalled session.
func (c *Crawler) startLeg(ctx context.Context, sess *session.Session, p telephony.LegParams) {
	sid, err := c.dialer.StartLeg(ctx, p)
	if err != nil {
		c.logger.Error("placing outbound leg", "session_id", sess.ID, "error", err)
		return
	}
	c.rec.LegsStarted.Inc()
	c.logger.Info("outbound leg placed", "session_id", sess.ID, "call_sid", sid)
}

// transcriptLoop reports whether the rolling window is full of
// near-identical transcripts.
func transcriptLoop(history []string) bool {
	if len(history) < session.SpeechHistorySize {
		return false
	}
	for _, entry := range history[1:] {
		if similarity(history[0], entry) < loopSimilarity {
			return false
		}
	}
	return true
}

// StartCrawl resets the session's runtime state and places the first
// discovery leg.
func (c *Crawler) StartCrawl(ctx context.Context, sess *session.Session) error {
	sess.ResetRuntime()
	if err := c.store.Put(ctx, sess); err != nil {
		return err
	}
	sid, err := c.dialer.StartLeg(ctx, telephony.LegParams{SessionID: sess.ID, To: sess.ResolvedNumber})
	if err != nil {
		return fmt.Errorf("placing discovery leg: %w", err)
	}
	c.rec.LegsStarted.Inc()
	sess.CallSID = sid
	sess.Status = session.StatusStarting
	return c.store.Put(ctx, sess)
}
