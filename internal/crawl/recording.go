package crawl

import (
	"context"
	"fmt"

	"github.com/xdial/xdial/internal/prompt"
	"github.com/xdial/xdial/internal/session"
	"github.com/xdial/xdial/internal/transcribe"
)

// HandleRecording processes a recording-completed callback: download,
// transcribe, fold the prompt timing into the session, refine the IVR type
// if it is still unknown, and fire a deferred query injection if one was
// waiting on the transcript.
func (c *Crawler) HandleRecording(ctx context.Context, sess *session.Session, recordingURL, callSID string) error {
	path, err := c.fetcher.Fetch(ctx, recordingURL, callSID)
	if err != nil {
		return fmt.Errorf("fetching recording: %w", err)
	}

	segments, err := c.transcriber.Transcribe(ctx, path)
	if err != nil {
		return fmt.Errorf("transcribing recording: %w", err)
	}
	c.rec.RecordingsFetched.Inc()

	timing := prompt.AnalyzeTiming(segments)
	sess.Segments = segments
	sess.CalculatedPause = timing.Pause
	sess.RecordingReady = true
	sess.TimingDebug = &session.TimingDebug{
		MenuStart:       timing.MenuStart,
		OpenEndedStart:  timing.OpenEndedStart,
		CalculatedPause: timing.Pause,
	}

	transcript := transcribe.JoinText(segments)
	if sess.IVRType == session.TypeUnknown && transcript != "" {
		ivrType := c.classifier.ClassifyType(ctx, transcript, sess.Query)
		if prompt.LooksLikeMenu(transcript) {
			ivrType = session.TypeMenu
		}
		sess.IVRType = ivrType
		c.logger.Info("type refined from recording", "session_id", sess.ID, "ivr_type", ivrType)
	}

	// A pending injection was waiting for the transcript to confirm the
	// prompt; the transcript is in, so speak now.
	if sess.QueryPending && !sess.QuerySpoken {
		_, err := c.speakQuery(ctx, sess)
		return err
	}

	return c.store.Put(ctx, sess)
}
