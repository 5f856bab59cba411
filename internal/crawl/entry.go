package crawl

import (
	"context"
	"net/url"

	"github.com/xdial/xdial/internal/prompt"
	"github.com/xdial/xdial/internal/session"
	"github.com/xdial/xdial/internal/telephony"
)

const (
	defaultGatherTimeout = 90
	recordMaxLen         = 90
	speechHints          = "agent, reservation, help, refund, baggage, support"
)

// gatherTimeout is the configured per-gather wait, falling back to the
// provider default.
func (c *Crawler) gatherTimeout() int {
	if c.gatherWait > 0 {
		return c.gatherWait
	}
	return defaultGatherTimeout
}

// branchAction builds the webhook URL the gather posts its result to.
func branchAction(sessionID, branchDigit string) string {
	v := url.Values{"session_id": {sessionID}}
	if branchDigit != "" {
		v.Set("branch_digit", branchDigit)
	}
	return "/twilio/branch?" + v.Encode()
}

// EntryInstructions renders the TwiML for a freshly answered leg. The leg
// was placed with either a branch digit (descend into a submenu), the
// say-query flag (speak the injected query), or neither (passive discovery
// listen).
func (c *Crawler) EntryInstructions(ctx context.Context, sess *session.Session, sayQuery bool, branchDigit string) *telephony.Response {
	r := telephony.NewResponse()

	switch {
	case branchDigit != "":
		sess.Phase = session.PhaseDigitBranch
		r.Gather(telephony.Gather{
			Input:         "speech dtmf",
			Timeout:       c.gatherTimeout(),
			SpeechTimeout: "auto",
			Action:        branchAction(sess.ID, branchDigit),
			Method:        "POST",
			Say:           &telephony.Say{Text: "Please hold while we gather the options."},
		})
		r.Record(recordMaxLen)

	case sayQuery:
		spoken := c.classifier.RephraseQuery(ctx, sess.Query)
		pause := sess.CalculatedPause
		if pause <= 0 {
			pause = prompt.DefaultPause
		}
		r.Pause(pause)
		r.SayVoice("alice", spoken)
		r.Gather(telephony.Gather{
			Input:         "dtmf speech",
			Timeout:       c.gatherTimeout(),
			SpeechTimeout: "auto",
			Action:        branchAction(sess.ID, ""),
			Method:        "POST",
		})
		r.Pause(pause)
		r.Record(recordMaxLen)

	default:
		if sess.QuerySpoken {
			// The query round already happened; a bare re-entry has nothing
			// left to do.
			r.Say("Ending session. Goodbye.").Hangup()
			break
		}
		sess.ShouldCheckSpeech = true
		sess.IVRType = session.TypeUnknown
		sess.Phase = session.PhaseInitDiscovery

		pause := sess.CalculatedPause
		if pause <= 0 {
			pause = prompt.DefaultPause
		}
		r.Pause(pause)
		r.Gather(telephony.Gather{
			Input:         "dtmf speech",
			Timeout:       c.gatherTimeout(),
			SpeechTimeout: "auto",
			MaxSpeechTime: c.gatherTimeout(),
			Hints:         speechHints,
			Action:        branchAction(sess.ID, ""),
			Method:        "POST",
		})
		r.Pause(pause)
		r.Redirect(branchAction(sess.ID, "") + "&fallback=true")
		r.Record(recordMaxLen)
	}

	return r
}
