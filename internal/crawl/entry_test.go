package crawl

import (
	"context"
	"strings"
	"testing"

	"github.com/xdial/xdial/internal/session"
)

func renderEntry(t *testing.T, c *Crawler, sess *session.Session, sayQuery bool, branchDigit string) string {
	t.Helper()
	out, err := c.EntryInstructions(context.Background(), sess, sayQuery, branchDigit).Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	return string(out)
}

func TestEntryInstructionsDiscovery(t *testing.T) {
	c := newTestCrawler(t, &stubClassifier{}, &stubDialer{})
	sess := session.New("e1", "u1", "lost baggage", "+15551230000")
	sess.CalculatedPause = 12

	doc := renderEntry(t, c, sess, false, "")

	if sess.Phase != session.PhaseInitDiscovery {
		t.Errorf("phase = %q, want init_discovery", sess.Phase)
	}
	for _, want := range []string{
		`<Pause length="12">`,
		`hints=`,
		`action="/twilio/branch?session_id=e1"`,
		`<Redirect method="POST">/twilio/branch?session_id=e1&amp;fallback=true</Redirect>`,
		`<Record maxLength="90"`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("discovery document missing %s:\n%s", want, doc)
		}
	}
}

func TestEntryInstructionsDiscoveryAfterQuerySpoken(t *testing.T) {
	c := newTestCrawler(t, &stubClassifier{}, &stubDialer{})
	sess := session.New("e2", "u1", "lost baggage", "+15551230000")
	sess.QuerySpoken = true

	doc := renderEntry(t, c, sess, false, "")
	if !strings.Contains(doc, "<Hangup>") {
		t.Errorf("re-entry after query should hang up:\n%s", doc)
	}
	if strings.Contains(doc, "<Gather") {
		t.Errorf("re-entry after query should not gather:\n%s", doc)
	}
}

func TestEntryInstructionsBranchDigit(t *testing.T) {
	c := newTestCrawler(t, &stubClassifier{}, &stubDialer{})
	sess := session.New("e3", "u1", "lost baggage", "+15551230000")

	doc := renderEntry(t, c, sess, false, "2")

	if sess.Phase != session.PhaseDigitBranch {
		t.Errorf("phase = %q, want digit_branch", sess.Phase)
	}
	if !strings.Contains(doc, "branch_digit=2") {
		t.Errorf("gather action missing branch digit:\n%s", doc)
	}
	if !strings.Contains(doc, "Please hold while we gather the options.") {
		t.Errorf("missing hold prompt:\n%s", doc)
	}
}

func TestEntryInstructionsSayQuery(t *testing.T) {
	c := newTestCrawler(t, &stubClassifier{rephrased: "Lost baggage"}, &stubDialer{})
	sess := session.New("e4", "u1", "where is my lost baggage please", "+15551230000")

	doc := renderEntry(t, c, sess, true, "")

	if !strings.Contains(doc, `<Say voice="alice">Lost baggage</Say>`) {
		t.Errorf("rephrased query not spoken:\n%s", doc)
	}
	// No computed pause yet, so the default applies.
	if !strings.Contains(doc, `<Pause length="30">`) {
		t.Errorf("default pause missing:\n%s", doc)
	}
}
