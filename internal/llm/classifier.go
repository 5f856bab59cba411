// Package llm provides the semantic classifier service backing the crawl
// state machine: IVR type classification, menu option extraction, speak-now
// decisions, and query rephrasing. All methods fail open: any service error
// or malformed output degrades to the neutral default, because a crawl step
// must always be able to proceed.
package llm

import (
	"context"

	"github.com/xdial/xdial/internal/session"
)

// Classifier answers semantic questions about an IVR transcript.
type Classifier interface {
	// ClassifyType labels the transcript as one of menu, open-ended,
	// confirmation, or repeat. Returns session.TypeUnknown on any failure.
	// Callers must still apply the deterministic menu override: digit
	// evidence outranks semantic classification.
	ClassifyType(ctx context.Context, transcript, query string) session.IVRType

	// ShouldSpeakNow reports whether the remote system is waiting for the
	// caller's input. Returns false on any failure.
	ShouldSpeakNow(ctx context.Context, transcript string) bool

	// ExtractMenu pulls a flat digit-to-label mapping out of a menu
	// transcript. Returns an empty map on any failure or when the service
	// answers with its known placeholder mapping.
	ExtractMenu(ctx context.Context, transcript string) map[string]string

	// RephraseQuery compresses the user's request into a short
	// action-oriented phrase an IVR will understand. Returns the raw query
	// on any failure.
	RephraseQuery(ctx context.Context, query string) string
}

// fallbackMenu is the placeholder mapping the extraction prompt emits when it
// cannot find real options. Treated as "no menu found".
var fallbackMenu = map[string]string{"1": "Sales", "2": "Support", "3": "Billing"}

// IsFallbackMenu reports whether an extracted mapping exactly equals the
// known placeholder set.
func IsFallbackMenu(m map[string]string) bool {
	if len(m) != len(fallbackMenu) {
		return false
	}
	for k, v := range fallbackMenu {
		if m[k] != v {
			return false
		}
	}
	return true
}
