// Package telephony places outbound call legs, renders TwiML answers, and
// retrieves call recordings from the provider.
package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01/Accounts"

// Call status values reported by the provider's status callback.
const (
	StatusInitiated = "initiated"
	StatusRinging   = "ringing"
	StatusAnswered  = "answered"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusBusy      = "busy"
	StatusNoAnswer  = "no-answer"
)

// LegParams describes one outbound call leg. Exactly one of SayQuery or
// BranchDigit may be set; both empty places a passive discovery leg.
type LegParams struct {
	SessionID   string
	To          string
	SayQuery    bool
	BranchDigit string
}

// Dialer places outbound call legs. The crawler issues at most one new leg
// per webhook it handles.
type Dialer interface {
	StartLeg(ctx context.Context, p LegParams) (callSID string, err error)
}

// TwilioDialer places calls through the Twilio REST API.
type TwilioDialer struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	public     PublicURLSource
	client     *http.Client
	logger     *slog.Logger
}

// NewTwilioDialer returns a dialer for the given account. public resolves
// the externally reachable base URL for webhook callbacks.
func NewTwilioDialer(accountSID, authToken, from string, public PublicURLSource, logger *slog.Logger) (*TwilioDialer, error) {
	if accountSID == "" {
		return nil, errors.New("twilio: account SID is required")
	}
	if authToken == "" {
		return nil, errors.New("twilio: auth token is required")
	}
	if from == "" {
		return nil, errors.New("twilio: from number is required")
	}
	return &TwilioDialer{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    fmt.Sprintf("%s/%s", twilioAPIBase, accountSID),
		public:     public,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}, nil
}

// StartLeg creates an outbound call with recording enabled and the entry
// webhook wired to the crawl session.
func (d *TwilioDialer) StartLeg(ctx context.Context, p LegParams) (string, error) {
	if p.SessionID == "" {
		return "", errors.New("twilio: session id is required")
	}
	if p.To == "" {
		return "", errors.New("twilio: destination number is required")
	}

	base, err := d.public.PublicURL(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving public url: %w", err)
	}

	entry := url.Values{"session_id": {p.SessionID}}
	if p.SayQuery {
		entry.Set("say_query", "true")
	}
	if p.BranchDigit != "" {
		entry.Set("branch_digit", p.BranchDigit)
	}

	params := url.Values{
		"To":                            {p.To},
		"From":                          {d.from},
		"Url":                           {base + "/twilio/entry?" + entry.Encode()},
		"Method":                        {"POST"},
		"Record":                        {"true"},
		"RecordingChannels":             {"mono"},
		"RecordingStatusCallback":       {base + "/twilio/recording?session_id=" + url.QueryEscape(p.SessionID)},
		"RecordingStatusCallbackMethod": {"POST"},
		"RecordingStatusCallbackEvent":  {"completed"},
		"StatusCallback":                {base + "/twilio/status?session_id=" + url.QueryEscape(p.SessionID)},
		"StatusCallbackMethod":          {"POST"},
		"StatusCallbackEvent":           {StatusInitiated, StatusRinging, StatusAnswered, StatusCompleted},
	}

	body, err := d.apiRequest(ctx, "/Calls.json", params)
	if err != nil {
		return "", fmt.Errorf("creating call: %w", err)
	}

	var result struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("decoding call response: %w", err)
	}

	d.logger.Info("outbound leg created",
		"session_id", p.SessionID,
		"call_sid", result.SID,
		"to", p.To,
		"say_query", p.SayQuery,
		"branch_digit", p.BranchDigit)
	return result.SID, nil
}

func (d *TwilioDialer) apiRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(d.accountSID, d.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("api error (%d): %s", resp.StatusCode, body)
	}
	return body, nil
}
