package telephony

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTwilioDialerStartLeg(t *testing.T) {
	var gotForm url.Values
	var gotAuthUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parsing form: %v", err)
		}
		gotForm = r.PostForm
		gotAuthUser, _, _ = r.BasicAuth()
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"CA123","status":"queued"}`))
	}))
	defer srv.Close()

	d, err := NewTwilioDialer("AC1", "token", "+15550001111", StaticURL("https://crawler.example.com"), testLogger())
	if err != nil {
		t.Fatalf("NewTwilioDialer: %v", err)
	}
	d.baseURL = srv.URL

	sid, err := d.StartLeg(context.Background(), LegParams{
		SessionID:   "sess-1",
		To:          "+15552223333",
		BranchDigit: "2",
	})
	if err != nil {
		t.Fatalf("StartLeg: %v", err)
	}
	if sid != "CA123" {
		t.Errorf("call sid = %q, want CA123", sid)
	}
	if gotAuthUser != "AC1" {
		t.Errorf("basic auth user = %q, want AC1", gotAuthUser)
	}

	checks := map[string]string{
		"To":                      "+15552223333",
		"From":                    "+15550001111",
		"Record":                  "true",
		"Url":                     "https://crawler.example.com/twilio/entry?branch_digit=2&session_id=sess-1",
		"RecordingStatusCallback": "https://crawler.example.com/twilio/recording?session_id=sess-1",
		"StatusCallback":          "https://crawler.example.com/twilio/status?session_id=sess-1",
	}
	for key, want := range checks {
		if got := gotForm.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
	if got := gotForm["StatusCallbackEvent"]; len(got) != 4 {
		t.Errorf("StatusCallbackEvent = %v, want 4 events", got)
	}
}

func TestTwilioDialerSayQueryFlag(t *testing.T) {
	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotURL = r.PostForm.Get("Url")
		w.Write([]byte(`{"sid":"CA456","status":"queued"}`))
	}))
	defer srv.Close()

	d, err := NewTwilioDialer("AC1", "token", "+15550001111", StaticURL("https://crawler.example.com/"), testLogger())
	if err != nil {
		t.Fatalf("NewTwilioDialer: %v", err)
	}
	d.baseURL = srv.URL

	if _, err := d.StartLeg(context.Background(), LegParams{SessionID: "sess-2", To: "+15552223333", SayQuery: true}); err != nil {
		t.Fatalf("StartLeg: %v", err)
	}
	want := "https://crawler.example.com/twilio/entry?say_query=true&session_id=sess-2"
	if gotURL != want {
		t.Errorf("entry url = %q, want %q", gotURL, want)
	}
}

func TestTwilioDialerValidation(t *testing.T) {
	if _, err := NewTwilioDialer("", "token", "+1", StaticURL("x"), testLogger()); err == nil {
		t.Error("missing account SID should be rejected")
	}

	d, err := NewTwilioDialer("AC1", "token", "+1", StaticURL("https://x.example.com"), testLogger())
	if err != nil {
		t.Fatalf("NewTwilioDialer: %v", err)
	}
	if _, err := d.StartLeg(context.Background(), LegParams{To: "+15552223333"}); err == nil {
		t.Error("missing session id should be rejected")
	}
	if _, err := d.StartLeg(context.Background(), LegParams{SessionID: "s"}); err == nil {
		t.Error("missing destination should be rejected")
	}
}

func TestTwilioDialerAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":21211,"message":"invalid number"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	d, err := NewTwilioDialer("AC1", "token", "+1", StaticURL("https://x.example.com"), testLogger())
	if err != nil {
		t.Fatalf("NewTwilioDialer: %v", err)
	}
	d.baseURL = srv.URL

	if _, err := d.StartLeg(context.Background(), LegParams{SessionID: "s", To: "+15552223333"}); err == nil {
		t.Error("4xx response should surface as an error")
	}
}

func TestNgrokURLDiscoveryAndCache(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"tunnels":[{"public_url":"https://abc123.ngrok.io"}]}`))
	}))
	defer srv.Close()

	src := NewNgrokURL(srv.URL)
	for i := 0; i < 2; i++ {
		got, err := src.PublicURL(context.Background())
		if err != nil {
			t.Fatalf("PublicURL: %v", err)
		}
		if got != "https://abc123.ngrok.io" {
			t.Errorf("PublicURL = %q", got)
		}
	}
	if calls != 1 {
		t.Errorf("agent queried %d times, want 1", calls)
	}
}

func TestNgrokURLNoTunnels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tunnels":[]}`))
	}))
	defer srv.Close()

	if _, err := NewNgrokURL(srv.URL).PublicURL(context.Background()); err == nil {
		t.Error("empty tunnel list should be an error")
	}
}

func TestRecordingFetcherRetriesUntilReady(t *testing.T) {
	attempts := 0
	large := make([]byte, 6000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Write([]byte("tiny"))
			return
		}
		w.Write(large)
	}))
	defer srv.Close()

	f, err := NewRecordingFetcher("AC1", "token", t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewRecordingFetcher: %v", err)
	}
	f.retryDelay = time.Millisecond

	path, err := f.Fetch(context.Background(), srv.URL+"/Recordings/RE1", "CA1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if path == "" {
		t.Error("empty recording path")
	}
}

func TestRecordingFetcherGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tiny"))
	}))
	defer srv.Close()

	f, err := NewRecordingFetcher("AC1", "token", t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("NewRecordingFetcher: %v", err)
	}
	f.retryDelay = time.Millisecond

	if _, err := f.Fetch(context.Background(), srv.URL+"/Recordings/RE2", "CA2"); err == nil {
		t.Error("persistently undersized recording should fail")
	}
}
