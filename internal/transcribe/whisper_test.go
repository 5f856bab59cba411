package transcribe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWaitReadyMissingFile(t *testing.T) {
	tr := NewWhisperTranscriber("key", "whisper-1", slog.New(slog.NewTextHandler(io.Discard, nil)))
	tr.readyDelay = time.Millisecond

	err := tr.waitReady(context.Background(), filepath.Join(t.TempDir(), "nope.mp3"))
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("waitReady = %v, want ErrNotReady", err)
	}
}

func TestWaitReadyUndersizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.mp3")
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := NewWhisperTranscriber("key", "whisper-1", slog.New(slog.NewTextHandler(io.Discard, nil)))
	tr.readyDelay = time.Millisecond

	if err := tr.waitReady(context.Background(), path); !errors.Is(err, ErrNotReady) {
		t.Fatalf("waitReady = %v, want ErrNotReady", err)
	}
}

func TestWaitReadyLargeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ready.mp3")
	if err := os.WriteFile(path, make([]byte, 12000), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := NewWhisperTranscriber("key", "whisper-1", slog.New(slog.NewTextHandler(io.Discard, nil)))
	tr.readyDelay = time.Millisecond

	if err := tr.waitReady(context.Background(), path); err != nil {
		t.Fatalf("waitReady: %v", err)
	}
}

func TestJoinText(t *testing.T) {
	segments := []Segment{
		{Start: 0, End: 2.5, Text: " Thank you for calling. "},
		{Start: 2.5, End: 5, Text: "Press 1 for sales."},
		{Start: 5, End: 6, Text: "  "},
	}
	got := JoinText(segments)
	want := "Thank you for calling. Press 1 for sales."
	if got != want {
		t.Errorf("JoinText = %q, want %q", got, want)
	}
}
