// Package transcribe turns downloaded call recordings into timestamped
// transcript segments.
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// Files below this size transcribe to garbage; the encoder has not
	// flushed the full audio yet.
	minReadyBytes = 10000

	readyAttempts = 5
	readyDelay    = time.Second
)

// ErrNotReady is returned when a recording never reaches a transcribable
// size within the readiness budget.
var ErrNotReady = errors.New("recording file not ready")

// Transcriber produces transcript segments from an audio file on disk.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) ([]Segment, error)
}

// WhisperTranscriber transcribes recordings with the OpenAI audio API,
// requesting verbose output so segment timings survive.
type WhisperTranscriber struct {
	client *openai.Client
	model  string
	logger *slog.Logger

	readyDelay time.Duration
}

// NewWhisperTranscriber returns a transcriber using the given model
// (typically whisper-1).
func NewWhisperTranscriber(apiKey, model string, logger *slog.Logger) *WhisperTranscriber {
	return &WhisperTranscriber{
		client:     openai.NewClient(apiKey),
		model:      model,
		logger:     logger,
		readyDelay: readyDelay,
	}
}

// Transcribe waits for the file at path to stabilize, then requests a
// verbose transcription and returns its segments in order.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, path string) ([]Segment, error) {
	if err := t.waitReady(ctx, path); err != nil {
		return nil, err
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: path,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("requesting transcription: %w", err)
	}

	segments := make([]Segment, 0, len(resp.Segments))
	for _, seg := range resp.Segments {
		segments = append(segments, Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
		})
	}

	t.logger.Info("recording transcribed", "path", path, "segments", len(segments))
	return segments, nil
}

// waitReady polls until the file exists and exceeds the minimum size.
func (t *WhisperTranscriber) waitReady(ctx context.Context, path string) error {
	for attempt := 1; attempt <= readyAttempts; attempt++ {
		info, err := os.Stat(path)
		if err == nil && info.Size() > minReadyBytes {
			return nil
		}
		if attempt == readyAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.readyDelay):
		}
	}
	return fmt.Errorf("%w: %s", ErrNotReady, path)
}
