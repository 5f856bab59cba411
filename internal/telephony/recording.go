package telephony

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	// Recordings smaller than this are still being finalized by the
	// provider and must not be transcribed.
	minRecordingBytes = 5000

	downloadRetries = 3
	retryDelay      = 2500 * time.Millisecond
)

// RecordingFetcher downloads finished call recordings to local disk.
type RecordingFetcher struct {
	accountSID string
	authToken  string
	dir        string
	client     *http.Client
	logger     *slog.Logger

	// retryDelay is shortened in tests.
	retryDelay time.Duration
}

// NewRecordingFetcher stores recordings under dir, creating it if needed.
func NewRecordingFetcher(accountSID, authToken, dir string, logger *slog.Logger) (*RecordingFetcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating recordings directory: %w", err)
	}
	return &RecordingFetcher{
		accountSID: accountSID,
		authToken:  authToken,
		dir:        dir,
		client:     &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
		retryDelay: retryDelay,
	}, nil
}

// Fetch downloads the mp3 rendition of recordingURL and returns the local
// path. The provider finalizes recordings asynchronously, so undersized
// responses are retried a few times before giving up.
func (f *RecordingFetcher) Fetch(ctx context.Context, recordingURL, callSID string) (string, error) {
	path := filepath.Join(f.dir, callSID+".mp3")

	var lastErr error
	for attempt := 1; attempt <= downloadRetries; attempt++ {
		data, err := f.download(ctx, recordingURL+".mp3")
		switch {
		case err != nil:
			lastErr = err
			f.logger.Warn("recording download failed", "attempt", attempt, "call_sid", callSID, "error", err)
		case len(data) <= minRecordingBytes:
			lastErr = fmt.Errorf("recording too small (%d bytes)", len(data))
			f.logger.Warn("recording not ready", "attempt", attempt, "call_sid", callSID, "bytes", len(data))
		default:
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return "", fmt.Errorf("writing recording: %w", err)
			}
			f.logger.Info("recording downloaded", "call_sid", callSID, "bytes", len(data), "path", path)
			return path, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.retryDelay):
		}
	}
	return "", fmt.Errorf("recording never became available: %w", lastErr)
}

func (f *RecordingFetcher) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(f.accountSID, f.authToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("recording fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64<<20))
}
