package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// PublicURLSource resolves the externally reachable base URL that the
// provider will call back on.
type PublicURLSource interface {
	PublicURL(ctx context.Context) (string, error)
}

// StaticURL is a PublicURLSource for deployments with a fixed public
// address.
type StaticURL string

func (s StaticURL) PublicURL(context.Context) (string, error) {
	return strings.TrimSuffix(string(s), "/"), nil
}

// NgrokURL discovers the public tunnel address from a local ngrok agent.
// The first lookup is cached; tunnel restarts require a process restart.
type NgrokURL struct {
	apiURL string
	client *http.Client

	mu     sync.Mutex
	cached string
}

// NewNgrokURL returns a source that queries the ngrok agent API at apiURL
// (typically http://127.0.0.1:4040/api/tunnels).
func NewNgrokURL(apiURL string) *NgrokURL {
	return &NgrokURL{
		apiURL: apiURL,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

func (n *NgrokURL) PublicURL(ctx context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cached != "" {
		return n.cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.apiURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("querying ngrok api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ngrok api returned status %d", resp.StatusCode)
	}

	var payload struct {
		Tunnels []struct {
			PublicURL string `json:"public_url"`
		} `json:"tunnels"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decoding ngrok api response: %w", err)
	}
	if len(payload.Tunnels) == 0 || payload.Tunnels[0].PublicURL == "" {
		return "", errors.New("ngrok agent has no active tunnels")
	}

	n.cached = strings.TrimSuffix(payload.Tunnels[0].PublicURL, "/")
	return n.cached, nil
}
