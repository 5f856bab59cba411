package tree

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// Snapshotter persists immutable point-in-time copies of a crawl's tree for
// audit and debugging. One file is written per branch update.
type Snapshotter struct {
	dir string
}

// NewSnapshotter creates a Snapshotter writing under dir.
func NewSnapshotter(dir string) *Snapshotter {
	return &Snapshotter{dir: dir}
}

// Save serializes the tree to a uniquely named JSON file
// (<slug>_<session>_<timestamp>.json) and returns the written path.
// It never mutates the tree.
func (s *Snapshotter) Save(query, sessionID string, root *Node) (string, error) {
	if err := os.MkdirAll(s.dir, 0750); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s.json",
		slugify(query), sessionID, time.Now().Format("20060102_150405"))
	path := filepath.Join(s.dir, name)

	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling tree snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("writing tree snapshot: %w", err)
	}

	slog.Info("tree snapshot saved", "path", path)
	return path, nil
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// slugify lowercases a query and replaces runs of non-alphanumeric characters
// with single hyphens.
func slugify(s string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(s), "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "unknown"
	}
	return slug
}
