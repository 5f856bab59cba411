package recording

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAged(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("aging %s: %v", name, err)
	}
	return path
}

func TestSweepRemovesOnlyExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	old := writeAged(t, dir, "CAold.mp3", 48*time.Hour)
	fresh := writeAged(t, dir, "CAfresh.mp3", time.Hour)

	removed, err := Sweep(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("expired file still present")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh file missing: %v", err)
	}
}

func TestSweepSkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	stamp := time.Now().Add(-48 * time.Hour)
	if err := os.Chtimes(sub, stamp, stamp); err != nil {
		t.Fatalf("aging dir: %v", err)
	}

	removed, err := Sweep(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
	if _, err := os.Stat(sub); err != nil {
		t.Errorf("subdirectory removed: %v", err)
	}
}

func TestSweepMissingDir(t *testing.T) {
	removed, err := Sweep(filepath.Join(t.TempDir(), "absent"), time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}
