package tree

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestInsertBranchCreatesPlaceholders(t *testing.T) {
	root := NewRoot()
	InsertBranch(root, "root.1.2", map[string]string{"3": "Billing"}, "menu")

	one, ok := Lookup(root, "root.1")
	if !ok {
		t.Fatal("intermediate node root.1 not created")
	}
	if one.Label != "1: Unknown" {
		t.Errorf("placeholder label = %q, want %q", one.Label, "1: Unknown")
	}
	if one.Key != "root.1" {
		t.Errorf("placeholder key = %q, want root.1", one.Key)
	}

	two, ok := Lookup(root, "root.1.2")
	if !ok {
		t.Fatal("target node root.1.2 not created")
	}
	if two.IVRType != "menu" {
		t.Errorf("target ivr type = %q, want menu", two.IVRType)
	}

	three, ok := Lookup(root, "root.1.2.3")
	if !ok {
		t.Fatal("option child root.1.2.3 not created")
	}
	if three.Label != "3: Billing" {
		t.Errorf("option label = %q, want %q", three.Label, "3: Billing")
	}
	if three.Key != "root.1.2.3" {
		t.Errorf("option key = %q, want root.1.2.3", three.Key)
	}
}

func TestInsertBranchIdempotent(t *testing.T) {
	options := map[string]string{"1": "Reservations", "2": "Baggage"}

	once := NewRoot()
	InsertBranch(once, "root.speech", options, "menu")

	twice := NewRoot()
	InsertBranch(twice, "root.speech", options, "menu")
	InsertBranch(twice, "root.speech", options, "menu")

	if !reflect.DeepEqual(once, twice) {
		t.Error("inserting the same branch twice produced a different tree")
	}
}

func TestInsertBranchPreservesExistingChildren(t *testing.T) {
	root := NewRoot()
	InsertBranch(root, "root.speech", map[string]string{"1": "Reservations"}, "menu")

	// Place a marker on an existing child, then re-insert with a different
	// label for the same key.
	child, _ := Lookup(root, "root.speech.1")
	child.Exhausted = true

	InsertBranch(root, "root.speech", map[string]string{"1": "Bookings", "2": "Baggage"}, "menu")

	got, _ := Lookup(root, "root.speech.1")
	if got.Label != "1: Reservations" {
		t.Errorf("existing child relabeled to %q; first-insertion labels are immutable", got.Label)
	}
	if !got.Exhausted {
		t.Error("existing child marker lost on re-insert")
	}
	if _, ok := Lookup(root, "root.speech.2"); !ok {
		t.Error("new sibling not merged alongside existing child")
	}
}

func TestInsertBranchChildOrderDeterministic(t *testing.T) {
	root := NewRoot()
	InsertBranch(root, "root.speech", map[string]string{"2": "B", "1": "A", "3": "C"}, "")

	node, _ := Lookup(root, "root.speech")
	want := []string{"1", "2", "3"}
	if !reflect.DeepEqual(node.Order, want) {
		t.Errorf("child order = %v, want %v", node.Order, want)
	}
}

func TestLookupMissingPath(t *testing.T) {
	root := NewRoot()
	InsertBranch(root, "root.1", nil, "")

	if _, ok := Lookup(root, "root.1.9"); ok {
		t.Error("Lookup found a node for a missing path")
	}
	if _, ok := Lookup(root, "root"); !ok {
		t.Error("Lookup failed for the root path")
	}
	if _, ok := Lookup(nil, "root.1"); ok {
		t.Error("Lookup on nil tree should miss")
	}
}

func TestMarkLoop(t *testing.T) {
	root := NewRoot()
	InsertBranch(root, "root.1", nil, "menu")

	MarkLoop(root, "root.1")
	node, _ := Lookup(root, "root.1")
	if !node.LoopDetected {
		t.Error("LoopDetected not set")
	}
	if !strings.HasSuffix(node.Label, " [loop detected]") {
		t.Errorf("label = %q, want loop suffix", node.Label)
	}

	// Marking twice must not double the suffix.
	MarkLoop(root, "root.1")
	node, _ = Lookup(root, "root.1")
	if strings.Count(node.Label, "[loop detected]") != 1 {
		t.Errorf("label = %q, loop suffix duplicated", node.Label)
	}

	// Missing paths are ignored.
	MarkLoop(root, "root.9")
}

func TestMarkExhausted(t *testing.T) {
	root := NewRoot()
	InsertBranch(root, "root.speech", nil, "")
	MarkExhausted(root, "root.speech")
	node, _ := Lookup(root, "root.speech")
	if !node.Exhausted {
		t.Error("Exhausted not set")
	}
}

func TestMarkParseError(t *testing.T) {
	root := NewRoot()
	InsertBranch(root, "root.speech", map[string]string{"1": "Reservations"}, "menu")
	MarkParseError(root, "root.speech.1")
	node, _ := Lookup(root, "root.speech.1")
	if !node.ParseError {
		t.Error("ParseError not set")
	}

	// Missing paths are ignored.
	MarkParseError(root, "root.9")
}

func TestSnapshotterSave(t *testing.T) {
	dir := t.TempDir()
	snap := NewSnapshotter(dir)

	root := NewRoot()
	InsertBranch(root, "root.speech", map[string]string{"1": "Reservations"}, "menu")

	path, err := snap.Save("Change my Delta flight!", "abc123", root)
	if err != nil {
		t.Fatalf("saving snapshot: %v", err)
	}

	base := filepath.Base(path)
	if !strings.HasPrefix(base, "change-my-delta-flight_abc123_") {
		t.Errorf("snapshot name = %q, want slug + session prefix", base)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	var decoded Node
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if _, ok := Lookup(&decoded, "root.speech.1"); !ok {
		t.Error("snapshot does not round-trip the tree")
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Lost baggage", "lost-baggage"},
		{"  Change my Delta flight!  ", "change-my-delta-flight"},
		{"???", "unknown"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
