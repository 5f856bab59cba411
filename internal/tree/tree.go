// Package tree implements the discovered IVR menu tree: a path-addressed
// structure keyed by dotted paths ("root.1.2") that grows monotonically as a
// crawl explores branches.
package tree

import (
	"fmt"
	"sort"
	"strings"
)

// RootKey is the synthetic key of every tree's root node.
const RootKey = "root"

// SpeechKey is the child key used for branches reached by speaking rather
// than pressing a digit.
const SpeechKey = "speech"

// Node is one entry in the menu tree. Key is always the node's full dotted
// path; Children keys are digit strings or the literal "speech".
type Node struct {
	Key          string           `json:"key"`
	Label        string           `json:"label"`
	Selected     bool             `json:"selected"`
	IVRType      string           `json:"ivr_type,omitempty"`
	LoopDetected bool             `json:"loop_detected,omitempty"`
	Exhausted    bool             `json:"exhausted,omitempty"`
	ParseError   bool             `json:"parse_error,omitempty"`
	Children     map[string]*Node `json:"children"`

	// Order preserves child insertion order, since JSON objects and Go maps
	// do not.
	Order []string `json:"child_order,omitempty"`
}

// NewRoot creates an empty tree.
func NewRoot() *Node {
	return &Node{
		Key:      RootKey,
		Label:    RootKey,
		Children: map[string]*Node{},
	}
}

// newPlaceholder creates an intermediate node whose real label has not been
// observed yet.
func newPlaceholder(key, local string) *Node {
	return &Node{
		Key:      key,
		Label:    fmt.Sprintf("%s: Unknown", local),
		Children: map[string]*Node{},
	}
}

// addChild attaches a child under the node if the local key is absent.
// Existing children, including any markers already placed on them, are
// preserved; labels are immutable after first insertion.
func (n *Node) addChild(local string, child *Node) {
	if n.Children == nil {
		n.Children = map[string]*Node{}
	}
	if _, ok := n.Children[local]; ok {
		return
	}
	n.Children[local] = child
	n.Order = append(n.Order, local)
}

// Lookup traverses the tree by dotted path. The second return value is false
// when any path segment is missing; that is an expected condition, not an
// error.
func Lookup(root *Node, path string) (*Node, bool) {
	if root == nil {
		return nil, false
	}
	node := root
	for _, part := range splitPath(path) {
		child, ok := node.Children[part]
		if !ok {
			return nil, false
		}
		node = child
	}
	return node, true
}

// InsertBranch walks the dotted path from the root, creating placeholder
// nodes for any missing intermediate segments, then merges the given options
// as children of the target node. Inserting an already-present child key is a
// no-op, which makes the whole operation idempotent. A non-empty ivrType tags
// the target node.
func InsertBranch(root *Node, path string, options map[string]string, ivrType string) *Node {
	if root == nil {
		root = NewRoot()
	}

	node := root
	parts := splitPath(path)
	for i, part := range parts {
		child, ok := node.Children[part]
		if !ok {
			child = newPlaceholder(strings.Join(append([]string{RootKey}, parts[:i+1]...), "."), part)
			node.addChild(part, child)
		}
		node = child
	}

	if ivrType != "" {
		node.IVRType = ivrType
	}

	// Merge options in sorted key order so child order is deterministic.
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		node.addChild(k, &Node{
			Key:      node.Key + "." + k,
			Label:    fmt.Sprintf("%s: %s", k, options[k]),
			Children: map[string]*Node{},
		})
	}

	return root
}

// MarkLoop flags the node at path as a detected loop and annotates its label.
// Missing paths are ignored.
func MarkLoop(root *Node, path string) {
	node, ok := Lookup(root, path)
	if !ok || node.LoopDetected {
		return
	}
	node.LoopDetected = true
	node.Label += " [loop detected]"
}

// MarkExhausted flags the node at path as fully crawled.
func MarkExhausted(root *Node, path string) {
	if node, ok := Lookup(root, path); ok {
		node.Exhausted = true
	}
}

// MarkParseError flags the node at path as a branch whose menu could not be
// extracted from the transcript.
func MarkParseError(root *Node, path string) {
	if node, ok := Lookup(root, path); ok {
		node.ParseError = true
	}
}

// splitPath breaks a dotted path into segments, dropping a leading root
// segment and empty parts.
func splitPath(path string) []string {
	var parts []string
	for i, part := range strings.Split(strings.TrimSpace(path), ".") {
		if part == "" || (i == 0 && part == RootKey) {
			continue
		}
		parts = append(parts, part)
	}
	return parts
}
