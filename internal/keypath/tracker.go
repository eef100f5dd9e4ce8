// Package keypath tracks, per keypath, whether anything at or below it has
// changed since a recorded version.
//
// The Tracker is persistent: every operation returns a new Tracker and
// leaves the receiver untouched, so it can live inside an immutable state
// snapshot. Each node carries a monotonic version and a tri-state status:
//
//	Clean    nothing changed since the last settlement
//	Dirty    this node's own value changed this transaction (version bumped)
//	Unknown  an ancestor changed; this node's delta is not known yet
//
// Changed bumps the target and all its ancestors and marks the target's
// subtree Unknown without bumping it. IncrementAndClean later settles only
// the recorded changed paths: Dirty nodes become Clean as-is, Unknown nodes
// are bumped and become Clean.
package keypath

import (
	"slices"

	"github.com/roach88/nucleus/internal/immutable"
)

// Status is the tri-state status of a tracked node.
type Status uint8

const (
	Clean Status = iota
	Dirty
	Unknown
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Unknown:
		return "unknown"
	default:
		return "invalid"
	}
}

type node struct {
	status   Status
	version  uint64
	children map[any]*node
}

func (n *node) clone() *node {
	cp := &node{status: n.status, version: n.version}
	if len(n.children) > 0 {
		cp.children = make(map[any]*node, len(n.children))
		for k, c := range n.children {
			cp.children[k] = c
		}
	}
	return cp
}

func (n *node) setChild(key any, c *node) {
	if n.children == nil {
		n.children = make(map[any]*node)
	}
	n.children[key] = c
}

// Tracker is an immutable versioned tree of keypath statuses.
// The nil *Tracker is an empty tracker.
type Tracker struct {
	root    *node
	changed []immutable.Keypath // paths passed to Changed since the last settlement
}

// New returns an empty tracker whose root is Clean at version 0.
func New() *Tracker {
	return &Tracker{root: &node{}}
}

func (t *Tracker) rootNode() *node {
	if t == nil || t.root == nil {
		return &node{}
	}
	return t.root
}

func (t *Tracker) pending() []immutable.Keypath {
	if t == nil {
		return nil
	}
	return t.changed
}

// Changed records that the value at path changed.
//
// The target and every strict ancestor (including the root) become Dirty
// and are bumped. Every descendant of the target becomes Unknown and keeps
// its version until settlement. For the root path this marks the direct
// children (and everything under them) Unknown and bumps only the root.
func (t *Tracker) Changed(path immutable.Keypath) *Tracker {
	root := t.rootNode().clone()
	root.status = Dirty
	root.version++

	cur := root
	for _, key := range path {
		var next *node
		if existing := cur.children[key]; existing != nil {
			next = existing.clone()
		} else {
			next = &node{}
		}
		next.status = Dirty
		next.version++
		cur.setChild(key, next)
		cur = next
	}

	for key, c := range cur.children {
		cur.children[key] = markUnknown(c)
	}

	changed := slices.Clone(t.pending())
	changed = append(changed, slices.Clone(path))
	return &Tracker{root: root, changed: changed}
}

func markUnknown(n *node) *node {
	cp := n.clone()
	cp.status = Unknown
	for key, c := range cp.children {
		cp.children[key] = markUnknown(c)
	}
	return cp
}

// Unchanged marks the node at path and all its descendants Clean without
// bumping any version. A missing node (and any missing ancestor) is
// registered Clean at version 0. Existing ancestors are left untouched.
func (t *Tracker) Unchanged(path immutable.Keypath) *Tracker {
	root := t.rootNode().clone()
	cur := root
	for _, key := range path {
		var next *node
		if existing := cur.children[key]; existing != nil {
			next = existing.clone()
		} else {
			next = &node{}
		}
		cur.setChild(key, next)
		cur = next
	}

	cur.status = Clean
	for key, c := range cur.children {
		cur.children[key] = markClean(c)
	}
	return &Tracker{root: root, changed: slices.Clone(t.pending())}
}

func markClean(n *node) *node {
	if n.status == Clean && allClean(n) {
		return n
	}
	cp := n.clone()
	cp.status = Clean
	for key, c := range cp.children {
		cp.children[key] = markClean(c)
	}
	return cp
}

func allClean(n *node) bool {
	for _, c := range n.children {
		if c.status != Clean || !allClean(c) {
			return false
		}
	}
	return true
}

// lookup walks path and returns the node plus whether any node on the way
// (the target included) is Unknown.
func (t *Tracker) lookup(path immutable.Keypath) (n *node, unknown bool) {
	cur := t.rootNode()
	unknown = cur.status == Unknown
	for _, key := range path {
		next := cur.children[key]
		if next == nil {
			return nil, unknown
		}
		cur = next
		unknown = unknown || cur.status == Unknown
	}
	return cur, unknown
}

// IsEqual reports whether the node at path is registered, Clean, at
// version, and has no Unknown ancestor. Unknown anywhere on the path is
// "not known equal".
func (t *Tracker) IsEqual(path immutable.Keypath, version uint64) bool {
	n, unknown := t.lookup(path)
	if n == nil || unknown {
		return false
	}
	return n.status == Clean && n.version == version
}

// Get returns the current version of the node at path, or false when the
// keypath is not registered.
func (t *Tracker) Get(path immutable.Keypath) (uint64, bool) {
	n, _ := t.lookup(path)
	if n == nil {
		return 0, false
	}
	return n.version, true
}

// Status returns the effective status of the node at path: Unknown when
// the node or any ancestor is Unknown, the node's own status otherwise.
func (t *Tracker) Status(path immutable.Keypath) (Status, bool) {
	n, unknown := t.lookup(path)
	if n == nil {
		return Clean, false
	}
	if unknown {
		return Unknown, true
	}
	return n.status, true
}

// Pending returns the number of changed paths awaiting settlement.
func (t *Tracker) Pending() int {
	return len(t.pending())
}

// IncrementAndClean settles every recorded changed path. Nodes on each path
// go from Dirty to Clean (already bumped by Changed); Unknown nodes reached
// through those paths are bumped and become Clean. Nodes off the recorded
// paths are never visited.
func (t *Tracker) IncrementAndClean() *Tracker {
	pending := t.pending()
	if len(pending) == 0 {
		return t
	}
	root := t.rootNode()
	for _, path := range pending {
		root = settlePath(root, path)
	}
	return &Tracker{root: root}
}

func settlePath(n *node, path immutable.Keypath) *node {
	cp := n.clone()
	settleNode(cp)
	if len(path) == 0 {
		for key, c := range cp.children {
			cp.children[key] = settleSubtree(c)
		}
		return cp
	}
	if next := cp.children[path[0]]; next != nil {
		cp.children[path[0]] = settlePath(next, path[1:])
	}
	return cp
}

// settleSubtree stops at Clean nodes: a Clean node never has an unsettled
// descendant.
func settleSubtree(n *node) *node {
	if n.status == Clean {
		return n
	}
	cp := n.clone()
	settleNode(cp)
	for key, c := range cp.children {
		cp.children[key] = settleSubtree(c)
	}
	return cp
}

func settleNode(n *node) {
	switch n.status {
	case Unknown:
		n.version++
		n.status = Clean
	case Dirty:
		n.status = Clean
	}
}
