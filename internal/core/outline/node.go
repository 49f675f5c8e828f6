// Package outline implements the ordered item tree that backs the app:
// nodes with ordered, uniquely-owned children, cached leaf counts, structural
// change events, an id index, and the flat Record projection used by storage
// and sync.
package outline

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidIndex is returned when an insert, remove, or move index is out of range.
var ErrInvalidIndex = errors.New("outline: invalid index")

// ErrWouldCycle is returned when an insert would make a node its own ancestor.
var ErrWouldCycle = errors.New("outline: insert would create a cycle")

// Node is a single item in the outline. Children slices are the sole owners of
// nodes; the parent pointer is a non-owning back-reference (nil iff root).
type Node struct {
	ID   string
	Data Payload

	parent    *Node
	children  []*Node
	leafCount int

	observers *observerSet

	// deletionStack is only populated on the node that was the tree root at
	// removal time. Entries are LIFO and unbounded until explicitly cleared.
	deletionStack []deletion
}

// Payload holds the user-visible fields of an item.
type Payload struct {
	Text  string
	State State
	Tag   Tag
}

type deletion struct {
	parent  *Node
	nodes   []*Node
	indexes []int // ascending original positions
}

// NewNode creates a detached leaf node.
func NewNode(id string, data Payload) *Node {
	return &Node{ID: id, Data: data, leafCount: 1}
}

// Parent returns the node's parent, nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's children in order. The returned slice is a copy.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// ChildAt returns the child at index i, or nil when out of range.
func (n *Node) ChildAt(i int) *Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

// ChildCount returns the number of direct children.
func (n *Node) ChildCount() int { return len(n.children) }

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return len(n.children) == 0 }

// LeafCount returns the cached number of leaves in the subtree (>= 1).
func (n *Node) LeafCount() int { return n.leafCount }

// Root walks parent pointers to the tree root.
func (n *Node) Root() *Node {
	r := n
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// IndexInParent returns the node's position among its siblings, or -1 for a root.
func (n *Node) IndexInParent() int {
	if n.parent == nil {
		return -1
	}
	for i, c := range n.parent.children {
		if c == n {
			return i
		}
	}
	return -1
}

// isDescendantOf reports whether n is other or lies in other's subtree.
func (n *Node) isDescendantOf(other *Node) bool {
	for cur := n; cur != nil; cur = cur.parent {
		if cur == other {
			return true
		}
	}
	return false
}

// InsertChildren inserts nodes as children starting at index at. Nodes that
// already have a parent are detached from it first (the emitted update carries
// SwitchedParent). Fails with ErrInvalidIndex unless 0 <= at <= ChildCount(),
// and with ErrWouldCycle if any inserted node is the receiver or one of its
// ancestors.
func (n *Node) InsertChildren(nodes []*Node, at int) error {
	if at < 0 || at > len(n.children) {
		return fmt.Errorf("%w: insert at %d with %d children", ErrInvalidIndex, at, len(n.children))
	}
	for _, child := range nodes {
		if n.isDescendantOf(child) {
			return fmt.Errorf("%w: %s is an ancestor of %s", ErrWouldCycle, child.ID, n.ID)
		}
	}
	if len(nodes) == 0 {
		return nil
	}

	switched := false
	for _, child := range nodes {
		if child.parent != nil {
			child.parent.detachChild(child)
			switched = true
		}
	}

	n.children = append(n.children[:at], append(append([]*Node{}, nodes...), n.children[at:]...)...)
	for _, child := range nodes {
		child.parent = n
	}

	n.recountToRoot()
	n.emit(NodeUpdate{
		Node:           n,
		InsertedNodes:  append([]*Node{}, nodes...),
		FirstIndex:     at,
		LastIndex:      at + len(nodes) - 1,
		SwitchedParent: switched,
	})
	return nil
}

// detachChild removes child from n's children without events or leaf-count
// maintenance. Callers own both.
func (n *Node) detachChild(child *Node) {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			n.recountToRoot()
			return
		}
	}
}

// RemoveChildren removes the children at the given indexes and returns them in
// ascending index order. All indexes must be in [0, ChildCount()). The removed
// batch is pushed onto the root's deletion stack for undo.
func (n *Node) RemoveChildren(indexes []int) ([]*Node, error) {
	for _, i := range indexes {
		if i < 0 || i >= len(n.children) {
			return nil, fmt.Errorf("%w: remove %d with %d children", ErrInvalidIndex, i, len(n.children))
		}
	}
	if len(indexes) == 0 {
		return nil, nil
	}

	root := n.Root()

	asc := append([]int{}, indexes...)
	sort.Ints(asc)
	removed := make([]*Node, len(asc))
	for i, idx := range asc {
		removed[i] = n.children[idx]
	}

	// Remove in descending order so remaining indexes stay valid.
	for i := len(asc) - 1; i >= 0; i-- {
		idx := asc[i]
		n.children = append(n.children[:idx], n.children[idx+1:]...)
	}
	for _, child := range removed {
		child.parent = nil
	}

	root.deletionStack = append(root.deletionStack, deletion{parent: n, nodes: removed, indexes: asc})

	n.recountToRoot()
	n.emit(NodeUpdate{Node: n, RemovedNodes: removed, RemovedIndexes: asc})
	return removed, nil
}

// MoveChild repositions the child at index from to index to. Equal or
// out-of-range indexes fail with ErrInvalidIndex.
func (n *Node) MoveChild(from, to int) error {
	if from == to || from < 0 || from >= len(n.children) || to < 0 || to >= len(n.children) {
		return fmt.Errorf("%w: move %d -> %d with %d children", ErrInvalidIndex, from, to, len(n.children))
	}

	child := n.children[from]
	n.children = append(n.children[:from], n.children[from+1:]...)
	n.children = append(n.children[:to], append([]*Node{child}, n.children[to:]...)...)

	n.emit(NodeUpdate{Node: n, MovedNode: child, FromIndex: from, ToIndex: to})
	return nil
}

// UndoDeletion pops the most recent removal batch off the root's deletion
// stack and reinserts the nodes at their original positions. When the original
// parent is no longer part of this tree, the nodes are appended to the root.
// Returns the restored nodes, or nil when the stack is empty.
func (n *Node) UndoDeletion() ([]*Node, error) {
	root := n.Root()
	if len(root.deletionStack) == 0 {
		return nil, nil
	}

	last := root.deletionStack[len(root.deletionStack)-1]
	root.deletionStack = root.deletionStack[:len(root.deletionStack)-1]

	parent := last.parent
	if parent.Root() != root {
		parent = root
	}

	for i, child := range last.nodes {
		at := last.indexes[i]
		if parent != last.parent || at > parent.ChildCount() {
			at = parent.ChildCount()
		}
		if err := parent.InsertChildren([]*Node{child}, at); err != nil {
			return nil, fmt.Errorf("restore deletion: %w", err)
		}
	}
	return last.nodes, nil
}

// DiscardLastDeletion drops the most recent removal batch from the root's
// deletion stack without restoring the nodes. For removals that must not be
// undoable, such as deletions pushed down from the remote.
func (n *Node) DiscardLastDeletion() {
	root := n.Root()
	if len(root.deletionStack) > 0 {
		root.deletionStack = root.deletionStack[:len(root.deletionStack)-1]
	}
}

// DeletionStackSize returns the number of undoable removal batches.
func (n *Node) DeletionStackSize() int { return len(n.Root().deletionStack) }

// ClearDeletionStack drops all undo state.
func (n *Node) ClearDeletionStack() { n.Root().deletionStack = nil }

// recountToRoot recomputes the leaf count from direct children, then repeats
// at each ancestor. O(depth) plus the changed node's child count.
func (n *Node) recountToRoot() {
	for cur := n; cur != nil; cur = cur.parent {
		cur.leafCount = cur.shallowLeafCount()
	}
}

func (n *Node) shallowLeafCount() int {
	if len(n.children) == 0 {
		return 1
	}
	total := 0
	for _, c := range n.children {
		total += c.leafCount
	}
	return total
}

// CalculateLeafCount walks the whole subtree and repairs every cached leaf
// count. Used after bulk reconstruction where counts were not maintained
// incrementally.
func (n *Node) CalculateLeafCount() int {
	if len(n.children) == 0 {
		n.leafCount = 1
		return 1
	}
	total := 0
	for _, c := range n.children {
		total += c.CalculateLeafCount()
	}
	n.leafCount = total
	return total
}

// Walk visits n and every node in its subtree in depth-first order.
func (n *Node) Walk(visit func(*Node)) {
	visit(n)
	for _, c := range n.children {
		c.Walk(visit)
	}
}

// sortChildrenSilently orders children with less without emitting structural
// events. Reconstruction only; callers must repair leaf counts afterwards.
func (n *Node) sortChildrenSilently(less func(a, b *Node) bool) {
	sort.SliceStable(n.children, func(i, j int) bool {
		return less(n.children[i], n.children[j])
	})
}
