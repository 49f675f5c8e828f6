package outline

// Index is an id -> node lookup table kept in lockstep with a tree by
// observing the root's structural events, so call sites never maintain it by
// hand.
type Index struct {
	nodes       map[string]*Node
	unsubscribe Unsubscribe
}

// NewIndex builds an index over root's subtree and subscribes to its
// structural events.
func NewIndex(root *Node) *Index {
	ix := &Index{}
	ix.Reset(root)
	return ix
}

// Reset drops all entries, re-indexes root's subtree, and re-subscribes to the
// (possibly new) root.
func (ix *Index) Reset(root *Node) {
	if ix.unsubscribe != nil {
		ix.unsubscribe()
		ix.unsubscribe = nil
	}
	ix.nodes = make(map[string]*Node)
	if root == nil {
		return
	}
	root.Walk(func(n *Node) { ix.nodes[n.ID] = n })
	ix.unsubscribe = root.ObserveTree(ix.apply)
}

// Lookup returns the node with the given id, or nil.
func (ix *Index) Lookup(id string) *Node { return ix.nodes[id] }

// Len returns the number of indexed nodes.
func (ix *Index) Len() int { return len(ix.nodes) }

// Add indexes the given nodes and their subtrees.
func (ix *Index) Add(nodes ...*Node) {
	for _, n := range nodes {
		n.Walk(func(c *Node) { ix.nodes[c.ID] = c })
	}
}

// Remove drops the given nodes and their subtrees.
func (ix *Index) Remove(nodes ...*Node) {
	for _, n := range nodes {
		n.Walk(func(c *Node) { delete(ix.nodes, c.ID) })
	}
}

// Close detaches the index from the tree.
func (ix *Index) Close() {
	if ix.unsubscribe != nil {
		ix.unsubscribe()
		ix.unsubscribe = nil
	}
}

func (ix *Index) apply(u NodeUpdate) {
	switch {
	case len(u.InsertedNodes) > 0:
		// A reinserted node that merely switched parents is already indexed;
		// re-adding is harmless and covers subtrees restored from undo.
		ix.Add(u.InsertedNodes...)
	case len(u.RemovedNodes) > 0:
		ix.Remove(u.RemovedNodes...)
	}
}
