package outline

// NodeUpdate describes one structural change to a node's children.
//
// Exactly one of InsertedNodes, RemovedNodes, or MovedNode is populated per
// update. Node is always the node whose children changed, so observers
// attached higher in the tree can locate the mutation site.
type NodeUpdate struct {
	Node *Node

	InsertedNodes []*Node
	FirstIndex    int
	LastIndex     int

	RemovedNodes   []*Node
	RemovedIndexes []int

	MovedNode *Node
	FromIndex int
	ToIndex   int

	// SwitchedParent is set when inserted nodes were detached from a previous
	// parent as part of the insert.
	SwitchedParent bool
}

// Unsubscribe removes a previously registered observer.
type Unsubscribe func()

type observerSet struct {
	nextID int
	local  map[int]func(NodeUpdate)
	tree   map[int]func(NodeUpdate)
}

func (n *Node) ensureObservers() *observerSet {
	if n.observers == nil {
		n.observers = &observerSet{
			local: make(map[int]func(NodeUpdate)),
			tree:  make(map[int]func(NodeUpdate)),
		}
	}
	return n.observers
}

// Observe registers a callback invoked for changes to this node's direct
// children only.
func (n *Node) Observe(fn func(NodeUpdate)) Unsubscribe {
	obs := n.ensureObservers()
	id := obs.nextID
	obs.nextID++
	obs.local[id] = fn
	return func() { delete(obs.local, id) }
}

// ObserveTree registers a callback invoked for structural changes anywhere in
// this node's subtree. Updates propagate upward from the mutation site, so a
// single observer on the root sees every change in the tree.
func (n *Node) ObserveTree(fn func(NodeUpdate)) Unsubscribe {
	obs := n.ensureObservers()
	id := obs.nextID
	obs.nextID++
	obs.tree[id] = fn
	return func() { delete(obs.tree, id) }
}

// emit notifies the mutated node's local observers, then bubbles the update
// through every ancestor's tree observers up to the root.
func (n *Node) emit(u NodeUpdate) {
	if n.observers != nil {
		for _, fn := range n.observers.local {
			fn(u)
		}
	}
	for cur := n; cur != nil; cur = cur.parent {
		if cur.observers != nil {
			for _, fn := range cur.observers.tree {
				fn(u)
			}
		}
	}
}
