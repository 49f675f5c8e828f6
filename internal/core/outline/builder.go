package outline

// Detached is a record whose declared parent is absent from the input set (or
// whose parent reference was broken). Node is the reconstructed subtree rooted
// at the record, including any children that did resolve, so callers can
// reattach it rather than lose data.
type Detached struct {
	Record Record
	Node   *Node
}

// BuildResult is the outcome of reconstructing trees from an unordered record
// set. Roots holds every candidate root (records with no parent id). Detached
// holds records whose declared parent is absent from the input, plus records
// that would have produced a cycle; they are reported, never silently dropped.
type BuildResult struct {
	Roots    []*Node
	Detached []Detached
}

// Build reconstructs trees from an unordered record set. Children are ordered
// by their records' position fields using a silent sort (reconstruction emits
// no structural events), then leaf counts are repaired in one bottom-up pass.
// Empty input yields an empty result, not an error.
func Build(records []Record) BuildResult {
	type entry struct {
		rec  Record
		node *Node
	}

	byID := make(map[string]*entry, len(records))
	order := make([]*entry, 0, len(records))
	for _, rec := range records {
		e := &entry{
			rec:  rec,
			node: NewNode(rec.ID, Payload{Text: rec.Text, State: rec.State, Tag: rec.Tag}),
		}
		byID[rec.ID] = e
		order = append(order, e)
	}

	var result BuildResult
	for _, e := range order {
		switch {
		case e.rec.ParentID == "":
			result.Roots = append(result.Roots, e.node)
		case e.rec.ParentID == e.rec.ID:
			// Self-parenting is a broken reference, not a structure.
			result.Detached = append(result.Detached, Detached{Record: e.rec, Node: e.node})
		default:
			parent, ok := byID[e.rec.ParentID]
			if !ok {
				result.Detached = append(result.Detached, Detached{Record: e.rec, Node: e.node})
				continue
			}
			if wouldCycle(parent.node, e.node) {
				result.Detached = append(result.Detached, Detached{Record: e.rec, Node: e.node})
				continue
			}
			attachSilently(parent.node, e.node)
		}
	}

	position := func(n *Node) int { return byID[n.ID].rec.Position }
	for _, e := range order {
		if len(e.node.children) > 1 {
			e.node.sortChildrenSilently(func(a, b *Node) bool {
				return position(a) < position(b)
			})
		}
	}

	for _, root := range result.Roots {
		root.CalculateLeafCount()
	}
	for _, d := range result.Detached {
		d.Node.CalculateLeafCount()
	}
	return result
}

// ChooseRoot picks the surviving root when a record set produced more than
// one: the candidate matching the active local root id wins, otherwise the
// candidate with the largest leaf count, ties broken by first encountered.
// Returns nil for an empty slice. Callers decide what happens to the unchosen
// candidates.
func ChooseRoot(roots []*Node, activeRootID string) *Node {
	if len(roots) == 0 {
		return nil
	}
	if activeRootID != "" {
		for _, r := range roots {
			if r.ID == activeRootID {
				return r
			}
		}
	}
	best := roots[0]
	for _, r := range roots[1:] {
		if r.LeafCount() > best.LeafCount() {
			best = r
		}
	}
	return best
}

// attachSilently appends child without events or incremental leaf counting.
// At call time child is a root of its own partial tree, so the upward walk in
// wouldCycle terminates.
func attachSilently(parent, child *Node) {
	parent.children = append(parent.children, child)
	child.parent = parent
}

// wouldCycle reports whether child is an ancestor of parent (attaching would
// close a loop).
func wouldCycle(parent, child *Node) bool {
	for cur := parent; cur != nil; cur = cur.parent {
		if cur == child {
			return true
		}
	}
	return false
}
