package outline

// State is the lifecycle state of an item.
type State int

const (
	StateNone State = iota
	StateInProgress
	StateDone
	StateTrashed
)

// String returns the state's wire name.
func (s State) String() string {
	switch s {
	case StateInProgress:
		return "in-progress"
	case StateDone:
		return "done"
	case StateTrashed:
		return "trashed"
	default:
		return "none"
	}
}

// Valid reports whether the state is one of the defined values.
func (s State) Valid() bool { return s >= StateNone && s <= StateTrashed }

// Tag is an item color tag, 0 through 6, or TagNone.
type Tag int

// TagNone marks an untagged item.
const TagNone Tag = -1

// MaxTag is the highest valid tag value.
const MaxTag Tag = 6

// Valid reports whether the tag is TagNone or within [0, MaxTag].
func (t Tag) Valid() bool { return t == TagNone || (t >= 0 && t <= MaxTag) }

// Record is the flat, order-independent projection of one tree node. Records
// are the storage and wire currency; the live tree is authoritative and a full
// tree round-trips losslessly through []Record.
type Record struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"` // empty = root
	Position int    `json:"position"`            // dense 0-based index among siblings
	Text     string `json:"text,omitempty"`
	State    State  `json:"state"`
	Tag      Tag    `json:"tag"`

	// Version is the server's opaque change metadata for this record. Empty
	// for records the server has never seen. Preserved through conflict
	// merges so a resave lands on the latest server version.
	Version string `json:"version,omitempty"`
}

// Record projects this single node. Position is the node's index among its
// siblings (0 for a root). Version is not tracked on nodes; the sync layer
// fills it in from its own bookkeeping.
func (n *Node) Record() Record {
	rec := Record{
		ID:    n.ID,
		Text:  n.Data.Text,
		State: n.Data.State,
		Tag:   n.Data.Tag,
	}
	if n.parent != nil {
		rec.ParentID = n.parent.ID
		rec.Position = n.IndexInParent()
	}
	return rec
}

// Records flattens the subtree rooted at n into records, depth-first.
func (n *Node) Records() []Record {
	out := make([]Record, 0, n.leafCount)
	n.Walk(func(node *Node) {
		out = append(out, node.Record())
	})
	return out
}

// ApplyRecord copies a record's payload fields onto the node. Structure
// (parent, position) is not touched; the caller repositions separately.
func (n *Node) ApplyRecord(rec Record) {
	n.Data.Text = rec.Text
	n.Data.State = rec.State
	n.Data.Tag = rec.Tag
}
