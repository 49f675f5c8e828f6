package outline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(id string) *Node {
	return NewNode(id, Payload{Text: id, Tag: TagNone})
}

// buildTree makes root -> (a -> (a1, a2), b).
func buildTree(t *testing.T) (root, a, b, a1, a2 *Node) {
	t.Helper()
	root, a, b, a1, a2 = leaf("root"), leaf("a"), leaf("b"), leaf("a1"), leaf("a2")
	require.NoError(t, root.InsertChildren([]*Node{a, b}, 0))
	require.NoError(t, a.InsertChildren([]*Node{a1, a2}, 0))
	return root, a, b, a1, a2
}

func TestNode_InsertChildren(t *testing.T) {
	root, a, b, a1, a2 := buildTree(t)

	assert.Equal(t, []*Node{a, b}, root.Children())
	assert.Equal(t, []*Node{a1, a2}, a.Children())
	assert.Equal(t, root, a.Parent())
	assert.Equal(t, 0, a.IndexInParent())
	assert.Equal(t, 1, b.IndexInParent())
	assert.Equal(t, root, a1.Root())
}

func TestNode_InsertChildren_InvalidIndex(t *testing.T) {
	root := leaf("root")

	err := root.InsertChildren([]*Node{leaf("x")}, 1)
	assert.ErrorIs(t, err, ErrInvalidIndex)

	err = root.InsertChildren([]*Node{leaf("x")}, -1)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestNode_InsertChildren_Cycle(t *testing.T) {
	root, a, _, a1, _ := buildTree(t)

	// a1 is a descendant of a; inserting a under a1 would close a loop.
	err := a1.InsertChildren([]*Node{a}, 0)
	assert.ErrorIs(t, err, ErrWouldCycle)

	// A node cannot become its own child.
	err = root.InsertChildren([]*Node{root}, 0)
	assert.ErrorIs(t, err, ErrWouldCycle)
}

func TestNode_InsertChildren_Reparents(t *testing.T) {
	root, a, b, a1, _ := buildTree(t)

	var got NodeUpdate
	unsub := root.ObserveTree(func(u NodeUpdate) { got = u })
	defer unsub()

	require.NoError(t, b.InsertChildren([]*Node{a1}, 0))

	assert.Equal(t, b, a1.Parent())
	assert.Equal(t, 1, a.ChildCount())
	assert.True(t, got.SwitchedParent)
	assert.Equal(t, []*Node{a1}, got.InsertedNodes)
}

func TestNode_LeafCount(t *testing.T) {
	root, a, _, _, _ := buildTree(t)

	// Leaves are a1, a2, b.
	assert.Equal(t, 3, root.LeafCount())
	assert.Equal(t, 2, a.LeafCount())

	c := leaf("c")
	require.NoError(t, a.InsertChildren([]*Node{c}, 2))
	assert.Equal(t, 3, a.LeafCount())
	assert.Equal(t, 4, root.LeafCount())

	_, err := a.RemoveChildren([]int{0, 1, 2})
	require.NoError(t, err)
	// a became a leaf itself.
	assert.Equal(t, 1, a.LeafCount())
	assert.Equal(t, 2, root.LeafCount())
}

func TestNode_RemoveChildren(t *testing.T) {
	root, a, b, a1, a2 := buildTree(t)

	removed, err := a.RemoveChildren([]int{1, 0})
	require.NoError(t, err)

	// Returned ascending by original index regardless of argument order.
	assert.Equal(t, []*Node{a1, a2}, removed)
	assert.Nil(t, a1.Parent())
	assert.Equal(t, 0, a.ChildCount())
	assert.Equal(t, 1, root.DeletionStackSize())
	_ = b
}

func TestNode_RemoveChildren_InvalidIndex(t *testing.T) {
	_, a, _, _, _ := buildTree(t)

	_, err := a.RemoveChildren([]int{0, 2})
	assert.ErrorIs(t, err, ErrInvalidIndex)
	// Validation happens before any mutation.
	assert.Equal(t, 2, a.ChildCount())
}

func TestNode_MoveChild(t *testing.T) {
	root, a, b, _, _ := buildTree(t)

	require.NoError(t, root.MoveChild(0, 1))
	assert.Equal(t, []*Node{b, a}, root.Children())

	err := root.MoveChild(1, 1)
	assert.ErrorIs(t, err, ErrInvalidIndex)
	err = root.MoveChild(0, 5)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestNode_UndoDeletion(t *testing.T) {
	root, a, _, a1, a2 := buildTree(t)

	_, err := a.RemoveChildren([]int{0, 1})
	require.NoError(t, err)
	require.Equal(t, 0, a.ChildCount())

	restored, err := root.UndoDeletion()
	require.NoError(t, err)

	assert.Equal(t, []*Node{a1, a2}, restored)
	assert.Equal(t, []*Node{a1, a2}, a.Children())
	assert.Equal(t, 0, root.DeletionStackSize())
	assert.Equal(t, 3, root.LeafCount())
}

func TestNode_UndoDeletion_LIFO(t *testing.T) {
	root, a, b, a1, _ := buildTree(t)

	_, err := a.RemoveChildren([]int{0}) // a1
	require.NoError(t, err)
	_, err = root.RemoveChildren([]int{1}) // b
	require.NoError(t, err)
	require.Equal(t, 2, root.DeletionStackSize())

	restored, err := root.UndoDeletion()
	require.NoError(t, err)
	assert.Equal(t, []*Node{b}, restored)

	restored, err = root.UndoDeletion()
	require.NoError(t, err)
	assert.Equal(t, []*Node{a1}, restored)
	assert.Equal(t, a, a1.Parent())

	restored, err = root.UndoDeletion()
	require.NoError(t, err)
	assert.Nil(t, restored)
}

func TestNode_DiscardLastDeletion(t *testing.T) {
	root, a, b, a1, _ := buildTree(t)

	_, err := root.RemoveChildren([]int{1}) // b, by the user
	require.NoError(t, err)
	_, err = a.RemoveChildren([]int{0}) // a1, not undoable
	require.NoError(t, err)
	require.Equal(t, 2, root.DeletionStackSize())

	root.DiscardLastDeletion()
	assert.Equal(t, 1, root.DeletionStackSize())

	// The user's batch is still on top.
	restored, err := root.UndoDeletion()
	require.NoError(t, err)
	assert.Equal(t, []*Node{b}, restored)
	assert.Nil(t, a1.Parent())

	// Discarding an empty stack is a no-op.
	root.DiscardLastDeletion()
	assert.Equal(t, 0, root.DeletionStackSize())
}

func TestNode_UndoDeletion_ParentGone(t *testing.T) {
	root, a, _, a1, _ := buildTree(t)

	_, err := a.RemoveChildren([]int{0}) // a1 removed from a
	require.NoError(t, err)
	_, err = root.RemoveChildren([]int{0}) // a removed from root
	require.NoError(t, err)

	// Undo a1 first: its original parent is no longer in the tree, so it
	// lands under the root.
	root.ClearDeletionStack()
	root.deletionStack = []deletion{{parent: a, nodes: []*Node{a1}, indexes: []int{0}}}

	restored, err := root.UndoDeletion()
	require.NoError(t, err)
	assert.Equal(t, []*Node{a1}, restored)
	assert.Equal(t, root, a1.Parent())
}

func TestNode_Events_BubbleToTreeObservers(t *testing.T) {
	root, a, _, _, _ := buildTree(t)

	var rootSaw, localSaw []NodeUpdate
	unsubRoot := root.ObserveTree(func(u NodeUpdate) { rootSaw = append(rootSaw, u) })
	defer unsubRoot()
	unsubLocal := a.Observe(func(u NodeUpdate) { localSaw = append(localSaw, u) })
	defer unsubLocal()

	require.NoError(t, a.InsertChildren([]*Node{leaf("x")}, 0))

	require.Len(t, rootSaw, 1)
	require.Len(t, localSaw, 1)
	assert.Equal(t, a, rootSaw[0].Node)
}

func TestNode_Events_Unsubscribe(t *testing.T) {
	root := leaf("root")

	count := 0
	unsub := root.Observe(func(NodeUpdate) { count++ })

	require.NoError(t, root.InsertChildren([]*Node{leaf("x")}, 0))
	assert.Equal(t, 1, count)

	unsub()
	require.NoError(t, root.InsertChildren([]*Node{leaf("y")}, 0))
	assert.Equal(t, 1, count)
}

func TestNode_Walk(t *testing.T) {
	root, _, _, _, _ := buildTree(t)

	var ids []string
	root.Walk(func(n *Node) { ids = append(ids, n.ID) })

	assert.Equal(t, []string{"root", "a", "a1", "a2", "b"}, ids)
}

func TestNode_CalculateLeafCount(t *testing.T) {
	root, a, _, _, _ := buildTree(t)

	// Corrupt the caches, then repair.
	root.leafCount = 99
	a.leafCount = 99

	assert.Equal(t, 3, root.CalculateLeafCount())
	assert.Equal(t, 2, a.LeafCount())
}
