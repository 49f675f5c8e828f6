package twig

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/twigapp/twig/internal/core/outline"
	"github.com/twigapp/twig/internal/core/sync"
	"github.com/twigapp/twig/internal/core/validate"
)

// Notifier receives local mutations so they can be transmitted (or journaled
// for later). Implemented by sync.Engine.
type Notifier interface {
	ItemSaved(ctx context.Context, rec outline.Record) error
	ItemDeleted(ctx context.Context, id string) error
}

// UndoStore persists the removal stack across invocations. Implemented by
// jsonfile.UndoStore.
type UndoStore interface {
	Load() ([]outline.RemovalBatch, error)
	Save(batches []outline.RemovalBatch) error
}

// ErrNotFound is returned when an item id does not resolve to a tree node.
var ErrNotFound = fmt.Errorf("item not found")

// OutlineService wraps the live tree with domain logic: every mutation goes
// through here so the tree, the local record store, and the sync engine stay
// consistent. Structural changes renumber trailing siblings, so their records
// are rewritten alongside the changed item's.
type OutlineService struct {
	root     *outline.Node
	index    *outline.Index
	records  sync.RecordStore
	notifier Notifier
	undo     UndoStore
	log      zerolog.Logger
}

// NewOutlineService creates an OutlineService over an existing tree.
func NewOutlineService(root *outline.Node, index *outline.Index, records sync.RecordStore, notifier Notifier, undo UndoStore, log zerolog.Logger) *OutlineService {
	return &OutlineService{
		root:     root,
		index:    index,
		records:  records,
		notifier: notifier,
		undo:     undo,
		log:      log.With().Str("component", "outline-service").Logger(),
	}
}

// Root returns the tree root.
func (s *OutlineService) Root() *outline.Node { return s.root }

// SetRoot swaps the tree root after a full resync rebuilt it.
func (s *OutlineService) SetRoot(root *outline.Node) { s.root = root }

// Lookup resolves an item id, returning ErrNotFound for unknown ids.
func (s *OutlineService) Lookup(id string) (*outline.Node, error) {
	if node := s.index.Lookup(id); node != nil {
		return node, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Add creates a new item under the given parent (empty parentID means the
// root) at position at; a negative position appends. Returns the new node.
func (s *OutlineService) Add(ctx context.Context, parentID, text string, at int) (*outline.Node, error) {
	if err := validate.ItemTextField("text", text); err != nil {
		return nil, err
	}

	parent := s.root
	if parentID != "" {
		var err error
		if parent, err = s.Lookup(parentID); err != nil {
			return nil, err
		}
	}

	if at < 0 || at > parent.ChildCount() {
		at = parent.ChildCount()
	}

	node := outline.NewNode(uuid.NewString(), outline.Payload{Text: text, Tag: outline.TagNone})
	if err := parent.InsertChildren([]*outline.Node{node}, at); err != nil {
		return nil, fmt.Errorf("insert item: %w", err)
	}

	if err := s.saveSiblings(ctx, parent, at); err != nil {
		return nil, err
	}

	s.log.Debug().Str("id", node.ID).Str("parent", parent.ID).Int("at", at).Msg("item added")
	return node, nil
}

// SetText updates an item's text.
func (s *OutlineService) SetText(ctx context.Context, id, text string) error {
	if err := validate.ItemTextField("text", text); err != nil {
		return err
	}
	return s.updatePayload(ctx, id, func(n *outline.Node) { n.Data.Text = text })
}

// SetState updates an item's lifecycle state.
func (s *OutlineService) SetState(ctx context.Context, id string, state outline.State) error {
	if !state.Valid() {
		return fmt.Errorf("invalid state %d", state)
	}
	return s.updatePayload(ctx, id, func(n *outline.Node) { n.Data.State = state })
}

// SetTag updates an item's color tag.
func (s *OutlineService) SetTag(ctx context.Context, id string, tag outline.Tag) error {
	if !tag.Valid() {
		return fmt.Errorf("invalid tag %d: must be %d..%d or %d", tag, 0, outline.MaxTag, outline.TagNone)
	}
	return s.updatePayload(ctx, id, func(n *outline.Node) { n.Data.Tag = tag })
}

func (s *OutlineService) updatePayload(ctx context.Context, id string, mutate func(*outline.Node)) error {
	node, err := s.Lookup(id)
	if err != nil {
		return err
	}
	mutate(node)
	return s.saveRecords(ctx, node.Record())
}

// Remove deletes an item and its whole subtree. The batch lands on the undo
// stack; the removal is transmitted per record.
func (s *OutlineService) Remove(ctx context.Context, id string) error {
	node, err := s.Lookup(id)
	if err != nil {
		return err
	}
	if node == s.root {
		return fmt.Errorf("cannot remove the root item")
	}

	parent := node.Parent()
	at := node.IndexInParent()
	batch := outline.RemovalBatchOf(node)
	var ids []string
	node.Walk(func(n *outline.Node) { ids = append(ids, n.ID) })

	if _, err := parent.RemoveChildren([]int{at}); err != nil {
		return fmt.Errorf("remove item: %w", err)
	}

	if err := s.records.DeleteIDs(ctx, ids...); err != nil {
		return err
	}
	for _, delID := range ids {
		if err := s.notifier.ItemDeleted(ctx, delID); err != nil {
			return err
		}
	}

	if err := s.saveSiblings(ctx, parent, at); err != nil {
		return err
	}

	if err := s.pushUndo(batch); err != nil {
		s.log.Warn().Err(err).Str("id", id).Msg("could not persist undo batch")
	}

	s.log.Debug().Str("id", id).Int("subtree", len(ids)).Msg("item removed")
	return nil
}

// Move repositions an item: within its parent when parentID matches (or is
// empty), otherwise under a new parent. A negative position appends.
func (s *OutlineService) Move(ctx context.Context, id, parentID string, to int) error {
	node, err := s.Lookup(id)
	if err != nil {
		return err
	}
	if node == s.root {
		return fmt.Errorf("cannot move the root item")
	}

	oldParent := node.Parent()
	from := node.IndexInParent()

	newParent := oldParent
	if parentID != "" && parentID != oldParent.ID {
		if newParent, err = s.Lookup(parentID); err != nil {
			return err
		}
	}

	if newParent == oldParent {
		if to < 0 || to >= oldParent.ChildCount() {
			to = oldParent.ChildCount() - 1
		}
		if to == from {
			return nil
		}
		if err := oldParent.MoveChild(from, to); err != nil {
			return fmt.Errorf("move item: %w", err)
		}
		return s.saveSiblings(ctx, oldParent, min(from, to))
	}

	if to < 0 || to > newParent.ChildCount() {
		to = newParent.ChildCount()
	}
	if err := newParent.InsertChildren([]*outline.Node{node}, to); err != nil {
		return fmt.Errorf("move item: %w", err)
	}
	if err := s.saveSiblings(ctx, oldParent, from); err != nil {
		return err
	}
	return s.saveSiblings(ctx, newParent, to)
}

// Undo restores the most recently removed subtree. The persisted removal
// stack is authoritative so removals made in earlier invocations can be
// undone too. Returns the restored nodes, nil when there is nothing to undo.
func (s *OutlineService) Undo(ctx context.Context) ([]*outline.Node, error) {
	batches, err := s.undo.Load()
	if err != nil {
		return nil, fmt.Errorf("load undo stack: %w", err)
	}
	if len(batches) == 0 {
		return nil, nil
	}
	last := batches[len(batches)-1]

	var restored []*outline.Node
	if s.root.DeletionStackSize() > 0 {
		// The removal happened in this process; the live stack restores
		// original node identity.
		if restored, err = s.root.UndoDeletion(); err != nil {
			return nil, fmt.Errorf("undo: %w", err)
		}
	} else {
		node := last.Rebuild()
		if node == nil {
			return nil, fmt.Errorf("undo: corrupt removal batch")
		}
		parent := s.index.Lookup(last.ParentID)
		if parent == nil {
			parent = s.root
		}
		at := min(last.Position, parent.ChildCount())
		if err := parent.InsertChildren([]*outline.Node{node}, at); err != nil {
			return nil, fmt.Errorf("undo: %w", err)
		}
		restored = []*outline.Node{node}
	}

	if err := s.undo.Save(batches[:len(batches)-1]); err != nil {
		return nil, fmt.Errorf("persist undo stack: %w", err)
	}

	for _, node := range restored {
		if err := s.saveRecords(ctx, node.Records()...); err != nil {
			return nil, err
		}
	}
	// Reinsertion shifted the trailing siblings of the restore target.
	if err := s.saveSiblings(ctx, restored[0].Parent(), restored[0].IndexInParent()); err != nil {
		return nil, err
	}

	s.log.Debug().Int("restored", len(restored)).Msg("deletion undone")
	return restored, nil
}

// UndoDepth returns the number of undoable removal batches.
func (s *OutlineService) UndoDepth() int {
	batches, err := s.undo.Load()
	if err != nil {
		return 0
	}
	return len(batches)
}

func (s *OutlineService) pushUndo(batch outline.RemovalBatch) error {
	batches, err := s.undo.Load()
	if err != nil {
		return err
	}
	return s.undo.Save(append(batches, batch))
}

// saveSiblings persists parent's children from index from onward; their
// positions changed together.
func (s *OutlineService) saveSiblings(ctx context.Context, parent *outline.Node, from int) error {
	children := parent.Children()
	if from < 0 {
		from = 0
	}
	recs := make([]outline.Record, 0, len(children)-from)
	for _, child := range children[from:] {
		recs = append(recs, child.Record())
	}
	return s.saveRecords(ctx, recs...)
}

// saveRecords persists records locally, then hands each to the notifier.
func (s *OutlineService) saveRecords(ctx context.Context, recs ...outline.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if err := s.records.Upsert(ctx, recs...); err != nil {
		return err
	}
	for _, rec := range recs {
		if err := s.notifier.ItemSaved(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
