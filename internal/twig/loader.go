package twig

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/twigapp/twig/internal/core/outline"
	"github.com/twigapp/twig/internal/core/sync"
)

// defaultRootText names the root created on first run.
const defaultRootText = "Home"

// LoadOutline reconstructs the live tree from the local record store. An empty
// store gets a fresh root. A store that reconstructs into multiple roots or
// detached subtrees is repaired to a single tree: the single-root policy picks
// the survivor and everything else is adopted under it, never dropped.
func LoadOutline(ctx context.Context, records sync.RecordStore, state sync.StateStore, log zerolog.Logger) (*outline.Node, *outline.Index, error) {
	st, err := state.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load sync state: %w", err)
	}

	recs, err := records.LoadAll(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load records: %w", err)
	}

	if len(recs) == 0 {
		root := outline.NewNode(uuid.NewString(), outline.Payload{Text: defaultRootText, Tag: outline.TagNone})
		if err := records.Upsert(ctx, root.Record()); err != nil {
			return nil, nil, fmt.Errorf("persist new root: %w", err)
		}
		if err := state.SetActiveRootID(ctx, root.ID); err != nil {
			return nil, nil, fmt.Errorf("persist active root id: %w", err)
		}
		log.Info().Str("id", root.ID).Msg("created new outline root")
		return root, outline.NewIndex(root), nil
	}

	build := outline.Build(recs)
	root := outline.ChooseRoot(build.Roots, st.ActiveRootID)
	if root == nil {
		// Every stored record had a broken parent reference. Make a root and
		// adopt all of them so nothing is lost.
		root = outline.NewNode(uuid.NewString(), outline.Payload{Text: defaultRootText, Tag: outline.TagNone})
		log.Warn().Int("records", len(recs)).Msg("no root found in stored records, creating one")
	}

	var adopted []outline.Record
	for _, other := range build.Roots {
		if other == root {
			continue
		}
		log.Warn().Str("id", other.ID).Msg("extra root in stored records, adopting under active root")
		if err := root.InsertChildren([]*outline.Node{other}, root.ChildCount()); err != nil {
			return nil, nil, fmt.Errorf("adopt extra root: %w", err)
		}
		adopted = append(adopted, other.Record())
	}
	for _, d := range build.Detached {
		log.Warn().Str("id", d.Record.ID).Str("parent", d.Record.ParentID).
			Msg("stored record references a missing parent, adopting under active root")
		if err := root.InsertChildren([]*outline.Node{d.Node}, root.ChildCount()); err != nil {
			return nil, nil, fmt.Errorf("adopt detached record: %w", err)
		}
		adopted = append(adopted, d.Node.Record())
	}
	if len(adopted) > 0 {
		if err := records.Upsert(ctx, append(adopted, root.Record())...); err != nil {
			return nil, nil, fmt.Errorf("persist adopted records: %w", err)
		}
	}

	if st.ActiveRootID != root.ID {
		if err := state.SetActiveRootID(ctx, root.ID); err != nil {
			return nil, nil, fmt.Errorf("persist active root id: %w", err)
		}
	}

	return root, outline.NewIndex(root), nil
}
