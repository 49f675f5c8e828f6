package sync

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/twigapp/twig/internal/core/dialog"
	"github.com/twigapp/twig/internal/core/outline"
	"github.com/twigapp/twig/internal/core/remote"
)

// Choice is the user's answer to an unresolved save conflict.
type Choice int

const (
	ChoiceUseLocal Choice = iota
	ChoiceUseRemote
)

// The dialog presents one choice for the whole batch, not per record: a
// single-user dataset keeps the mental model simple. Exported so callers can
// pre-answer the question in non-interactive runs.
const (
	OptionUseLocal  = "Keep this device's items"
	OptionUseRemote = "Use the synced items"
)

// Resolver escalates save conflicts to the user and computes the resulting
// records.
type Resolver struct {
	asker dialog.Asker
	log   zerolog.Logger
}

// NewResolver creates a resolver that poses questions through asker.
func NewResolver(asker dialog.Asker, log zerolog.Logger) *Resolver {
	return &Resolver{
		asker: asker,
		log:   log.With().Str("component", "resolver").Logger(),
	}
}

// Choose asks the user whether the local or remote copies win for a batch of
// count conflicting items.
func (r *Resolver) Choose(ctx context.Context, count int) (Choice, error) {
	answer, err := r.asker.Pose(ctx, dialog.Question{
		Title: "Sync conflict",
		Text: fmt.Sprintf(
			"%d item(s) were changed both on this device and elsewhere. Which copies should be kept?",
			count),
		Options: []string{OptionUseLocal, OptionUseRemote},
	})
	if err != nil {
		return ChoiceUseLocal, fmt.Errorf("pose conflict question: %w", err)
	}

	choice := ChoiceUseLocal
	if answer.Option == OptionUseRemote {
		choice = ChoiceUseRemote
	}
	r.log.Info().Int("conflicts", count).Str("answer", answer.Option).Msg("conflict resolved")
	return choice, nil
}

// MergeLocal merges the client's payload fields (text, state, tag, parent,
// position) onto the server's record, preserving the server's opaque version
// metadata so the resave is based on the latest server version. Deterministic
// for a given conflict.
func MergeLocal(c remote.SaveConflict) outline.Record {
	merged := c.Server
	merged.Text = c.Client.Text
	merged.State = c.Client.State
	merged.Tag = c.Client.Tag
	merged.ParentID = c.Client.ParentID
	merged.Position = c.Client.Position
	return merged
}
