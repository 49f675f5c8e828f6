package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/twigapp/twig/internal/core/dialog"
	"github.com/twigapp/twig/internal/core/sync"
)

// huhAsker poses dialog questions as interactive select forms.
type huhAsker struct{}

func (huhAsker) Pose(ctx context.Context, q dialog.Question) (dialog.Answer, error) {
	var choice string
	opts := make([]huh.Option[string], 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, huh.NewOption(o, o))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(q.Title).
				Description(q.Text).
				Options(opts...).
				Value(&choice),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		return dialog.Answer{}, fmt.Errorf("prompt: %w", err)
	}
	return dialog.Answer{Option: choice}, nil
}

// NewAsker picks the asker for this invocation. A --resolve value of "local"
// or "remote" pre-answers conflict questions, a non-interactive stdin falls
// back to each question's first option, and otherwise the user gets an
// interactive prompt.
func NewAsker(resolve string) (dialog.Asker, error) {
	switch resolve {
	case "local":
		return dialog.Static{Option: sync.OptionUseLocal}, nil
	case "remote":
		return dialog.Static{Option: sync.OptionUseRemote}, nil
	case "":
	default:
		return nil, fmt.Errorf("invalid --resolve value %q: must be local or remote", resolve)
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return dialog.Static{}, nil
	}
	return huhAsker{}, nil
}
