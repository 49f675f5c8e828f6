package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/twigapp/twig/internal/core/outline"
	"github.com/twigapp/twig/internal/twig"
)

// ItemIDCompleter returns a ShellCompleteFunc that suggests item ids as
// positional completions. Set this as the ShellComplete field on any
// cli.Command that accepts an item id as an argument.
//
// When the user's last typed argument starts with "-", it falls back to the
// default flag completion behavior.
func ItemIDCompleter(app *twig.App) cli.ShellCompleteFunc {
	return func(ctx context.Context, cmd *cli.Command) {
		// Delegate to default flag completion when typing a flag
		if args := cmd.Args(); args.Present() {
			last := args.Slice()[args.Len()-1]
			if len(last) > 0 && last[0] == '-' {
				cli.DefaultCompleteWithFlags(ctx, cmd)
				return
			}
		}

		root := app.Outline.Root()
		w := cmd.Root().Writer
		root.Walk(func(n *outline.Node) {
			if n == root || n.Data.State == outline.StateTrashed {
				return
			}
			_, _ = fmt.Fprintf(w, "%s:%s\n", n.ID, n.Data.Text)
		})
	}
}
